// Package handler はコンソールのHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// isJSONRequest はリクエストボディがJSONかを返す。
func isJSONRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// wantsJSON はクライアントがJSONレスポンスを期待しているかを返す。
func wantsJSON(r *http.Request) bool {
	if isJSONRequest(r) {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
