package handler

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/hitoshi/backoffice/internal/apierror"
	"github.com/hitoshi/backoffice/internal/middleware"
)

// strippedRequestHeaders はブラウザから受け取ってもバックエンドに転送しないヘッダー。
// 資格情報の付与はAuthTransportのみが行う。
var strippedRequestHeaders = []string{
	"Authorization",
	"Cookie",
	"X-CSRF-Token",
}

// maxErrorBodyBytes は正規化のために読み込むエラーボディの上限。
const maxErrorBodyBytes = 64 << 10

// NewAPIProxy は/api/*をバックエンドに転送するリバースプロキシを返す。
// transportにはAuthTransportを含む送信チェーンを渡す。
// バックエンドのSet-Cookieはブラウザに返さない。
// 4xx/5xxの応答は{status, message}形式に正規化してから返す。
func NewAPIProxy(target *url.URL, transport http.RoundTripper, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			for _, h := range strippedRequestHeaders {
				pr.Out.Header.Del(h)
			}
		},
		Transport: transport,
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Del("Set-Cookie")
			if resp.StatusCode < http.StatusBadRequest {
				return nil
			}
			return normalizeErrorResponse(resp)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Warn("api proxy request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			middleware.WriteErrorResponse(w, http.StatusBadGateway, apierror.Normalize(err))
		},
	}
}

// normalizeErrorResponse はバックエンドのエラー応答ボディを正規化済みのJSONに置き換える。
// ステータスコードは変更しない。
func normalizeErrorResponse(resp *http.Response) error {
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("decompress error body: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	raw, err := io.ReadAll(io.LimitReader(reader, maxErrorBodyBytes))
	if err != nil {
		return fmt.Errorf("read error body: %w", err)
	}

	apiErr := apierror.Normalize(&apierror.HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       raw,
	})
	body, err := json.Marshal(middleware.ErrorResponseBody{
		Status:  apiErr.Status,
		Message: apiErr.Message,
	})
	if err != nil {
		return fmt.Errorf("encode error body: %w", err)
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	resp.Header.Set("Content-Type", "application/json")
	resp.Header.Del("Content-Encoding")
	return nil
}
