package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/session"
)

const (
	// sseBufferSize はSSE接続ごとの未送信イベントの上限。超えた分は破棄する。
	sseBufferSize = 16
	// defaultHeartbeat はSSE接続の生存確認コメントの送信間隔。
	defaultHeartbeat = 25 * time.Second
)

// SessionSource はスナップショットの取得と遷移の購読を提供する。session.Storeが実装する。
type SessionSource interface {
	session.Reader
	Subscribe(l session.Listener) func()
}

// sessionSnapshot はトークンを除いたセッション状態のレスポンス。
type sessionSnapshot struct {
	Phase           session.Phase      `json:"phase"`
	IsAuthenticated bool               `json:"isAuthenticated"`
	Loading         bool               `json:"loading"`
	Hydrated        bool               `json:"hydrated"`
	BaseURL         string             `json:"baseUrl"`
	UserDetails     *model.UserProfile `json:"userDetails"`
	Error           *model.APIError    `json:"error"`
}

// sessionEvent はSSEで送信する遷移通知。
type sessionEvent struct {
	Event string          `json:"event"`
	State sessionSnapshot `json:"state"`
}

// redact はトークン類を取り除いたスナップショットを返す。
func redact(st session.State) sessionSnapshot {
	profile := st.UserDetails.Clone()
	if profile != nil {
		profile.Token = ""
		profile.AccessToken = ""
	}
	return sessionSnapshot{
		Phase:           st.Phase,
		IsAuthenticated: st.IsAuthenticated,
		Loading:         st.Loading,
		Hydrated:        st.Hydrated,
		BaseURL:         st.BaseURL,
		UserDetails:     profile,
		Error:           st.Error,
	}
}

// SessionHandler はセッション状態の参照と変更通知のHTTPハンドラー。
type SessionHandler struct {
	source    SessionSource
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(source SessionSource, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{
		source:    source,
		heartbeat: defaultHeartbeat,
		logger:    logger,
	}
}

// Snapshot は現在のセッション状態を返す。
// GET /session
func (h *SessionHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, redact(h.source.Snapshot()))
}

// Events はセッションの遷移をServer-Sent Eventsで配信する。
// 接続直後に現在の状態をsnapshotイベントとして送信する。
// GET /session/events
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events := make(chan sessionEvent, sseBufferSize)
	// リスナーはStoreのロック内で呼ばれるため、ブロックしない
	unsubscribe := h.source.Subscribe(func(next session.State, ev session.Event) {
		select {
		case events <- sessionEvent{Event: ev.Name(), State: redact(next)}:
		default:
			h.logger.Warn("session event dropped for slow subscriber",
				slog.String("event", ev.Name()),
			)
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "snapshot", redact(h.source.Snapshot())); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if err := writeSSE(w, "transition", ev); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE は1件のイベントをSSE形式で書き込む。
func writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
