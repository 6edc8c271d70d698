package auth

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/backoffice/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// mockRecorder はメトリクス記録のモック。
type mockRecorder struct {
	mu       sync.Mutex
	outcomes []string
	sources  []string
}

func (m *mockRecorder) RecordLoginOutcome(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockRecorder) RecordHydration(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, source)
}

func (m *mockRecorder) snapshot() ([]string, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.outcomes...), append([]string(nil), m.sources...)
}

// mockLoader は永続化済みスナップショットを返すモック。
type mockLoader struct {
	persisted *model.PersistedSession
	token     string
}

func (m *mockLoader) Load(context.Context) *model.PersistedSession { return m.persisted }
func (m *mockLoader) Token(context.Context) string                 { return m.token }

// mockFetcher は/api/auth/meのモック。
type mockFetcher struct {
	mu      sync.Mutex
	profile *model.UserProfile
	err     error
	calls   int
}

func (m *mockFetcher) Me(context.Context) (*model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.profile, m.err
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
