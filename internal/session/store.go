package session

import (
	"context"
	"log/slog"
	"sync"
)

// Effect は状態遷移の直後に同期的に実行される副作用。
// Dispatchのロック内で呼ばれるため、EffectからDispatchを呼んではならない。
type Effect interface {
	Apply(ctx context.Context, prev, next State, ev Event)
}

// EffectFunc は関数をEffectとして扱うためのアダプタ。
type EffectFunc func(ctx context.Context, prev, next State, ev Event)

// Apply はfを呼び出す。
func (f EffectFunc) Apply(ctx context.Context, prev, next State, ev Event) {
	f(ctx, prev, next, ev)
}

// Listener は状態遷移の通知を受け取るコールバック。
// Effectと同様にDispatchのロック内で呼ばれる。
type Listener func(next State, ev Event)

// Reader はスナップショットの読み取りのみを行う利用側のためのインターフェース。
type Reader interface {
	Snapshot() State
}

// Dispatcher はイベントの発行のみを行う利用側のためのインターフェース。
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) State
}

// Store はセッション状態を保持し、宣言済みの遷移のみを適用する。
// 遷移・副作用・通知は1つのミューテックスで直列化される。
type Store struct {
	mu        sync.Mutex
	state     State
	effects   []Effect
	listeners map[uint64]Listener
	nextID    uint64
	logger    *slog.Logger
}

// NewStore は初期状態のStoreを生成する。
// effectsは登録順に実行される。
func NewStore(baseURL string, logger *slog.Logger, effects ...Effect) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		state:     Initial(baseURL),
		effects:   effects,
		listeners: make(map[uint64]Listener),
		logger:    logger,
	}
}

// Dispatch はイベントを適用し、遷移後の状態のコピーを返す。
// 副作用とリスナー通知が完了してから戻る。
func (s *Store) Dispatch(ctx context.Context, ev Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	next := Reduce(prev, ev)
	s.state = next

	for _, eff := range s.effects {
		eff.Apply(ctx, prev.clone(), next.clone(), ev)
	}

	for _, l := range s.listeners {
		l(next.clone(), ev)
	}

	s.logger.Debug("session transition",
		slog.String("event", ev.Name()),
		slog.String("from", string(prev.Phase)),
		slog.String("to", string(next.Phase)),
		slog.Bool("authenticated", next.IsAuthenticated),
	)

	return next.clone()
}

// Snapshot は現在の状態のディープコピーを返す。
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe はリスナーを登録し、登録解除用の関数を返す。
// 解除関数は複数回呼んでも安全。
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
