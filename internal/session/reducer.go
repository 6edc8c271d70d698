package session

import "github.com/hitoshi/backoffice/internal/model"

// Reduce は直前の状態とイベントから次の状態を計算する。
// 副作用を持たず、引数の状態を変更しない。
// 未知のイベントに対しては状態をそのまま返す。
func Reduce(prev State, ev Event) State {
	next := prev.clone()

	switch e := ev.(type) {
	case InitStart:
		// 初期状態以外では無視する
		if prev.Hydrated || prev.Loading || prev.IsAuthenticated {
			return next
		}
		next.Loading = true
		next.Error = nil
		next.Phase = PhaseHydrating

	case InitSuccess:
		if e.Profile == nil {
			return Reduce(prev, InitFailure{})
		}
		next.UserDetails = e.Profile.Clone()
		next.IsAuthenticated = true
		next.Hydrated = true
		if prev.Phase == PhaseLoggingIn {
			// 実行中のログインの結果で確定させる
			return next
		}
		next.Loading = false
		next.Error = nil
		next.Phase = PhaseAuthenticated

	case InitFailure:
		// ローカルにキャッシュされたプロファイルは消さない
		next.IsAuthenticated = next.UserDetails != nil
		next.Hydrated = true
		if prev.Phase == PhaseLoggingIn {
			return next
		}
		next.Loading = false
		next.Phase = next.settledPhase()

	case LoginStart:
		next.Loading = true
		next.Error = nil
		next.Phase = PhaseLoggingIn

	case LoginSuccess:
		if e.Profile == nil {
			return Reduce(prev, LoginFailure{})
		}
		next.Loading = false
		next.UserDetails = e.Profile.Clone()
		next.IsAuthenticated = true
		next.Error = nil
		next.Phase = PhaseAuthenticated

	case LoginFailure:
		next.Loading = false
		next.IsAuthenticated = false
		next.UserDetails = nil
		next.Error = e.Err.Clone()
		if next.Error == nil {
			next.Error = &model.APIError{Message: model.LoginErrorMessage}
		}
		next.Phase = PhaseAnonymous

	case Logout:
		next.UserDetails = nil
		next.IsAuthenticated = false
		next.Loading = false
		next.Error = nil
		next.Phase = PhaseAnonymous
	}

	return next
}
