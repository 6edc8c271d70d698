// Package credstore は最後に認証されたセッションのスナップショットを
// 永続化するキー・バリューストアを提供する。
//
// 保存先はBackendとして差し替え可能で、JSONファイル、PostgreSQL、
// メモリの実装を持つ。ストレージの失敗はStoreの境界で握りつぶされ、
// メモリ上のセッションが常に正となる。
package credstore

import (
	"context"
	"errors"
)

// ErrNotFound はキーが存在しない場合に返される。
var ErrNotFound = errors.New("credstore: key not found")

// Backend は永続的なキー・バリューストレージのインターフェース。
type Backend interface {
	// Get はキーに対応する値を返す。存在しない場合はErrNotFoundを返す。
	Get(ctx context.Context, key string) ([]byte, error)
	// Put はキーに値を保存する。既存の値は上書きする。
	Put(ctx context.Context, key string, value []byte) error
	// Delete はキーを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
}
