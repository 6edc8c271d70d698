package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend はキーごとの値を1つのJSONオブジェクトとしてファイルに保存するBackend。
// ブラウザのlocalStorageと同様に、複数キーを1ファイルで管理する。
// 書き込みは一時ファイルへの書き出しとrenameで行い、途中状態を残さない。
type FileBackend struct {
	path string
	mu   sync.Mutex
}

// NewFileBackend は指定パスを保存先とするFileBackendを生成する。
// ファイルとディレクトリは最初の書き込み時に作成される。
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path は保存先ファイルのパスを返す。
func (f *FileBackend) Path() string {
	return f.path
}

// Get はキーに対応する値を返す。
// ファイルが存在しない場合はErrNotFound、JSONが壊れている場合はエラーを返す。
func (f *FileBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return nil, err
	}

	v, ok := entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Put はキーに値を保存する。既存ファイルが壊れている場合は空として上書きする。
func (f *FileBackend) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("value for key %q is not valid JSON", key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil && !errors.Is(err, ErrNotFound) {
		entries = nil
	}
	if entries == nil {
		entries = make(map[string]json.RawMessage)
	}
	entries[key] = json.RawMessage(value)

	return f.write(entries)
}

// Delete はキーを削除する。ファイルが存在しない場合は何もしない。
func (f *FileBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		// 壊れたファイルは削除して復旧する
		if rmErr := os.Remove(f.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove corrupted credential file: %w", rmErr)
		}
		return nil
	}

	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)

	if len(entries) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove credential file: %w", err)
		}
		return nil
	}
	return f.write(entries)
}

// read はファイル全体を読み込む。呼び出し側でロックを保持すること。
func (f *FileBackend) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	entries := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	return entries, nil
}

// write はファイル全体を原子的に書き込む。呼び出し側でロックを保持すること。
func (f *FileBackend) write(entries map[string]json.RawMessage) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode credential file: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

var _ Backend = (*FileBackend)(nil)
