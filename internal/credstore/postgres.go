package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// psq はPostgreSQL用のプレースホルダ（$1, $2, ...）を使うステートメントビルダー。
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// credentialTable は資格情報を保存するテーブル名。
// スキーマはdatabase/migrationsで管理する。
const credentialTable = "credential_store"

// PostgresBackend はPostgreSQLを使用したBackend。
// 複数端末で同じオペレーターのセッションを共有するキオスク構成で使用する。
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend はPostgresBackendを生成する。
func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// Get はキーに対応する値を返す。
func (p *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	query, args, err := psq.Select("value").
		From(credentialTable).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var value []byte
	err = p.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return value, nil
}

// Put はキーに値を保存する。既存の値はON CONFLICTで上書きする。
func (p *PostgresBackend) Put(ctx context.Context, key string, value []byte) error {
	query, args, err := psq.Insert(credentialTable).
		Columns("key", "value", "updated_at").
		Values(key, string(value), sq.Expr("now()")).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build upsert query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to put credential: %w", err)
	}
	return nil
}

// Delete はキーを削除する。
func (p *PostgresBackend) Delete(ctx context.Context, key string) error {
	query, args, err := psq.Delete(credentialTable).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

var _ Backend = (*PostgresBackend)(nil)
