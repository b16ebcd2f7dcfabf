// Package postgres реализация хранилища на PostgreSQL (pgx)
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
)

// DBTX общий интерфейс пула и транзакции
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// execAffected выполняет команду и возвращает количество затронутых строк
func execAffected(ctx context.Context, db DBTX, query string, args ...any) (int64, error) {
	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// mapErr переводит ошибки драйвера в ошибки репозитория
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// isUniqueViolation проверяет нарушение уникального индекса
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// requireOne превращает "0 строк обновлено" в ErrNotFound
func requireOne(affected int64, err error) error {
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// nullString пустая строка пишется как NULL
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Деньги хранятся в NUMERIC(12,2), в коде - в центах.
// В запросах: запись $n::bigint / 100.0, чтение (col * 100)::bigint
func cents(m model.Money) int64 {
	return int64(m)
}

func moneyDest(m *model.Money) *int64 {
	return (*int64)(m)
}
