package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Freeeeeet/coach_marketplace/internal/repository"
)

// Store хранилище поверх пула соединений
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ repository.Store = (*Store)(nil)

// Pool возвращает пул соединений
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) Repos() repository.Repos {
	return newRepos(s.pool)
}

// InTx открывает транзакцию, коммитит при успехе fn и откатывает при ошибке
func (s *Store) InTx(ctx context.Context, fn func(r repository.Repos) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(newRepos(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func newRepos(db DBTX) repository.Repos {
	return repository.Repos{
		Users:         &UserRepository{db: db},
		Profiles:      &ProfileRepository{db: db},
		RoleSwitches:  &RoleSwitchRepository{db: db},
		Requests:      &LearningRequestRepository{db: db},
		Proposals:     &ProposalRepository{db: db},
		Contracts:     &ContractRepository{db: db},
		Sessions:      &SessionRepository{db: db},
		Calls:         &CallRepository{db: db},
		Messages:      &MessageRepository{db: db},
		Notifications: &NotificationRepository{db: db},
		Locks:         &LockRepository{db: db},
	}
}

// Ключи advisory-блокировок. Пространство 1 - календари коучей
const (
	lockSpaceCoachCalendar  = 1
	lockSpaceContractNumber = 2
)

type LockRepository struct {
	db DBTX
}

// LockCoachCalendar блокировка держится до конца транзакции
func (r *LockRepository) LockCoachCalendar(ctx context.Context, coachID int64) error {
	if _, err := r.db.Exec(ctx, "SELECT pg_advisory_xact_lock($1::int, $2::int)", lockSpaceCoachCalendar, int32(coachID)); err != nil {
		return fmt.Errorf("lock coach calendar: %w", err)
	}
	return nil
}

func (r *LockRepository) LockContractNumbers(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, "SELECT pg_advisory_xact_lock($1::int, 0)", lockSpaceContractNumber); err != nil {
		return fmt.Errorf("lock contract numbers: %w", err)
	}
	return nil
}
