package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
)

type ContractRepository struct {
	db DBTX
}

func NewContractRepository(db DBTX) *ContractRepository {
	return &ContractRepository{db: db}
}

const contractColumns = `
	id, contract_number, proposal_id, request_id, student_id, coach_id, title, status, payment_status,
	start_date, end_date, total_sessions, completed_sessions, (rate * 100)::bigint, duration_minutes,
	payment_model, timezone, cancellation_policy, learning_outcomes, (total_amount * 100)::bigint,
	(paid_amount * 100)::bigint, external_payment_id, payment_completed_at, rejection_reason,
	cancellation_reason, accepted_at, completed_at, cancelled_at, created_at, updated_at`

func scanContract(row pgx.Row) (*model.Contract, error) {
	var (
		c                                   model.Contract
		externalID, rejection, cancellation *string
	)
	err := row.Scan(
		&c.ID,
		&c.ContractNumber,
		&c.ProposalID,
		&c.RequestID,
		&c.StudentID,
		&c.CoachID,
		&c.Title,
		&c.Status,
		&c.PaymentStatus,
		&c.StartDate,
		&c.EndDate,
		&c.TotalSessions,
		&c.CompletedSessions,
		moneyDest(&c.Rate),
		&c.DurationMinutes,
		&c.PaymentModel,
		&c.Timezone,
		&c.CancellationPolicy,
		&c.LearningOutcomes,
		moneyDest(&c.TotalAmount),
		moneyDest(&c.PaidAmount),
		&externalID,
		&c.PaymentCompletedAt,
		&rejection,
		&cancellation,
		&c.AcceptedAt,
		&c.CompletedAt,
		&c.CancelledAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ExternalPaymentID = derefString(externalID)
	c.RejectionReason = derefString(rejection)
	c.CancellationReason = derefString(cancellation)
	return &c, nil
}

// Create номер контракта и proposal_id уникальны, конфликт даёт ErrDuplicate
func (r *ContractRepository) Create(ctx context.Context, c *model.Contract) error {
	query := `
		INSERT INTO contracts (contract_number, proposal_id, request_id, student_id, coach_id, title,
			status, payment_status, start_date, end_date, total_sessions, completed_sessions, rate,
			duration_minutes, payment_model, timezone, cancellation_policy, learning_outcomes,
			total_amount, paid_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::bigint / 100.0, $14, $15, $16,
			$17, $18, $19::bigint / 100.0, $20::bigint / 100.0, $21, $21)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		c.ContractNumber,
		c.ProposalID,
		c.RequestID,
		c.StudentID,
		c.CoachID,
		c.Title,
		c.Status,
		c.PaymentStatus,
		c.StartDate,
		c.EndDate,
		c.TotalSessions,
		c.CompletedSessions,
		cents(c.Rate),
		c.DurationMinutes,
		c.PaymentModel,
		c.Timezone,
		c.CancellationPolicy,
		c.LearningOutcomes,
		cents(c.TotalAmount),
		cents(c.PaidAmount),
		c.CreatedAt,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create contract: %w", mapErr(err))
	}
	return nil
}

func (r *ContractRepository) get(ctx context.Context, query string, arg any) (*model.Contract, error) {
	c, err := scanContract(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, fmt.Errorf("get contract: %w", mapErr(err))
	}
	return c, nil
}

func (r *ContractRepository) GetByID(ctx context.Context, id int64) (*model.Contract, error) {
	return r.get(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id)
}

func (r *ContractRepository) GetForUpdate(ctx context.Context, id int64) (*model.Contract, error) {
	return r.get(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1 FOR UPDATE`, id)
}

func (r *ContractRepository) GetByProposalID(ctx context.Context, proposalID int64) (*model.Contract, error) {
	return r.get(ctx, `SELECT `+contractColumns+` FROM contracts WHERE proposal_id = $1`, proposalID)
}

func (r *ContractRepository) LastNumberWithPrefix(ctx context.Context, prefix string) (string, error) {
	var number string
	err := r.db.QueryRow(ctx, `
		SELECT contract_number
		FROM contracts
		WHERE contract_number LIKE $1 || '%'
		ORDER BY substring(contract_number FROM char_length($1) + 1)::int DESC
		LIMIT 1
	`, prefix).Scan(&number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("last contract number: %w", err)
	}
	return number, nil
}

func (r *ContractRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM contracts WHERE contract_number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check contract number: %w", err)
	}
	return exists, nil
}

// Update сохраняет изменяемое состояние контракта
func (r *ContractRepository) Update(ctx context.Context, c *model.Contract) error {
	query := `
		UPDATE contracts
		SET status = $1, payment_status = $2, start_date = $3, end_date = $4, completed_sessions = $5,
			paid_amount = $6::bigint / 100.0, external_payment_id = $7, payment_completed_at = $8,
			rejection_reason = $9, cancellation_reason = $10, accepted_at = $11, completed_at = $12,
			cancelled_at = $13, updated_at = $14
		WHERE id = $15
	`

	err := requireOne(execAffected(
		ctx, r.db, query,
		c.Status,
		c.PaymentStatus,
		c.StartDate,
		c.EndDate,
		c.CompletedSessions,
		cents(c.PaidAmount),
		nullString(c.ExternalPaymentID),
		c.PaymentCompletedAt,
		nullString(c.RejectionReason),
		nullString(c.CancellationReason),
		c.AcceptedAt,
		c.CompletedAt,
		c.CancelledAt,
		c.UpdatedAt,
		c.ID,
	))
	if err != nil {
		return fmt.Errorf("update contract: %w", mapErr(err))
	}
	return nil
}

func (r *ContractRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Contract, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+contractColumns+`
		FROM contracts
		WHERE student_id = $1 OR coach_id = $1
		ORDER BY id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*model.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		contracts = append(contracts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contracts: %w", err)
	}

	return contracts, nil
}
