package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
)

const (
	defaultCancellationPolicy = "Sessions may be rescheduled up to 5 hours before the start. Within 5 hours only the student may request a reschedule and the coach must approve it."
	maxContractNumberAttempts = 10000
	minRejectionReasonChars   = 3
)

// ContractProgress прогресс выполнения контракта
type ContractProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
	Percent   int `json:"percent"`
}

// ContractService контракты и платёжный шлюз расписания
type ContractService struct {
	store         repository.Store
	notifications *NotificationService
	testMode      bool
	now           Clock
	logger        *zap.Logger
}

func NewContractService(store repository.Store, notifications *NotificationService, policy Policy, clock Clock, logger *zap.Logger) *ContractService {
	return &ContractService{
		store:         store,
		notifications: notifications,
		testMode:      policy.TestMode,
		now:           clock,
		logger:        logger,
	}
}

// ensureSchedulable платёжный шлюз: планировать можно только по активному оплаченному контракту
func ensureSchedulable(c *model.Contract) error {
	if c.CanScheduleSessions() {
		return nil
	}
	switch {
	case c.Status == model.ContractStatusCompleted || c.Status == model.ContractStatusCancelled:
		return notAllowed(ReasonNotActive, "contract %s is %s", c.ContractNumber, c.Status)
	case c.PaymentStatus != model.PaymentStatusPaid:
		return &Error{Kind: KindPaymentRequired, Reason: ReasonNotPayable, Err: fmt.Errorf("contract %s payment is %s", c.ContractNumber, c.PaymentStatus)}
	default:
		return notAllowed(ReasonNotActive, "contract %s is %s", c.ContractNumber, c.Status)
	}
}

// allocateContractNumber следующий свободный номер за день. Вызывается под
// advisory-блокировкой внутри транзакции, создающей контракт
func allocateContractNumber(ctx context.Context, r repository.Repos, now time.Time) (string, error) {
	if err := r.Locks.LockContractNumbers(ctx); err != nil {
		return "", fmt.Errorf("lock contract numbers: %w", err)
	}

	last, err := r.Contracts.LastNumberWithPrefix(ctx, model.ContractNumberPrefix(now))
	if err != nil {
		return "", fmt.Errorf("get last contract number: %w", err)
	}
	counter := 1
	if n, ok := model.ParseContractCounter(last); ok {
		counter = n + 1
	}

	for i := 0; i < maxContractNumberAttempts; i++ {
		number := model.FormatContractNumber(now, counter)
		exists, err := r.Contracts.NumberExists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("check contract number: %w", err)
		}
		if !exists {
			return number, nil
		}
		counter++
	}
	return "", &Error{Kind: KindConflict, Reason: "contract_number", Err: fmt.Errorf("no free contract number for %s", now.Format("2006-01-02"))}
}

// createFromProposal строит контракт из принятого предложения в транзакции принятия
func createFromProposal(ctx context.Context, r repository.Repos, p *model.Proposal, req *model.LearningRequest, student *model.User, now time.Time) (*model.Contract, error) {
	number, err := allocateContractNumber(ctx, r, now)
	if err != nil {
		return nil, err
	}

	c := &model.Contract{
		ContractNumber:     number,
		ProposalID:         p.ID,
		RequestID:          req.ID,
		StudentID:          req.StudentID,
		CoachID:            p.CoachID,
		Title:              req.Title,
		Status:             model.ContractStatusAwaitingResponse,
		PaymentStatus:      model.PaymentStatusPending,
		TotalSessions:      p.SessionCount,
		Rate:               p.PricePerSession,
		DurationMinutes:    p.SessionDuration,
		PaymentModel:       model.PaymentPerSession,
		Timezone:           student.Timezone,
		CancellationPolicy: defaultCancellationPolicy,
		LearningOutcomes:   req.Description,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	c.TotalAmount = c.Rate.Mul(c.TotalSessions)

	if err := r.Contracts.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &Error{Kind: KindConflict, Reason: "contract_number", Err: err}
		}
		return nil, fmt.Errorf("create contract: %w", err)
	}
	return c, nil
}

func (s *ContractService) Get(ctx context.Context, userID, contractID int64) (*model.Contract, error) {
	c, err := s.store.Repos().Contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, notFound("contract", err)
	}
	if !c.IsParty(userID) {
		return nil, notAllowed(ReasonNotParty, "user %d is not a party of contract %d", userID, contractID)
	}
	return c, nil
}

func (s *ContractService) ListForUser(ctx context.Context, userID int64) ([]*model.Contract, error) {
	contracts, err := s.store.Repos().Contracts.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	return contracts, nil
}

func (s *ContractService) Progress(ctx context.Context, userID, contractID int64) (*ContractProgress, error) {
	c, err := s.Get(ctx, userID, contractID)
	if err != nil {
		return nil, err
	}
	return &ContractProgress{
		Completed: c.CompletedSessions,
		Total:     c.TotalSessions,
		Remaining: c.RemainingSessions(),
		Percent:   c.ProgressPercent(),
	}, nil
}

// mutate загружает контракт под блокировкой, применяет fn и сохраняет
func (s *ContractService) mutate(ctx context.Context, contractID int64, fn func(r repository.Repos, c *model.Contract, out *outbox) error) (*model.Contract, error) {
	var (
		contract *model.Contract
		out      outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		c, err := r.Contracts.GetForUpdate(ctx, contractID)
		if err != nil {
			return notFound("contract", err)
		}
		if err := fn(r, c, &out); err != nil {
			return err
		}
		if err := r.Contracts.Update(ctx, c); err != nil {
			return fmt.Errorf("update contract: %w", err)
		}
		contract = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)
	return contract, nil
}

// CoachAccept коуч принимает условия контракта
func (s *ContractService) CoachAccept(ctx context.Context, coachID, contractID int64) (*model.Contract, error) {
	now := s.now()
	c, err := s.mutate(ctx, contractID, func(r repository.Repos, c *model.Contract, out *outbox) error {
		if c.CoachID != coachID {
			return notAllowed(ReasonNotParty, "only the coach may accept contract %d", c.ID)
		}
		if err := c.CoachAccept(now); err != nil {
			return transitionErr(err)
		}
		return out.add(ctx, r, note(c.StudentID, model.NotificationContractAccepted,
			"Contract accepted",
			fmt.Sprintf("Your coach accepted contract %s. Complete the payment of %s to start scheduling sessions.", c.ContractNumber, c.TotalAmount.Format()),
			model.RelatedContract, c.ID, now))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Contract accepted by coach", zap.Int64("contract_id", contractID), zap.Int64("coach_id", coachID))
	return c, nil
}

// CoachReject коуч отказывается, причина обязательна
func (s *ContractService) CoachReject(ctx context.Context, coachID, contractID int64, reason string) (*model.Contract, error) {
	reason = strings.TrimSpace(reason)
	if len([]rune(reason)) < minRejectionReasonChars {
		return nil, validationErr("reason", "rejection reason is required")
	}
	now := s.now()

	c, err := s.mutate(ctx, contractID, func(r repository.Repos, c *model.Contract, out *outbox) error {
		if c.CoachID != coachID {
			return notAllowed(ReasonNotParty, "only the coach may reject contract %d", c.ID)
		}
		if err := c.CoachReject(reason, now); err != nil {
			return transitionErr(err)
		}
		return out.add(ctx, r, note(c.StudentID, model.NotificationContractRejected,
			"Contract declined",
			fmt.Sprintf("Your coach declined contract %s: %s", c.ContractNumber, reason),
			model.RelatedContract, c.ID, now))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Contract rejected by coach", zap.Int64("contract_id", contractID), zap.String("reason", reason))
	return c, nil
}

// MarkPaymentPaid вызов из проверенного вебхука: accepted -> active в одной транзакции
func (s *ContractService) MarkPaymentPaid(ctx context.Context, contractID int64, externalPaymentID string) (*model.Contract, error) {
	externalPaymentID = strings.TrimSpace(externalPaymentID)
	if externalPaymentID == "" {
		return nil, validationErr("external_payment_id", "external payment id is required")
	}
	now := s.now()

	c, err := s.mutate(ctx, contractID, func(r repository.Repos, c *model.Contract, out *outbox) error {
		if c.PaymentStatus == model.PaymentStatusPaid {
			return &Error{Kind: KindAlreadyProcessed, Reason: "paid", Err: fmt.Errorf("contract %s already paid", c.ContractNumber)}
		}
		if err := c.MarkPaid(externalPaymentID, now); err != nil {
			return transitionErr(err)
		}

		body := fmt.Sprintf("Payment of %s for contract %s received. Sessions can now be scheduled.", c.PaidAmount.Format(), c.ContractNumber)
		for _, userID := range []int64{c.StudentID, c.CoachID} {
			if err := out.add(ctx, r, note(userID, model.NotificationPaymentReceived, "Payment received", body, model.RelatedContract, c.ID, now)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Contract paid",
		zap.Int64("contract_id", contractID),
		zap.String("external_payment_id", externalPaymentID),
		zap.String("amount", c.PaidAmount.String()),
	)
	return c, nil
}

// PayInTestMode в тестовом режиме оплата проходит сразу, без провайдера
func (s *ContractService) PayInTestMode(ctx context.Context, studentID, contractID int64) (*model.Contract, error) {
	if !s.testMode {
		return nil, notAllowed(ReasonTestModeDisabled, "test payments are disabled")
	}
	c, err := s.Get(ctx, studentID, contractID)
	if err != nil {
		return nil, err
	}
	if c.StudentID != studentID {
		return nil, notAllowed(ReasonWrongRole, "only the student pays for contract %d", contractID)
	}
	return s.MarkPaymentPaid(ctx, contractID, "test_"+uuid.NewString())
}

func (s *ContractService) MarkPaymentFailed(ctx context.Context, contractID int64) (*model.Contract, error) {
	now := s.now()
	c, err := s.mutate(ctx, contractID, func(r repository.Repos, c *model.Contract, out *outbox) error {
		if err := c.MarkPaymentFailed(now); err != nil {
			return transitionErr(err)
		}
		return out.add(ctx, r, note(c.StudentID, model.NotificationPaymentFailed,
			"Payment failed",
			fmt.Sprintf("The payment for contract %s did not go through. Please try again.", c.ContractNumber),
			model.RelatedContract, c.ID, now))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("Contract payment failed", zap.Int64("contract_id", contractID))
	return c, nil
}

// Refund терминальный возврат; запланированные занятия отменяются
func (s *ContractService) Refund(ctx context.Context, contractID int64) (*model.Contract, error) {
	now := s.now()
	var cancelled int64
	c, err := s.mutate(ctx, contractID, func(r repository.Repos, c *model.Contract, out *outbox) error {
		if err := c.Refund(now); err != nil {
			return transitionErr(err)
		}
		n, err := r.Sessions.CancelScheduledByContract(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("cancel contract sessions: %w", err)
		}
		cancelled = n

		body := fmt.Sprintf("Contract %s was refunded and cancelled.", c.ContractNumber)
		for _, userID := range []int64{c.StudentID, c.CoachID} {
			if err := out.add(ctx, r, note(userID, model.NotificationPaymentRefunded, "Payment refunded", body, model.RelatedContract, c.ID, now)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Contract refunded", zap.Int64("contract_id", contractID), zap.Int64("sessions_cancelled", cancelled))
	return c, nil
}

// Cancel отмена стороной: только активный контракт без проведённых занятий
func (s *ContractService) Cancel(ctx context.Context, userID, contractID int64, reason string) (*model.Contract, error) {
	reason = strings.TrimSpace(reason)
	now := s.now()

	var cancelled int64
	c, err := s.mutate(ctx, contractID, func(r repository.Repos, c *model.Contract, out *outbox) error {
		if !c.IsParty(userID) {
			return notAllowed(ReasonNotParty, "user %d is not a party of contract %d", userID, c.ID)
		}
		if err := c.Cancel(reason, now); err != nil {
			return transitionErr(err)
		}
		n, err := r.Sessions.CancelScheduledByContract(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("cancel contract sessions: %w", err)
		}
		cancelled = n

		body := fmt.Sprintf("Contract %s was cancelled by the %s.", c.ContractNumber, c.RoleOf(userID))
		if reason != "" {
			body += " Reason: " + reason
		}
		return out.add(ctx, r, note(c.Counterparty(userID), model.NotificationContractCancelled,
			"Contract cancelled", body, model.RelatedContract, c.ID, now))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Contract cancelled",
		zap.Int64("contract_id", contractID),
		zap.Int64("user_id", userID),
		zap.Int64("sessions_cancelled", cancelled),
	)
	return c, nil
}
