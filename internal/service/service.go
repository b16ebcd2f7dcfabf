// Package service бизнес-операции маркетплейса: роли, запросы и предложения,
// контракты, расписание, жизненный цикл встреч и фоновый sweeper.
// Все изменения состояния идут через repository.Store.InTx
package service

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Freeeeeet/coach_marketplace/internal/auth"
	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/notify"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
	"github.com/Freeeeeet/coach_marketplace/internal/timezone"
)

// Clock источник текущего времени; тесты подставляют фиксированное
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// Policy параметры предметной области
type Policy struct {
	WorkingHours      model.WorkingHours
	MeetingProviders  []string // пустой список - любой https хост
	CommonTimezones   []string
	BookingHorizon    time.Duration
	TestMode          bool
	EmailVerification bool
	BaseURL           string
}

func (p Policy) withDefaults() Policy {
	if p.WorkingHours == nil {
		p.WorkingHours = model.DefaultWorkingHours()
	}
	if len(p.MeetingProviders) == 0 {
		p.MeetingProviders = model.DefaultMeetingProviders
	}
	if len(p.CommonTimezones) == 0 {
		p.CommonTimezones = timezone.Common
	}
	if p.BookingHorizon <= 0 {
		p.BookingHorizon = 365 * 24 * time.Hour
	}
	return p
}

// Deps зависимости сервисов
type Deps struct {
	Store  repository.Store
	Sender notify.Sender // nil - только записи в БД
	Tokens *auth.TokenIssuer
	Logger *zap.Logger
	Clock  Clock
	Policy Policy
}

// Services все сервисы, связанные между собой
type Services struct {
	Identity      *IdentityService
	Notifications *NotificationService
	Messaging     *MessagingService
	Marketplace   *MarketplaceService
	Contracts     *ContractService
	Availability  *AvailabilityService
	Scheduling    *SchedulingService
	Meetings      *MeetingService
	Sweeper       *Sweeper
}

func New(deps Deps) *Services {
	if deps.Clock == nil {
		deps.Clock = systemClock
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	policy := deps.Policy.withDefaults()

	notifications := NewNotificationService(deps.Store, deps.Sender, policy.BaseURL, deps.Clock, deps.Logger)
	availability := NewAvailabilityService(deps.Store, policy, deps.Clock, deps.Logger)
	contracts := NewContractService(deps.Store, notifications, policy, deps.Clock, deps.Logger)
	meetings := NewMeetingService(deps.Store, notifications, deps.Clock, deps.Logger)

	return &Services{
		Identity:      NewIdentityService(deps.Store, deps.Tokens, notifications, policy, deps.Clock, deps.Logger),
		Notifications: notifications,
		Messaging:     NewMessagingService(deps.Store, notifications, deps.Clock, deps.Logger),
		Marketplace:   NewMarketplaceService(deps.Store, notifications, deps.Clock, deps.Logger),
		Contracts:     contracts,
		Availability:  availability,
		Scheduling:    NewSchedulingService(deps.Store, availability, notifications, policy, deps.Clock, deps.Logger),
		Meetings:      meetings,
		Sweeper:       NewSweeper(deps.Store, meetings, notifications, deps.Clock, deps.Logger),
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("iana", func(fl validator.FieldLevel) bool {
		return timezone.Valid(fl.Field().String())
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// validateInput проверяет теги структуры; причина - имя первого невалидного поля
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return fmt.Errorf("validate input: %w", err)
	}
	fe := verrs[0]
	return &Error{
		Kind:   KindValidation,
		Reason: fe.Field(),
		Err:    fmt.Errorf("field %s failed %q check", fe.Field(), fe.Tag()),
	}
}

// outbox уведомления, созданные в транзакции; уходят наружу после коммита
type outbox []*model.Notification

func (o *outbox) add(ctx context.Context, r repository.Repos, n model.Notification) error {
	if err := r.Notifications.Create(ctx, &n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	*o = append(*o, &n)
	return nil
}

func note(userID int64, typ model.NotificationType, title, body, relatedType string, relatedID int64, now time.Time) model.Notification {
	n := model.Notification{
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Body:      body,
		CreatedAt: now,
	}
	if relatedType != "" {
		id := relatedID
		n.RelatedID = &id
		n.RelatedType = relatedType
	}
	return n
}

// loadUser читает пользователя, отсутствие - not_found
func loadUser(ctx context.Context, r repository.Repos, id int64) (*model.User, error) {
	user, err := r.Users.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}
