package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/Freeeeeet/coach_marketplace/internal/auth"
	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
)

// Kind категория ошибки бизнес-операции
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotAllowed       Kind = "not_allowed"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindAlreadyProcessed Kind = "already_processed"
	KindPaymentRequired  Kind = "payment_required"
	KindExternal         Kind = "external"
	KindInternal         Kind = "internal"
)

// Причины, которые проверяют вызывающие
const (
	ReasonUnverified         = "unverified"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonNotActive          = "not_active"
	ReasonNotPayable         = "not_payable"
	ReasonPastTime           = "past_time"
	ReasonTooFarFuture       = "too_far_future"
	ReasonConflicts          = "conflicts"
	ReasonNotParty           = "not_party"
	ReasonWrongRole          = "wrong_role"
	ReasonNotApproved        = "not_approved"
	ReasonNoSessionsLeft     = "no_sessions_left"
	ReasonTestModeDisabled   = "test_mode_disabled"
)

// Error ошибка бизнес-операции с категорией и машинно-читаемой причиной
type Error struct {
	Kind   Kind
	Reason string
	Err    error

	// Conflicts пересекающиеся резервы для KindConflict
	Conflicts []model.Reservation
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += "(" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает по категории и, если задана, по причине
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotAllowed       = &Error{Kind: KindNotAllowed}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrAlreadyProcessed = &Error{Kind: KindAlreadyProcessed}
	ErrPaymentRequired  = &Error{Kind: KindPaymentRequired}
	ErrExternal         = &Error{Kind: KindExternal}
)

func newErr(kind Kind, reason, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Err: fmt.Errorf(format, args...)}
}

func validationErr(reason, format string, args ...any) *Error {
	return newErr(KindValidation, reason, format, args...)
}

func notAllowed(reason, format string, args ...any) *Error {
	return newErr(KindNotAllowed, reason, format, args...)
}

// transitionErr ошибка перехода state machine становится not_allowed
func transitionErr(err error) error {
	if errors.Is(err, model.ErrInvalidTransition) || errors.Is(err, model.ErrNotDue) {
		return &Error{Kind: KindNotAllowed, Err: err}
	}
	return err
}

// notFound заворачивает ErrNotFound репозитория, остальные ошибки возвращает как есть
func notFound(what string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &Error{Kind: KindNotFound, Reason: what, Err: err}
	}
	return fmt.Errorf("get %s: %w", what, err)
}

// KindOf категория любой ошибки; всё неизвестное - internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return KindValidation
	case errors.Is(err, repository.ErrNotFound):
		return KindNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return KindConflict
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrNotDue):
		return KindNotAllowed
	case errors.Is(err, auth.ErrWeakPassword):
		return KindValidation
	case errors.Is(err, auth.ErrInvalidToken):
		return KindNotAllowed
	default:
		return KindInternal
	}
}

// ReasonOf причина ошибки, если она есть
func ReasonOf(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Reason
	}
	return ""
}
