package model

import "errors"

var (
	// ErrInvalidTransition переход не разрешён state machine
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNotDue операция по времени ещё не доступна
	ErrNotDue = errors.New("not due yet")
)
