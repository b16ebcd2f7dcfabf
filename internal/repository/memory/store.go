// Package memory хранилище в памяти процесса. Используется тестами и
// dev-режимом без базы. Транзакции сериализуются одним мьютексом,
// откат восстанавливает снимок состояния
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
)

type state struct {
	nextID        map[string]int64
	users         map[int64]model.User
	students      map[int64]model.StudentProfile // ключ - user_id
	coaches       map[int64]model.CoachProfile   // ключ - user_id
	roleSwitches  []model.RoleSwitchLog
	requests      map[int64]model.LearningRequest
	proposals     map[int64]model.Proposal
	contracts     map[int64]model.Contract
	sessions      map[int64]model.Session
	calls         map[int64]model.ScheduledCall
	messages      []model.Message
	notifications map[int64]model.Notification
}

func newState() *state {
	return &state{
		nextID:        make(map[string]int64),
		users:         make(map[int64]model.User),
		students:      make(map[int64]model.StudentProfile),
		coaches:       make(map[int64]model.CoachProfile),
		requests:      make(map[int64]model.LearningRequest),
		proposals:     make(map[int64]model.Proposal),
		contracts:     make(map[int64]model.Contract),
		sessions:      make(map[int64]model.Session),
		calls:         make(map[int64]model.ScheduledCall),
		notifications: make(map[int64]model.Notification),
	}
}

func (s *state) id(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// clone снимок состояния. Значения внутри map копируются по значению,
// вложенные слайсы никогда не меняются на месте
func (s *state) clone() *state {
	return &state{
		nextID:        copyMap(s.nextID),
		users:         copyMap(s.users),
		students:      copyMap(s.students),
		coaches:       copyMap(s.coaches),
		roleSwitches:  append([]model.RoleSwitchLog(nil), s.roleSwitches...),
		requests:      copyMap(s.requests),
		proposals:     copyMap(s.proposals),
		contracts:     copyMap(s.contracts),
		sessions:      copyMap(s.sessions),
		calls:         copyMap(s.calls),
		messages:      append([]model.Message(nil), s.messages...),
		notifications: copyMap(s.notifications),
	}
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

var _ repository.Store = (*Store)(nil)

// Repos репозитории вне транзакции: каждый вызов берёт мьютекс сам
func (s *Store) Repos() repository.Repos {
	return s.repos(true)
}

// InTx держит мьютекс на всю транзакцию; при ошибке состояние откатывается
func (s *Store) InTx(ctx context.Context, fn func(r repository.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(s.repos(false)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) repos(lock bool) repository.Repos {
	h := handle{store: s, lock: lock}
	return repository.Repos{
		Users:         userRepo{h},
		Profiles:      profileRepo{h},
		RoleSwitches:  roleSwitchRepo{h},
		Requests:      requestRepo{h},
		Proposals:     proposalRepo{h},
		Contracts:     contractRepo{h},
		Sessions:      sessionRepo{h},
		Calls:         callRepo{h},
		Messages:      messageRepo{h},
		Notifications: notificationRepo{h},
		Locks:         lockRepo{},
	}
}

type handle struct {
	store *Store
	lock  bool
}

func (h handle) do(fn func(st *state) error) error {
	if h.lock {
		h.store.mu.Lock()
		defer h.store.mu.Unlock()
	}
	return fn(h.store.st)
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// lockRepo в памяти транзакции и так сериализованы
type lockRepo struct{}

func (lockRepo) LockCoachCalendar(context.Context, int64) error { return nil }
func (lockRepo) LockContractNumbers(context.Context) error      { return nil }
