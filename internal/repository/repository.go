// Package repository описывает хранилище маркетплейса. Реализации:
// postgres (pgx) и memory (тесты, dev-режим)
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*model.User, error)
	Update(ctx context.Context, user *model.User) error
}

type ProfileRepository interface {
	CreateStudent(ctx context.Context, p *model.StudentProfile) error
	GetStudent(ctx context.Context, userID int64) (*model.StudentProfile, error)
	CreateCoach(ctx context.Context, p *model.CoachProfile) error
	GetCoach(ctx context.Context, userID int64) (*model.CoachProfile, error)
	UpdateCoach(ctx context.Context, p *model.CoachProfile) error
}

type RoleSwitchRepository interface {
	Append(ctx context.Context, entry *model.RoleSwitchLog) error
	ListByUser(ctx context.Context, userID int64) ([]*model.RoleSwitchLog, error)
}

type LearningRequestRepository interface {
	// Create сохраняет запрос вместе с вопросами
	Create(ctx context.Context, req *model.LearningRequest) error
	GetByID(ctx context.Context, id int64) (*model.LearningRequest, error)
	Update(ctx context.Context, req *model.LearningRequest) error
	// ReplaceQuestions заменяет набор вопросов целиком
	ReplaceQuestions(ctx context.Context, requestID int64, questions []model.ScreeningQuestion) ([]model.ScreeningQuestion, error)
	ListActive(ctx context.Context) ([]*model.LearningRequest, error)
	ListByStudent(ctx context.Context, studentID int64) ([]*model.LearningRequest, error)
}

type ProposalRepository interface {
	// Create сохраняет предложение вместе с ответами
	Create(ctx context.Context, p *model.Proposal) error
	GetByID(ctx context.Context, id int64) (*model.Proposal, error)
	// GetForUpdate читает предложение с блокировкой строки до конца транзакции
	GetForUpdate(ctx context.Context, id int64) (*model.Proposal, error)
	ExistsForCoach(ctx context.Context, requestID, coachID int64) (bool, error)
	ListByRequest(ctx context.Context, requestID int64) ([]*model.Proposal, error)
	ListByCoach(ctx context.Context, coachID int64) ([]*model.Proposal, error)
	UpdateStatus(ctx context.Context, id int64, status model.ProposalStatus) error
	// Delete удаляет предложение вместе с ответами
	Delete(ctx context.Context, id int64) error
	// RejectPendingSiblings отклоняет все pending предложения запроса кроме exceptID
	RejectPendingSiblings(ctx context.Context, requestID, exceptID int64) ([]int64, error)
	CountAccepted(ctx context.Context, requestID int64) (int, error)
	// AcceptedBetween есть ли принятое предложение между студентом и коучем
	AcceptedBetween(ctx context.Context, studentID, coachID int64) (bool, error)
}

type ContractRepository interface {
	Create(ctx context.Context, c *model.Contract) error
	GetByID(ctx context.Context, id int64) (*model.Contract, error)
	GetForUpdate(ctx context.Context, id int64) (*model.Contract, error)
	GetByProposalID(ctx context.Context, proposalID int64) (*model.Contract, error)
	// LastNumberWithPrefix последний выданный номер за день (пустая строка если нет)
	LastNumberWithPrefix(ctx context.Context, prefix string) (string, error)
	NumberExists(ctx context.Context, number string) (bool, error)
	Update(ctx context.Context, c *model.Contract) error
	ListByUser(ctx context.Context, userID int64) ([]*model.Contract, error)
}

type SessionRepository interface {
	Create(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id int64) (*model.Session, error)
	GetForUpdate(ctx context.Context, id int64) (*model.Session, error)
	Update(ctx context.Context, s *model.Session) error
	ListByContract(ctx context.Context, contractID int64) ([]*model.Session, error)
	// UsedNumbers номера занятий контракта, кроме отменённых
	UsedNumbers(ctx context.Context, contractID int64) ([]int, error)
	// ListReserving занятия коуча в статусах scheduled/active, пересекающие окно
	ListReserving(ctx context.Context, coachID int64, from, to time.Time, excludeID int64) ([]*model.Session, error)
	// ListDue занятия scheduled/active с началом не позже until
	ListDue(ctx context.Context, until time.Time) ([]*model.Session, error)
	ListExpiredReschedules(ctx context.Context, now time.Time) ([]*model.Session, error)
	ListUpcomingForUser(ctx context.Context, userID int64, from time.Time) ([]*model.Session, error)
	CancelScheduledByContract(ctx context.Context, contractID int64) (int64, error)
}

type CallRepository interface {
	Create(ctx context.Context, c *model.ScheduledCall) error
	GetByID(ctx context.Context, id int64) (*model.ScheduledCall, error)
	GetForUpdate(ctx context.Context, id int64) (*model.ScheduledCall, error)
	Update(ctx context.Context, c *model.ScheduledCall) error
	ListReserving(ctx context.Context, coachID int64, from, to time.Time, excludeID int64) ([]*model.ScheduledCall, error)
	ListDue(ctx context.Context, until time.Time) ([]*model.ScheduledCall, error)
	ListUpcomingForUser(ctx context.Context, userID int64, from time.Time) ([]*model.ScheduledCall, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) error
	// HasMessaged писал ли from пользователю to хотя бы раз
	HasMessaged(ctx context.Context, from, to int64) (bool, error)
	ListConversation(ctx context.Context, a, b int64, limit int) ([]*model.Message, error)
	MarkConversationRead(ctx context.Context, recipientID, senderID int64) (int64, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Notification, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LockRepository advisory-блокировки на время транзакции
type LockRepository interface {
	// LockCoachCalendar сериализует бронирования одного коуча
	LockCoachCalendar(ctx context.Context, coachID int64) error
	// LockContractNumbers сериализует выдачу номеров контрактов
	LockContractNumbers(ctx context.Context) error
}

// Repos набор репозиториев, привязанных к одному соединению или транзакции
type Repos struct {
	Users         UserRepository
	Profiles      ProfileRepository
	RoleSwitches  RoleSwitchRepository
	Requests      LearningRequestRepository
	Proposals     ProposalRepository
	Contracts     ContractRepository
	Sessions      SessionRepository
	Calls         CallRepository
	Messages      MessageRepository
	Notifications NotificationRepository
	Locks         LockRepository
}

// Store источник истины для всего бизнес-состояния
type Store interface {
	// Repos репозитории вне транзакции (чтение)
	Repos() Repos
	// InTx выполняет fn в одной транзакции; любая ошибка откатывает всё
	InTx(ctx context.Context, fn func(r Repos) error) error
}
