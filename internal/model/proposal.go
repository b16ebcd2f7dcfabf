package model

import "time"

type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusAccepted ProposalStatus = "accepted"
	ProposalStatusRejected ProposalStatus = "rejected"
)

// Proposal ставка коуча на LearningRequest
type Proposal struct {
	ID              int64             `json:"id"`
	RequestID       int64             `json:"request_id"`
	CoachID         int64             `json:"coach_id"`
	CoverLetter     string            `json:"cover_letter"`
	SessionCount    int               `json:"session_count"`
	PricePerSession Money             `json:"price_per_session"`
	SessionDuration int               `json:"session_duration"` // в минутах
	TotalPrice      Money             `json:"total_price"`
	Status          ProposalStatus    `json:"status"`
	Answers         []ScreeningAnswer `json:"answers"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type ScreeningAnswer struct {
	ID         int64  `json:"id"`
	ProposalID int64  `json:"proposal_id"`
	QuestionID int64  `json:"question_id"`
	Answer     string `json:"answer"`
}

// IsPending проверяет что предложение ещё не обработано
func (p *Proposal) IsPending() bool {
	return p.Status == ProposalStatusPending
}

// ComputeTotal пересчитывает итоговую цену
func (p *Proposal) ComputeTotal() Money {
	p.TotalPrice = p.PricePerSession.Mul(p.SessionCount)
	return p.TotalPrice
}
