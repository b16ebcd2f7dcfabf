package model

import "time"

type StudentProfile struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	LearningGoals string    `json:"learning_goals"`
	CreatedAt     time.Time `json:"created_at"`
}

// Шаги онбординга коуча
const (
	CoachOnboardingProfile  = 1 // заполнить профиль
	CoachOnboardingRate     = 2 // указать ставку
	CoachOnboardingReview   = 3 // ожидает модерации
	CoachOnboardingComplete = 4
)

type CoachProfile struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	Headline       string    `json:"headline"`
	Bio            string    `json:"bio"`
	Skills         string    `json:"skills"`
	HourlyRate     Money     `json:"hourly_rate"`
	IsApproved     bool      `json:"is_approved"`
	OnboardingStep int       `json:"onboarding_step"`
	Rating         float64   `json:"rating"`
	TotalEarnings  Money     `json:"total_earnings"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsBookable коуча можно бронировать только после одобрения
func (p *CoachProfile) IsBookable() bool {
	return p.IsApproved
}
