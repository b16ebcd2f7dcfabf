package model

import "time"

const (
	MaxScreeningQuestions     = 5
	MaxScreeningQuestionChars = 250
)

type SkillType string

const (
	SkillTypeShortTerm SkillType = "short_term"
	SkillTypeLongTerm  SkillType = "long_term"
)

type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "beginner"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceExpert       ExperienceLevel = "expert"
)

// LearningRequest публикация студента о том, чему он хочет научиться
type LearningRequest struct {
	ID              int64               `json:"id"`
	StudentID       int64               `json:"student_id"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Skills          string              `json:"skills"`
	Budget          Money               `json:"budget"`
	SessionCount    int                 `json:"session_count"`
	ExperienceLevel ExperienceLevel     `json:"experience_level"`
	SkillType       SkillType           `json:"skill_type"`
	IsActive        bool                `json:"is_active"`
	Questions       []ScreeningQuestion `json:"questions"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type ScreeningQuestion struct {
	ID        int64  `json:"id"`
	RequestID int64  `json:"request_id"`
	Position  int    `json:"position"`
	Text      string `json:"text"`
}

// QuestionIDs возвращает идентификаторы вопросов в порядке следования
func (r *LearningRequest) QuestionIDs() []int64 {
	ids := make([]int64, 0, len(r.Questions))
	for _, q := range r.Questions {
		ids = append(ids, q.ID)
	}
	return ids
}
