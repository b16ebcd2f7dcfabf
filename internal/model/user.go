package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleNone    Role = ""
	RoleStudent Role = "student"
	RoleCoach   Role = "coach"
)

// Valid проверяет что роль одна из известных
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleCoach
}

// Counterpart возвращает противоположную сторону сделки
func (r Role) Counterpart() Role {
	switch r {
	case RoleStudent:
		return RoleCoach
	case RoleCoach:
		return RoleStudent
	default:
		return RoleNone
	}
}

type User struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	IsStudent       bool       `json:"is_student"`
	IsCoach         bool       `json:"is_coach"`
	CurrentRole     Role       `json:"current_role"` // пустая строка = NULL
	Timezone        string     `json:"timezone"`
	EmailVerified   bool       `json:"email_verified"`
	RoleSwitchCount int        `json:"role_switch_count"`
	TelegramChatID  *int64     `json:"telegram_chat_id,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FullName возвращает отображаемое имя
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasRole проверяет наличие возможности (capability)
func (u *User) HasRole(r Role) bool {
	switch r {
	case RoleStudent:
		return u.IsStudent
	case RoleCoach:
		return u.IsCoach
	default:
		return false
	}
}

// GrantRole добавляет возможность пользователю
func (u *User) GrantRole(r Role) {
	switch r {
	case RoleStudent:
		u.IsStudent = true
	case RoleCoach:
		u.IsCoach = true
	}
}

// ActingAs проверяет текущий режим работы пользователя
func (u *User) ActingAs(r Role) bool {
	return u.CurrentRole == r && u.HasRole(r)
}

// InferRole выбирает роль при первом входе: если возможность одна - её,
// если обе - coach
func (u *User) InferRole() Role {
	if u.CurrentRole != RoleNone && u.HasRole(u.CurrentRole) {
		return u.CurrentRole
	}
	switch {
	case u.IsCoach:
		return RoleCoach
	case u.IsStudent:
		return RoleStudent
	default:
		return RoleNone
	}
}

// RoleConsistent проверяет инвариант: current_role входит в возможности пользователя
func (u *User) RoleConsistent() bool {
	return u.CurrentRole == RoleNone || u.HasRole(u.CurrentRole)
}

// RoleSwitchLog запись аудита переключения ролей (append-only)
type RoleSwitchLog struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	FromRole  Role      `json:"from_role"`
	ToRole    Role      `json:"to_role"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
