package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, email, password_hash, first_name, last_name, is_student, is_coach,
	COALESCE(active_role, ''), timezone, email_verified, role_switch_count,
	telegram_chat_id, last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.IsStudent,
		&user.IsCoach,
		&user.CurrentRole,
		&user.Timezone,
		&user.EmailVerified,
		&user.RoleSwitchCount,
		&user.TelegramChatID,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create создаёт пользователя; занятый email возвращает ErrDuplicate
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (email, password_hash, first_name, last_name, is_student, is_coach,
			active_role, timezone, email_verified, telegram_chat_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.IsStudent,
		user.IsCoach,
		nullString(string(user.CurrentRole)),
		user.Timezone,
		user.EmailVerified,
		user.TelegramChatID,
		user.CreatedAt,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create user: %w", mapErr(err))
	}

	return nil
}

// GetByID получает пользователя по ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", mapErr(err))
	}
	return user, nil
}

// GetByEmail email сравнивается без учёта регистра
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", mapErr(err))
	}
	return user, nil
}

// GetByTelegramChatID пользователь, привязавший чат бота
func (r *UserRepository) GetByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_chat_id = $1`, chatID))
	if err != nil {
		return nil, fmt.Errorf("get user by telegram chat: %w", mapErr(err))
	}
	return user, nil
}

func (r *UserRepository) GetByIDs(ctx context.Context, ids []int64) ([]*model.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("get users by ids: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// Update обновляет изменяемые поля пользователя
func (r *UserRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users
		SET first_name = $1, last_name = $2, is_student = $3, is_coach = $4, active_role = $5,
			timezone = $6, email_verified = $7, role_switch_count = $8, telegram_chat_id = $9,
			last_login_at = $10, password_hash = $11, updated_at = $12
		WHERE id = $13
	`

	err := requireOne(execAffected(
		ctx, r.db, query,
		user.FirstName,
		user.LastName,
		user.IsStudent,
		user.IsCoach,
		nullString(string(user.CurrentRole)),
		user.Timezone,
		user.EmailVerified,
		user.RoleSwitchCount,
		user.TelegramChatID,
		user.LastLoginAt,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	))
	if err != nil {
		return fmt.Errorf("update user: %w", mapErr(err))
	}

	return nil
}

type ProfileRepository struct {
	db DBTX
}

func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) CreateStudent(ctx context.Context, p *model.StudentProfile) error {
	query := `
		INSERT INTO student_profiles (user_id, learning_goals, created_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	if err := r.db.QueryRow(ctx, query, p.UserID, p.LearningGoals, p.CreatedAt).Scan(&p.ID, &p.CreatedAt); err != nil {
		return fmt.Errorf("create student profile: %w", mapErr(err))
	}
	return nil
}

func (r *ProfileRepository) GetStudent(ctx context.Context, userID int64) (*model.StudentProfile, error) {
	query := `
		SELECT id, user_id, learning_goals, created_at
		FROM student_profiles
		WHERE user_id = $1
	`

	var p model.StudentProfile
	err := r.db.QueryRow(ctx, query, userID).Scan(&p.ID, &p.UserID, &p.LearningGoals, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get student profile: %w", mapErr(err))
	}
	return &p, nil
}

func (r *ProfileRepository) CreateCoach(ctx context.Context, p *model.CoachProfile) error {
	query := `
		INSERT INTO coach_profiles (user_id, headline, bio, skills, hourly_rate, is_approved,
			onboarding_step, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::bigint / 100.0, $6, $7, $8, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		p.UserID,
		p.Headline,
		p.Bio,
		p.Skills,
		cents(p.HourlyRate),
		p.IsApproved,
		p.OnboardingStep,
		p.CreatedAt,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create coach profile: %w", mapErr(err))
	}
	return nil
}

func (r *ProfileRepository) GetCoach(ctx context.Context, userID int64) (*model.CoachProfile, error) {
	query := `
		SELECT id, user_id, headline, bio, skills, (hourly_rate * 100)::bigint, is_approved,
			onboarding_step, rating::float8, (total_earnings * 100)::bigint, created_at, updated_at
		FROM coach_profiles
		WHERE user_id = $1
	`

	var p model.CoachProfile
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.ID,
		&p.UserID,
		&p.Headline,
		&p.Bio,
		&p.Skills,
		moneyDest(&p.HourlyRate),
		&p.IsApproved,
		&p.OnboardingStep,
		&p.Rating,
		moneyDest(&p.TotalEarnings),
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get coach profile: %w", mapErr(err))
	}
	return &p, nil
}

func (r *ProfileRepository) UpdateCoach(ctx context.Context, p *model.CoachProfile) error {
	query := `
		UPDATE coach_profiles
		SET headline = $1, bio = $2, skills = $3, hourly_rate = $4::bigint / 100.0, is_approved = $5,
			onboarding_step = $6, rating = $7, total_earnings = $8::bigint / 100.0, updated_at = $9
		WHERE user_id = $10
	`

	err := requireOne(execAffected(
		ctx, r.db, query,
		p.Headline,
		p.Bio,
		p.Skills,
		cents(p.HourlyRate),
		p.IsApproved,
		p.OnboardingStep,
		p.Rating,
		cents(p.TotalEarnings),
		p.UpdatedAt,
		p.UserID,
	))
	if err != nil {
		return fmt.Errorf("update coach profile: %w", err)
	}
	return nil
}

type RoleSwitchRepository struct {
	db DBTX
}

func NewRoleSwitchRepository(db DBTX) *RoleSwitchRepository {
	return &RoleSwitchRepository{db: db}
}

// Append журнал только дополняется
func (r *RoleSwitchRepository) Append(ctx context.Context, entry *model.RoleSwitchLog) error {
	query := `
		INSERT INTO role_switch_logs (user_id, from_role, to_role, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		entry.UserID,
		nullString(string(entry.FromRole)),
		entry.ToRole,
		entry.Reason,
		entry.CreatedAt,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append role switch: %w", err)
	}
	return nil
}

func (r *RoleSwitchRepository) ListByUser(ctx context.Context, userID int64) ([]*model.RoleSwitchLog, error) {
	query := `
		SELECT id, user_id, COALESCE(from_role, ''), to_role, reason, created_at
		FROM role_switch_logs
		WHERE user_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list role switches: %w", err)
	}
	defer rows.Close()

	var entries []*model.RoleSwitchLog
	for rows.Next() {
		var e model.RoleSwitchLog
		if err := rows.Scan(&e.ID, &e.UserID, &e.FromRole, &e.ToRole, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan role switch: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role switches: %w", err)
	}

	return entries, nil
}
