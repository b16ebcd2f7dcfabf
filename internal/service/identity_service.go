package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/coach_marketplace/internal/auth"
	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
)

// Маршруты онбординга после upgrade_to
const (
	OnboardingStudent = "student_onboarding"
	OnboardingCoach   = "coach_onboarding"
)

type SignupInput struct {
	FirstName   string     `json:"first_name" validate:"required,notblank,max=100"`
	LastName    string     `json:"last_name" validate:"max=100"`
	Email       string     `json:"email" validate:"required,email,max=255"`
	Password    string     `json:"password" validate:"required,min=8,max=128"`
	InitialRole model.Role `json:"initial_role" validate:"omitempty,oneof=student coach"`
	Timezone    string     `json:"timezone" validate:"omitempty,iana"`
}

type CoachProfileInput struct {
	Headline   string      `json:"headline" validate:"max=200"`
	Bio        string      `json:"bio" validate:"max=5000"`
	Skills     string      `json:"skills" validate:"max=500"`
	HourlyRate model.Money `json:"hourly_rate" validate:"gte=0"`
}

// LoginResult пользователь и токен сессии для веб-слоя
type LoginResult struct {
	User  *model.User
	Token string
}

// UpgradeResult пользователь после добавления роли и куда вести дальше
type UpgradeResult struct {
	User       *model.User
	Onboarding string
}

// IdentityService пользователи, роли и профили
type IdentityService struct {
	store         repository.Store
	tokens        *auth.TokenIssuer
	notifications *NotificationService
	policy        Policy
	now           Clock
	logger        *zap.Logger
}

func NewIdentityService(store repository.Store, tokens *auth.TokenIssuer, notifications *NotificationService, policy Policy, clock Clock, logger *zap.Logger) *IdentityService {
	return &IdentityService{
		store:         store,
		tokens:        tokens,
		notifications: notifications,
		policy:        policy,
		now:           clock,
		logger:        logger,
	}
}

// Signup регистрирует пользователя с одной возможностью и пустым профилем
func (s *IdentityService) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateInput(in); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return nil, &Error{Kind: KindValidation, Reason: "password", Err: err}
		}
		return nil, err
	}

	zone := in.Timezone
	if zone == "" {
		zone = "UTC"
	}
	capability := in.InitialRole
	if capability == model.RoleNone {
		capability = model.RoleStudent
	}

	now := s.now()
	user := &model.User{
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		CurrentRole:  in.InitialRole,
		Timezone:     zone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	user.GrantRole(capability)

	err = s.store.InTx(ctx, func(r repository.Repos) error {
		if err := r.Users.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return &Error{Kind: KindConflict, Reason: "email", Err: err}
			}
			return fmt.Errorf("create user: %w", err)
		}
		return createProfile(ctx, r, user.ID, capability, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("User signed up",
		zap.Int64("user_id", user.ID),
		zap.String("capability", string(capability)),
	)
	return user, nil
}

func createProfile(ctx context.Context, r repository.Repos, userID int64, role model.Role, now time.Time) error {
	switch role {
	case model.RoleStudent:
		if err := r.Profiles.CreateStudent(ctx, &model.StudentProfile{UserID: userID, CreatedAt: now}); err != nil {
			return fmt.Errorf("create student profile: %w", err)
		}
	case model.RoleCoach:
		profile := &model.CoachProfile{
			UserID:         userID,
			OnboardingStep: model.CoachOnboardingProfile,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := r.Profiles.CreateCoach(ctx, profile); err != nil {
			return fmt.Errorf("create coach profile: %w", err)
		}
	}
	return nil
}

// Login проверяет пароль; при первом входе выбирает текущую роль
func (s *IdentityService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	now := s.now()

	var user *model.User
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		u, err := r.Users.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notAllowed(ReasonInvalidCredentials, "unknown email")
			}
			return fmt.Errorf("get user: %w", err)
		}
		if !auth.CheckPassword(password, u.PasswordHash) {
			return notAllowed(ReasonInvalidCredentials, "wrong password")
		}
		if s.policy.EmailVerification && !u.EmailVerified {
			return notAllowed(ReasonUnverified, "email %s is not verified", u.Email)
		}

		u.CurrentRole = u.InferRole()
		u.LastLoginAt = &now
		u.UpdatedAt = now
		if err := r.Users.Update(ctx, u); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &LoginResult{User: user}
	if s.tokens != nil {
		token, err := s.tokens.Issue(user.ID, string(user.CurrentRole))
		if err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
		result.Token = token
	}

	s.logger.Info("User logged in", zap.Int64("user_id", user.ID), zap.String("role", string(user.CurrentRole)))
	return result, nil
}

// SwitchRole переключает текущий режим работы
func (s *IdentityService) SwitchRole(ctx context.Context, userID int64, target model.Role) (*model.User, error) {
	if !target.Valid() {
		return nil, validationErr("role", "unknown role %q", target)
	}
	now := s.now()

	var user *model.User
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		u, err := loadUser(ctx, r, userID)
		if err != nil {
			return err
		}
		if !u.HasRole(target) {
			return notAllowed(ReasonWrongRole, "user does not hold the %s role", target)
		}
		if u.CurrentRole == target {
			return notAllowed("same_role", "already acting as %s", target)
		}
		if target == model.RoleCoach {
			profile, err := r.Profiles.GetCoach(ctx, u.ID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("get coach profile: %w", err)
			}
			if profile == nil || !profile.IsApproved {
				return notAllowed(ReasonNotApproved, "coach profile is not approved")
			}
		}

		if err := s.changeRole(ctx, r, u, target, "switch", now); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Role switched", zap.Int64("user_id", userID), zap.String("role", string(target)))
	return user, nil
}

// changeRole меняет current_role и пишет аудит
func (s *IdentityService) changeRole(ctx context.Context, r repository.Repos, u *model.User, target model.Role, reason string, now time.Time) error {
	from := u.CurrentRole
	u.CurrentRole = target
	u.RoleSwitchCount++
	u.UpdatedAt = now
	if err := r.Users.Update(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	entry := &model.RoleSwitchLog{
		UserID:    u.ID,
		FromRole:  from,
		ToRole:    target,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := r.RoleSwitches.Append(ctx, entry); err != nil {
		return fmt.Errorf("append role switch: %w", err)
	}
	return nil
}

// UpgradeTo добавляет вторую роль и сразу переводит в неё
func (s *IdentityService) UpgradeTo(ctx context.Context, userID int64, role model.Role) (*UpgradeResult, error) {
	if !role.Valid() {
		return nil, validationErr("role", "unknown role %q", role)
	}
	now := s.now()

	var (
		user *model.User
		out  outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		u, err := loadUser(ctx, r, userID)
		if err != nil {
			return err
		}
		if u.HasRole(role) {
			return notAllowed("already_has_role", "user already holds the %s role", role)
		}

		u.GrantRole(role)
		if err := createProfile(ctx, r, u.ID, role, now); err != nil {
			return err
		}
		if err := s.changeRole(ctx, r, u, role, "upgrade", now); err != nil {
			return err
		}

		user = u
		return out.add(ctx, r, note(u.ID, model.NotificationRoleUpgraded,
			"New role added",
			fmt.Sprintf("You can now use the marketplace as a %s.", role),
			"", 0, now))
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	onboarding := OnboardingStudent
	if role == model.RoleCoach {
		onboarding = OnboardingCoach
	}

	s.logger.Info("Role upgraded", zap.Int64("user_id", userID), zap.String("role", string(role)))
	return &UpgradeResult{User: user, Onboarding: onboarding}, nil
}

func (s *IdentityService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	return loadUser(ctx, s.store.Repos(), userID)
}

func (s *IdentityService) RoleHistory(ctx context.Context, userID int64) ([]*model.RoleSwitchLog, error) {
	logs, err := s.store.Repos().RoleSwitches.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list role switches: %w", err)
	}
	return logs, nil
}

func (s *IdentityService) VerifyEmail(ctx context.Context, userID int64) error {
	return s.updateUser(ctx, userID, func(u *model.User) error {
		if u.EmailVerified {
			return &Error{Kind: KindAlreadyProcessed, Reason: "email_verified", Err: fmt.Errorf("email already verified")}
		}
		u.EmailVerified = true
		return nil
	})
}

// SetTimezone принимает только IANA идентификаторы
func (s *IdentityService) SetTimezone(ctx context.Context, userID int64, zone string) error {
	in := struct {
		Timezone string `json:"timezone" validate:"required,iana"`
	}{Timezone: strings.TrimSpace(zone)}
	if err := validateInput(in); err != nil {
		return err
	}
	return s.updateUser(ctx, userID, func(u *model.User) error {
		u.Timezone = in.Timezone
		return nil
	})
}

// UserByTelegramChat пользователь, привязавший чат
func (s *IdentityService) UserByTelegramChat(ctx context.Context, chatID int64) (*model.User, error) {
	user, err := s.store.Repos().Users.GetByTelegramChatID(ctx, chatID)
	if err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}

// LinkTelegram привязывает чат Telegram к пользователю по токену сессии
func (s *IdentityService) LinkTelegram(ctx context.Context, token string, chatID int64) (*model.User, error) {
	if s.tokens == nil {
		return nil, notAllowed("tokens_disabled", "token issuer is not configured")
	}
	userID, _, err := s.tokens.Parse(token)
	if err != nil {
		return nil, &Error{Kind: KindNotAllowed, Reason: "invalid_token", Err: err}
	}

	now := s.now()
	var user *model.User
	err = s.store.InTx(ctx, func(r repository.Repos) error {
		// чат принадлежит одному пользователю: прежняя привязка снимается
		prev, err := r.Users.GetByTelegramChatID(ctx, chatID)
		switch {
		case err == nil && prev.ID != userID:
			prev.TelegramChatID = nil
			prev.UpdatedAt = now
			if err := r.Users.Update(ctx, prev); err != nil {
				return fmt.Errorf("unlink previous user: %w", err)
			}
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("get user by chat: %w", err)
		}

		u, err := loadUser(ctx, r, userID)
		if err != nil {
			return err
		}
		u.TelegramChatID = &chatID
		u.UpdatedAt = now
		if err := r.Users.Update(ctx, u); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Telegram chat linked", zap.Int64("user_id", userID), zap.Int64("chat_id", chatID))
	return user, nil
}

func (s *IdentityService) updateUser(ctx context.Context, userID int64, fn func(u *model.User) error) error {
	return s.store.InTx(ctx, func(r repository.Repos) error {
		u, err := loadUser(ctx, r, userID)
		if err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
		u.UpdatedAt = s.now()
		if err := r.Users.Update(ctx, u); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		return nil
	})
}

func (s *IdentityService) CoachProfile(ctx context.Context, userID int64) (*model.CoachProfile, error) {
	profile, err := s.store.Repos().Profiles.GetCoach(ctx, userID)
	if err != nil {
		return nil, notFound("coach profile", err)
	}
	return profile, nil
}

// UpdateCoachProfile заполняет профиль коуча и продвигает онбординг
func (s *IdentityService) UpdateCoachProfile(ctx context.Context, userID int64, in CoachProfileInput) (*model.CoachProfile, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	now := s.now()

	var profile *model.CoachProfile
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		p, err := r.Profiles.GetCoach(ctx, userID)
		if err != nil {
			return notFound("coach profile", err)
		}

		p.Headline = strings.TrimSpace(in.Headline)
		p.Bio = strings.TrimSpace(in.Bio)
		p.Skills = strings.TrimSpace(in.Skills)
		p.HourlyRate = in.HourlyRate

		// Шаги: профиль -> ставка -> модерация
		if p.OnboardingStep == model.CoachOnboardingProfile && p.Headline != "" && p.Bio != "" {
			p.OnboardingStep = model.CoachOnboardingRate
		}
		if p.OnboardingStep == model.CoachOnboardingRate && p.HourlyRate > 0 {
			p.OnboardingStep = model.CoachOnboardingReview
		}
		p.UpdatedAt = now

		if err := r.Profiles.UpdateCoach(ctx, p); err != nil {
			return fmt.Errorf("update coach profile: %w", err)
		}
		profile = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// ApproveCoach действие администратора: коуча можно бронировать
func (s *IdentityService) ApproveCoach(ctx context.Context, userID int64) (*model.CoachProfile, error) {
	now := s.now()

	var profile *model.CoachProfile
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		p, err := r.Profiles.GetCoach(ctx, userID)
		if err != nil {
			return notFound("coach profile", err)
		}
		if p.IsApproved {
			return &Error{Kind: KindAlreadyProcessed, Reason: "approved", Err: fmt.Errorf("coach %d already approved", userID)}
		}
		p.IsApproved = true
		p.OnboardingStep = model.CoachOnboardingComplete
		p.UpdatedAt = now
		if err := r.Profiles.UpdateCoach(ctx, p); err != nil {
			return fmt.Errorf("update coach profile: %w", err)
		}
		profile = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Coach approved", zap.Int64("user_id", userID))
	return profile, nil
}
