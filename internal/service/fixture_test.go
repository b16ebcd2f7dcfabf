package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/notify"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
	"github.com/Freeeeeet/coach_marketplace/internal/repository/memory"
)

const testPassword = "correct-horse"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingSender запоминает доставленные сообщения
type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) To(userID int64) []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notify.Message
	for _, m := range s.sent {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	ctx     context.Context
	clock   *fakeClock
	store   *memory.Store
	sender  *recordingSender
	svc     *Services
	student *model.User
	coach   *model.User
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, Policy{TestMode: true}, nil)
}

// newFixtureWith wrap позволяет подменить хранилище, видимое сервисам
func newFixtureWith(t *testing.T, policy Policy, wrap func(repository.Store) repository.Store) *fixture {
	t.Helper()

	f := &fixture{
		ctx:    context.Background(),
		clock:  &fakeClock{now: mustTime(t, "2025-06-30T09:00:00Z")},
		store:  memory.New(),
		sender: &recordingSender{},
	}
	var store repository.Store = f.store
	if wrap != nil {
		store = wrap(store)
	}
	f.svc = New(Deps{
		Store:  store,
		Sender: f.sender,
		Logger: zaptest.NewLogger(t),
		Clock:  f.clock.Now,
		Policy: policy,
	})

	f.student = f.signup(t, "sam@example.com", model.RoleStudent)
	f.coach = f.approvedCoach(t, "cora@example.com")
	return f
}

func (f *fixture) signup(t *testing.T, email string, role model.Role) *model.User {
	t.Helper()
	u, err := f.svc.Identity.Signup(f.ctx, SignupInput{
		FirstName:   "User",
		LastName:    email,
		Email:       email,
		Password:    testPassword,
		InitialRole: role,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) approvedCoach(t *testing.T, email string) *model.User {
	t.Helper()
	coach := f.signup(t, email, model.RoleCoach)
	_, err := f.svc.Identity.ApproveCoach(f.ctx, coach.ID)
	require.NoError(t, err)
	return coach
}

func requestInput() RequestInput {
	return RequestInput{
		Title:           "Learn Go concurrency",
		Description:     "Goroutines, channels and context in production services",
		Skills:          "go, concurrency",
		Budget:          model.Dollars(250),
		SessionCount:    5,
		ExperienceLevel: model.ExperienceIntermediate,
		SkillType:       model.SkillTypeLongTerm,
	}
}

func proposalInput() ProposalInput {
	return ProposalInput{
		CoverLetter:     "I have run Go services in production for years",
		SessionCount:    5,
		PricePerSession: model.Dollars(50),
		SessionDuration: 60,
	}
}

func (f *fixture) postRequest(t *testing.T) *model.LearningRequest {
	t.Helper()
	req, err := f.svc.Marketplace.PostRequest(f.ctx, f.student.ID, requestInput())
	require.NoError(t, err)
	return req
}

func (f *fixture) propose(t *testing.T, coachID, requestID int64) *model.Proposal {
	t.Helper()
	p, err := f.svc.Marketplace.SubmitProposal(f.ctx, coachID, requestID, proposalInput())
	require.NoError(t, err)
	return p
}

// acceptedContract контракт, ожидающий ответа коуча
func (f *fixture) acceptedContract(t *testing.T) *model.Contract {
	t.Helper()
	req := f.postRequest(t)
	p := f.propose(t, f.coach.ID, req.ID)
	c, err := f.svc.Marketplace.AcceptProposal(f.ctx, f.student.ID, p.ID)
	require.NoError(t, err)
	return c
}

// activeContract принятый коучем и оплаченный контракт
func (f *fixture) activeContract(t *testing.T) *model.Contract {
	t.Helper()
	c := f.acceptedContract(t)
	_, err := f.svc.Contracts.CoachAccept(f.ctx, f.coach.ID, c.ID)
	require.NoError(t, err)
	c, err = f.svc.Contracts.MarkPaymentPaid(f.ctx, c.ID, "pi_123")
	require.NoError(t, err)
	return c
}

func (f *fixture) schedule(t *testing.T, contractID int64, at time.Time) *model.Session {
	t.Helper()
	s, err := f.svc.Scheduling.ScheduleSession(f.ctx, f.student.ID, ScheduleSessionInput{
		ContractID:  contractID,
		ScheduledAt: at,
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) session(t *testing.T, id int64) *model.Session {
	t.Helper()
	s, err := f.store.Repos().Sessions.GetByID(f.ctx, id)
	require.NoError(t, err)
	return s
}

func (f *fixture) contract(t *testing.T, id int64) *model.Contract {
	t.Helper()
	c, err := f.store.Repos().Contracts.GetByID(f.ctx, id)
	require.NoError(t, err)
	return c
}

func (f *fixture) sweep(t *testing.T) SweepReport {
	t.Helper()
	rep, err := f.svc.Sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	return rep
}

func (f *fixture) notificationTypes(t *testing.T, userID int64) []model.NotificationType {
	t.Helper()
	list, err := f.svc.Notifications.List(f.ctx, userID, 0)
	require.NoError(t, err)
	types := make([]model.NotificationType, 0, len(list))
	for _, n := range list {
		types = append(types, n.Type)
	}
	return types
}

// assertKind проверяет категорию и причину ошибки
func assertKind(t *testing.T, err error, kind Kind, reason string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, KindOf(err), "error: %v", err)
	if reason != "" {
		require.Equal(t, reason, ReasonOf(err), "error: %v", err)
	}
}
