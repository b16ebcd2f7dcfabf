package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
)

func TestAcceptProposalCreatesContract(t *testing.T) {
	f := newFixture(t)
	rival := f.approvedCoach(t, "rex@example.com")

	req := f.postRequest(t)
	p := f.propose(t, f.coach.ID, req.ID)
	other := f.propose(t, rival.ID, req.ID)
	assert.Equal(t, model.Dollars(250), p.TotalPrice)

	c, err := f.svc.Marketplace.AcceptProposal(f.ctx, f.student.ID, p.ID)
	require.NoError(t, err)

	assert.Equal(t, "CTR-20250630-0001", c.ContractNumber)
	assert.Equal(t, "250.00", c.TotalAmount.String())
	assert.Equal(t, model.ContractStatusAwaitingResponse, c.Status)
	assert.Equal(t, model.PaymentStatusPending, c.PaymentStatus)
	assert.Equal(t, 5, c.TotalSessions)
	assert.Equal(t, 60, c.DurationMinutes)

	repos := f.store.Repos()
	got, err := repos.Proposals.GetByID(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalStatusAccepted, got.Status)

	lost, err := repos.Proposals.GetByID(f.ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalStatusRejected, lost.Status)

	closed, err := repos.Requests.GetByID(f.ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, closed.IsActive)

	assert.Contains(t, f.notificationTypes(t, f.coach.ID), model.NotificationProposalAccepted)
	assert.Contains(t, f.notificationTypes(t, rival.ID), model.NotificationProposalRejected)
	assert.NotEmpty(t, f.sender.To(f.coach.ID))

	conv, err := f.svc.Messaging.Conversation(f.ctx, f.coach.ID, f.student.ID, 0)
	require.NoError(t, err)
	require.Len(t, conv, 1)
	assert.Equal(t, model.MessageTypeSystem, conv[0].Type)
}

func TestAcceptProposalTwice(t *testing.T) {
	f := newFixture(t)
	req := f.postRequest(t)
	p := f.propose(t, f.coach.ID, req.ID)

	_, err := f.svc.Marketplace.AcceptProposal(f.ctx, f.student.ID, p.ID)
	require.NoError(t, err)

	_, err = f.svc.Marketplace.AcceptProposal(f.ctx, f.student.ID, p.ID)
	assertKind(t, err, KindAlreadyProcessed, "")
}

func TestContractNumbersIncreaseWithinDay(t *testing.T) {
	f := newFixture(t)

	first := f.acceptedContract(t)
	second := f.acceptedContract(t)

	assert.Equal(t, "CTR-20250630-0001", first.ContractNumber)
	assert.Equal(t, "CTR-20250630-0002", second.ContractNumber)

	f.clock.Advance(24 * time.Hour)
	third := f.acceptedContract(t)
	assert.Equal(t, "CTR-20250701-0001", third.ContractNumber)
}

func TestContractNumbersPastFourDigits(t *testing.T) {
	f := newFixture(t)
	for i, number := range []string{"CTR-20250630-9999", "CTR-20250630-10000"} {
		err := f.store.Repos().Contracts.Create(f.ctx, &model.Contract{ContractNumber: number, ProposalID: int64(9000 + i)})
		require.NoError(t, err)
	}

	c := f.acceptedContract(t)
	assert.Equal(t, "CTR-20250630-10001", c.ContractNumber)
}

type failingContracts struct {
	repository.ContractRepository
}

func (failingContracts) Create(context.Context, *model.Contract) error {
	return errors.New("disk full")
}

type failingStore struct {
	repository.Store
}

func (s failingStore) InTx(ctx context.Context, fn func(r repository.Repos) error) error {
	return s.Store.InTx(ctx, func(r repository.Repos) error {
		r.Contracts = failingContracts{r.Contracts}
		return fn(r)
	})
}

func TestAcceptProposalIsAtomic(t *testing.T) {
	f := newFixtureWith(t, Policy{}, func(s repository.Store) repository.Store {
		return failingStore{s}
	})
	rival := f.approvedCoach(t, "rex@example.com")

	req := f.postRequest(t)
	p := f.propose(t, f.coach.ID, req.ID)
	other := f.propose(t, rival.ID, req.ID)

	_, err := f.svc.Marketplace.AcceptProposal(f.ctx, f.student.ID, p.ID)
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))

	repos := f.store.Repos()
	for _, id := range []int64{p.ID, other.ID} {
		got, err := repos.Proposals.GetByID(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.ProposalStatusPending, got.Status)
	}
	still, err := repos.Requests.GetByID(f.ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, still.IsActive)

	contracts, err := repos.Contracts.ListByUser(f.ctx, f.student.ID)
	require.NoError(t, err)
	assert.Empty(t, contracts)
	assert.NotContains(t, f.notificationTypes(t, f.coach.ID), model.NotificationProposalAccepted)
}

func TestSubmitProposalRules(t *testing.T) {
	f := newFixture(t)
	req := f.postRequest(t)

	t.Run("unapproved coach", func(t *testing.T) {
		newbie := f.signup(t, "nina@example.com", model.RoleCoach)
		_, err := f.svc.Marketplace.SubmitProposal(f.ctx, newbie.ID, req.ID, proposalInput())
		assertKind(t, err, KindNotAllowed, ReasonNotApproved)
	})

	t.Run("student cannot propose", func(t *testing.T) {
		_, err := f.svc.Marketplace.SubmitProposal(f.ctx, f.student.ID, req.ID, proposalInput())
		assertKind(t, err, KindNotAllowed, ReasonWrongRole)
	})

	t.Run("duplicate", func(t *testing.T) {
		f.propose(t, f.coach.ID, req.ID)
		_, err := f.svc.Marketplace.SubmitProposal(f.ctx, f.coach.ID, req.ID, proposalInput())
		assertKind(t, err, KindConflict, "duplicate_proposal")
	})

	t.Run("invalid input", func(t *testing.T) {
		in := proposalInput()
		in.SessionDuration = 5
		_, err := f.svc.Marketplace.SubmitProposal(f.ctx, f.coach.ID, req.ID, in)
		assertKind(t, err, KindValidation, "session_duration")
	})
}

func TestScreeningAnswersRequired(t *testing.T) {
	f := newFixture(t)
	in := requestInput()
	in.Questions = []string{"What have you built with Go?"}
	req, err := f.svc.Marketplace.PostRequest(f.ctx, f.student.ID, in)
	require.NoError(t, err)
	require.Len(t, req.Questions, 1)

	_, err = f.svc.Marketplace.SubmitProposal(f.ctx, f.coach.ID, req.ID, proposalInput())
	assertKind(t, err, KindValidation, "")

	answered := proposalInput()
	answered.Answers = map[int64]string{req.Questions[0].ID: "A payments gateway"}
	p, err := f.svc.Marketplace.SubmitProposal(f.ctx, f.coach.ID, req.ID, answered)
	require.NoError(t, err)
	require.Len(t, p.Answers, 1)
	assert.Equal(t, "A payments gateway", p.Answers[0].Answer)
}

func TestWithdrawProposal(t *testing.T) {
	f := newFixture(t)
	req := f.postRequest(t)
	p := f.propose(t, f.coach.ID, req.ID)

	require.NoError(t, f.svc.Marketplace.WithdrawProposal(f.ctx, f.coach.ID, p.ID))

	_, err := f.store.Repos().Proposals.GetByID(f.ctx, p.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// после отзыва можно откликнуться снова
	f.propose(t, f.coach.ID, req.ID)
}

func TestEditRequestBlockedAfterAccept(t *testing.T) {
	f := newFixture(t)
	req := f.postRequest(t)
	p := f.propose(t, f.coach.ID, req.ID)

	in := requestInput()
	in.Title = "Learn Go generics"
	edited, err := f.svc.Marketplace.EditRequest(f.ctx, f.student.ID, req.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Learn Go generics", edited.Title)

	_, err = f.svc.Marketplace.AcceptProposal(f.ctx, f.student.ID, p.ID)
	require.NoError(t, err)

	_, err = f.svc.Marketplace.EditRequest(f.ctx, f.student.ID, req.ID, in)
	assertKind(t, err, KindNotAllowed, "")
}

func TestSearchRequests(t *testing.T) {
	f := newFixture(t)

	inTitle := requestInput()
	inTitle.Title = "Café owner learns Python"
	inTitle.Skills = "python"
	_, err := f.svc.Marketplace.PostRequest(f.ctx, f.student.ID, inTitle)
	require.NoError(t, err)

	inDescription := requestInput()
	inDescription.Title = "Data analysis"
	inDescription.Description = "Pandas for a small cafe"
	_, err = f.svc.Marketplace.PostRequest(f.ctx, f.student.ID, inDescription)
	require.NoError(t, err)

	_, err = f.svc.Marketplace.PostRequest(f.ctx, f.student.ID, requestInput())
	require.NoError(t, err)

	matches, err := f.svc.Marketplace.SearchRequests(f.ctx, "cafe")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "Café owner learns Python", matches[0].Request.Title)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestRejectProposal(t *testing.T) {
	f := newFixture(t)
	req := f.postRequest(t)
	p := f.propose(t, f.coach.ID, req.ID)

	stranger := f.signup(t, "sid@example.com", model.RoleStudent)
	_, err := f.svc.Marketplace.RejectProposal(f.ctx, stranger.ID, p.ID)
	assertKind(t, err, KindNotAllowed, ReasonNotParty)

	got, err := f.svc.Marketplace.RejectProposal(f.ctx, f.student.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalStatusRejected, got.Status)
	assert.Contains(t, f.notificationTypes(t, f.coach.ID), model.NotificationProposalRejected)

	_, err = f.svc.Marketplace.RejectProposal(f.ctx, f.student.ID, p.ID)
	assertKind(t, err, KindAlreadyProcessed, string(model.ProposalStatusRejected))

	// без каскада: запрос остаётся открытым
	open, err := f.svc.Marketplace.GetRequest(f.ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, open.IsActive)
}

func TestCloseAndReopenRequest(t *testing.T) {
	f := newFixture(t)
	req := f.postRequest(t)

	closed, err := f.svc.Marketplace.CloseRequest(f.ctx, f.student.ID, req.ID)
	require.NoError(t, err)
	assert.False(t, closed.IsActive)

	_, err = f.svc.Marketplace.CloseRequest(f.ctx, f.student.ID, req.ID)
	assertKind(t, err, KindAlreadyProcessed, "unchanged")

	open, err := f.svc.Marketplace.ListOpenRequests(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	reopened, err := f.svc.Marketplace.ReopenRequest(f.ctx, f.student.ID, req.ID)
	require.NoError(t, err)
	assert.True(t, reopened.IsActive)

	t.Run("accepted proposal blocks reopen", func(t *testing.T) {
		c := f.acceptedContract(t)
		_, err := f.svc.Marketplace.ReopenRequest(f.ctx, f.student.ID, c.RequestID)
		assertKind(t, err, KindNotAllowed, "has_accepted_proposal")
	})
}
