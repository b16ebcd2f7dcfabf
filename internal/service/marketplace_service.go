package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
)

type RequestInput struct {
	Title           string                `json:"title" validate:"required,notblank,max=200"`
	Description     string                `json:"description" validate:"required,notblank,max=5000"`
	Skills          string                `json:"skills" validate:"max=500"`
	Budget          model.Money           `json:"budget" validate:"gte=0"`
	SessionCount    int                   `json:"session_count" validate:"required,min=1,max=100"`
	ExperienceLevel model.ExperienceLevel `json:"experience_level" validate:"required,oneof=beginner intermediate expert"`
	SkillType       model.SkillType       `json:"skill_type" validate:"required,oneof=short_term long_term"`
	Questions       []string              `json:"questions" validate:"max=5,dive,required,notblank,max=250"`
}

type ProposalInput struct {
	CoverLetter     string           `json:"cover_letter" validate:"required,notblank,max=5000"`
	SessionCount    int              `json:"session_count" validate:"required,min=1,max=100"`
	PricePerSession model.Money      `json:"price_per_session" validate:"gt=0"`
	SessionDuration int              `json:"session_duration" validate:"required,min=15,max=480"`
	Answers         map[int64]string `json:"answers"`
}

// RequestMatch результат поиска с весом совпадения
type RequestMatch struct {
	Request *model.LearningRequest `json:"request"`
	Score   int                    `json:"score"`
}

// MarketplaceService запросы студентов и предложения коучей
type MarketplaceService struct {
	store         repository.Store
	notifications *NotificationService
	now           Clock
	logger        *zap.Logger
}

func NewMarketplaceService(store repository.Store, notifications *NotificationService, clock Clock, logger *zap.Logger) *MarketplaceService {
	return &MarketplaceService{
		store:         store,
		notifications: notifications,
		now:           clock,
		logger:        logger,
	}
}

func buildQuestions(texts []string) []model.ScreeningQuestion {
	questions := make([]model.ScreeningQuestion, 0, len(texts))
	for i, text := range texts {
		questions = append(questions, model.ScreeningQuestion{Position: i + 1, Text: strings.TrimSpace(text)})
	}
	return questions
}

func applyRequestInput(req *model.LearningRequest, in RequestInput) {
	req.Title = strings.TrimSpace(in.Title)
	req.Description = strings.TrimSpace(in.Description)
	req.Skills = strings.TrimSpace(in.Skills)
	req.Budget = in.Budget
	req.SessionCount = in.SessionCount
	req.ExperienceLevel = in.ExperienceLevel
	req.SkillType = in.SkillType
}

func requireActing(u *model.User, role model.Role) error {
	if !u.ActingAs(role) {
		return notAllowed(ReasonWrongRole, "user %d is not acting as %s", u.ID, role)
	}
	return nil
}

// PostRequest публикует запрос вместе с вопросами одной транзакцией
func (s *MarketplaceService) PostRequest(ctx context.Context, studentID int64, in RequestInput) (*model.LearningRequest, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	now := s.now()

	req := &model.LearningRequest{
		StudentID: studentID,
		IsActive:  true,
		Questions: buildQuestions(in.Questions),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyRequestInput(req, in)

	err := s.store.InTx(ctx, func(r repository.Repos) error {
		student, err := loadUser(ctx, r, studentID)
		if err != nil {
			return err
		}
		if err := requireActing(student, model.RoleStudent); err != nil {
			return err
		}
		if err := r.Requests.Create(ctx, req); err != nil {
			return fmt.Errorf("create learning request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Learning request posted",
		zap.Int64("request_id", req.ID),
		zap.Int64("student_id", studentID),
		zap.Int("questions", len(req.Questions)),
	)
	return req, nil
}

// ownedRequest запрос студента под транзакцией
func ownedRequest(ctx context.Context, r repository.Repos, studentID, requestID int64) (*model.LearningRequest, error) {
	req, err := r.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, notFound("learning request", err)
	}
	if req.StudentID != studentID {
		return nil, notAllowed(ReasonNotParty, "request %d belongs to another student", requestID)
	}
	return req, nil
}

// EditRequest правка возможна пока ни одно предложение не принято; вопросы заменяются целиком
func (s *MarketplaceService) EditRequest(ctx context.Context, studentID, requestID int64, in RequestInput) (*model.LearningRequest, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	now := s.now()

	var req *model.LearningRequest
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		current, err := ownedRequest(ctx, r, studentID, requestID)
		if err != nil {
			return err
		}
		accepted, err := r.Proposals.CountAccepted(ctx, requestID)
		if err != nil {
			return fmt.Errorf("count accepted proposals: %w", err)
		}
		if accepted > 0 {
			return notAllowed("has_accepted_proposal", "request %d already has an accepted proposal", requestID)
		}

		applyRequestInput(current, in)
		current.UpdatedAt = now
		if err := r.Requests.Update(ctx, current); err != nil {
			return fmt.Errorf("update learning request: %w", err)
		}
		questions, err := r.Requests.ReplaceQuestions(ctx, requestID, buildQuestions(in.Questions))
		if err != nil {
			return fmt.Errorf("replace screening questions: %w", err)
		}
		current.Questions = questions
		req = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Learning request edited", zap.Int64("request_id", requestID))
	return req, nil
}

// CloseRequest студент снимает запрос с публикации
func (s *MarketplaceService) CloseRequest(ctx context.Context, studentID, requestID int64) (*model.LearningRequest, error) {
	return s.setRequestActive(ctx, studentID, requestID, false)
}

// ReopenRequest только если ни одно предложение не принято
func (s *MarketplaceService) ReopenRequest(ctx context.Context, studentID, requestID int64) (*model.LearningRequest, error) {
	return s.setRequestActive(ctx, studentID, requestID, true)
}

func (s *MarketplaceService) setRequestActive(ctx context.Context, studentID, requestID int64, active bool) (*model.LearningRequest, error) {
	now := s.now()

	var req *model.LearningRequest
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		current, err := ownedRequest(ctx, r, studentID, requestID)
		if err != nil {
			return err
		}
		if current.IsActive == active {
			return &Error{Kind: KindAlreadyProcessed, Reason: "unchanged", Err: fmt.Errorf("request %d active=%t already", requestID, active)}
		}
		if active {
			accepted, err := r.Proposals.CountAccepted(ctx, requestID)
			if err != nil {
				return fmt.Errorf("count accepted proposals: %w", err)
			}
			if accepted > 0 {
				return notAllowed("has_accepted_proposal", "request %d already has an accepted proposal", requestID)
			}
		}
		current.IsActive = active
		current.UpdatedAt = now
		if err := r.Requests.Update(ctx, current); err != nil {
			return fmt.Errorf("update learning request: %w", err)
		}
		req = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Learning request visibility changed", zap.Int64("request_id", requestID), zap.Bool("active", active))
	return req, nil
}

func (s *MarketplaceService) GetRequest(ctx context.Context, requestID int64) (*model.LearningRequest, error) {
	req, err := s.store.Repos().Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, notFound("learning request", err)
	}
	return req, nil
}

func (s *MarketplaceService) ListOpenRequests(ctx context.Context) ([]*model.LearningRequest, error) {
	reqs, err := s.store.Repos().Requests.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active requests: %w", err)
	}
	return reqs, nil
}

func (s *MarketplaceService) ListMyRequests(ctx context.Context, studentID int64) ([]*model.LearningRequest, error) {
	reqs, err := s.store.Repos().Requests.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student requests: %w", err)
	}
	return reqs, nil
}

// Веса полей при поиске
const (
	titleWeight       = 3
	skillsWeight      = 2
	descriptionWeight = 1
)

// fold приводит текст к нижнему регистру без диакритики
func fold(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func searchTerms(query string) []string {
	return strings.FieldsFunc(fold(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '+' && r != '#'
	})
}

func scoreRequest(req *model.LearningRequest, terms []string) int {
	title, skills, description := fold(req.Title), fold(req.Skills), fold(req.Description)
	score := 0
	for _, term := range terms {
		score += titleWeight * strings.Count(title, term)
		score += skillsWeight * strings.Count(skills, term)
		score += descriptionWeight * strings.Count(description, term)
	}
	return score
}

// SearchRequests простой взвешенный поиск по открытым запросам:
// заголовок x3, навыки x2, описание x1, без учёта диакритики
func (s *MarketplaceService) SearchRequests(ctx context.Context, query string) ([]RequestMatch, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, validationErr("query", "search query is empty")
	}
	reqs, err := s.ListOpenRequests(ctx)
	if err != nil {
		return nil, err
	}

	var matches []RequestMatch
	for _, req := range reqs {
		if score := scoreRequest(req, terms); score > 0 {
			matches = append(matches, RequestMatch{Request: req, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Request.CreatedAt.After(matches[j].Request.CreatedAt)
	})
	return matches, nil
}

// buildAnswers требует непустой ответ на каждый вопрос запроса и ничего лишнего
func buildAnswers(req *model.LearningRequest, answers map[int64]string) ([]model.ScreeningAnswer, error) {
	out := make([]model.ScreeningAnswer, 0, len(req.Questions))
	known := make(map[int64]bool, len(req.Questions))
	for _, q := range req.Questions {
		known[q.ID] = true
		text := strings.TrimSpace(answers[q.ID])
		if text == "" {
			return nil, validationErr("answers", "question %d requires an answer", q.Position)
		}
		out = append(out, model.ScreeningAnswer{QuestionID: q.ID, Answer: text})
	}
	for id := range answers {
		if !known[id] {
			return nil, validationErr("answers", "question %d does not belong to request %d", id, req.ID)
		}
	}
	return out, nil
}

// SubmitProposal коуч откликается на запрос; один отклик на запрос
func (s *MarketplaceService) SubmitProposal(ctx context.Context, coachID, requestID int64, in ProposalInput) (*model.Proposal, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	now := s.now()

	var (
		proposal *model.Proposal
		out      outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		coach, err := loadUser(ctx, r, coachID)
		if err != nil {
			return err
		}
		if err := requireActing(coach, model.RoleCoach); err != nil {
			return err
		}
		profile, err := r.Profiles.GetCoach(ctx, coachID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("get coach profile: %w", err)
		}
		if profile == nil || !profile.IsBookable() {
			return notAllowed(ReasonNotApproved, "coach %d is not approved", coachID)
		}

		req, err := r.Requests.GetByID(ctx, requestID)
		if err != nil {
			return notFound("learning request", err)
		}
		if !req.IsActive {
			return notAllowed(ReasonNotActive, "request %d is closed", requestID)
		}
		if req.StudentID == coachID {
			return notAllowed("own_request", "cannot propose on own request")
		}

		exists, err := r.Proposals.ExistsForCoach(ctx, requestID, coachID)
		if err != nil {
			return fmt.Errorf("check existing proposal: %w", err)
		}
		if exists {
			return &Error{Kind: KindConflict, Reason: "duplicate_proposal", Err: fmt.Errorf("coach %d already proposed on request %d", coachID, requestID)}
		}

		answers, err := buildAnswers(req, in.Answers)
		if err != nil {
			return err
		}

		p := &model.Proposal{
			RequestID:       requestID,
			CoachID:         coachID,
			CoverLetter:     strings.TrimSpace(in.CoverLetter),
			SessionCount:    in.SessionCount,
			PricePerSession: in.PricePerSession,
			SessionDuration: in.SessionDuration,
			Status:          model.ProposalStatusPending,
			Answers:         answers,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		p.ComputeTotal()
		if err := r.Proposals.Create(ctx, p); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return &Error{Kind: KindConflict, Reason: "duplicate_proposal", Err: err}
			}
			return fmt.Errorf("create proposal: %w", err)
		}
		proposal = p

		return out.add(ctx, r, note(req.StudentID, model.NotificationProposalReceived,
			"New proposal",
			fmt.Sprintf("%s proposed %d sessions at %s each for \"%s\".", coach.FullName(), p.SessionCount, p.PricePerSession.Format(), req.Title),
			model.RelatedProposal, p.ID, now))
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	s.logger.Info("Proposal submitted",
		zap.Int64("proposal_id", proposal.ID),
		zap.Int64("request_id", requestID),
		zap.Int64("coach_id", coachID),
		zap.String("total", proposal.TotalPrice.String()),
	)
	return proposal, nil
}

// WithdrawProposal коуч отзывает своё предложение пока оно pending
func (s *MarketplaceService) WithdrawProposal(ctx context.Context, coachID, proposalID int64) error {
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		p, err := r.Proposals.GetForUpdate(ctx, proposalID)
		if err != nil {
			return notFound("proposal", err)
		}
		if p.CoachID != coachID {
			return notAllowed(ReasonNotParty, "proposal %d belongs to another coach", proposalID)
		}
		if !p.IsPending() {
			return &Error{Kind: KindAlreadyProcessed, Reason: string(p.Status), Err: fmt.Errorf("proposal %d is %s", proposalID, p.Status)}
		}
		if err := r.Proposals.Delete(ctx, proposalID); err != nil {
			return fmt.Errorf("delete proposal: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Proposal withdrawn", zap.Int64("proposal_id", proposalID), zap.Int64("coach_id", coachID))
	return nil
}

// AcceptProposal принятие предложения: всё или ничего.
// Победитель accepted, остальные pending отклоняются, запрос закрывается,
// создаётся контракт, студент пишет коучу системное сообщение
func (s *MarketplaceService) AcceptProposal(ctx context.Context, studentID, proposalID int64) (*model.Contract, error) {
	now := s.now()

	var (
		contract *model.Contract
		rejected []int64
		out      outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		// Блокируем предложение: проигравшая параллельная транзакция увидит status != pending
		p, err := r.Proposals.GetForUpdate(ctx, proposalID)
		if err != nil {
			return notFound("proposal", err)
		}
		req, err := ownedRequest(ctx, r, studentID, p.RequestID)
		if err != nil {
			return err
		}
		if !p.IsPending() {
			return &Error{Kind: KindAlreadyProcessed, Reason: string(p.Status), Err: fmt.Errorf("proposal %d is %s", proposalID, p.Status)}
		}
		if !req.IsActive {
			return notAllowed(ReasonNotActive, "request %d is closed", req.ID)
		}
		student, err := loadUser(ctx, r, studentID)
		if err != nil {
			return err
		}

		if err := r.Proposals.UpdateStatus(ctx, p.ID, model.ProposalStatusAccepted); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return &Error{Kind: KindAlreadyProcessed, Reason: "accepted", Err: err}
			}
			return fmt.Errorf("accept proposal: %w", err)
		}
		p.Status = model.ProposalStatusAccepted

		rejected, err = r.Proposals.RejectPendingSiblings(ctx, req.ID, p.ID)
		if err != nil {
			return fmt.Errorf("reject sibling proposals: %w", err)
		}

		req.IsActive = false
		req.UpdatedAt = now
		if err := r.Requests.Update(ctx, req); err != nil {
			return fmt.Errorf("deactivate learning request: %w", err)
		}

		contract, err = createFromProposal(ctx, r, p, req, student, now)
		if err != nil {
			return err
		}

		_, err = postCard(ctx, r, card{
			Type:        model.MessageTypeSystem,
			SenderID:    studentID,
			SenderRole:  model.RoleStudent,
			RecipientID: p.CoachID,
			Content:     fmt.Sprintf("I accepted your proposal for \"%s\". Contract %s is waiting for your response.", req.Title, contract.ContractNumber),
			Payload: map[string]any{
				"contract_id":     contract.ID,
				"contract_number": contract.ContractNumber,
				"proposal_id":     p.ID,
				"total_amount":    contract.TotalAmount.String(),
			},
		}, now)
		if err != nil {
			return err
		}

		err = out.add(ctx, r, note(p.CoachID, model.NotificationProposalAccepted,
			"Proposal accepted",
			fmt.Sprintf("%s accepted your proposal for \"%s\". Review contract %s.", student.FullName(), req.Title, contract.ContractNumber),
			model.RelatedContract, contract.ID, now))
		if err != nil {
			return err
		}

		if len(rejected) == 0 {
			return nil
		}
		losers, err := r.Proposals.ListByRequest(ctx, req.ID)
		if err != nil {
			return fmt.Errorf("list request proposals: %w", err)
		}
		rejectedSet := make(map[int64]bool, len(rejected))
		for _, id := range rejected {
			rejectedSet[id] = true
		}
		for _, loser := range losers {
			if !rejectedSet[loser.ID] {
				continue
			}
			err := out.add(ctx, r, note(loser.CoachID, model.NotificationProposalRejected,
				"Proposal not selected",
				fmt.Sprintf("The student chose another coach for \"%s\".", req.Title),
				model.RelatedProposal, loser.ID, now))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	s.logger.Info("Proposal accepted",
		zap.Int64("proposal_id", proposalID),
		zap.Int64("contract_id", contract.ID),
		zap.String("contract_number", contract.ContractNumber),
		zap.Int("siblings_rejected", len(rejected)),
	)
	return contract, nil
}

// RejectProposal отклоняет одно предложение без каскада
func (s *MarketplaceService) RejectProposal(ctx context.Context, studentID, proposalID int64) (*model.Proposal, error) {
	now := s.now()

	var (
		proposal *model.Proposal
		out      outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		p, err := r.Proposals.GetForUpdate(ctx, proposalID)
		if err != nil {
			return notFound("proposal", err)
		}
		req, err := ownedRequest(ctx, r, studentID, p.RequestID)
		if err != nil {
			return err
		}
		if !p.IsPending() {
			return &Error{Kind: KindAlreadyProcessed, Reason: string(p.Status), Err: fmt.Errorf("proposal %d is %s", proposalID, p.Status)}
		}
		if err := r.Proposals.UpdateStatus(ctx, p.ID, model.ProposalStatusRejected); err != nil {
			return fmt.Errorf("reject proposal: %w", err)
		}
		p.Status = model.ProposalStatusRejected
		p.UpdatedAt = now
		proposal = p

		return out.add(ctx, r, note(p.CoachID, model.NotificationProposalRejected,
			"Proposal declined",
			fmt.Sprintf("Your proposal for \"%s\" was declined.", req.Title),
			model.RelatedProposal, p.ID, now))
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	s.logger.Info("Proposal rejected", zap.Int64("proposal_id", proposalID))
	return proposal, nil
}

// ListProposals предложения по запросу, только владельцу
func (s *MarketplaceService) ListProposals(ctx context.Context, studentID, requestID int64) ([]*model.Proposal, error) {
	r := s.store.Repos()
	if _, err := ownedRequest(ctx, r, studentID, requestID); err != nil {
		return nil, err
	}
	proposals, err := r.Proposals.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return proposals, nil
}

func (s *MarketplaceService) ListCoachProposals(ctx context.Context, coachID int64) ([]*model.Proposal, error) {
	proposals, err := s.store.Repos().Proposals.ListByCoach(ctx, coachID)
	if err != nil {
		return nil, fmt.Errorf("list coach proposals: %w", err)
	}
	return proposals, nil
}
