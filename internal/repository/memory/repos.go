package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
)

// ---- users ----

type userRepo struct{ h handle }

func (r userRepo) Create(_ context.Context, user *model.User) error {
	return r.h.do(func(st *state) error {
		email := strings.ToLower(user.Email)
		for _, u := range st.users {
			if strings.ToLower(u.Email) == email {
				return repository.ErrDuplicate
			}
		}
		user.ID = st.id("users")
		user.CreatedAt = stamp(user.CreatedAt)
		user.UpdatedAt = stamp(user.UpdatedAt)
		st.users[user.ID] = *user
		return nil
	})
}

func (r userRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	var out *model.User
	err := r.h.do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	var out *model.User
	err := r.h.do(func(st *state) error {
		email = strings.ToLower(email)
		for _, u := range st.users {
			if strings.ToLower(u.Email) == email {
				u := u
				out = &u
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r userRepo) GetByTelegramChatID(_ context.Context, chatID int64) (*model.User, error) {
	var out *model.User
	err := r.h.do(func(st *state) error {
		for _, u := range st.users {
			if u.TelegramChatID != nil && *u.TelegramChatID == chatID {
				u := u
				out = &u
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r userRepo) GetByIDs(_ context.Context, ids []int64) ([]*model.User, error) {
	var out []*model.User
	err := r.h.do(func(st *state) error {
		for _, id := range ids {
			if u, ok := st.users[id]; ok {
				out = append(out, &u)
			}
		}
		return nil
	})
	return out, err
}

func (r userRepo) Update(_ context.Context, user *model.User) error {
	return r.h.do(func(st *state) error {
		if _, ok := st.users[user.ID]; !ok {
			return repository.ErrNotFound
		}
		st.users[user.ID] = *user
		return nil
	})
}

// ---- profiles ----

type profileRepo struct{ h handle }

func (r profileRepo) CreateStudent(_ context.Context, p *model.StudentProfile) error {
	return r.h.do(func(st *state) error {
		if _, ok := st.students[p.UserID]; ok {
			return repository.ErrDuplicate
		}
		p.ID = st.id("student_profiles")
		p.CreatedAt = stamp(p.CreatedAt)
		st.students[p.UserID] = *p
		return nil
	})
}

func (r profileRepo) GetStudent(_ context.Context, userID int64) (*model.StudentProfile, error) {
	var out *model.StudentProfile
	err := r.h.do(func(st *state) error {
		p, ok := st.students[userID]
		if !ok {
			return repository.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r profileRepo) CreateCoach(_ context.Context, p *model.CoachProfile) error {
	return r.h.do(func(st *state) error {
		if _, ok := st.coaches[p.UserID]; ok {
			return repository.ErrDuplicate
		}
		p.ID = st.id("coach_profiles")
		p.CreatedAt = stamp(p.CreatedAt)
		p.UpdatedAt = stamp(p.UpdatedAt)
		st.coaches[p.UserID] = *p
		return nil
	})
}

func (r profileRepo) GetCoach(_ context.Context, userID int64) (*model.CoachProfile, error) {
	var out *model.CoachProfile
	err := r.h.do(func(st *state) error {
		p, ok := st.coaches[userID]
		if !ok {
			return repository.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r profileRepo) UpdateCoach(_ context.Context, p *model.CoachProfile) error {
	return r.h.do(func(st *state) error {
		if _, ok := st.coaches[p.UserID]; !ok {
			return repository.ErrNotFound
		}
		st.coaches[p.UserID] = *p
		return nil
	})
}

// ---- role switch log ----

type roleSwitchRepo struct{ h handle }

func (r roleSwitchRepo) Append(_ context.Context, entry *model.RoleSwitchLog) error {
	return r.h.do(func(st *state) error {
		entry.ID = st.id("role_switch_logs")
		entry.CreatedAt = stamp(entry.CreatedAt)
		st.roleSwitches = append(st.roleSwitches, *entry)
		return nil
	})
}

func (r roleSwitchRepo) ListByUser(_ context.Context, userID int64) ([]*model.RoleSwitchLog, error) {
	var out []*model.RoleSwitchLog
	err := r.h.do(func(st *state) error {
		for _, e := range st.roleSwitches {
			if e.UserID == userID {
				e := e
				out = append(out, &e)
			}
		}
		return nil
	})
	return out, err
}

// ---- learning requests ----

type requestRepo struct{ h handle }

func copyRequest(req model.LearningRequest) model.LearningRequest {
	req.Questions = append([]model.ScreeningQuestion(nil), req.Questions...)
	return req
}

func (r requestRepo) Create(_ context.Context, req *model.LearningRequest) error {
	return r.h.do(func(st *state) error {
		req.ID = st.id("learning_requests")
		req.CreatedAt = stamp(req.CreatedAt)
		req.UpdatedAt = stamp(req.UpdatedAt)
		for i := range req.Questions {
			req.Questions[i].ID = st.id("screening_questions")
			req.Questions[i].RequestID = req.ID
			req.Questions[i].Position = i + 1
		}
		st.requests[req.ID] = copyRequest(*req)
		return nil
	})
}

func (r requestRepo) GetByID(_ context.Context, id int64) (*model.LearningRequest, error) {
	var out *model.LearningRequest
	err := r.h.do(func(st *state) error {
		req, ok := st.requests[id]
		if !ok {
			return repository.ErrNotFound
		}
		req = copyRequest(req)
		out = &req
		return nil
	})
	return out, err
}

// Update сохраняет поля запроса; вопросы меняются только через ReplaceQuestions
func (r requestRepo) Update(_ context.Context, req *model.LearningRequest) error {
	return r.h.do(func(st *state) error {
		cur, ok := st.requests[req.ID]
		if !ok {
			return repository.ErrNotFound
		}
		next := copyRequest(*req)
		next.Questions = cur.Questions
		st.requests[req.ID] = next
		return nil
	})
}

func (r requestRepo) ReplaceQuestions(_ context.Context, requestID int64, questions []model.ScreeningQuestion) ([]model.ScreeningQuestion, error) {
	var out []model.ScreeningQuestion
	err := r.h.do(func(st *state) error {
		req, ok := st.requests[requestID]
		if !ok {
			return repository.ErrNotFound
		}
		out = make([]model.ScreeningQuestion, 0, len(questions))
		for i, q := range questions {
			out = append(out, model.ScreeningQuestion{
				ID:        st.id("screening_questions"),
				RequestID: requestID,
				Position:  i + 1,
				Text:      q.Text,
			})
		}
		req.Questions = append([]model.ScreeningQuestion(nil), out...)
		st.requests[requestID] = req
		return nil
	})
	return out, err
}

func (r requestRepo) list(match func(model.LearningRequest) bool) ([]*model.LearningRequest, error) {
	var out []*model.LearningRequest
	err := r.h.do(func(st *state) error {
		for _, req := range st.requests {
			if match(req) {
				req = copyRequest(req)
				out = append(out, &req)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

func (r requestRepo) ListActive(_ context.Context) ([]*model.LearningRequest, error) {
	return r.list(func(req model.LearningRequest) bool { return req.IsActive })
}

func (r requestRepo) ListByStudent(_ context.Context, studentID int64) ([]*model.LearningRequest, error) {
	return r.list(func(req model.LearningRequest) bool { return req.StudentID == studentID })
}

// ---- proposals ----

type proposalRepo struct{ h handle }

func copyProposal(p model.Proposal) model.Proposal {
	p.Answers = append([]model.ScreeningAnswer(nil), p.Answers...)
	return p
}

func (r proposalRepo) Create(_ context.Context, p *model.Proposal) error {
	return r.h.do(func(st *state) error {
		for _, other := range st.proposals {
			if other.RequestID == p.RequestID && other.CoachID == p.CoachID {
				return repository.ErrDuplicate
			}
		}
		p.ID = st.id("proposals")
		p.CreatedAt = stamp(p.CreatedAt)
		p.UpdatedAt = stamp(p.UpdatedAt)
		for i := range p.Answers {
			p.Answers[i].ID = st.id("screening_answers")
			p.Answers[i].ProposalID = p.ID
		}
		st.proposals[p.ID] = copyProposal(*p)
		return nil
	})
}

func (r proposalRepo) GetByID(_ context.Context, id int64) (*model.Proposal, error) {
	var out *model.Proposal
	err := r.h.do(func(st *state) error {
		p, ok := st.proposals[id]
		if !ok {
			return repository.ErrNotFound
		}
		p = copyProposal(p)
		out = &p
		return nil
	})
	return out, err
}

func (r proposalRepo) GetForUpdate(ctx context.Context, id int64) (*model.Proposal, error) {
	return r.GetByID(ctx, id)
}

func (r proposalRepo) ExistsForCoach(_ context.Context, requestID, coachID int64) (bool, error) {
	var exists bool
	err := r.h.do(func(st *state) error {
		for _, p := range st.proposals {
			if p.RequestID == requestID && p.CoachID == coachID {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, err
}

func (r proposalRepo) list(match func(model.Proposal) bool) ([]*model.Proposal, error) {
	var out []*model.Proposal
	err := r.h.do(func(st *state) error {
		for _, p := range st.proposals {
			if match(p) {
				p = copyProposal(p)
				out = append(out, &p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r proposalRepo) ListByRequest(_ context.Context, requestID int64) ([]*model.Proposal, error) {
	return r.list(func(p model.Proposal) bool { return p.RequestID == requestID })
}

func (r proposalRepo) ListByCoach(_ context.Context, coachID int64) ([]*model.Proposal, error) {
	return r.list(func(p model.Proposal) bool { return p.CoachID == coachID })
}

func (r proposalRepo) UpdateStatus(_ context.Context, id int64, status model.ProposalStatus) error {
	return r.h.do(func(st *state) error {
		p, ok := st.proposals[id]
		if !ok {
			return repository.ErrNotFound
		}
		p.Status = status
		p.UpdatedAt = time.Now().UTC()
		st.proposals[id] = p
		return nil
	})
}

func (r proposalRepo) Delete(_ context.Context, id int64) error {
	return r.h.do(func(st *state) error {
		if _, ok := st.proposals[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.proposals, id)
		return nil
	})
}

func (r proposalRepo) RejectPendingSiblings(_ context.Context, requestID, exceptID int64) ([]int64, error) {
	var ids []int64
	err := r.h.do(func(st *state) error {
		for id, p := range st.proposals {
			if p.RequestID != requestID || id == exceptID || p.Status != model.ProposalStatusPending {
				continue
			}
			p.Status = model.ProposalStatusRejected
			p.UpdatedAt = time.Now().UTC()
			st.proposals[id] = p
			ids = append(ids, id)
		}
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}

func (r proposalRepo) CountAccepted(_ context.Context, requestID int64) (int, error) {
	var n int
	err := r.h.do(func(st *state) error {
		for _, p := range st.proposals {
			if p.RequestID == requestID && p.Status == model.ProposalStatusAccepted {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r proposalRepo) AcceptedBetween(_ context.Context, studentID, coachID int64) (bool, error) {
	var found bool
	err := r.h.do(func(st *state) error {
		for _, p := range st.proposals {
			if p.CoachID != coachID || p.Status != model.ProposalStatusAccepted {
				continue
			}
			if req, ok := st.requests[p.RequestID]; ok && req.StudentID == studentID {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

// ---- contracts ----

type contractRepo struct{ h handle }

func (r contractRepo) Create(_ context.Context, c *model.Contract) error {
	return r.h.do(func(st *state) error {
		for _, other := range st.contracts {
			if other.ContractNumber == c.ContractNumber || other.ProposalID == c.ProposalID {
				return repository.ErrDuplicate
			}
		}
		c.ID = st.id("contracts")
		c.CreatedAt = stamp(c.CreatedAt)
		c.UpdatedAt = stamp(c.UpdatedAt)
		st.contracts[c.ID] = *c
		return nil
	})
}

func (r contractRepo) GetByID(_ context.Context, id int64) (*model.Contract, error) {
	var out *model.Contract
	err := r.h.do(func(st *state) error {
		c, ok := st.contracts[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r contractRepo) GetForUpdate(ctx context.Context, id int64) (*model.Contract, error) {
	return r.GetByID(ctx, id)
}

func (r contractRepo) GetByProposalID(_ context.Context, proposalID int64) (*model.Contract, error) {
	var out *model.Contract
	err := r.h.do(func(st *state) error {
		for _, c := range st.contracts {
			if c.ProposalID == proposalID {
				c := c
				out = &c
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r contractRepo) LastNumberWithPrefix(_ context.Context, prefix string) (string, error) {
	var (
		last string
		top  int
	)
	err := r.h.do(func(st *state) error {
		for _, c := range st.contracts {
			if !strings.HasPrefix(c.ContractNumber, prefix) {
				continue
			}
			// сравнение по счётчику: после 9999 идёт 10000
			if n, ok := model.ParseContractCounter(c.ContractNumber); ok && n > top {
				last, top = c.ContractNumber, n
			}
		}
		return nil
	})
	return last, err
}

func (r contractRepo) NumberExists(_ context.Context, number string) (bool, error) {
	var exists bool
	err := r.h.do(func(st *state) error {
		for _, c := range st.contracts {
			if c.ContractNumber == number {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, err
}

func (r contractRepo) Update(_ context.Context, c *model.Contract) error {
	return r.h.do(func(st *state) error {
		if _, ok := st.contracts[c.ID]; !ok {
			return repository.ErrNotFound
		}
		st.contracts[c.ID] = *c
		return nil
	})
}

func (r contractRepo) ListByUser(_ context.Context, userID int64) ([]*model.Contract, error) {
	var out []*model.Contract
	err := r.h.do(func(st *state) error {
		for _, c := range st.contracts {
			if c.IsParty(userID) {
				c := c
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

// ---- sessions ----

type sessionRepo struct{ h handle }

func (r sessionRepo) Create(_ context.Context, s *model.Session) error {
	return r.h.do(func(st *state) error {
		for _, other := range st.sessions {
			if other.ContractID == s.ContractID && other.SessionNumber == s.SessionNumber &&
				other.Status != model.MeetingStatusCancelled {
				return repository.ErrDuplicate
			}
		}
		s.ID = st.id("sessions")
		s.CreatedAt = stamp(s.CreatedAt)
		s.UpdatedAt = stamp(s.UpdatedAt)
		st.sessions[s.ID] = *s
		return nil
	})
}

func (r sessionRepo) GetByID(_ context.Context, id int64) (*model.Session, error) {
	var out *model.Session
	err := r.h.do(func(st *state) error {
		s, ok := st.sessions[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &s
		return nil
	})
	return out, err
}

func (r sessionRepo) GetForUpdate(ctx context.Context, id int64) (*model.Session, error) {
	return r.GetByID(ctx, id)
}

func (r sessionRepo) Update(_ context.Context, s *model.Session) error {
	return r.h.do(func(st *state) error {
		if _, ok := st.sessions[s.ID]; !ok {
			return repository.ErrNotFound
		}
		st.sessions[s.ID] = *s
		return nil
	})
}

func (r sessionRepo) list(match func(model.Session) bool) ([]*model.Session, error) {
	var out []*model.Session
	err := r.h.do(func(st *state) error {
		for _, s := range st.sessions {
			if match(s) {
				s := s
				out = append(out, &s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r sessionRepo) ListByContract(_ context.Context, contractID int64) ([]*model.Session, error) {
	return r.list(func(s model.Session) bool { return s.ContractID == contractID })
}

func (r sessionRepo) UsedNumbers(_ context.Context, contractID int64) ([]int, error) {
	var nums []int
	err := r.h.do(func(st *state) error {
		for _, s := range st.sessions {
			if s.ContractID == contractID && s.Status != model.MeetingStatusCancelled {
				nums = append(nums, s.SessionNumber)
			}
		}
		return nil
	})
	sort.Ints(nums)
	return nums, err
}

func (r sessionRepo) ListReserving(_ context.Context, coachID int64, from, to time.Time, excludeID int64) ([]*model.Session, error) {
	return r.list(func(s model.Session) bool {
		return s.CoachID == coachID && s.ID != excludeID && s.Reserves() &&
			model.Overlaps(s.ScheduledAt, s.EndsAt(), from, to)
	})
}

func (r sessionRepo) ListDue(_ context.Context, until time.Time) ([]*model.Session, error) {
	return r.list(func(s model.Session) bool {
		return s.Reserves() && !s.ScheduledAt.After(until)
	})
}

func (r sessionRepo) ListExpiredReschedules(_ context.Context, now time.Time) ([]*model.Session, error) {
	return r.list(func(s model.Session) bool { return s.RescheduleExpired(now) })
}

func (r sessionRepo) ListUpcomingForUser(_ context.Context, userID int64, from time.Time) ([]*model.Session, error) {
	return r.list(func(s model.Session) bool {
		return (s.CoachID == userID || s.StudentID == userID) && s.Reserves() && s.EndsAt().After(from)
	})
}

func (r sessionRepo) CancelScheduledByContract(_ context.Context, contractID int64) (int64, error) {
	var n int64
	err := r.h.do(func(st *state) error {
		for id, s := range st.sessions {
			if s.ContractID != contractID || s.Status != model.MeetingStatusScheduled {
				continue
			}
			s.Status = model.MeetingStatusCancelled
			s.ClearRescheduleRequest()
			s.UpdatedAt = time.Now().UTC()
			st.sessions[id] = s
			n++
		}
		return nil
	})
	return n, err
}

// ---- scheduled calls ----

type callRepo struct{ h handle }

func (r callRepo) Create(_ context.Context, c *model.ScheduledCall) error {
	return r.h.do(func(st *state) error {
		c.ID = st.id("scheduled_calls")
		c.CreatedAt = stamp(c.CreatedAt)
		c.UpdatedAt = stamp(c.UpdatedAt)
		st.calls[c.ID] = *c
		return nil
	})
}

func (r callRepo) GetByID(_ context.Context, id int64) (*model.ScheduledCall, error) {
	var out *model.ScheduledCall
	err := r.h.do(func(st *state) error {
		c, ok := st.calls[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r callRepo) GetForUpdate(ctx context.Context, id int64) (*model.ScheduledCall, error) {
	return r.GetByID(ctx, id)
}

func (r callRepo) Update(_ context.Context, c *model.ScheduledCall) error {
	return r.h.do(func(st *state) error {
		if _, ok := st.calls[c.ID]; !ok {
			return repository.ErrNotFound
		}
		st.calls[c.ID] = *c
		return nil
	})
}

func (r callRepo) list(match func(model.ScheduledCall) bool) ([]*model.ScheduledCall, error) {
	var out []*model.ScheduledCall
	err := r.h.do(func(st *state) error {
		for _, c := range st.calls {
			if match(c) {
				c := c
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r callRepo) ListReserving(_ context.Context, coachID int64, from, to time.Time, excludeID int64) ([]*model.ScheduledCall, error) {
	return r.list(func(c model.ScheduledCall) bool {
		return c.CoachID == coachID && c.ID != excludeID && c.Reserves() &&
			model.Overlaps(c.ScheduledAt, c.EndsAt(), from, to)
	})
}

func (r callRepo) ListDue(_ context.Context, until time.Time) ([]*model.ScheduledCall, error) {
	return r.list(func(c model.ScheduledCall) bool {
		return c.Reserves() && !c.ScheduledAt.After(until)
	})
}

func (r callRepo) ListUpcomingForUser(_ context.Context, userID int64, from time.Time) ([]*model.ScheduledCall, error) {
	return r.list(func(c model.ScheduledCall) bool {
		return (c.CoachID == userID || c.StudentID == userID) && c.Reserves() && c.EndsAt().After(from)
	})
}

// ---- messages ----

type messageRepo struct{ h handle }

func (r messageRepo) Create(_ context.Context, m *model.Message) error {
	return r.h.do(func(st *state) error {
		m.ID = st.id("messages")
		m.CreatedAt = stamp(m.CreatedAt)
		stored := *m
		stored.Payload = append([]byte(nil), m.Payload...)
		st.messages = append(st.messages, stored)
		return nil
	})
}

func (r messageRepo) HasMessaged(_ context.Context, from, to int64) (bool, error) {
	var found bool
	err := r.h.do(func(st *state) error {
		for _, m := range st.messages {
			if m.SenderID == from && m.RecipientID == to {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

// ListConversation последние limit сообщений переписки в хронологическом порядке
func (r messageRepo) ListConversation(_ context.Context, a, b int64, limit int) ([]*model.Message, error) {
	var out []*model.Message
	err := r.h.do(func(st *state) error {
		for _, m := range st.messages {
			if (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a) {
				m := m
				m.Payload = append([]byte(nil), m.Payload...)
				out = append(out, &m)
			}
		}
		return nil
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, err
}

func (r messageRepo) MarkConversationRead(_ context.Context, recipientID, senderID int64) (int64, error) {
	var n int64
	err := r.h.do(func(st *state) error {
		next := make([]model.Message, len(st.messages))
		copy(next, st.messages)
		for i := range next {
			if next[i].RecipientID == recipientID && next[i].SenderID == senderID && !next[i].IsRead {
				next[i].IsRead = true
				n++
			}
		}
		st.messages = next
		return nil
	})
	return n, err
}

func (r messageRepo) UnreadCount(_ context.Context, userID int64) (int, error) {
	var n int
	err := r.h.do(func(st *state) error {
		for _, m := range st.messages {
			if m.RecipientID == userID && !m.IsRead {
				n++
			}
		}
		return nil
	})
	return n, err
}

// ---- notifications ----

type notificationRepo struct{ h handle }

func (r notificationRepo) Create(_ context.Context, n *model.Notification) error {
	return r.h.do(func(st *state) error {
		n.ID = st.id("notifications")
		n.CreatedAt = stamp(n.CreatedAt)
		st.notifications[n.ID] = *n
		return nil
	})
}

func (r notificationRepo) ListByUser(_ context.Context, userID int64, limit int) ([]*model.Notification, error) {
	var out []*model.Notification
	err := r.h.do(func(st *state) error {
		for _, n := range st.notifications {
			if n.UserID == userID {
				n := n
				out = append(out, &n)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r notificationRepo) MarkRead(_ context.Context, userID, id int64) error {
	return r.h.do(func(st *state) error {
		n, ok := st.notifications[id]
		if !ok || n.UserID != userID {
			return repository.ErrNotFound
		}
		n.IsRead = true
		st.notifications[id] = n
		return nil
	})
}

func (r notificationRepo) MarkAllRead(_ context.Context, userID int64) (int64, error) {
	var count int64
	err := r.h.do(func(st *state) error {
		for id, n := range st.notifications {
			if n.UserID == userID && !n.IsRead {
				n.IsRead = true
				st.notifications[id] = n
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r notificationRepo) UnreadCount(_ context.Context, userID int64) (int, error) {
	var count int
	err := r.h.do(func(st *state) error {
		for _, n := range st.notifications {
			if n.UserID == userID && !n.IsRead {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r notificationRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.h.do(func(st *state) error {
		for id, n := range st.notifications {
			if n.CreatedAt.Before(cutoff) {
				delete(st.notifications, id)
				count++
			}
		}
		return nil
	})
	return count, err
}
