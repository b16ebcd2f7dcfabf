package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
)

type LearningRequestRepository struct {
	db DBTX
}

func NewLearningRequestRepository(db DBTX) *LearningRequestRepository {
	return &LearningRequestRepository{db: db}
}

const requestColumns = `
	id, student_id, title, description, skills, (budget * 100)::bigint, session_count,
	experience_level, skill_type, is_active, created_at, updated_at`

func scanRequest(row pgx.Row) (*model.LearningRequest, error) {
	var req model.LearningRequest
	err := row.Scan(
		&req.ID,
		&req.StudentID,
		&req.Title,
		&req.Description,
		&req.Skills,
		moneyDest(&req.Budget),
		&req.SessionCount,
		&req.ExperienceLevel,
		&req.SkillType,
		&req.IsActive,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Create сохраняет запрос и его вопросы. Вызывать внутри транзакции
func (r *LearningRequestRepository) Create(ctx context.Context, req *model.LearningRequest) error {
	query := `
		INSERT INTO learning_requests (student_id, title, description, skills, budget, session_count,
			experience_level, skill_type, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::bigint / 100.0, $6, $7, $8, $9, $10, $10)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		req.StudentID,
		req.Title,
		req.Description,
		req.Skills,
		cents(req.Budget),
		req.SessionCount,
		req.ExperienceLevel,
		req.SkillType,
		req.IsActive,
		req.CreatedAt,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create learning request: %w", err)
	}

	questions, err := r.insertQuestions(ctx, req.ID, req.Questions)
	if err != nil {
		return err
	}
	req.Questions = questions

	return nil
}

func (r *LearningRequestRepository) insertQuestions(ctx context.Context, requestID int64, questions []model.ScreeningQuestion) ([]model.ScreeningQuestion, error) {
	out := make([]model.ScreeningQuestion, 0, len(questions))
	for i, q := range questions {
		q.RequestID = requestID
		q.Position = i + 1
		err := r.db.QueryRow(ctx, `
			INSERT INTO screening_questions (request_id, position, text)
			VALUES ($1, $2, $3)
			RETURNING id
		`, requestID, q.Position, q.Text).Scan(&q.ID)
		if err != nil {
			return nil, fmt.Errorf("insert screening question: %w", err)
		}
		out = append(out, q)
	}
	return out, nil
}

func (r *LearningRequestRepository) loadQuestions(ctx context.Context, reqs ...*model.LearningRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	byID := make(map[int64]*model.LearningRequest, len(reqs))
	ids := make([]int64, 0, len(reqs))
	for _, req := range reqs {
		byID[req.ID] = req
		ids = append(ids, req.ID)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, request_id, position, text
		FROM screening_questions
		WHERE request_id = ANY($1)
		ORDER BY request_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("load screening questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q model.ScreeningQuestion
		if err := rows.Scan(&q.ID, &q.RequestID, &q.Position, &q.Text); err != nil {
			return fmt.Errorf("scan screening question: %w", err)
		}
		if req, ok := byID[q.RequestID]; ok {
			req.Questions = append(req.Questions, q)
		}
	}
	return rows.Err()
}

func (r *LearningRequestRepository) GetByID(ctx context.Context, id int64) (*model.LearningRequest, error) {
	req, err := scanRequest(r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM learning_requests WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get learning request: %w", mapErr(err))
	}
	if err := r.loadQuestions(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Update сохраняет поля запроса, вопросы не трогает
func (r *LearningRequestRepository) Update(ctx context.Context, req *model.LearningRequest) error {
	query := `
		UPDATE learning_requests
		SET title = $1, description = $2, skills = $3, budget = $4::bigint / 100.0, session_count = $5,
			experience_level = $6, skill_type = $7, is_active = $8, updated_at = $9
		WHERE id = $10
	`

	err := requireOne(execAffected(
		ctx, r.db, query,
		req.Title,
		req.Description,
		req.Skills,
		cents(req.Budget),
		req.SessionCount,
		req.ExperienceLevel,
		req.SkillType,
		req.IsActive,
		req.UpdatedAt,
		req.ID,
	))
	if err != nil {
		return fmt.Errorf("update learning request: %w", err)
	}
	return nil
}

// ReplaceQuestions удаляет старые вопросы и вставляет новые.
// Ответы на удалённые вопросы остаются с question_id = NULL
func (r *LearningRequestRepository) ReplaceQuestions(ctx context.Context, requestID int64, questions []model.ScreeningQuestion) ([]model.ScreeningQuestion, error) {
	if _, err := r.db.Exec(ctx, `DELETE FROM screening_questions WHERE request_id = $1`, requestID); err != nil {
		return nil, fmt.Errorf("delete screening questions: %w", err)
	}
	return r.insertQuestions(ctx, requestID, questions)
}

func (r *LearningRequestRepository) list(ctx context.Context, where string, args ...any) ([]*model.LearningRequest, error) {
	rows, err := r.db.Query(ctx, `SELECT `+requestColumns+` FROM learning_requests WHERE `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list learning requests: %w", err)
	}
	defer rows.Close()

	var reqs []*model.LearningRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan learning request: %w", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate learning requests: %w", err)
	}
	rows.Close()

	if err := r.loadQuestions(ctx, reqs...); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *LearningRequestRepository) ListActive(ctx context.Context) ([]*model.LearningRequest, error) {
	return r.list(ctx, `is_active`)
}

func (r *LearningRequestRepository) ListByStudent(ctx context.Context, studentID int64) ([]*model.LearningRequest, error) {
	return r.list(ctx, `student_id = $1`, studentID)
}

type ProposalRepository struct {
	db DBTX
}

func NewProposalRepository(db DBTX) *ProposalRepository {
	return &ProposalRepository{db: db}
}

const proposalColumns = `
	id, request_id, coach_id, cover_letter, session_count, (price_per_session * 100)::bigint,
	session_duration, (total_price * 100)::bigint, status, created_at, updated_at`

func scanProposal(row pgx.Row) (*model.Proposal, error) {
	var p model.Proposal
	err := row.Scan(
		&p.ID,
		&p.RequestID,
		&p.CoachID,
		&p.CoverLetter,
		&p.SessionCount,
		moneyDest(&p.PricePerSession),
		&p.SessionDuration,
		moneyDest(&p.TotalPrice),
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create сохраняет предложение и ответы; повторная ставка коуча даёт ErrDuplicate
func (r *ProposalRepository) Create(ctx context.Context, p *model.Proposal) error {
	query := `
		INSERT INTO proposals (request_id, coach_id, cover_letter, session_count, price_per_session,
			session_duration, total_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::bigint / 100.0, $6, $7::bigint / 100.0, $8, $9, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		p.RequestID,
		p.CoachID,
		p.CoverLetter,
		p.SessionCount,
		cents(p.PricePerSession),
		p.SessionDuration,
		cents(p.TotalPrice),
		p.Status,
		p.CreatedAt,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create proposal: %w", mapErr(err))
	}

	for i := range p.Answers {
		a := &p.Answers[i]
		a.ProposalID = p.ID
		err := r.db.QueryRow(ctx, `
			INSERT INTO screening_answers (proposal_id, question_id, answer)
			VALUES ($1, $2, $3)
			RETURNING id
		`, a.ProposalID, a.QuestionID, a.Answer).Scan(&a.ID)
		if err != nil {
			return fmt.Errorf("insert screening answer: %w", err)
		}
	}

	return nil
}

func (r *ProposalRepository) loadAnswers(ctx context.Context, ps ...*model.Proposal) error {
	if len(ps) == 0 {
		return nil
	}
	byID := make(map[int64]*model.Proposal, len(ps))
	ids := make([]int64, 0, len(ps))
	for _, p := range ps {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, proposal_id, COALESCE(question_id, 0), answer
		FROM screening_answers
		WHERE proposal_id = ANY($1)
		ORDER BY proposal_id, id
	`, ids)
	if err != nil {
		return fmt.Errorf("load screening answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a model.ScreeningAnswer
		if err := rows.Scan(&a.ID, &a.ProposalID, &a.QuestionID, &a.Answer); err != nil {
			return fmt.Errorf("scan screening answer: %w", err)
		}
		if p, ok := byID[a.ProposalID]; ok {
			p.Answers = append(p.Answers, a)
		}
	}
	return rows.Err()
}

func (r *ProposalRepository) get(ctx context.Context, query string, id int64) (*model.Proposal, error) {
	p, err := scanProposal(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", mapErr(err))
	}
	if err := r.loadAnswers(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProposalRepository) GetByID(ctx context.Context, id int64) (*model.Proposal, error) {
	return r.get(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id)
}

// GetForUpdate блокирует строку до конца транзакции
func (r *ProposalRepository) GetForUpdate(ctx context.Context, id int64) (*model.Proposal, error) {
	return r.get(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1 FOR UPDATE`, id)
}

func (r *ProposalRepository) ExistsForCoach(ctx context.Context, requestID, coachID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM proposals WHERE request_id = $1 AND coach_id = $2)
	`, requestID, coachID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check proposal exists: %w", err)
	}
	return exists, nil
}

func (r *ProposalRepository) list(ctx context.Context, where string, arg int64) ([]*model.Proposal, error) {
	rows, err := r.db.Query(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var ps []*model.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		ps = append(ps, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	rows.Close()

	if err := r.loadAnswers(ctx, ps...); err != nil {
		return nil, err
	}
	return ps, nil
}

func (r *ProposalRepository) ListByRequest(ctx context.Context, requestID int64) ([]*model.Proposal, error) {
	return r.list(ctx, `request_id = $1`, requestID)
}

func (r *ProposalRepository) ListByCoach(ctx context.Context, coachID int64) ([]*model.Proposal, error) {
	return r.list(ctx, `coach_id = $1`, coachID)
}

func (r *ProposalRepository) UpdateStatus(ctx context.Context, id int64, status model.ProposalStatus) error {
	err := requireOne(execAffected(ctx, r.db, `
		UPDATE proposals SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, id))
	if err != nil {
		return fmt.Errorf("update proposal status: %w", mapErr(err))
	}
	return nil
}

func (r *ProposalRepository) Delete(ctx context.Context, id int64) error {
	err := requireOne(execAffected(ctx, r.db, `DELETE FROM proposals WHERE id = $1`, id))
	if err != nil {
		return fmt.Errorf("delete proposal: %w", mapErr(err))
	}
	return nil
}

func (r *ProposalRepository) RejectPendingSiblings(ctx context.Context, requestID, exceptID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE proposals
		SET status = 'rejected', updated_at = NOW()
		WHERE request_id = $1 AND id <> $2 AND status = 'pending'
		RETURNING id
	`, requestID, exceptID)
	if err != nil {
		return nil, fmt.Errorf("reject sibling proposals: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect rejected proposals: %w", err)
	}
	return ids, nil
}

func (r *ProposalRepository) CountAccepted(ctx context.Context, requestID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM proposals WHERE request_id = $1 AND status = 'accepted'
	`, requestID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count accepted proposals: %w", err)
	}
	return n, nil
}

func (r *ProposalRepository) AcceptedBetween(ctx context.Context, studentID, coachID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM proposals p
			JOIN learning_requests lr ON lr.id = p.request_id
			WHERE p.coach_id = $1 AND lr.student_id = $2 AND p.status = 'accepted'
		)
	`, coachID, studentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check accepted proposal: %w", err)
	}
	return exists, nil
}
