package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"case-outreach-service/internal/modal"
)

const caseColumns = `id, client_name, phone, status, failure_reason, assessment, created_at, updated_at`

func scanCase(row interface{ Scan(...any) error }) (*modal.Case, error) {
	var c modal.Case
	var assessment []byte
	if err := row.Scan(&c.ID, &c.ClientName, &c.Phone, &c.Status, &c.FailureReason, &assessment, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if len(assessment) > 0 {
		c.Assessment = &modal.CaseAssessment{}
		if err := json.Unmarshal(assessment, c.Assessment); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal assessment")
		}
	}
	return &c, nil
}

// CreateCase inserts an intake case. The phone must already be normalized.
func (s *PostgresStore) CreateCase(ctx context.Context, c modal.Case) (*modal.Case, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = modal.CaseOpen
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cases (id, client_name, phone, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.ClientName, c.Phone, string(c.Status), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert case %s", c.ID)
	}
	return &c, nil
}

func (s *PostgresStore) GetCase(ctx context.Context, caseID string) (*modal.Case, error) {
	c, err := scanCase(s.pool.QueryRow(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE id = $1`, caseID))
	if err != nil {
		return nil, notFound(err, "case", caseID)
	}
	return c, nil
}

// FindOpenCaseByPhone returns the most recent non-terminal case for a normalized phone.
func (s *PostgresStore) FindOpenCaseByPhone(ctx context.Context, phone string) (*modal.Case, error) {
	c, err := scanCase(s.pool.QueryRow(ctx,
		`SELECT `+caseColumns+` FROM cases
		 WHERE phone = $1 AND status IN ($2, $3)
		 ORDER BY created_at DESC LIMIT 1`,
		phone, string(modal.CaseOpen), string(modal.CaseContacted)))
	if err != nil {
		return nil, notFound(err, "case for phone", phone)
	}
	return c, nil
}

func (s *PostgresStore) UpdateCaseStatus(ctx context.Context, caseID string, status modal.CaseStatus, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE cases SET status = $1, failure_reason = $2, updated_at = $3 WHERE id = $4`,
		string(status), reason, time.Now().UTC(), caseID,
	)
	return expectOne(tag, err, "case", caseID)
}

func (s *PostgresStore) SetCaseAssessment(ctx context.Context, caseID string, a *modal.CaseAssessment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal assessment")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE cases SET assessment = $1, updated_at = $2 WHERE id = $3`,
		data, time.Now().UTC(), caseID,
	)
	return expectOne(tag, err, "case", caseID)
}

func (s *PostgresStore) AddMessage(ctx context.Context, m modal.Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.At.IsZero() {
		m.At = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO case_messages (id, case_id, direction, body, external_id, at)
		 VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
		m.ID, m.CaseID, m.Direction, m.Body, m.ExternalID, m.At,
	)
	return eris.Wrapf(err, "postgres: insert message for case %s", m.CaseID)
}

func (s *PostgresStore) ListMessages(ctx context.Context, caseID string) ([]modal.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, case_id, direction, body, external_id, at FROM case_messages
		 WHERE case_id = $1 ORDER BY at`, caseID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list messages for case %s", caseID)
	}
	defer rows.Close()

	var out []modal.Message
	for rows.Next() {
		var m modal.Message
		if err := rows.Scan(&m.ID, &m.CaseID, &m.Direction, &m.Body, &m.ExternalID, &m.At); err != nil {
			return nil, eris.Wrap(err, "postgres: scan message")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list messages iterate")
}

func (s *PostgresStore) CreateCall(ctx context.Context, c modal.CallRecord) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO calls (conversation_id, case_id, workflow_id, purpose, created_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (conversation_id) DO NOTHING`,
		c.ConversationID, c.CaseID, c.WorkflowID, c.Purpose, c.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert call %s", c.ConversationID)
}

// CompleteCall records a call outcome once. Redelivered completions leave the first
// outcome in place.
func (s *PostgresStore) CompleteCall(ctx context.Context, conversationID string, status modal.CallStatus, transcript string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE calls SET completed = true, talked_to_human = $1, failed = $2, failure_reason = $3,
		 transcript = $4, completed_at = $5
		 WHERE conversation_id = $6 AND completed = false`,
		status.TalkedToHuman, status.Failed, status.FailureReason, transcript, time.Now().UTC(), conversationID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete call %s", conversationID)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetCall(ctx, conversationID); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) GetCall(ctx context.Context, conversationID string) (*modal.CallRecord, error) {
	var c modal.CallRecord
	err := s.pool.QueryRow(ctx,
		`SELECT conversation_id, case_id, workflow_id, purpose, completed, talked_to_human, failed,
		 failure_reason, transcript, created_at, completed_at
		 FROM calls WHERE conversation_id = $1`, conversationID,
	).Scan(&c.ConversationID, &c.CaseID, &c.WorkflowID, &c.Purpose, &c.Completed, &c.TalkedToHuman,
		&c.Failed, &c.FailureReason, &c.Transcript, &c.CreatedAt, &c.CompletedAt)
	if err != nil {
		return nil, notFound(err, "call", conversationID)
	}
	return &c, nil
}
