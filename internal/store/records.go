package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"case-outreach-service/internal/modal"
)

func (s *PostgresStore) CreateRecordsRequest(ctx context.Context, r modal.RecordsRequest) error {
	if r.SignatureStatus == "" {
		r.SignatureStatus = modal.SignatureUnsigned
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO records_requests (id, case_id, provider_id, signature_status, created_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
		r.ID, r.CaseID, r.ProviderID, string(r.SignatureStatus), r.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert records request %s", r.ID)
}

func (s *PostgresStore) GetRecordsRequest(ctx context.Context, requestID string) (*modal.RecordsRequest, error) {
	var r modal.RecordsRequest
	var channel string
	err := s.pool.QueryRow(ctx,
		`SELECT id, case_id, provider_id, signature_status, signed_at, channel, dispatch_id, dispatched_at, created_at
		 FROM records_requests WHERE id = $1`, requestID,
	).Scan(&r.ID, &r.CaseID, &r.ProviderID, &r.SignatureStatus, &r.SignedAt, &channel, &r.DispatchID, &r.DispatchedAt, &r.CreatedAt)
	if err != nil {
		return nil, notFound(err, "records request", requestID)
	}
	r.Channel = modal.DispatchChannel(channel)
	return &r, nil
}

// UpdateSignatureStatus moves an unsigned request to its observed signature state.
// Settled states are left alone.
func (s *PostgresStore) UpdateSignatureStatus(ctx context.Context, requestID string, status modal.SignatureStatus, signedAt *time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE records_requests SET signature_status = $1, signed_at = $2
		 WHERE id = $3 AND signature_status = $4`,
		string(status), signedAt, requestID, string(modal.SignatureUnsigned),
	)
	return eris.Wrapf(err, "postgres: update signature status %s", requestID)
}

// MarkRecordsDispatched refuses to dispatch a request whose signature is not signed.
func (s *PostgresStore) MarkRecordsDispatched(ctx context.Context, requestID string, channel modal.DispatchChannel, dispatchID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE records_requests SET channel = $1, dispatch_id = $2, dispatched_at = $3
		 WHERE id = $4 AND signature_status = $5`,
		string(channel), dispatchID, time.Now().UTC(), requestID, string(modal.SignatureSigned),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark dispatched %s", requestID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: records request %s is not signed", requestID)
	}
	return nil
}
