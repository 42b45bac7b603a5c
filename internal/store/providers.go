package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"case-outreach-service/internal/modal"
)

const providerColumns = `id, case_id, name, organization, specialty, city, state, npi, contact, verification, created_at`

func (s *PostgresStore) CreateProvider(ctx context.Context, p modal.Provider) (*modal.Provider, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Verification == "" {
		p.Verification = modal.ProviderUnverified
	}
	p.CreatedAt = time.Now().UTC()

	contact, err := json.Marshal(p.Contact)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal contact")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO providers (id, case_id, name, organization, specialty, city, state, npi, contact, verification, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.CaseID, p.Name, p.Organization, p.Specialty, p.City, p.State, p.NPI, contact, string(p.Verification), p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert provider for case %s", p.CaseID)
	}
	return &p, nil
}

func scanProvider(row interface{ Scan(...any) error }) (*modal.Provider, error) {
	var p modal.Provider
	var contact []byte
	if err := row.Scan(&p.ID, &p.CaseID, &p.Name, &p.Organization, &p.Specialty, &p.City, &p.State, &p.NPI,
		&contact, &p.Verification, &p.CreatedAt); err != nil {
		return nil, err
	}
	if len(contact) > 0 {
		if err := json.Unmarshal(contact, &p.Contact); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal contact")
		}
	}
	return &p, nil
}

func (s *PostgresStore) GetProvider(ctx context.Context, providerID string) (*modal.Provider, error) {
	p, err := scanProvider(s.pool.QueryRow(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE id = $1`, providerID))
	if err != nil {
		return nil, notFound(err, "provider", providerID)
	}
	return p, nil
}

func (s *PostgresStore) ListProviders(ctx context.Context, caseID string, state modal.VerificationState) ([]modal.Provider, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE case_id = $1 AND verification = $2 ORDER BY created_at`,
		caseID, string(state))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list providers for case %s", caseID)
	}
	defer rows.Close()

	var out []modal.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan provider")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list providers iterate")
}

// SetProviderVerification promotes a provider. A non-nil contact replaces the stored one.
func (s *PostgresStore) SetProviderVerification(ctx context.Context, providerID string, state modal.VerificationState, contact *modal.ContactInfo) error {
	if contact == nil {
		tag, err := s.pool.Exec(ctx,
			`UPDATE providers SET verification = $1 WHERE id = $2`, string(state), providerID)
		return expectOne(tag, err, "provider", providerID)
	}
	data, err := json.Marshal(contact)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal contact")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE providers SET verification = $1, contact = $2 WHERE id = $3`, string(state), data, providerID)
	return expectOne(tag, err, "provider", providerID)
}

const verificationColumns = `id, case_id, provider_id, status, extracted, looked_up, resolved_by, resolved_at, created_at`

func (s *PostgresStore) CreateVerification(ctx context.Context, v modal.VerificationRequest) (*modal.VerificationRequest, error) {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.Status = modal.VerificationPending
	v.CreatedAt = time.Now().UTC()

	extracted, err := json.Marshal(v.Extracted)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal extracted contact")
	}
	lookedUp, err := json.Marshal(v.LookedUp)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal looked-up contact")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO verification_requests (id, case_id, provider_id, status, extracted, looked_up, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.CaseID, v.ProviderID, string(v.Status), extracted, lookedUp, v.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert verification for provider %s", v.ProviderID)
	}
	return &v, nil
}

func scanVerification(row interface{ Scan(...any) error }) (*modal.VerificationRequest, error) {
	var v modal.VerificationRequest
	var extracted, lookedUp []byte
	if err := row.Scan(&v.ID, &v.CaseID, &v.ProviderID, &v.Status, &extracted, &lookedUp, &v.ResolvedBy,
		&v.ResolvedAt, &v.CreatedAt); err != nil {
		return nil, err
	}
	if len(extracted) > 0 {
		if err := json.Unmarshal(extracted, &v.Extracted); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal extracted contact")
		}
	}
	if len(lookedUp) > 0 {
		if err := json.Unmarshal(lookedUp, &v.LookedUp); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal looked-up contact")
		}
	}
	return &v, nil
}

func (s *PostgresStore) GetVerification(ctx context.Context, verificationID string) (*modal.VerificationRequest, error) {
	v, err := scanVerification(s.pool.QueryRow(ctx,
		`SELECT `+verificationColumns+` FROM verification_requests WHERE id = $1`, verificationID))
	if err != nil {
		return nil, notFound(err, "verification", verificationID)
	}
	return v, nil
}

func (s *PostgresStore) ListPendingVerifications(ctx context.Context, caseID string) ([]modal.VerificationRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+verificationColumns+` FROM verification_requests WHERE case_id = $1 AND status = $2 ORDER BY created_at`,
		caseID, string(modal.VerificationPending))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list verifications for case %s", caseID)
	}
	defer rows.Close()

	var out []modal.VerificationRequest
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan verification")
		}
		out = append(out, *v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list verifications iterate")
}

func (s *PostgresStore) ResolveVerification(ctx context.Context, verificationID string, approved bool, actor string, at time.Time) (bool, error) {
	status := modal.VerificationRejected
	if approved {
		status = modal.VerificationApproved
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE verification_requests SET status = $1, resolved_by = $2, resolved_at = $3
		 WHERE id = $4 AND status = $5`,
		string(status), actor, at.UTC(), verificationID, string(modal.VerificationPending),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: resolve verification %s", verificationID)
	}
	return tag.RowsAffected() == 1, nil
}
