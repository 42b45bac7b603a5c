package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"case-outreach-service/internal/modal"
)

const instanceColumns = `id, COALESCE(parent_id, ''), name, entity_ref, status, status_message, error, params, started_at, completed_at`

// RegisterInstance inserts an instance record. Re-registering an existing id is a no-op,
// so a parent set at first registration never changes.
func (s *PostgresStore) RegisterInstance(ctx context.Context, in modal.RegisterInstanceInput) error {
	var parent any
	if in.ParentID != "" {
		parent = in.ParentID
	}
	var params any
	if len(in.Params) > 0 {
		params = []byte(in.Params)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO process_instances (id, parent_id, name, entity_ref, status, status_message, params, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO NOTHING`,
		in.ID, parent, in.Name, in.EntityRef, string(modal.InstanceRunning), "registered", params, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: register instance %s", in.ID)
}

// UpdateInstanceStatus sets the human-readable status of a running instance.
func (s *PostgresStore) UpdateInstanceStatus(ctx context.Context, instanceID, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE process_instances SET status_message = $1 WHERE id = $2`,
		message, instanceID,
	)
	return expectOne(tag, err, "instance", instanceID)
}

// MarkInstanceTerminal records the final outcome. Terminal records are not overwritten.
func (s *PostgresStore) MarkInstanceTerminal(ctx context.Context, instanceID string, status modal.InstanceStatus, errMsg string) error {
	if !status.Terminal() {
		return eris.Errorf("postgres: %q is not a terminal status", status)
	}
	message := string(status)
	if errMsg != "" {
		message = string(status) + ": " + errMsg
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE process_instances SET status = $1, error = $2, status_message = $3, completed_at = $4
		 WHERE id = $5 AND status = $6`,
		string(status), errMsg, message, time.Now().UTC(), instanceID, string(modal.InstanceRunning),
	)
	return eris.Wrapf(err, "postgres: mark instance %s %s", instanceID, status)
}

func scanInstance(row interface{ Scan(...any) error }) (*modal.ProcessInstance, error) {
	var p modal.ProcessInstance
	var params []byte
	if err := row.Scan(&p.ID, &p.ParentID, &p.Name, &p.EntityRef, &p.Status, &p.StatusMessage, &p.Error,
		&params, &p.StartedAt, &p.CompletedAt); err != nil {
		return nil, err
	}
	if len(params) > 0 {
		p.Params = params
	}
	return &p, nil
}

func (s *PostgresStore) GetInstance(ctx context.Context, instanceID string) (*modal.ProcessInstance, error) {
	p, err := scanInstance(s.pool.QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM process_instances WHERE id = $1`, instanceID))
	if err != nil {
		return nil, notFound(err, "instance", instanceID)
	}
	return p, nil
}

func (s *PostgresStore) ListChildInstances(ctx context.Context, parentID string) ([]modal.ProcessInstance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+instanceColumns+` FROM process_instances WHERE parent_id = $1 ORDER BY started_at`, parentID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list children of %s", parentID)
	}
	return collectInstances(rows)
}

func (s *PostgresStore) ListCaseInstances(ctx context.Context, caseID string) ([]modal.ProcessInstance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+instanceColumns+` FROM process_instances WHERE entity_ref = $1 ORDER BY started_at`, caseID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list instances for case %s", caseID)
	}
	return collectInstances(rows)
}

func collectInstances(rows pgx.Rows) ([]modal.ProcessInstance, error) {
	defer rows.Close()
	var out []modal.ProcessInstance
	for rows.Next() {
		p, err := scanInstance(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan instance")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list instances iterate")
}
