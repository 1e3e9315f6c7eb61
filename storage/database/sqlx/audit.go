package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core/audit"
)

type auditRow struct {
	ID         string    `db:"id"`
	At         time.Time `db:"at"`
	ActorID    string    `db:"actor_id"`
	Action     string    `db:"action"`
	TargetType string    `db:"target_type"`
	TargetID   string    `db:"target_id"`
	From       string    `db:"from_state"`
	To         string    `db:"to_state"`
	Detail     string    `db:"detail"`
}

type auditRepository struct {
	db *DB
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) audit.Repository {
	return &auditRepository{db: db}
}

func (repo *auditRepository) AppendEntry(ctx context.Context, e audit.Entry) error {
	_, err := repo.db.namedExec(ctx, `INSERT INTO audit_entries
		(id, at, actor_id, action, target_type, target_id, from_state, to_state, detail) VALUES
		(:id, :at, :actor_id, :action, :target_type, :target_id, :from_state, :to_state, :detail)`, auditRow(e))
	return errors.Wrap(err, "inserting audit entry")
}

func (repo *auditRepository) ListEntries(ctx context.Context, filter audit.QueryFilter) ([]audit.Entry, error) {
	var w where
	if filter.TargetType != "" {
		w.add(`target_type = ?`, filter.TargetType)
	}
	if filter.TargetID != "" {
		w.add(`target_id = ?`, filter.TargetID)
	}
	if filter.Action != "" {
		w.add(`action = ?`, filter.Action)
	}

	var rows []auditRow
	err := repo.db.selectAll(ctx, &rows, `SELECT id, at, actor_id, action, target_type, target_id, from_state, to_state, detail
		FROM audit_entries`+w.String()+` ORDER BY at`, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing audit entries")
	}
	entries := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, audit.Entry(r))
	}
	return entries, nil
}
