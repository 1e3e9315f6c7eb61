package dummydb

import (
	"context"
	"sort"

	"github.com/eventsoft/eventsoft/core/audit"
)

type auditRepository struct {
	entries *table[string, audit.Entry]
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) audit.Repository {
	return &auditRepository{entries: db.audit}
}

func (repo *auditRepository) AppendEntry(_ context.Context, e audit.Entry) error {
	repo.entries.put(e.ID, e)
	return nil
}

func (repo *auditRepository) ListEntries(_ context.Context, filter audit.QueryFilter) ([]audit.Entry, error) {
	entries := repo.entries.filter(func(e audit.Entry) bool {
		return (filter.TargetType == "" || e.TargetType == filter.TargetType) &&
			(filter.TargetID == "" || e.TargetID == filter.TargetID) &&
			(filter.Action == "" || e.Action == filter.Action)
	})
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return entries, nil
}
