package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/eventsoft/eventsoft/core/invitation"
)

type invitationRepository struct {
	codes *table[string, invitation.Code]
}

var _ invitation.Repository = (*invitationRepository)(nil) // interface compliance check

func NewInvitationRepository(db *DB) invitation.Repository {
	return &invitationRepository{codes: db.codes}
}

func (repo *invitationRepository) CreateCode(_ context.Context, c invitation.Code) (invitation.Code, error) {
	repo.codes.put(c.Code, c)
	return c, nil
}

func (repo *invitationRepository) GetCode(_ context.Context, code string) (invitation.Code, error) {
	if c, ok := repo.codes.get(code); ok {
		c.DispatchLog = append([]invitation.DispatchEntry(nil), c.DispatchLog...)
		return c, nil
	}
	return invitation.Code{}, invitation.ErrCodeUnknown
}

// LockCode is GetCode: transactions are already serialised.
func (repo *invitationRepository) LockCode(ctx context.Context, code string) (invitation.Code, error) {
	return repo.GetCode(ctx, code)
}

func (repo *invitationRepository) UpdateCode(_ context.Context, c invitation.Code) (invitation.Code, error) {
	repo.codes.Lock()
	defer repo.codes.Unlock()
	prev, ok := repo.codes.rows[c.Code]
	if !ok {
		return invitation.Code{}, invitation.ErrCodeUnknown
	}
	// the dispatch log is append-only
	c.DispatchLog = prev.DispatchLog
	repo.codes.rows[c.Code] = c
	return c, nil
}

func (repo *invitationRepository) ConsumeCode(_ context.Context, code, userID string, at time.Time) (invitation.Code, error) {
	repo.codes.Lock()
	defer repo.codes.Unlock()
	c, ok := repo.codes.rows[code]
	if !ok {
		return invitation.Code{}, invitation.ErrCodeUnknown
	}
	if c.State != invitation.StateActive {
		return invitation.Code{}, invitation.ErrCodeConsumed
	}
	c.State = invitation.StateConsumed
	c.ConsumedBy = userID
	c.ConsumedAt = at
	repo.codes.rows[code] = c
	return c, nil
}

func (repo *invitationRepository) AppendDispatch(_ context.Context, code string, e invitation.DispatchEntry) error {
	repo.codes.Lock()
	defer repo.codes.Unlock()
	c, ok := repo.codes.rows[code]
	if !ok {
		return invitation.ErrCodeUnknown
	}
	log := make([]invitation.DispatchEntry, 0, len(c.DispatchLog)+1)
	c.DispatchLog = append(append(log, c.DispatchLog...), e)
	repo.codes.rows[code] = c
	return nil
}

func (repo *invitationRepository) ListCodes(_ context.Context) ([]invitation.Code, error) {
	codes := repo.codes.filter(nil)
	sort.Slice(codes, func(i, j int) bool { return codes[i].CreatedAt.After(codes[j].CreatedAt) })
	return codes, nil
}
