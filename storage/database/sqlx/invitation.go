package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/eventsoft/eventsoft/core/invitation"
	"github.com/eventsoft/eventsoft/core/user"
)

const codeColumns = `code, target_role, state, expires_at, issued_by, created_at, consumed_by, consumed_at, dispatch_log`

type codeRow struct {
	Code        string      `db:"code"`
	TargetRole  string      `db:"target_role"`
	State       string      `db:"state"`
	ExpiresAt   time.Time   `db:"expires_at"`
	IssuedBy    string      `db:"issued_by"`
	CreatedAt   time.Time   `db:"created_at"`
	ConsumedBy  null.String `db:"consumed_by"`
	ConsumedAt  null.Time   `db:"consumed_at"`
	DispatchLog null.JSON   `db:"dispatch_log"`
}

func (r codeRow) code() (invitation.Code, error) {
	c := invitation.Code{
		Code:        r.Code,
		TargetRole:  user.Role(r.TargetRole),
		State:       invitation.State(r.State),
		ExpiresAt:   r.ExpiresAt.UTC(),
		IssuedBy:    r.IssuedBy,
		CreatedAt:   r.CreatedAt.UTC(),
		ConsumedBy:  r.ConsumedBy.String,
		ConsumedAt:  r.ConsumedAt.Time.UTC(),
		DispatchLog: []invitation.DispatchEntry{},
	}
	return c, fromJSON(r.DispatchLog, &c.DispatchLog)
}

type invitationRepository struct {
	db *DB
}

var _ invitation.Repository = (*invitationRepository)(nil) // interface compliance check

func NewInvitationRepository(db *DB) invitation.Repository {
	return &invitationRepository{db: db}
}

func (repo *invitationRepository) CreateCode(ctx context.Context, c invitation.Code) (invitation.Code, error) {
	log := c.DispatchLog
	if log == nil {
		log = []invitation.DispatchEntry{}
	}
	dispatchLog, err := toJSON(log)
	if err != nil {
		return invitation.Code{}, err
	}
	_, err = repo.db.execOne(ctx, `INSERT INTO invitation_codes (`+codeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Code, string(c.TargetRole), string(c.State), c.ExpiresAt.UTC(), c.IssuedBy, c.CreatedAt.UTC(),
		null.NewString(c.ConsumedBy, c.ConsumedBy != ""), null.NewTime(c.ConsumedAt.UTC(), !c.ConsumedAt.IsZero()), dispatchLog)
	if err != nil {
		return invitation.Code{}, errors.Wrap(err, "inserting invitation code")
	}
	c.DispatchLog = log
	return c, nil
}

func (repo *invitationRepository) getCode(ctx context.Context, code, suffix string) (invitation.Code, error) {
	var r codeRow
	if err := repo.db.get(ctx, &r, `SELECT `+codeColumns+` FROM invitation_codes WHERE code = ?`+suffix, code); err != nil {
		return invitation.Code{}, trapNoRowsErr(err, invitation.ErrCodeUnknown, "getting invitation code")
	}
	return r.code()
}

func (repo *invitationRepository) GetCode(ctx context.Context, code string) (invitation.Code, error) {
	return repo.getCode(ctx, code, "")
}

func (repo *invitationRepository) LockCode(ctx context.Context, code string) (invitation.Code, error) {
	return repo.getCode(ctx, code, " FOR UPDATE")
}

// UpdateCode saves the state of c; the dispatch log is only ever appended to.
func (repo *invitationRepository) UpdateCode(ctx context.Context, c invitation.Code) (invitation.Code, error) {
	var r codeRow
	err := repo.db.get(ctx, &r, `UPDATE invitation_codes SET
		state = ?, expires_at = ?, consumed_by = ?, consumed_at = ?
		WHERE code = ? RETURNING `+codeColumns,
		string(c.State), c.ExpiresAt.UTC(), null.NewString(c.ConsumedBy, c.ConsumedBy != ""),
		null.NewTime(c.ConsumedAt.UTC(), !c.ConsumedAt.IsZero()), c.Code)
	if err != nil {
		return invitation.Code{}, trapNoRowsErr(err, invitation.ErrCodeUnknown, "updating invitation code")
	}
	return r.code()
}

func (repo *invitationRepository) ConsumeCode(ctx context.Context, code, userID string, at time.Time) (invitation.Code, error) {
	var r codeRow
	err := repo.db.get(ctx, &r, `UPDATE invitation_codes SET state = ?, consumed_by = ?, consumed_at = ?
		WHERE code = ? AND state = ? RETURNING `+codeColumns,
		string(invitation.StateConsumed), userID, at.UTC(), code, string(invitation.StateActive))
	if err != nil {
		return invitation.Code{}, trapNoRowsErr(err, invitation.ErrCodeConsumed, "consuming invitation code")
	}
	return r.code()
}

func (repo *invitationRepository) AppendDispatch(ctx context.Context, code string, e invitation.DispatchEntry) error {
	entry, err := toJSON([]invitation.DispatchEntry{e})
	if err != nil {
		return err
	}
	ok, err := repo.db.execOne(ctx, `UPDATE invitation_codes SET dispatch_log = dispatch_log || CAST(? AS jsonb) WHERE code = ?`,
		entry, code)
	if err != nil {
		return errors.Wrap(err, "appending dispatch log")
	}
	if !ok {
		return invitation.ErrCodeUnknown
	}
	return nil
}

func (repo *invitationRepository) ListCodes(ctx context.Context) ([]invitation.Code, error) {
	var rows []codeRow
	if err := repo.db.selectAll(ctx, &rows, `SELECT `+codeColumns+` FROM invitation_codes ORDER BY created_at DESC`); err != nil {
		return nil, errors.Wrap(err, "listing invitation codes")
	}
	codes := make([]invitation.Code, 0, len(rows))
	for _, r := range rows {
		c, err := r.code()
		if err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, nil
}
