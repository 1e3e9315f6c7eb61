package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/user"
)

const userColumns = `id, username, email, national_id, role, given_name, family_name, phone,
	is_superadmin, is_active, password_hash, created_at, updated_at, last_login`

type userRow struct {
	ID           string     `db:"id"`
	Username     string     `db:"username"`
	Email        string     `db:"email"`
	NationalID   string     `db:"national_id"`
	Role         string     `db:"role"`
	GivenName    string     `db:"given_name"`
	FamilyName   string     `db:"family_name"`
	Phone        string     `db:"phone"`
	IsSuperAdmin bool       `db:"is_superadmin"`
	IsActive     bool       `db:"is_active"`
	PasswordHash null.Bytes `db:"password_hash"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	LastLogin    null.Time  `db:"last_login"`
}

type profileRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Kind      string    `db:"kind"`
	Specialty string    `db:"specialty"`
	CreatedAt time.Time `db:"created_at"`
}

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Username:     usr.Username,
		Email:        usr.Email,
		NationalID:   usr.NationalID,
		Role:         string(usr.Role),
		GivenName:    usr.GivenName,
		FamilyName:   usr.FamilyName,
		Phone:        usr.Phone,
		IsSuperAdmin: usr.IsSuperAdmin,
		IsActive:     usr.IsActive,
		PasswordHash: null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo *userRepository) fromRow(r userRow) user.User {
	return user.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		NationalID:   r.NationalID,
		Role:         user.Role(r.Role),
		GivenName:    r.GivenName,
		FamilyName:   r.FamilyName,
		Phone:        r.Phone,
		IsSuperAdmin: r.IsSuperAdmin,
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash.Bytes,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

func (repo *userRepository) fromRows(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, repo.fromRow(r))
	}
	return users
}

// trapUniqueErr maps natural key violations to the user package errors.
func (repo *userRepository) trapUniqueErr(err error, msg string) error {
	switch {
	case isUniqueViolation(err, "users_national_id_key"):
		return user.ErrNationalIDExists
	case isUniqueViolation(err, "users_email_key"):
		return user.ErrEmailExists
	case isUniqueViolation(err, "users_username_key"):
		return user.ErrUsernameExists
	}
	return errors.Wrap(err, msg)
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = core.NewID()
	}
	_, err := repo.db.namedExec(ctx, `INSERT INTO users (`+userColumns+`) VALUES (
		:id, :username, :email, :national_id, :role, :given_name, :family_name, :phone,
		:is_superadmin, :is_active, :password_hash, :created_at, :updated_at, :last_login)`, repo.toRow(usr))
	if err != nil {
		return user.User{}, repo.trapUniqueErr(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	q := `SELECT ` + userColumns + ` FROM users`
	var args []interface{}
	switch {
	case filter.ID != "":
		q, args = q+` WHERE id = ?`, []interface{}{filter.ID}
	case filter.Username != "":
		q, args = q+` WHERE username = ?`, []interface{}{filter.Username}
	case filter.Email != "":
		q, args = q+` WHERE email = ?`, []interface{}{filter.Email}
	case filter.NationalID != "":
		q, args = q+` WHERE national_id = ?`, []interface{}{filter.NationalID}
	case filter.UsernameOrEmail != "":
		q, args = q+` WHERE username = ? OR email = ? LIMIT 1`, []interface{}{filter.UsernameOrEmail, filter.UsernameOrEmail}
	default:
		return user.User{}, user.ErrNotFound
	}

	var r userRow
	if err := repo.db.get(ctx, &r, q, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return repo.fromRow(r), nil
}

func (repo *userRepository) FindCollisions(ctx context.Context, nationalID, email, username string) ([]user.User, error) {
	var rows []userRow
	err := repo.db.selectAll(ctx, &rows, `SELECT `+userColumns+` FROM users
		WHERE national_id = ? OR email = ? OR username = ? ORDER BY created_at`, nationalID, email, username)
	if err != nil {
		return nil, errors.Wrap(err, "finding colliding users")
	}
	return repo.fromRows(rows), nil
}

func (repo *userRepository) ListUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	var w where
	// users with search keyword matching any name, username or email ?
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		w.add(`(username ILIKE ? OR email ILIKE ? OR (given_name || ' ' || family_name) ILIKE ?)`, val, val, val)
	}
	// users with any of the specified roles
	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, r := range filter.Roles {
			roles = append(roles, string(r))
		}
		w.add(`(role = ANY(?) OR (is_superadmin AND ? = ANY(?)))`, pq.Array(roles), string(user.RoleSuperAdmin), pq.Array(roles))
	}
	if filter.IsActive != nil {
		w.add(`is_active = ?`, *filter.IsActive)
	}

	var rows []userRow
	if err := repo.db.selectAll(ctx, &rows, `SELECT `+userColumns+` FROM users`+w.String()+` ORDER BY username`, w.args...); err != nil {
		return nil, errors.Wrap(err, "listing users")
	}
	return repo.fromRows(rows), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	ok, err := repo.db.namedExec(ctx, `UPDATE users SET
		username = :username, email = :email, national_id = :national_id, role = :role,
		given_name = :given_name, family_name = :family_name, phone = :phone,
		is_superadmin = :is_superadmin, is_active = :is_active, password_hash = :password_hash,
		updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`, repo.toRow(usr))
	if err != nil {
		return user.User{}, repo.trapUniqueErr(err, "updating user")
	}
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) CreateProfile(ctx context.Context, p user.Profile) (user.Profile, error) {
	if p.ID == "" {
		p.ID = core.NewID()
	}
	_, err := repo.db.namedExec(ctx, `INSERT INTO profiles (id, user_id, kind, specialty, created_at)
		VALUES (:id, :user_id, :kind, :specialty, :created_at)`, profileRow{
		ID: p.ID, UserID: p.UserID, Kind: string(p.Kind), Specialty: p.Specialty, CreatedAt: p.CreatedAt.UTC(),
	})
	if isFKViolation(err, "profiles_user_id_fkey") {
		return user.Profile{}, user.ErrNotFound
	}
	if err != nil {
		return user.Profile{}, errors.Wrap(err, "inserting profile")
	}
	return p, nil
}

func (repo *userRepository) profileFromRow(r profileRow) user.Profile {
	return user.Profile{ID: r.ID, UserID: r.UserID, Kind: user.ProfileKind(r.Kind), Specialty: r.Specialty, CreatedAt: r.CreatedAt.UTC()}
}

func (repo *userRepository) GetProfile(ctx context.Context, userID string, kind user.ProfileKind) (user.Profile, error) {
	var r profileRow
	err := repo.db.get(ctx, &r, `SELECT id, user_id, kind, specialty, created_at FROM profiles WHERE user_id = ? AND kind = ?`,
		userID, string(kind))
	if err != nil {
		return user.Profile{}, trapNoRowsErr(err, user.ErrProfileNotFound, "getting profile")
	}
	return repo.profileFromRow(r), nil
}

func (repo *userRepository) GetProfileByID(ctx context.Context, id string) (user.Profile, error) {
	var r profileRow
	if err := repo.db.get(ctx, &r, `SELECT id, user_id, kind, specialty, created_at FROM profiles WHERE id = ?`, id); err != nil {
		return user.Profile{}, trapNoRowsErr(err, user.ErrProfileNotFound, "getting profile")
	}
	return repo.profileFromRow(r), nil
}

func (repo *userRepository) UpdateProfile(ctx context.Context, p user.Profile) (user.Profile, error) {
	ok, err := repo.db.execOne(ctx, `UPDATE profiles SET specialty = ? WHERE id = ?`, p.Specialty, p.ID)
	if err != nil {
		return user.Profile{}, errors.Wrap(err, "updating profile")
	}
	if !ok {
		return user.Profile{}, user.ErrProfileNotFound
	}
	return p, nil
}
