package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/eventsoft/eventsoft/core"
)

type Role string

// Roles
const (
	RoleSuperAdmin  Role = "SUPERADMIN"
	RoleEventAdmin  Role = "ADMIN_EVENTO"
	RoleParticipant Role = "PARTICIPANTE"
	RoleEvaluator   Role = "EVALUADOR"
	RoleAssistant   Role = "ASISTENTE"
	RoleVisitor     Role = "VISITANTE"
)

var AllRoles = []Role{RoleSuperAdmin, RoleEventAdmin, RoleParticipant, RoleEvaluator, RoleAssistant, RoleVisitor}

func (r Role) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// ProfileKind names the 1-to-1 extensions a User may carry.
type ProfileKind string

const (
	ProfileOwner       ProfileKind = "owner"
	ProfileParticipant ProfileKind = "participant"
	ProfileEvaluator   ProfileKind = "evaluator"
	ProfileAssistant   ProfileKind = "assistant"
)

// ProfileKindOf returns the profile matching role, if the role has one.
func ProfileKindOf(role Role) (ProfileKind, bool) {
	switch role {
	case RoleEventAdmin:
		return ProfileOwner, true
	case RoleParticipant:
		return ProfileParticipant, true
	case RoleEvaluator:
		return ProfileEvaluator, true
	case RoleAssistant:
		return ProfileAssistant, true
	default:
		return "", false
	}
}

// RoleOf is the inverse of ProfileKindOf.
func RoleOf(kind ProfileKind) Role {
	switch kind {
	case ProfileOwner:
		return RoleEventAdmin
	case ProfileParticipant:
		return RoleParticipant
	case ProfileEvaluator:
		return RoleEvaluator
	case ProfileAssistant:
		return RoleAssistant
	default:
		return RoleVisitor
	}
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	NationalID   string    `json:"national_id"`
	Role         Role      `json:"role"`
	GivenName    string    `json:"given_name"`
	FamilyName   string    `json:"family_name"`
	Phone        string    `json:"phone"`
	IsSuperAdmin bool      `json:"is_superadmin"`
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) FullName() string {
	return core.CleanString(u.GivenName + " " + u.FamilyName)
}

// Profile is a role-specific extension of a User.
type Profile struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Kind      ProfileKind `json:"kind"`
	Specialty string      `json:"specialty,omitempty"` // evaluators only
	CreatedAt time.Time   `json:"created_at"`
}

// Principal is who is acting, as derived from authentication.
// The zero value is the anonymous visitor.
type Principal struct {
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
	ProfileID string `json:"profile_id,omitempty"`
}

func (p Principal) IsAuthenticated() bool { return p.UserID != "" }
func (p Principal) IsSuperAdmin() bool    { return p.IsAuthenticated() && p.Role == RoleSuperAdmin }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Username        string `json:"username" validate:"required,min=4,max=150,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	NationalID      string `json:"national_id" validate:"required,nationalid"`
	Role            Role   `json:"role" validate:"required,role"`
	GivenName       string `json:"given_name" validate:"required,notblank"`
	FamilyName      string `json:"family_name" validate:"required,notblank"`
	Phone           string `json:"phone" validate:"omitempty,max=20"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Clean() {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.NationalID = core.CleanString(nu.NationalID)
	nu.GivenName = core.CleanString(nu.GivenName)
	nu.FamilyName = core.CleanString(nu.FamilyName)
	nu.Phone = core.CleanString(nu.Phone)
}

func (nu *NewUser) Validate() error {
	nu.Clean()
	return core.Validate.Struct(nu)
}

// SubjectData identifies the person an enrollment is made for.
// It either matches an existing User on its natural key or creates one.
type SubjectData struct {
	NationalID string `json:"national_id" validate:"required,nationalid"`
	Username   string `json:"username" validate:"required,min=4,max=150,alphanum_"`
	Email      string `json:"email" validate:"required,email"`
	GivenName  string `json:"given_name" validate:"required,notblank"`
	FamilyName string `json:"family_name" validate:"required,notblank"`
	Phone      string `json:"phone" validate:"omitempty,max=20"`
	Specialty  string `json:"specialty" validate:"omitempty,max=100"`
}

func (sd *SubjectData) Validate() error {
	sd.NationalID = core.CleanString(sd.NationalID)
	sd.Username = core.CleanString(sd.Username, true /* lower */)
	sd.Email = core.CleanString(sd.Email, true /* lower */)
	sd.GivenName = core.CleanString(sd.GivenName)
	sd.FamilyName = core.CleanString(sd.FamilyName)
	sd.Phone = core.CleanString(sd.Phone)
	sd.Specialty = core.CleanString(sd.Specialty, true /* lower */)
	return core.Validate.Struct(sd)
}

// Resolution is the outcome of matching SubjectData against existing users.
type Resolution struct {
	User    User
	Profile Profile
	Created bool
	// Password is the generated password of a newly created User; empty when the User was reused.
	Password string
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate() error { return core.Validate.Struct(rp) }

// GetFilter selects a single User; the first non-empty field wins.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	NationalID      string
	UsernameOrEmail string
}

type QueryFilter struct {
	Search   string `query:"search"`
	Roles    []Role `query:"role"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
