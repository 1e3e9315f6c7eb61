package user

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
)

var (
	// errors
	ErrNotFound             = core.NewError(core.KindNotFound, "user not found")
	ErrProfileNotFound      = core.NewError(core.KindNotFound, "profile not found")
	ErrEmailExists          = core.NewFieldError(core.KindDuplicateNaturalKey, "email", "a user with this email already exists")
	ErrUsernameExists       = core.NewFieldError(core.KindDuplicateNaturalKey, "username", "a user with this username already exists")
	ErrNationalIDExists     = core.NewFieldError(core.KindDuplicateNaturalKey, "national_id", "a user with this national ID already exists")
	ErrAuthenticationFailed = core.NewError(core.KindNotAuthenticated, "authentication failed")
	ErrAccountDeactivated   = core.NewError(core.KindForbidden, "account deactivated")

	generatedPasswordLen = 12
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// FindCollisions returns every User sharing at least one of the given natural key values.
		FindCollisions(ctx context.Context, nationalID, email, username string) ([]User, error)
		ListUsers(ctx context.Context, filter QueryFilter) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)

		CreateProfile(ctx context.Context, p Profile) (Profile, error)
		GetProfile(ctx context.Context, userID string, kind ProfileKind) (Profile, error)
		GetProfileByID(ctx context.Context, id string) (Profile, error)
		UpdateProfile(ctx context.Context, p Profile) (Profile, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
	}
)

func NewService(repo Repository, mailSvc core.EmailService) *Service {
	return &Service{repo: repo, mailSvc: mailSvc}
}

// collisionErr reports which natural key attribute of the candidate collides with usr.
func collisionErr(usr User, nationalID, email, username string) error {
	switch {
	case usr.NationalID == nationalID:
		return ErrNationalIDExists
	case usr.Email == email:
		return ErrEmailExists
	default:
		return ErrUsernameExists
	}
}

// Register creates a new User with its role profile.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	if err := nu.Validate(); err != nil {
		return User{}, err
	}
	others, err := svc.repo.FindCollisions(ctx, nu.NationalID, nu.Email, nu.Username)
	if err != nil {
		return User{}, errors.Wrap(err, "checking uniqueness")
	}
	if len(others) > 0 {
		return User{}, collisionErr(others[0], nu.NationalID, nu.Email, nu.Username)
	}

	now := core.Now()
	usr := User{
		Username:     nu.Username,
		Email:        nu.Email,
		NationalID:   nu.NationalID,
		Role:         nu.Role,
		GivenName:    nu.GivenName,
		FamilyName:   nu.FamilyName,
		Phone:        nu.Phone,
		IsSuperAdmin: nu.Role == RoleSuperAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	if usr, err = svc.repo.CreateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	if kind, ok := ProfileKindOf(usr.Role); ok {
		if _, err = svc.EnsureProfile(ctx, usr, kind, ""); err != nil {
			return User{}, err
		}
	}
	return usr, nil
}

// Resolve finds the User identified by sd's natural key (national ID + email + username) or creates it,
// then makes sure it carries a profile of the given kind.
// A partial match on the natural key fails with DuplicateNaturalKey.
func (svc *Service) Resolve(ctx context.Context, sd SubjectData, kind ProfileKind) (Resolution, error) {
	if err := sd.Validate(); err != nil {
		return Resolution{}, err
	}
	others, err := svc.repo.FindCollisions(ctx, sd.NationalID, sd.Email, sd.Username)
	if err != nil {
		return Resolution{}, errors.Wrap(err, "finding natural key collisions")
	}

	var res Resolution
	switch {
	case len(others) == 0:
		pwd, err := core.RandomString(generatedPasswordLen)
		if err != nil {
			return Resolution{}, errors.Wrap(err, "generating password")
		}
		now := core.Now()
		usr := User{
			Username:   sd.Username,
			Email:      sd.Email,
			NationalID: sd.NationalID,
			Role:       RoleOf(kind),
			GivenName:  sd.GivenName,
			FamilyName: sd.FamilyName,
			Phone:      sd.Phone,
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err = usr.SetPassword(pwd); err != nil {
			return Resolution{}, errors.Wrap(err, "hashing password")
		}
		if usr, err = svc.repo.CreateUser(ctx, usr); err != nil {
			return Resolution{}, errors.Wrap(err, "creating user")
		}
		res = Resolution{User: usr, Created: true, Password: pwd}
	case len(others) == 1 && others[0].NationalID == sd.NationalID && others[0].Email == sd.Email && others[0].Username == sd.Username:
		usr := others[0]
		if usr.Role == RoleVisitor {
			usr.Role = RoleOf(kind)
			usr.UpdatedAt = core.Now()
			if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
				return Resolution{}, errors.Wrap(err, "upgrading visitor role")
			}
		}
		res = Resolution{User: usr}
	default:
		return Resolution{}, collisionErr(others[0], sd.NationalID, sd.Email, sd.Username)
	}

	if res.Profile, err = svc.EnsureProfile(ctx, res.User, kind, sd.Specialty); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// EnsureProfile returns the profile of the given kind of usr, creating it if needed.
func (svc *Service) EnsureProfile(ctx context.Context, usr User, kind ProfileKind, specialty string) (Profile, error) {
	p, err := svc.repo.GetProfile(ctx, usr.ID, kind)
	switch {
	case err == nil:
		if specialty != "" && p.Specialty != specialty {
			p.Specialty = specialty
			return svc.repo.UpdateProfile(ctx, p)
		}
		return p, nil
	case errors.Cause(err) != ErrProfileNotFound:
		return Profile{}, errors.Wrap(err, "getting profile")
	}

	p, err = svc.repo.CreateProfile(ctx, Profile{UserID: usr.ID, Kind: kind, Specialty: specialty, CreatedAt: core.Now()})
	return p, errors.Wrap(err, "creating profile")
}

func (svc *Service) Authenticate(ctx context.Context, login, pwd string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(login, true /* lower */)})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrAuthenticationFailed
		}
		return User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrAuthenticationFailed
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	usr.LastLogin = core.Now()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

// PrincipalOf builds the Principal acting on behalf of usr.
func (svc *Service) PrincipalOf(ctx context.Context, usr User) (Principal, error) {
	p := Principal{UserID: usr.ID, Role: usr.Role}
	if usr.IsSuperAdmin {
		p.Role = RoleSuperAdmin
	}
	if kind, ok := ProfileKindOf(p.Role); ok {
		prof, err := svc.repo.GetProfile(ctx, usr.ID, kind)
		switch {
		case err == nil:
			p.ProfileID = prof.ID
		case errors.Cause(err) != ErrProfileNotFound:
			return Principal{}, errors.Wrap(err, "getting principal profile")
		}
	}
	return p, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) GetProfile(ctx context.Context, id string) (Profile, error) {
	return svc.repo.GetProfileByID(ctx, id)
}

func (svc *Service) List(ctx context.Context, filter QueryFilter) ([]User, error) {
	filter.Clean()
	return svc.repo.ListUsers(ctx, filter)
}

func (svc *Service) ListByRole(ctx context.Context, roles ...Role) ([]User, error) {
	active := true
	return svc.repo.ListUsers(ctx, QueryFilter{Roles: roles, IsActive: &active})
}

// SetPassword overrides the password of the user identified by uname, bypassing the password policy.
func (svc *Service) SetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = core.Now()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Restablecer contraseña",
		TemplateName: "password_reset",
		TemplateData: map[string]string{
			"Name":  usr.FullName(),
			"UID":   ResetUID(usr),
			"Token": IssueResetToken(usr),
		},
	})
	return nil
}

func (svc *Service) ResetPassword(ctx context.Context, rp ResetUserPassword) (User, error) {
	if err := rp.Validate(); err != nil {
		return User{}, err
	}
	uid, err := userIDFromResetUID(rp.UID)
	if err != nil {
		return User{}, err
	}
	usr, err := svc.GetByID(ctx, uid)
	switch {
	case errors.Cause(err) == ErrNotFound:
		return User{}, ErrResetLinkInvalid
	case err != nil:
		return User{}, errors.Wrap(err, "getting user")
	}
	if err = checkResetToken(usr, rp.Token); err != nil {
		return User{}, err
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return User{}, err
	}
	usr.UpdatedAt = core.Now()
	return svc.repo.UpdateUser(ctx, usr)
}
