package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/user"
)

type userRepository struct {
	users    *table[string, user.User]
	profiles *table[string, user.Profile]
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{users: db.users, profiles: db.profiles}
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	if others := repo.collisions(usr.NationalID, usr.Email, usr.Username); len(others) > 0 {
		switch {
		case others[0].NationalID == usr.NationalID:
			return user.User{}, user.ErrNationalIDExists
		case others[0].Email == usr.Email:
			return user.User{}, user.ErrEmailExists
		default:
			return user.User{}, user.ErrUsernameExists
		}
	}
	if usr.ID == "" {
		usr.ID = core.NewID()
	}
	repo.users.put(usr.ID, usr)
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	var match func(user.User) bool
	switch {
	case filter.ID != "":
		if usr, ok := repo.users.get(filter.ID); ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	case filter.Username != "":
		match = func(u user.User) bool { return u.Username == filter.Username }
	case filter.Email != "":
		match = func(u user.User) bool { return u.Email == filter.Email }
	case filter.NationalID != "":
		match = func(u user.User) bool { return u.NationalID == filter.NationalID }
	case filter.UsernameOrEmail != "":
		match = func(u user.User) bool { return u.Username == filter.UsernameOrEmail || u.Email == filter.UsernameOrEmail }
	default:
		return user.User{}, user.ErrNotFound
	}
	if users := repo.users.filter(match); len(users) > 0 {
		return users[0], nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) collisions(nationalID, email, username string) []user.User {
	users := repo.users.filter(func(u user.User) bool {
		return u.NationalID == nationalID || u.Email == email || u.Username == username
	})
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users
}

func (repo *userRepository) FindCollisions(_ context.Context, nationalID, email, username string) ([]user.User, error) {
	return repo.collisions(nationalID, email, username), nil
}

func (repo *userRepository) ListUsers(_ context.Context, filter user.QueryFilter) ([]user.User, error) {
	search := strings.ToLower(filter.Search)
	users := repo.users.filter(func(u user.User) bool {
		// users with search keyword matching any name, username or email ?
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Username), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) &&
			!strings.Contains(strings.ToLower(u.FullName()), search) {
			return false
		}
		// users with any of the specified roles
		if len(filter.Roles) > 0 {
			var found bool
			for _, r := range filter.Roles {
				if u.Role == r || (r == user.RoleSuperAdmin && u.IsSuperAdmin) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return filter.IsActive == nil || u.IsActive == *filter.IsActive
	})
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	if _, ok := repo.users.get(usr.ID); !ok {
		return user.User{}, user.ErrNotFound
	}
	for _, other := range repo.collisions(usr.NationalID, usr.Email, usr.Username) {
		if other.ID != usr.ID {
			if other.Email == usr.Email {
				return user.User{}, user.ErrEmailExists
			}
			return user.User{}, user.ErrUsernameExists
		}
	}
	repo.users.put(usr.ID, usr)
	return usr, nil
}

func (repo *userRepository) CreateProfile(_ context.Context, p user.Profile) (user.Profile, error) {
	if _, ok := repo.users.get(p.UserID); !ok {
		return user.Profile{}, user.ErrNotFound
	}
	if p.ID == "" {
		p.ID = core.NewID()
	}
	repo.profiles.put(p.ID, p)
	return p, nil
}

func (repo *userRepository) GetProfile(_ context.Context, userID string, kind user.ProfileKind) (user.Profile, error) {
	profiles := repo.profiles.filter(func(p user.Profile) bool { return p.UserID == userID && p.Kind == kind })
	if len(profiles) == 0 {
		return user.Profile{}, user.ErrProfileNotFound
	}
	return profiles[0], nil
}

func (repo *userRepository) GetProfileByID(_ context.Context, id string) (user.Profile, error) {
	if p, ok := repo.profiles.get(id); ok {
		return p, nil
	}
	return user.Profile{}, user.ErrProfileNotFound
}

func (repo *userRepository) UpdateProfile(_ context.Context, p user.Profile) (user.Profile, error) {
	if _, ok := repo.profiles.get(p.ID); !ok {
		return user.Profile{}, user.ErrProfileNotFound
	}
	repo.profiles.put(p.ID, p)
	return p, nil
}
