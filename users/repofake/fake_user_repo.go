package fakeuserrepo

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-oauth-provider/internal/errors"
	"github.com/jrsteele09/go-oauth-provider/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users     map[string]*users.User
	emailIds  map[string]string // email to user id
	usernames map[string]string // username to user id
	lock      sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:     make(map[string]*users.User),
		emailIds:  make(map[string]string),
		usernames: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	stored := *user
	ur.users[user.ID] = &stored
	if user.Email != "" {
		ur.emailIds[strings.ToLower(user.Email)] = user.ID
	}
	if user.Username != "" {
		ur.usernames[user.Username] = user.ID
	}
	return nil
}

func (ur *FakeUserRepo) Delete(_ context.Context, id string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[id]
	if !ok {
		return errors.ErrUserNotFound
	}
	delete(ur.emailIds, strings.ToLower(user.Email))
	delete(ur.usernames, user.Username)
	delete(ur.users, id)
	return nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return ur.get(id)
}

func (ur *FakeUserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return ur.get(ur.emailIds[strings.ToLower(email)])
}

func (ur *FakeUserRepo) GetByUsername(_ context.Context, username string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return ur.get(ur.usernames[username])
}

func (ur *FakeUserRepo) SetActive(_ context.Context, id string, active bool) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()
	user, ok := ur.users[id]
	if !ok {
		return errors.ErrUserNotFound
	}
	user.Active = active
	return nil
}

func (ur *FakeUserRepo) SetLastLogin(_ context.Context, id string, at time.Time) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()
	user, ok := ur.users[id]
	if !ok {
		return errors.ErrUserNotFound
	}
	user.LastLogin = at
	return nil
}

func (ur *FakeUserRepo) get(id string) (*users.User, error) {
	user, ok := ur.users[id]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	u := *user
	return &u, nil
}
