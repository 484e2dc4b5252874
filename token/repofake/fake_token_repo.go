package tokenfakerepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-oauth-provider/internal/errors"
	"github.com/jrsteele09/go-oauth-provider/token"
)

var _ token.Repo = (*FakeTokenRepo)(nil)

// FakeTokenRepo keeps everything in maps guarded by a single lock, so every
// conditional invalidation is a check-and-set.
type FakeTokenRepo struct {
	grants        map[string]*token.Grant        // id to grant
	codes         map[string]string              // code to grant id
	accessTokens  map[string]*token.AccessToken  // id to access token
	accessValues  map[string]string              // token to id
	refreshTokens map[string]*token.RefreshToken // id to refresh token
	refreshValues map[string]string              // token to id
	lock          sync.RWMutex
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		grants:        make(map[string]*token.Grant),
		codes:         make(map[string]string),
		accessTokens:  make(map[string]*token.AccessToken),
		accessValues:  make(map[string]string),
		refreshTokens: make(map[string]*token.RefreshToken),
		refreshValues: make(map[string]string),
	}
}

func (tr *FakeTokenRepo) CreateGrant(_ context.Context, grant *token.Grant) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}
	g := *grant
	tr.grants[g.ID] = &g
	tr.codes[g.Code] = g.ID
	return nil
}

func (tr *FakeTokenRepo) GetGrant(_ context.Context, code string) (*token.Grant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	g, ok := tr.grants[tr.codes[code]]
	if !ok {
		return nil, errors.ErrGrantNotFound
	}
	grant := *g
	return &grant, nil
}

func (tr *FakeTokenRepo) InvalidateGrant(_ context.Context, id string, now time.Time, remove bool) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	g, ok := tr.grants[id]
	if !ok || !g.Expires.After(now) {
		return errors.ErrGrantAlreadyUsed
	}
	if remove {
		delete(tr.codes, g.Code)
		delete(tr.grants, id)
		return nil
	}
	g.Expires = now
	return nil
}

func (tr *FakeTokenRepo) CreateAccessToken(_ context.Context, at *token.AccessToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if at.ID == "" {
		at.ID = uuid.New().String()
	}
	a := *at
	tr.accessTokens[a.ID] = &a
	tr.accessValues[a.Token] = a.ID
	return nil
}

func (tr *FakeTokenRepo) GetAccessToken(_ context.Context, value string) (*token.AccessToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return tr.accessByID(tr.accessValues[value])
}

func (tr *FakeTokenRepo) GetAccessTokenByID(_ context.Context, id string) (*token.AccessToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return tr.accessByID(id)
}

func (tr *FakeTokenRepo) FindAccessToken(_ context.Context, clientID, userID string, scope int, now time.Time) (*token.AccessToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	var found *token.AccessToken
	for _, at := range tr.accessTokens {
		if at.ClientID != clientID || at.UserID != userID || at.Scope != scope || !at.Expires.After(now) {
			continue
		}
		if found == nil || at.CreatedAt.After(found.CreatedAt) {
			found = at
		}
	}
	if found == nil {
		return nil, errors.ErrNotFound
	}
	a := *found
	return &a, nil
}

func (tr *FakeTokenRepo) InvalidateAccessToken(_ context.Context, id string, now time.Time, remove bool) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	at, ok := tr.accessTokens[id]
	if !ok {
		return nil
	}
	if remove {
		delete(tr.accessValues, at.Token)
		delete(tr.accessTokens, id)
		return nil
	}
	if at.Expires.After(now) {
		at.Expires = now
	}
	return nil
}

func (tr *FakeTokenRepo) DeleteExpiredAccessTokens(_ context.Context, clientID, userID string, now time.Time) (int64, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	var n int64
	for id, at := range tr.accessTokens {
		if at.ClientID == clientID && at.UserID == userID && !at.Expires.After(now) {
			delete(tr.accessValues, at.Token)
			delete(tr.accessTokens, id)
			n++
		}
	}
	return n, nil
}

func (tr *FakeTokenRepo) CreateRefreshToken(_ context.Context, rt *token.RefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if rt.ID == "" {
		rt.ID = uuid.New().String()
	}
	r := *rt
	tr.refreshTokens[r.ID] = &r
	tr.refreshValues[r.Token] = r.ID
	return nil
}

func (tr *FakeTokenRepo) GetRefreshToken(_ context.Context, value string) (*token.RefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	rt, ok := tr.refreshTokens[tr.refreshValues[value]]
	if !ok {
		return nil, errors.ErrInvalidRefreshToken
	}
	r := *rt
	return &r, nil
}

func (tr *FakeTokenRepo) GetRefreshTokenByAccessToken(_ context.Context, accessTokenID string) (*token.RefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	for _, rt := range tr.refreshTokens {
		if rt.AccessTokenID == accessTokenID && !rt.Expired {
			r := *rt
			return &r, nil
		}
	}
	return nil, errors.ErrNotFound
}

func (tr *FakeTokenRepo) BindRefreshToken(_ context.Context, id, accessTokenID string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	rt, ok := tr.refreshTokens[id]
	if !ok || rt.Expired {
		return errors.ErrTokenRevoked
	}
	rt.AccessTokenID = accessTokenID
	return nil
}

func (tr *FakeTokenRepo) InvalidateRefreshToken(_ context.Context, id string, remove bool) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	rt, ok := tr.refreshTokens[id]
	if !ok || rt.Expired {
		return errors.ErrTokenRevoked
	}
	if remove {
		delete(tr.refreshValues, rt.Token)
		delete(tr.refreshTokens, id)
		return nil
	}
	rt.Expired = true
	return nil
}

func (tr *FakeTokenRepo) ListRefreshTokens(_ context.Context, clientID, userID string, scope int) ([]*token.RefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	tokens := make([]*token.RefreshToken, 0)
	for _, rt := range tr.refreshTokens {
		if rt.ClientID == clientID && rt.UserID == userID && rt.Scope == scope && !rt.Expired {
			r := *rt
			tokens = append(tokens, &r)
		}
	}

	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
	})
	return tokens, nil
}

func (tr *FakeTokenRepo) accessByID(id string) (*token.AccessToken, error) {
	at, ok := tr.accessTokens[id]
	if !ok {
		return nil, errors.ErrInvalidToken
	}
	a := *at
	return &a, nil
}
