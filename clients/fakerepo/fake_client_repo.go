package fakeclientrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-oauth-provider/clients"
	"github.com/jrsteele09/go-oauth-provider/internal/errors"
)

var _ clients.Repo = (*FakeClientRepo)(nil)

type FakeClientRepo struct {
	clients map[string]*clients.Client
	lock    sync.RWMutex
}

func NewFakeClientRepo() *FakeClientRepo {
	return &FakeClientRepo{
		clients: make(map[string]*clients.Client),
	}
}

func (r *FakeClientRepo) Upsert(_ context.Context, clientData *clients.Client) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if clientData.ID == "" {
		clientData.ID = uuid.New().String()
	}
	stored := *clientData
	r.clients[clientData.ID] = &stored
	return nil
}

func (r *FakeClientRepo) Delete(_ context.Context, clientID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.clients[clientID]; !ok {
		return errors.ErrClientNotFound
	}
	delete(r.clients, clientID)
	return nil
}

func (r *FakeClientRepo) Get(_ context.Context, clientID string) (*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	client, ok := r.clients[clientID]
	if !ok {
		return nil, errors.ErrClientNotFound
	}
	c := *client
	return &c, nil
}

func (r *FakeClientRepo) List(_ context.Context, offset, limit int) ([]*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*clients.Client, 0, len(r.clients))
	for _, v := range r.clients {
		c := *v
		list = append(list, &c)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})

	if offset >= len(list) {
		return nil, nil
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end], nil
}
