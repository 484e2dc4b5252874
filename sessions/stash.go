package sessions

import "context"

// Keys used by the authorization flow.
const (
	KeyParams  = "params"
	KeyRequest = "request"
	KeyCode    = "code"
	KeyError   = "error"
	KeyClient  = "client"
)

// Stash is the namespaced part of a session that survives the authorize to
// redirect round trip.
type Stash struct {
	session *Session
	prefix  string
}

func (s *Stash) Get(ctx context.Context, key string, out any) (bool, error) {
	return s.session.Get(ctx, s.prefix+key, out)
}

func (s *Stash) Put(ctx context.Context, key string, value any) error {
	return s.session.Put(ctx, s.prefix+key, value)
}

func (s *Stash) Delete(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefix + k
	}
	return s.session.Delete(ctx, prefixed...)
}

// Clear removes every key under the stash prefix for this session only.
func (s *Stash) Clear(ctx context.Context) error {
	return s.session.backend.DeletePrefix(ctx, s.session.ID, s.prefix)
}
