package identity

import (
	"context"
	"sync"

	"beresin/internal/models"
	"beresin/internal/store"
)

// Provider is the identity collaborator surface the engine consumes. The
// second return of Current is false when nobody is signed in.
type Provider interface {
	Current() (models.Principal, bool)
	OnChange(func(models.Principal, bool))
	SignOut(ctx context.Context) error
}

// Static is a fixed principal, mainly for tests and single-user tools.
type Static struct {
	Principal models.Principal
}

func (s *Static) Current() (models.Principal, bool) {
	return s.Principal, s.Principal.ID != ""
}

func (s *Static) OnChange(func(models.Principal, bool)) {}

func (s *Static) SignOut(context.Context) error {
	s.Principal = models.Principal{}
	return nil
}

// Remote authenticates against the backend's login/logout endpoints and
// keeps the store client's bearer token in sync with the session.
type Remote struct {
	client *store.Client

	mu        sync.Mutex
	principal models.Principal
	signedIn  bool
	listeners []func(models.Principal, bool)
}

// NewRemote wraps the given store client.
func NewRemote(client *store.Client) *Remote {
	return &Remote{client: client}
}

// SignIn authenticates and publishes the new principal to listeners.
func (r *Remote) SignIn(ctx context.Context, email, password string) (models.Principal, error) {
	result, err := r.client.Login(ctx, email, password)
	if err != nil {
		return models.Principal{}, err
	}
	principal := models.Principal{
		ID:          result.User.ID,
		DisplayName: result.User.Name,
		Role:        result.User.Role,
	}
	r.mu.Lock()
	r.principal = principal
	r.signedIn = true
	listeners := append([]func(models.Principal, bool){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(principal, true)
	}
	return principal, nil
}

func (r *Remote) Current() (models.Principal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.principal, r.signedIn
}

func (r *Remote) OnChange(fn func(models.Principal, bool)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// SignOut revokes the session server-side and clears the local principal
// even when the revocation call fails.
func (r *Remote) SignOut(ctx context.Context) error {
	err := r.client.Logout(ctx)
	r.mu.Lock()
	r.principal = models.Principal{}
	r.signedIn = false
	listeners := append([]func(models.Principal, bool){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(models.Principal{}, false)
	}
	return err
}
