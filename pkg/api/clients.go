package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/assessor/pkg/audit"
	"github.com/platinummonkey/assessor/pkg/auth"
	"github.com/platinummonkey/assessor/pkg/contextkeys"
	"github.com/platinummonkey/assessor/pkg/impersonation"
	"github.com/platinummonkey/assessor/pkg/observability"
	"github.com/platinummonkey/assessor/pkg/preference"
	"github.com/platinummonkey/assessor/pkg/rolecontext"
	"github.com/platinummonkey/assessor/pkg/sessionstore"
)

// ClientCookie names the cookie that identifies a client instance
const ClientCookie = "assessor_client"

const (
	defaultClientCacheSize = 10000
	defaultClientCacheTTL  = 12 * time.Hour
)

// clientContext is the per-client state: one role context and one
// impersonation context for the identity signed in on that client.
type clientContext struct {
	id            string
	identity      auth.Identity
	roles         *rolecontext.Manager
	impersonation *impersonation.Manager
	// syncUser records the identity as a user row; nil when the store
	// cannot.
	syncUser func(context.Context) error
	logger   *observability.Logger

	loadMu sync.Mutex
	loaded bool
	// replaced is set when this context took over a client id from another
	// identity; that identity's persisted role must not carry over.
	replaced bool
}

// load loads the role context and picks up any impersonation session the
// admin opened from another client. Once loaded it only runs again when
// force is set. Failed loads are retried on the next request.
func (c *clientContext) load(ctx context.Context, force bool) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if c.loaded && !force {
		return nil
	}
	if c.replaced {
		c.roles.Logout(ctx)
		c.replaced = false
	}
	if !c.loaded && c.syncUser != nil {
		if err := c.syncUser(ctx); err != nil {
			c.logger.WithError(err).Warn("failed to record signed-in user")
		}
	}
	if err := c.roles.Load(ctx, c.identity); err != nil {
		return err
	}
	if err := c.impersonation.Refresh(ctx); err != nil {
		return err
	}
	c.loaded = true
	return nil
}

func (c *clientContext) close() {
	c.impersonation.Close()
}

type clientRegistryConfig struct {
	Size        int
	TTL         time.Duration
	Store       sessionstore.Store
	Preferences preference.Store
	Recorder    audit.Recorder
	Clock       clockwork.Clock
	Logger      *observability.Logger
	Metrics     *observability.Metrics
}

// clientRegistry caches client contexts by client id. Entries expire after
// TTL of inactivity or when the cache is full.
type clientRegistry struct {
	cfg   clientRegistryConfig
	mu    sync.Mutex
	cache *lru.LRU[string, *clientContext]
}

func newClientRegistry(cfg clientRegistryConfig) *clientRegistry {
	if cfg.Size <= 0 {
		cfg.Size = defaultClientCacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultClientCacheTTL
	}
	r := &clientRegistry{cfg: cfg}
	r.cache = lru.NewLRU[string, *clientContext](cfg.Size, r.onEvict, cfg.TTL)
	return r
}

// onEvict runs under the cache's lock and must not call back into it
func (r *clientRegistry) onEvict(_ string, c *clientContext) {
	c.close()
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ClientContextsCached.Dec()
	}
}

// get returns the context for clientID, replacing it when a different
// identity has signed in on the same client. With fresh set, a context that
// was already loaded re-reads held roles and the impersonation session.
func (r *clientRegistry) get(ctx context.Context, clientID string, identity auth.Identity, fresh bool) (*clientContext, error) {
	r.mu.Lock()
	c, ok := r.cache.Get(clientID)
	replaced := false
	if ok && c.identity.UserID != identity.UserID {
		r.cache.Remove(clientID)
		ok = false
		replaced = true
	}
	if !ok {
		c = r.newContext(clientID, identity)
		c.replaced = replaced
		r.cache.Add(clientID, c)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.ClientContextsCached.Inc()
		}
	}
	r.mu.Unlock()

	if err := c.load(ctx, fresh); err != nil {
		return nil, err
	}
	return c, nil
}

// peek returns the cached context without creating or loading one
func (r *clientRegistry) peek(clientID string) (*clientContext, bool) {
	return r.cache.Peek(clientID)
}

func (r *clientRegistry) remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Remove(clientID)
}

func (r *clientRegistry) len() int {
	return r.cache.Len()
}

func (r *clientRegistry) purge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Purge()
}

// UserSyncer is implemented by stores that can record signed-in users
type UserSyncer interface {
	UpsertUser(ctx context.Context, user sessionstore.User) error
}

func (r *clientRegistry) newContext(clientID string, identity auth.Identity) *clientContext {
	c := &clientContext{
		id:       clientID,
		identity: identity,
		logger:   r.cfg.Logger.WithComponent("api").WithField("client_id", clientID),
		roles: rolecontext.New(rolecontext.Config{
			ClientID:    clientID,
			Roles:       r.cfg.Store,
			Preferences: r.cfg.Preferences,
			Recorder:    r.cfg.Recorder,
			Clock:       r.cfg.Clock,
			Logger:      r.cfg.Logger,
			Metrics:     r.cfg.Metrics,
		}),
		impersonation: impersonation.New(impersonation.Config{
			Admin:    identity,
			Store:    r.cfg.Store,
			Recorder: r.cfg.Recorder,
			Clock:    r.cfg.Clock,
			Logger:   r.cfg.Logger,
			Metrics:  r.cfg.Metrics,
		}),
	}
	if syncer, ok := r.cfg.Store.(UserSyncer); ok {
		user := sessionstore.User{ID: identity.UserID, Email: identity.Email, DisplayName: identity.Name}
		c.syncUser = func(ctx context.Context) error { return syncer.UpsertUser(ctx, user) }
	}
	return c
}

// clientMiddleware reads the client cookie, issuing a new id when it is
// missing or malformed, and stores the id on the request context.
func (s *Server) clientMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := ""
		if cookie, err := r.Cookie(ClientCookie); err == nil {
			if id, err := uuid.Parse(cookie.Value); err == nil {
				clientID = id.String()
			}
		}
		if clientID == "" {
			clientID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     ClientCookie,
				Value:    clientID,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.secure || r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(contextkeys.WithClientID(r.Context(), clientID)))
	})
}

// clientFor returns the loaded context for the requesting client
func (s *Server) clientFor(r *http.Request) (*clientContext, error) {
	return s.lookupClient(r, false)
}

// freshClientFor is clientFor with held roles and the impersonation
// session re-read from the store.
func (s *Server) freshClientFor(r *http.Request) (*clientContext, error) {
	return s.lookupClient(r, true)
}

func (s *Server) lookupClient(r *http.Request, fresh bool) (*clientContext, error) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil, auth.ErrUnauthenticated
	}
	return s.clients.get(r.Context(), contextkeys.GetClientID(r.Context()), identity, fresh)
}
