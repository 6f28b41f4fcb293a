package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                          |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	DefaultSessionName = "centerhub-session"

	userIDKey = "user_id"
)

// UserFetcher loads the acting user on each request so role, membership and
// ban state are never served from a stale cookie. A nil return means the
// session no longer maps to a user.
type UserFetcher interface {
	FetchUser(ctx context.Context, userID string) *models.User
}

// SessionManager owns the cookie store and the session name.
type SessionManager struct {
	store  *sessions.CookieStore
	name   string
	logger *zap.Logger
}

// NewSessionManager builds the cookie store. An empty key generates a random
// one, which invalidates every session on restart.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	key := []byte(sessionKey)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, errors.New("auth: could not generate a session key")
		}
		logger.Warn("session key not configured; using a random key for this process")
	} else if len(key) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(key)))
	}
	if name == "" {
		name = DefaultSessionName
	}

	store := sessions.NewCookieStore(key)
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	} else {
		opts.SameSite = http.SameSiteLaxMode
	}
	store.Options = opts

	logger.Info("session store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, logger: logger}, nil
}

// SignIn binds the session to userID. Credential checks happen elsewhere.
func (m *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, userID string) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Values[userIDKey] = userID
	return sess.Save(r, w)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Actor helpers                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

type ctxKey string

const currentActorKey ctxKey = "currentActor"

// CurrentActor returns the acting user & "found?" flag.
func CurrentActor(r *http.Request) (*models.User, bool) {
	u, ok := r.Context().Value(currentActorKey).(*models.User)
	return u, ok && u != nil
}

// Actor returns the acting user, or the zero User (an unbanned student with
// no center) when none was loaded. Handlers behind RequireSignedIn always
// get the real actor.
func Actor(r *http.Request) models.User {
	if u, ok := CurrentActor(r); ok {
		return *u
	}
	return models.User{}
}

// WithTestActor injects an actor directly, bypassing the session.
func WithTestActor(r *http.Request, u *models.User) *http.Request {
	return withActor(r, u)
}

// LoadActor resolves the session's user through fetcher and stores it in the
// request context. Requests without a session pass through untouched.
func (m *SessionManager) LoadActor(fetcher UserFetcher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, _ := m.store.Get(r, m.name)
			id, _ := sess.Values[userIDKey].(string)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			u := fetcher.FetchUser(r.Context(), id)
			if u == nil {
				m.logger.Debug("session user not found", zap.String("user_id", id))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, withActor(r, u))
		})
	}
}

// RequireSignedIn answers 401 when no actor was loaded.
func (m *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentActor(r); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole allows actors whose role kind is one of kinds.
// Finer checks belong to the access policy; this only gates whole route groups.
func (m *SessionManager) RequireRole(kinds ...models.RoleKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentActor(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			for _, k := range kinds {
				if u.Role.Kind == k {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden")
		})
	}
}

// helpers

func withActor(r *http.Request, u *models.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentActorKey, u))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
