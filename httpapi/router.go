package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/MrEthical07/couponauth"
	"github.com/MrEthical07/couponauth/accounts"
	"github.com/MrEthical07/couponauth/internal/logging"
	"github.com/MrEthical07/couponauth/middleware"
)

// Service is the subset of *couponauth.Engine the handlers call.
type Service interface {
	Register(ctx context.Context, req couponauth.RegisterRequest) (*couponauth.Session, error)
	Login(ctx context.Context, email, password string) (*couponauth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*couponauth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, accountID string) (int, error)
	Identity(ctx context.Context, accessToken string) (*accounts.Account, error)
	ChangePassword(ctx context.Context, accountID, current, next string) error
	Allow(ctx context.Context, identity string, class couponauth.RateClass) (couponauth.RateDecision, error)
	Ping(ctx context.Context) error
}

// Options configures NewRouter.
type Options struct {
	Service Service
	Logger  logging.Logger

	// TrustProxyHeaders honours X-Forwarded-For and X-Real-IP. Enable it only
	// behind a proxy that overwrites them.
	TrustProxyHeaders bool

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler

	// CORSOrigins lists browser origins allowed to call the API with
	// credentials. Empty disables CORS.
	CORSOrigins []string

	// AllowedHosts restricts the Host header. "*" or an empty list accepts
	// any host; "*.example.com" matches subdomains.
	AllowedHosts []string

	// HSTS adds Strict-Transport-Security to every response.
	HSTS bool
}

// Handler is the HTTP adapter over Service.
type Handler struct {
	service      Service
	log          logging.Logger
	trustProxy   bool
	allowedHosts []string
	hsts         bool
}

// NewHandler binds the handlers to opts.Service.
func NewHandler(opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Handler{
		service:      opts.Service,
		log:          log.With("module", "http"),
		trustProxy:   opts.TrustProxyHeaders,
		allowedHosts: normalizeHosts(opts.AllowedHosts),
		hsts:         opts.HSTS,
	}
}

// NewRouter registers the auth routes and the middleware chain.
func NewRouter(opts Options) http.Handler {
	h := NewHandler(opts)

	r := chi.NewRouter()
	r.Use(h.requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)
	r.Use(h.trustedHostMiddleware)
	r.Use(h.securityHeadersMiddleware)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"Retry-After", "X-Request-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			AllowCredentials: true,
			MaxAge:           600,
		}))
	}
	r.Use(h.clientIPMiddleware)

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(h.rateLimitMiddleware)

		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(h.service, h.writeBearerError))
			r.Post("/logout-all", h.logoutAll)
			r.Post("/change-password", h.changePassword)
			r.Get("/me", h.me)
		})
	})

	return r
}
