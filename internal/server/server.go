package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/magadiflo/usersvc/config"
	"github.com/magadiflo/usersvc/internal/auth"
	"github.com/magadiflo/usersvc/internal/db"
	"github.com/magadiflo/usersvc/internal/handlers"
	"github.com/magadiflo/usersvc/internal/mq"
	"github.com/magadiflo/usersvc/internal/seed"
	"github.com/magadiflo/usersvc/internal/services"
	"github.com/magadiflo/usersvc/internal/storage"
	"github.com/magadiflo/usersvc/internal/store"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	bus        *mq.MQ
	objects    *storage.Storage
	lg         *zap.SugaredLogger
}

// Deps are the collaborators the router needs.
type Deps struct {
	Users  *services.UserService
	Authn  *auth.Authenticator
	Codec  *auth.TokenCodec
	Policy *auth.Policy
	Issuer handlers.IssuerConfig
	Logger *zap.SugaredLogger
}

// NewRouter builds the request pipeline: request id, real ip, panic
// recovery, request logging, timeout, token check, access policy, handlers.
func NewRouter(d Deps) *chi.Mux {
	lg := d.Logger
	if lg == nil {
		lg = zap.NewNop().Sugar()
	}
	policy := d.Policy
	if policy == nil {
		policy = auth.DefaultPolicy()
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		requestLogger(lg),
		middleware.Timeout(60*time.Second),
		auth.Authorize(d.Codec, lg, policy.PublicPaths()...),
		auth.Enforce(policy, lg),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		handlers.AuthRouter(r, d.Authn, d.Issuer, lg)
		handlers.UserRouter(r, d.Users)
	})
	return router
}

// New wires the store, event bus, object storage and HTTP server from cfg.
func New(ctx context.Context, cfg config.Config, lg *zap.SugaredLogger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if lg == nil {
		lg = zap.NewNop().Sugar()
	}

	s := &Server{lg: lg}
	ok := false
	defer func() {
		if !ok {
			s.closeBackends()
		}
	}()

	var (
		users services.UserRepository
		roles services.RoleRepository
	)
	if cfg.Database.Backend == config.DBBackendMemory {
		lg.Warnw("using in-memory credential store; data is lost on exit")
		mem := store.NewMemory()
		users, roles = mem.Users(), mem.Roles()
	} else {
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.db = dbConn
		users, roles = store.NewUserRepository(dbConn), store.NewRoleRepository(dbConn)
	}

	hasher := auth.NewBcryptHasher()
	userService := services.NewUserService(users, roles, hasher, lg)

	bus, err := mq.New(ctx, cfg.MQ, lg)
	if err != nil {
		return nil, err
	}
	if bus != nil {
		s.bus = bus
		userService.PublishTo(bus, cfg.MQ.Channel)
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	s.objects = objects

	if cfg.Seed.OnStart {
		manifest, err := seed.Load(ctx, seed.Source{File: cfg.Seed.File, ObjectKey: cfg.Seed.ObjectKey}, objects)
		if err != nil {
			return nil, fmt.Errorf("load seed manifest: %w", err)
		}
		if _, err := seed.Apply(ctx, userService, manifest, lg); err != nil {
			return nil, fmt.Errorf("apply seed manifest: %w", err)
		}
	}

	codec, err := auth.NewTokenCodec(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, err
	}
	authn := auth.NewAuthenticator(userService, hasher, codec, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL, lg)

	s.router = NewRouter(Deps{
		Users: userService,
		Authn: authn,
		Codec: codec,
		Issuer: handlers.IssuerConfig{
			Issuer:              cfg.Auth.Issuer,
			TrustForwardedProto: cfg.Auth.TrustForwardedProto,
		},
		Logger: lg,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ok = true
	return s, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.lg.Infow("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeBackends()
	return err
}

func (s *Server) closeBackends() {
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.lg.Warnw("close event bus", "error", err)
		}
	}
	if s.objects != nil {
		if err := s.objects.Close(); err != nil {
			s.lg.Warnw("close object storage", "error", err)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
