package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/letsquiz/internal/api"
	"github.com/victornm/letsquiz/internal/attempt"
	"github.com/victornm/letsquiz/internal/bank"
	"github.com/victornm/letsquiz/internal/event"
	"github.com/victornm/letsquiz/internal/leaderboard"
	"github.com/victornm/letsquiz/internal/memory"
	"github.com/victornm/letsquiz/internal/postgres"
	"github.com/victornm/letsquiz/internal/score"
	"github.com/victornm/letsquiz/internal/session"
	"github.com/victornm/letsquiz/internal/telemetry"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Log struct {
		Level string
	}

	HTTP struct {
		Port         int32
		AllowOrigins []string
	}

	GRPC struct {
		Port int32
	}

	Store struct {
		// Driver is either postgres or memory.
		Driver string
	}

	Session struct {
		StateTTL time.Duration
	}

	Redis struct {
		Session struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}
}

// DefaultConfig holds the values used for keys missing from the config file.
func DefaultConfig() Config {
	var c Config
	c.Log.Level = "info"
	c.HTTP.Port = 8080
	c.HTTP.AllowOrigins = []string{"*"}
	c.GRPC.Port = 9090
	c.Store.Driver = DriverPostgres
	c.Session.StateTTL = 24 * time.Hour
	c.Redis.Session.Prefix = "letsquiz"
	c.Redis.Leaderboard.Prefix = "letsquiz"
	c.Redis.Pubsub.Prefix = "letsquiz"
	return c
}

type store interface {
	bank.Store
	attempt.Store
	score.Store
	session.Store
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			session     redis.UniversalClient
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres *pgxpool.Pool
		store    store
	}

	service struct {
		bank        *bank.Service
		attempt     *attempt.Service
		score       *score.Service
		session     *session.Service
		leaderboard *leaderboard.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	telemetry.SetupLogger(c.Log.Level)

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()

	if err := s.warmUp(); err != nil {
		return nil, fmt.Errorf("server: warm up: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(name string, addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(name, r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	rc := &s.c.Redis
	var err error
	s.infra.redis.session, err = connect("session", rc.Session.Addrs, rc.Session.Pass)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	s.infra.redis.leaderboard, err = connect("leaderboard", rc.Leaderboard.Addrs, rc.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", rc.Pubsub.Addrs, rc.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initStore() error {
	switch s.c.Store.Driver {
	case DriverMemory:
		slog.Warn("server: using in-memory store, data is lost on shutdown")
		s.infra.store = memory.New()
		return nil
	case DriverPostgres, "":
		return s.initPostgres()
	default:
		return fmt.Errorf("unknown driver: %q", s.c.Store.Driver)
	}
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pc := s.c.Postgres
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pc.User, pc.Pass, pc.Addr, pc.Name))
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	st := postgres.New(db)
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	s.infra.postgres = db
	s.infra.store = st
	return nil
}

func (s *Server) initService() {
	st := s.infra.store

	s.service.bank = bank.NewService(bank.Config{
		Store: st,
	})

	s.service.attempt = attempt.NewService(attempt.Config{
		Store: st,
	})

	s.service.score = score.NewService(score.Config{
		EventBus: s.eb,
		Store:    st,
	})

	s.service.session = session.NewService(session.Config{
		EventBus: s.eb,
		Bank:     s.service.bank,
		Attempts: s.service.attempt,
		Score:    s.service.score,
		Store:    st,
		States:   session.NewRedisStateStore(s.infra.redis.session, s.c.Redis.Session.Prefix, s.c.Session.StateTTL),
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Score:    s.service.score,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})
}

// warmUp fills the leaderboard from the stored profiles when redis has lost it.
func (s *Server) warmUp() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.service.leaderboard.Rebuild(ctx)
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery(), telemetry.GinMiddleware())
	e.Use(cors.New(cors.Config{
		AllowOrigins:  s.c.HTTP.AllowOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", api.HeaderUsername, api.HeaderGroups, api.HeaderSuperuser},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}))
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor()...)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	api.New(api.Config{
		HTTP:         e,
		EventBus:     s.eb,
		Bank:         s.service.bank,
		Session:      s.service.session,
		Leaderboard:  s.service.leaderboard,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	for name, r := range map[string]redis.UniversalClient{
		"session":     s.infra.redis.session,
		"leaderboard": s.infra.redis.leaderboard,
		"pubsub":      s.infra.redis.pubsub,
	} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "client", name, "error", err)
		}
	}

	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
