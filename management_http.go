package tiercache

import (
	"context"
	"crypto/subtle"
	"net"
	"time"

	fiber "github.com/gofiber/fiber/v3"
	"github.com/hyp3rd/ewrap"

	"github.com/magickw/tiercache/internal/sentinel"
	"github.com/magickw/tiercache/pkg/capability"
	"github.com/magickw/tiercache/pkg/stats"
)

// ManagementHTTPOption configures the management HTTP server.
type ManagementHTTPOption func(*ManagementHTTPServer)

// ManagementHTTPServer exposes the cache's operational surface over HTTP:
// health, stats, capabilities, diagnostics, and invalidation control.
type ManagementHTTPServer struct {
	addr         string
	app          *fiber.App
	readTimeout  time.Duration
	writeTimeout time.Duration
	authFunc     func(fiber.Ctx) error
	ln           net.Listener
	started      bool
}

// WithMgmtAuth sets an auth function (return error to block).
func WithMgmtAuth(fn func(fiber.Ctx) error) ManagementHTTPOption {
	return func(s *ManagementHTTPServer) { s.authFunc = fn }
}

// WithMgmtBearerToken installs constant-time bearer-token auth.
func WithMgmtBearerToken(token string) ManagementHTTPOption {
	want := []byte("Bearer " + token)

	return WithMgmtAuth(func(fiberCtx fiber.Ctx) error {
		got := []byte(fiberCtx.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			return fiber.ErrUnauthorized
		}

		return nil
	})
}

// WithMgmtReadTimeout sets read timeout.
func WithMgmtReadTimeout(d time.Duration) ManagementHTTPOption {
	return func(s *ManagementHTTPServer) { s.readTimeout = d }
}

// WithMgmtWriteTimeout sets write timeout.
func WithMgmtWriteTimeout(d time.Duration) ManagementHTTPOption {
	return func(s *ManagementHTTPServer) { s.writeTimeout = d }
}

const (
	defaultMgmtReadTimeout  = 5 * time.Second
	defaultMgmtWriteTimeout = 5 * time.Second
)

// NewManagementHTTPServer builds an HTTP server holder (lazy start).
func NewManagementHTTPServer(addr string, opts ...ManagementHTTPOption) *ManagementHTTPServer {
	app := fiber.New(fiber.Config{
		ReadTimeout:  defaultMgmtReadTimeout,
		WriteTimeout: defaultMgmtWriteTimeout,
	})

	srv := &ManagementHTTPServer{
		addr:         addr,
		app:          app,
		readTimeout:  defaultMgmtReadTimeout,
		writeTimeout: defaultMgmtWriteTimeout,
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// managementCache is the slice of the Service surface the endpoints need.
type managementCache interface {
	GetStats() stats.Stats
	Capabilities() capability.Report
	IsEnhancedModeAvailable() bool
	RunDiagnostics(ctx context.Context) Diagnostics
	Invalidate(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Start launches the listener (idempotent).
func (s *ManagementHTTPServer) Start(ctx context.Context, tc managementCache) error {
	if s.started {
		return nil
	}

	s.mountRoutes(ctx, tc)

	lc := net.ListenConfig{}

	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return ewrap.Wrap(err, "mgmt listen")
	}

	s.ln = ln

	go func() {
		// Optional server; errors after shutdown are expected.
		_ = s.app.Listener(ln)
	}()

	s.started = true

	return nil
}

// Address returns the bound address (useful when passing ":0" for ephemeral
// port). Empty if not started yet.
func (s *ManagementHTTPServer) Address() string {
	if s.ln == nil {
		return ""
	}

	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *ManagementHTTPServer) Shutdown(ctx context.Context) error {
	if !s.started {
		return nil
	}

	ch := make(chan error, 1)

	go func() {
		ch <- s.app.Shutdown()
	}()

	select {
	case <-ctx.Done():
		return sentinel.ErrMgmtHTTPShutdownTimeout
	case err := <-ch:
		return err
	}
}

func (s *ManagementHTTPServer) mountRoutes(ctx context.Context, tc managementCache) {
	useAuth := s.wrapAuth

	s.app.Get("/health", useAuth(func(fiberCtx fiber.Ctx) error {
		return fiberCtx.SendString("ok")
	}))
	s.app.Get("/stats", useAuth(func(fiberCtx fiber.Ctx) error {
		return fiberCtx.JSON(tc.GetStats())
	}))
	s.app.Get("/capabilities", useAuth(func(fiberCtx fiber.Ctx) error {
		report := tc.Capabilities()

		return fiberCtx.JSON(fiber.Map{
			"tier":         report.Tier,
			"features":     report.FeatureMap(),
			"enhancedMode": tc.IsEnhancedModeAvailable(),
		})
	}))
	s.app.Get("/diagnostics", useAuth(func(fiberCtx fiber.Ctx) error {
		return fiberCtx.JSON(tc.RunDiagnostics(ctx))
	}))
	s.app.Post("/invalidate", useAuth(func(fiberCtx fiber.Ctx) error {
		key := fiberCtx.Query("key")
		if key == "" {
			return fiberCtx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing key"})
		}

		if err := tc.Invalidate(ctx, key); err != nil {
			return err
		}

		return fiberCtx.SendStatus(fiber.StatusOK)
	}))
	s.app.Post("/clear", useAuth(func(fiberCtx fiber.Ctx) error {
		if err := tc.Clear(ctx); err != nil {
			return err
		}

		return fiberCtx.SendStatus(fiber.StatusOK)
	}))
}

// wrapAuth returns an auth-wrapped handler if authFunc provided.
func (s *ManagementHTTPServer) wrapAuth(handler fiber.Handler) fiber.Handler {
	if s.authFunc == nil {
		return handler
	}

	return func(fiberCtx fiber.Ctx) error {
		if authErr := s.authFunc(fiberCtx); authErr != nil {
			return authErr
		}

		return handler(fiberCtx)
	}
}
