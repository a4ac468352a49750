package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/climalink/climalink-core/internal/alert"
	"github.com/climalink/climalink-core/internal/auth"
	"github.com/climalink/climalink-core/internal/command"
	"github.com/climalink/climalink-core/internal/control"
	"github.com/climalink/climalink-core/internal/device"
	"github.com/climalink/climalink-core/internal/infrastructure/config"
	"github.com/climalink/climalink-core/internal/infrastructure/logging"
	"github.com/climalink/climalink-core/internal/schedule"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceService is the slice of the device registry the API needs.
type DeviceService interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	GetDeviceModel(ctx context.Context, id string) (*device.Device, *device.Model, error)
	ListDevices(ctx context.Context) ([]device.Device, error)
	ListDevicesByLocation(ctx context.Context, locationID string) ([]device.Device, error)
	CreateDevice(ctx context.Context, d *device.Device) error
	UpdateDevice(ctx context.Context, d *device.Device) error
	DeleteDevice(ctx context.Context, id string) error
	GetStatus(ctx context.Context, deviceID string) (*device.Status, error)
}

// CommandService submits commands, triggers on-demand status refreshes,
// and releases a device's live adapter when the device is removed.
type CommandService interface {
	SendCommand(ctx context.Context, deviceID string, userID *string, typ command.Type, params command.Parameters) (*command.Command, error)
	RefreshDeviceStatus(ctx context.Context, deviceID string) error
	ReleaseAdapter(deviceID string) error
}

// AuthService handles login, refresh, and token verification.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Session, error)
	Logout(ctx context.Context, refreshToken string) error
	VerifyAccess(tokenString string) (*auth.Claims, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Devices   DeviceService
	Models    device.ModelRepository
	Locations device.LocationRepository
	Commands  command.Repository
	Control   CommandService
	Schedules schedule.Repository
	Alerts    alert.Repository
	Auth      AuthService
	Users     auth.UserRepository
	Hub       *Hub // if set, the server uses this hub instead of creating its own
	Version   string
}

// Server is the HTTP API server for ClimaLink.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	devices     DeviceService
	models      device.ModelRepository
	locations   device.LocationRepository
	commands    command.Repository
	control     CommandService
	schedules   schedule.Repository
	alerts      alert.Repository
	auth        AuthService
	users       auth.UserRepository
	version     string
	server      *http.Server
	hub         *Hub
	externalHub bool
	tickets     *ticketStore
	cancel      context.CancelFunc
}

var _ control.Notifier = (*Hub)(nil)

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device service is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		devices:   deps.Devices,
		models:    deps.Models,
		locations: deps.Locations,
		commands:  deps.Commands,
		control:   deps.Control,
		schedules: deps.Schedules,
		alerts:    deps.Alerts,
		auth:      deps.Auth,
		users:     deps.Users,
		version:   deps.Version,
		tickets:   newTicketStore(),
	}

	// Use an externally-provided hub when the control plane also needs it
	// for broadcasting outside the request path.
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and ticket cleanup, builds the router, and
// launches the HTTP listener in a background goroutine. The server is
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server, waiting up to ten seconds
// for in-flight requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
