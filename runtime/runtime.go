package runtime

import (
	"context"
	"fmt"

	"github.com/eljojo/civic/types"
	"github.com/sirupsen/logrus"
)

// Runtime is the execution environment for background services.
//
// It manages service lifecycle and provides primitives like logging.
// Query handling doesn't go through the runtime; only long-running
// pieces (the room cache) do.
type Runtime struct {
	me types.FeedID

	services []Service
	started  []Service

	logger LoggerInterface
	env    Environment

	ctx    context.Context
	cancel context.CancelFunc
}

// RuntimeConfig is passed to NewRuntime.
type RuntimeConfig struct {
	Me          types.FeedID
	Logger      LoggerInterface // Optional (defaults to logrus)
	Environment Environment     // Default: EnvProduction
}

// NewRuntime creates a new runtime with the given configuration.
func NewRuntime(cfg RuntimeConfig) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())

	env := cfg.Environment
	if env == 0 {
		env = EnvProduction
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &Logger{}
	}

	return &Runtime{
		me:     cfg.Me,
		logger: logger,
		env:    env,
		ctx:    ctx,
		cancel: cancel,
	}
}

// === RuntimeInterface implementation ===

// MeID returns the server's feed ID.
func (rt *Runtime) MeID() types.FeedID {
	return rt.me
}

// Log returns a logger scoped to the given service.
func (rt *Runtime) Log(service string) *ServiceLog {
	return NewServiceLog(service, rt.logger)
}

// Env returns the runtime environment.
func (rt *Runtime) Env() Environment {
	return rt.env
}

// Context returns the runtime's lifecycle context.
func (rt *Runtime) Context() context.Context {
	return rt.ctx
}

// === Service management ===

// AddService registers a service with the runtime.
func (rt *Runtime) AddService(svc Service) error {
	for _, existing := range rt.services {
		if existing.Name() == svc.Name() {
			return fmt.Errorf("service %s already registered", svc.Name())
		}
	}
	rt.services = append(rt.services, svc)
	return nil
}

// Start initializes every service, then starts them in registration order.
//
// In production a service that fails to start is logged and left out, and
// the rest keep running. Elsewhere the failure is returned and the services
// already started are stopped again.
func (rt *Runtime) Start() error {
	for _, svc := range rt.services {
		if err := svc.Init(rt); err != nil {
			return fmt.Errorf("init %s: %w", svc.Name(), err)
		}
		rt.Log(svc.Name()).Debug("initialized")
	}

	for _, svc := range rt.services {
		if err := svc.Start(); err != nil {
			if rt.env == EnvProduction {
				rt.Log(svc.Name()).Error("failed to start, running without it: %v", err)
				continue
			}
			rt.stopStarted()
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		rt.started = append(rt.started, svc)
		rt.Log(svc.Name()).Info("started")
	}

	return nil
}

// Stop stops all started services in reverse order.
func (rt *Runtime) Stop() error {
	rt.cancel()
	rt.stopStarted()
	return nil
}

func (rt *Runtime) stopStarted() {
	for i := len(rt.started) - 1; i >= 0; i-- {
		svc := rt.started[i]
		if err := svc.Stop(); err != nil {
			logrus.Warnf("[runtime] stop %s: %v", svc.Name(), err)
		} else {
			rt.Log(svc.Name()).Info("stopped")
		}
	}
	rt.started = nil
}
