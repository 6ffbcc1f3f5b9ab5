package runtime

import (
	"context"
	"fmt"

	"github.com/eljojo/civic/types"
	"github.com/sirupsen/logrus"
)

// RuntimeInterface is what services can access.
//
// This interface prevents circular dependencies and makes it easy
// to create mocks for testing.
type RuntimeInterface interface {
	// Identity of the server (author of the records it publishes)
	MeID() types.FeedID

	// Logging (runtime primitive, not a service)
	Log(service string) *ServiceLog

	// Environment
	Env() Environment

	// Context is cancelled when the runtime stops.
	Context() context.Context
}

// Environment enum for runtime behavior.
//
// Like Rails environments - different defaults for different contexts.
type Environment int

const (
	EnvProduction  Environment = iota + 1 // Graceful: log errors, don't crash
	EnvDevelopment                        // Loud: warnings, fail on suspicious things
	EnvTest                               // Strict: fail fast, catch bugs early
)

func (e Environment) String() string {
	switch e {
	case EnvDevelopment:
		return "development"
	case EnvTest:
		return "test"
	default:
		return "production"
	}
}

// ParseEnvironment reads an environment name. Empty means production.
func ParseEnvironment(s string) (Environment, error) {
	switch s {
	case "", "production":
		return EnvProduction, nil
	case "development":
		return EnvDevelopment, nil
	case "test":
		return EnvTest, nil
	}
	return 0, fmt.Errorf("unknown environment %q", s)
}

// ServiceLog is a logger scoped to a specific service.
//
// Services get this from rt.Log("service_name").
type ServiceLog struct {
	name   string
	logger LoggerInterface
}

// NewServiceLog wraps logger with a service name. A nil logger logs to logrus.
func NewServiceLog(name string, logger LoggerInterface) *ServiceLog {
	if logger == nil {
		logger = &Logger{}
	}
	return &ServiceLog{name: name, logger: logger}
}

// Logger methods forward to the logger with service name prefix
func (l *ServiceLog) Debug(format string, args ...any) {
	if l != nil && l.logger != nil {
		l.logger.Debug(l.name, format, args...)
	}
}

func (l *ServiceLog) Info(format string, args ...any) {
	if l != nil && l.logger != nil {
		l.logger.Info(l.name, format, args...)
	}
}

func (l *ServiceLog) Warn(format string, args ...any) {
	if l != nil && l.logger != nil {
		l.logger.Warn(l.name, format, args...)
	}
}

func (l *ServiceLog) Error(format string, args ...any) {
	if l != nil && l.logger != nil {
		l.logger.Error(l.name, format, args...)
	}
}

// LoggerInterface is the interface that the runtime logger must implement.
// This allows services to log without depending on the concrete logger implementation.
type LoggerInterface interface {
	Debug(service string, format string, args ...any)
	Info(service string, format string, args ...any)
	Warn(service string, format string, args ...any)
	Error(service string, format string, args ...any)
}

// Logger is the default logger implementation that logs to logrus.
// This is used when no custom logger is provided.
type Logger struct{}

// Debug logs a debug message.
func (l *Logger) Debug(service string, format string, args ...any) {
	logrus.WithField("service", service).Debugf(format, args...)
}

// Info logs an info message.
func (l *Logger) Info(service string, format string, args ...any) {
	logrus.WithField("service", service).Infof(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(service string, format string, args ...any) {
	logrus.WithField("service", service).Warnf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(service string, format string, args ...any) {
	logrus.WithField("service", service).Errorf(format, args...)
}

// Service is what all services implement.
//
// Services register with the runtime and get lifecycle callbacks.
type Service interface {
	// Identity
	Name() string

	// Lifecycle
	// Init is called by the runtime before any service starts.
	Init(rt RuntimeInterface) error
	Start() error
	Stop() error
}
