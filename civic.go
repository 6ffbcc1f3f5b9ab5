// Package civic is a public read model over a social event log.
//
// It answers questions about identities, their follow graph and their
// threads, hiding everything from identities that didn't opt in to public
// web hosting. A background service keeps a cached view of the room the
// server is attached to.
package civic

import (
	"context"
	"fmt"
	"time"

	"github.com/eljojo/civic/runtime"
	"github.com/eljojo/civic/services/room"
	"github.com/eljojo/civic/types"
	"github.com/eljojo/civic/utilities/keyring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// RoomSetup attaches the app to a room.
type RoomSetup struct {
	Address  types.Address
	Interval time.Duration
	Dialer   room.Dialer
	Web      *room.WebClient // optional: aliases, invites and notices
	Clock    room.Clock      // optional
}

// AppConfig wires an App.
type AppConfig struct {
	Keyring     *keyring.Keyring
	Store       *LedgerStore // nil keeps the ledger in memory
	Language    string
	MaxParallel int
	Room        *RoomSetup // nil without a room

	Registry     *prometheus.Registry // nil creates one
	ReportPanics bool
	Logger       runtime.LoggerInterface
	Environment  runtime.Environment
}

// App is a fully wired civic server.
type App struct {
	Keyring     *keyring.Keyring
	Ledger      *Ledger
	Projections *ProjectionStore
	Publisher   *Publisher
	Queries     *Resolvers
	Room        *room.Directory // nil without a room
	Status      *StatusReporter
	Server      *Server
	Registry    *prometheus.Registry

	runtime *runtime.Runtime
	store   *LedgerStore
}

// NewApp builds the ledger, projections, room service and HTTP server.
func NewApp(cfg AppConfig) (*App, error) {
	if cfg.Keyring == nil {
		return nil, fmt.Errorf("keyring is required")
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	ledger := NewLedger()
	ledger.SetUnboxer(cfg.Keyring)
	if cfg.Store != nil {
		var err error
		if ledger, err = OpenLedger(cfg.Store, cfg.Keyring); err != nil {
			return nil, err
		}
	}

	projections := NewProjectionStore(ledger)
	publisher := NewPublisher(ledger, cfg.Keyring, projections.Contacts())

	app := &App{
		Keyring:     cfg.Keyring,
		Ledger:      ledger,
		Projections: projections,
		Publisher:   publisher,
		Registry:    cfg.Registry,
		store:       cfg.Store,
		runtime: runtime.NewRuntime(runtime.RuntimeConfig{
			Me:          cfg.Keyring.ID(),
			Logger:      cfg.Logger,
			Environment: cfg.Environment,
		}),
	}

	var roomSvc *room.Service
	if cfg.Room != nil {
		logrus.Infof("🏠 attached to room %s", cfg.Room.Address)
		roomSvc = room.NewService(room.Config{
			Address:     cfg.Room.Address,
			Interval:    cfg.Room.Interval,
			MaxParallel: cfg.MaxParallel,
			Dialer:      cfg.Room.Dialer,
			Follower:    publisher,
			Notices:     noticeSource(cfg.Room.Web),
			Clock:       cfg.Room.Clock,
			Metrics:     room.NewMetrics(cfg.Registry),
		})
		if err := app.runtime.AddService(roomSvc); err != nil {
			return nil, err
		}
		app.Room = room.NewDirectory(roomSvc, cfg.Room.Web)
	}

	rc := ResolversConfig{
		Log:         ledger,
		Graph:       projections.Contacts(),
		Abouts:      projections.Abouts(),
		Language:    cfg.Language,
		MaxParallel: cfg.MaxParallel,
	}
	if app.Room != nil {
		rc.Room = app.Room
	}
	app.Queries = NewResolvers(rc)

	app.Status = NewStatusReporter(cfg.Keyring.ID().String(), ledger, projections.Abouts(), roomSvc)
	app.Server = NewServer(ServerConfig{
		Queries:      app.Queries,
		Ledger:       ledger,
		Owner:        cfg.Keyring.ID(),
		Status:       app.Status,
		Metrics:      NewMetrics(cfg.Registry, ledger),
		Gatherer:     cfg.Registry,
		ReportPanics: cfg.ReportPanics,
	})
	return app, nil
}

// noticeSource keeps a nil *WebClient from becoming a non-nil interface.
func noticeSource(web *room.WebClient) room.NoticeSource {
	if web == nil {
		return nil
	}
	return web
}

// Start runs background services and, when httpAddr is set, the HTTP server.
func (a *App) Start(httpAddr string) error {
	if err := a.runtime.Start(); err != nil {
		return err
	}
	if httpAddr == "" {
		return nil
	}
	return a.Server.Start(httpAddr)
}

// Stop shuts everything down and closes the ledger store.
func (a *App) Stop(ctx context.Context) error {
	if err := a.Server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown")
	}
	a.runtime.Stop()
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
