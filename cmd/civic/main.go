package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bugsnag/bugsnag-go"
	"github.com/eljojo/civic"
	"github.com/eljojo/civic/config"
	"github.com/eljojo/civic/services/room"
	"github.com/eljojo/civic/utilities/keyring"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if cfg.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if cfg.Trace {
		logrus.SetLevel(logrus.TraceLevel)
	}

	if cfg.BugsnagAPIKey != "" {
		bugsnag.Configure(bugsnag.Configuration{
			APIKey:          cfg.BugsnagAPIKey,
			ProjectPackages: []string{"main", "github.com/eljojo/civic*"},
		})
	}

	if err := os.MkdirAll(cfg.DBPath, 0o700); err != nil {
		logrus.Fatalf("create %s: %v", cfg.DBPath, err)
	}

	kr, err := keyring.LoadOrCreate(cfg.SecretPath())
	if err != nil {
		logrus.Fatalf("load secret: %v", err)
	}
	logrus.Infof("🔑 server identity %s", kr.ID())

	store, err := civic.OpenLedgerStore(cfg.LedgerPath())
	if err != nil {
		logrus.Fatalf("open ledger: %v", err)
	}

	appCfg := civic.AppConfig{
		Keyring:      kr,
		Store:        store,
		Language:     cfg.Language,
		MaxParallel:  cfg.MaxParallel,
		ReportPanics: cfg.BugsnagAPIKey != "",
		Environment:  cfg.Environment,
	}
	if cfg.Room.Enabled() {
		setup, err := roomSetup(cfg.Room)
		if err != nil {
			logrus.Fatalf("room: %v", err)
		}
		appCfg.Room = setup
	}

	app, err := civic.NewApp(appCfg)
	if err != nil {
		logrus.Fatalf("setup: %v", err)
	}
	if err := app.Start(cfg.HTTPAddr); err != nil {
		logrus.Fatalf("start: %v", err)
	}

	if cfg.ShowRoom && app.Room != nil {
		go printRoomForever(app, cfg.RefreshRate)
	}

	waitForShutdown(app)
}

func roomSetup(rc config.RoomConfig) (*civic.RoomSetup, error) {
	addr, err := rc.Address()
	if err != nil {
		return nil, err
	}
	web, err := room.NewWebClient(room.WebClientConfig{
		BaseURL:       rc.URL,
		InvitesPerMin: rc.InvitesPerMin,
	})
	if err != nil {
		return nil, err
	}
	return &civic.RoomSetup{
		Address:  addr,
		Interval: rc.RefreshInterval,
		Dialer: room.NewMQTTDialer(room.MQTTConfig{
			Broker:   rc.MQTTBroker,
			Username: rc.MQTTUser,
			Password: rc.MQTTPass,
		}),
		Web: web,
	}, nil
}

func waitForShutdown(app *civic.App) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	fmt.Println("babaayyy")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		logrus.WithError(err).Warn("shutdown")
	}
}
