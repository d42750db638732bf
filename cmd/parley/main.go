// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// parley is a terminal chat client. It connects to the configured
// chat service, discovers the account's rooms, keeps their recent
// history topped up in the background, and renders an interactive
// room browser with live messages, reactions, and typing indicators.
//
// Configuration comes from a YAML file (PARLEY_CONFIG or --config);
// the connection flags override the file. The password is never taken
// from a flag or the environment: it is read from --password-file, or
// from stdin when the path is "-".
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/parley-chat/parley/discovery"
	"github.com/parley-chat/parley/lib/config"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/lib/secret"
	"github.com/parley-chat/parley/lib/version"
	"github.com/parley-chat/parley/loader"
	"github.com/parley-chat/parley/roomstore"
	"github.com/parley-chat/parley/session"
	"github.com/parley-chat/parley/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   string
		serviceURL   string
		accountFlag  string
		passwordPath string
		roomFlag     string
		logOutput    string
	)

	flagSet := pflag.NewFlagSet("parley", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to parley.yaml (default: $PARLEY_CONFIG)")
	flagSet.StringVar(&serviceURL, "service-url", "", "websocket endpoint, overrides the config file")
	flagSet.StringVar(&accountFlag, "jid", "", "account address, overrides the config file")
	flagSet.StringVar(&passwordPath, "password-file", "", `path to the password file, "-" for stdin`)
	flagSet.StringVar(&roomFlag, "room", "", "wait for this room to appear after the initial sync")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println("parley " + version.Info())
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		flagSet.PrintDefaults()
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if serviceURL != "" {
		cfg.Service.URL = serviceURL
	}
	if accountFlag != "" {
		cfg.Credentials.JID = accountFlag
	}
	if passwordPath != "" {
		cfg.Credentials.PasswordFile = passwordPath
	}
	if cfg.Service.URL == "" {
		return errors.New("no service URL; set service.url in the config file or pass --service-url")
	}
	if cfg.Credentials.JID == "" {
		return errors.New("no account; set credentials.jid in the config file or pass --jid")
	}
	if cfg.Credentials.PasswordFile == "" {
		return errors.New("no password source; set credentials.password_file or pass --password-file")
	}

	accountJID, err := ref.ParseJID(cfg.Credentials.JID)
	if err != nil {
		return err
	}
	password, err := secret.ReadFromPath(cfg.Credentials.PasswordFile)
	if err != nil {
		return err
	}
	defer password.Close()

	logger, closeLog, err := buildLogger(logOutput)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := &transport.WebSocketDialer{
		URL:    cfg.Service.URL,
		Logger: logger,
	}
	client := session.New(dialer, transport.Credentials{
		JID:      accountJID,
		Password: password,
	}, session.Config{
		ReconnectMaxAttempts: cfg.Reconnect.MaxAttempts,
		ReconnectBaseDelay:   cfg.Reconnect.BaseDelay.Std(),
		RequestTimeout:       cfg.Request.Timeout.Std(),
		ConferenceDomain:     cfg.Service.ConferenceDomain,
		Logger:               logger,
	})
	defer client.Close()

	store := roomstore.New()
	client.OnStanza(store.Feed)

	if err := connectWithRetry(ctx, client, logger); err != nil {
		return err
	}
	go maintainConnection(ctx, client, logger)

	// Initial sync: list rooms, waiting for the expected one when
	// --room was given.
	strategy := discovery.AnyPresent()
	if roomFlag != "" {
		strategy = discovery.TargetPresent(roomFlag)
	}
	store.SetGlobalLoading(true)
	result, err := discovery.Run(ctx, client.ListRooms, strategy, discovery.Options{
		MaxAttempts: cfg.Discovery.MaxRetries,
		Delay:       cfg.Discovery.DelayBetweenRetries.Std(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	store.ApplyDescriptors(result.Rooms)
	store.SetGlobalLoading(false)
	if result.Outcome == discovery.OutcomeExhausted {
		logger.Warn("room discovery exhausted",
			"attempts", result.Attempts, "room", roomFlag)
	}

	for _, descriptor := range result.Rooms {
		if err := client.PresenceInRoom(ctx, descriptor.JID); err != nil {
			logger.Warn("room join failed", "room", descriptor.JID.String(), "error", err)
		}
	}

	queue := loader.NewQueue(store, historyFetcher(client, store), loader.Config{
		BatchSize:        cfg.Loader.BatchSize,
		PageSize:         cfg.Loader.PageSize,
		PollInterval:     cfg.Loader.PollInterval.Std(),
		HistoryThreshold: cfg.Loader.HistoryThreshold,
		ThrottleDelay:    cfg.Loader.ThrottleDelay.Std(),
		Logger:           logger,
	})
	go queue.Run(ctx)

	model := newModel(client, store, accountJID, result.Outcome)
	program := tea.NewProgram(model, tea.WithAltScreen())
	store.Subscribe(func(roomstore.Event) {
		queue.Poke()
		program.Send(refreshMsg{})
	})
	client.OnStatusChange(func(status session.Status) {
		program.Send(statusMsg(status))
	})

	_, err = program.Run()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("PARLEY_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// buildLogger routes records to the log file as JSON, or to stderr at
// Warn when no file is given. The TUI owns stdout.
func buildLogger(logOutput string) (*slog.Logger, func(), error) {
	if logOutput == "" {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		}))
		return logger, func() {}, nil
	}
	file, err := os.OpenFile(logOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	return logger, func() { file.Close() }, nil
}

// connectWithRetry dials until online, driving the client's backoff,
// and gives up once the configured attempt ceiling is reached.
func connectWithRetry(ctx context.Context, client *session.Client, logger *slog.Logger) error {
	for {
		err := client.Reconnect(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, session.ErrClosed) || ctx.Err() != nil {
			return err
		}
		if client.Attempts() >= client.MaxReconnectAttempts() {
			return fmt.Errorf("connecting after %d attempts: %w", client.Attempts(), err)
		}
		delay := client.ReconnectDelay()
		logger.Warn("connect failed, retrying", "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// maintainConnection re-dials with backoff whenever the connection
// drops, until the attempt ceiling is hit. A later drop notification
// starts a fresh round of attempts.
func maintainConnection(ctx context.Context, client *session.Client, logger *slog.Logger) {
	dropped := make(chan struct{}, 1)
	client.OnStatusChange(func(status session.Status) {
		if status == session.StatusOffline {
			select {
			case dropped <- struct{}{}:
			default:
			}
		}
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-dropped:
		}
		for client.Status() != session.StatusOnline {
			err := client.Reconnect(ctx)
			if err == nil {
				break
			}
			if errors.Is(err, session.ErrClosed) || ctx.Err() != nil {
				return
			}
			if client.Attempts() >= client.MaxReconnectAttempts() {
				logger.Error("reconnect attempts exhausted", "attempts", client.Attempts())
				break
			}
			select {
			case <-time.After(client.ReconnectDelay()):
			case <-ctx.Done():
				return
			}
		}
	}
}

// historyFetcher adapts the session's paged archive loading to the
// loader queue: one call loads one older page into the store.
func historyFetcher(client *session.Client, store *roomstore.Store) loader.Fetch {
	return func(ctx context.Context, roomID string, pageSize int) error {
		room, err := ref.ParseJID(roomID)
		if err != nil {
			return err
		}
		var before string
		if snapshot, ok := store.Snapshot(roomID); ok && len(snapshot.Messages) > 0 {
			before = snapshot.Messages[0].ID
		}

		store.SetLoading(roomID, true)
		defer store.SetLoading(roomID, false)

		page, err := client.LoadHistory(ctx, room, pageSize, before)
		if err != nil {
			return err
		}
		store.PrependHistory(roomID, page)
		return nil
	}
}
