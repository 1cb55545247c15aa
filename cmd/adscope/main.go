// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

// Package main is the entry point for the Adscope collector.
//
// Adscope extracts advertising performance data from the ad platform's
// Graph API, decomposes each extraction into narrow rate-compliant leaf
// calls, and persists results into per-(period, breakdowns) DuckDB tables.
//
// # Commands
//
//	adscope serve                  Run the HTTP trigger surface and, if the
//	                               queue is enabled, the leaf-job worker,
//	                               under a supervision tree.
//	adscope fetch -a <account-id>  Run one full download for an ad account
//	                               and exit.
//	adscope accounts -u <user-id>  List the ad accounts reachable with a
//	                               stored credential.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - ADSCOPE_-prefixed environment variables (ADSCOPE_GRAPH_APPID, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// serve shuts down gracefully on SIGINT and SIGTERM: the HTTP server
// drains in-flight requests and the queue worker finishes its current
// job before the process exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/adscope/internal/api"
	"github.com/tomtom215/adscope/internal/config"
	"github.com/tomtom215/adscope/internal/credentials"
	"github.com/tomtom215/adscope/internal/database"
	"github.com/tomtom215/adscope/internal/insights"
	"github.com/tomtom215/adscope/internal/logging"
	"github.com/tomtom215/adscope/internal/queue"
	"github.com/tomtom215/adscope/internal/remote"
	"github.com/tomtom215/adscope/internal/supervisor"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	app, err := newApp(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Startup failed")
	}
	defer app.close()

	switch os.Args[1] {
	case "serve":
		err = app.serve()
	case "fetch":
		err = app.fetch(os.Args[2:])
	case "accounts":
		err = app.accounts(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logging.Fatal().Err(err).Msg("Command failed")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: adscope <serve | fetch -a <account-id> | accounts -u <user-id>>")
}

// app holds the wired component graph shared by both commands.
type app struct {
	cfg         *config.Config
	db          *database.DB
	credDB      interface{ Close() error }
	store       credentials.Store
	selector    *credentials.Selector
	graph       remote.GraphAPI
	provisioner *database.Provisioner
	fetcher     *insights.Fetcher
}

func newApp(cfg *config.Config) (*app, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, err
	}

	credDB, err := credentials.OpenBadger(cfg.Credentials.Path)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store := credentials.NewBadgerStore(credDB)
	selector, err := credentials.NewSelector(store, cfg.Credentials.SelectionPolicy)
	if err != nil {
		_ = credDB.Close()
		_ = db.Close()
		return nil, err
	}

	governor := remote.NewRateGovernor(cfg.Graph.Governor)
	client := remote.NewClient(&cfg.Graph, governor)
	graph := remote.NewBreakerClient(client)

	provisioner := database.NewProvisioner(db)
	fetcher := insights.NewFetcher(graph, provisioner, cfg.Decompose)

	return &app{
		cfg:         cfg,
		db:          db,
		credDB:      credDB,
		store:       store,
		selector:    selector,
		graph:       graph,
		provisioner: provisioner,
		fetcher:     fetcher,
	}, nil
}

func (a *app) close() {
	if err := a.credDB.Close(); err != nil {
		logging.Warn().Err(err).Msg("Close credential store failed")
	}
	if err := a.db.Close(); err != nil {
		logging.Warn().Err(err).Msg("Close database failed")
	}
}

// serve runs the HTTP surface and the optional queue worker under
// supervision until a shutdown signal arrives.
func (a *app) serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree := supervisor.NewTree(slog.New(logging.NewSlogHandler()), supervisor.DefaultTreeConfig())

	var publisher *queue.Publisher
	if a.cfg.Queue.Enabled {
		var err error
		publisher, err = queue.NewNATSPublisher(&a.cfg.Queue)
		if err != nil {
			return err
		}
		defer func() { _ = publisher.Close() }()

		sub, err := queue.NewNATSSubscriber(&a.cfg.Queue)
		if err != nil {
			return err
		}
		consumer, err := queue.NewConsumer(sub, &a.cfg.Queue, a.executeJob)
		if err != nil {
			return err
		}
		tree.AddWorkerService(&supervisor.ConsumerService{Consumer: consumer})
	}

	var apiPublisher api.LeafPublisher
	if publisher != nil {
		apiPublisher = publisher
	}
	server := api.NewServer(a.cfg, a.fetcher, a.selector, apiPublisher)
	tree.AddAPIService(&supervisor.HTTPService{Server: server})

	err := tree.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		logging.Info().Msg("Shutdown complete")
		return nil
	}
	return err
}

// executeJob resolves a credential for a dequeued leaf and runs it. The
// job ID doubles as the correlation ID so every log line of one job's
// execution, including replays, can be tied together.
func (a *app) executeJob(ctx context.Context, job queue.LeafJob) error {
	ctx = logging.ContextWithCorrelationID(ctx, job.ID)
	logger := logging.Ctx(ctx)

	cred, err := a.selector.ForAdAccount(ctx, job.AppID, job.Leaf.AccountID)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			// No credential can ever satisfy this job; drop it.
			logger.Error().Str("account", job.Leaf.AccountID).Msg("Dropping leaf job with no reachable credential")
			return nil
		}
		return err
	}

	records, err := a.fetcher.ExecuteLeaf(ctx, job.Leaf, cred.AccessToken)
	if err != nil {
		if apiErr, ok := remote.AsAPIError(err); ok && !apiErr.Retryable() {
			// Definitive platform answer; retrying cannot help.
			logger.Error().Err(err).Str("account", job.Leaf.AccountID).Msg("Dropping leaf job after definitive error")
			return nil
		}
		return err
	}
	logger.Info().Int("records", len(records)).Msg("Leaf job completed")
	return nil
}

// fetch runs one full download for an ad account in-process.
func (a *app) fetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	accountID := fs.String("a", "", "ad account id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *accountID == "" {
		return errors.New("fetch requires -a <account-id>")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cred, err := a.selector.ForAdAccount(ctx, a.cfg.Graph.AppID, *accountID)
	if err != nil {
		return fmt.Errorf("resolve credential for %s: %w", *accountID, err)
	}

	records, failures, err := a.fetcher.Collect(ctx, insights.FetchRequest{
		AccountIDs: []string{*accountID},
	}, cred.AccessToken)
	if err != nil {
		return err
	}

	for i := range failures {
		logging.Error().Err(failures[i].Err).
			Str("period", failures[i].Leaf.Period).
			Strs("breakdowns", failures[i].Leaf.Breakdowns).
			Msg("Leaf failed")
	}
	logging.Info().
		Str("account", *accountID).
		Int("records", len(records)).
		Int("failed_leaves", len(failures)).
		Msg("Fetch complete")

	if len(failures) > 0 && len(records) == 0 {
		return errors.New("every leaf failed")
	}
	return nil
}

// accounts lists every ad account reachable with a user's credential,
// personal and business-owned.
func (a *app) accounts(args []string) error {
	fs := flag.NewFlagSet("accounts", flag.ExitOnError)
	userID := fs.String("u", "", "platform user id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("accounts requires -u <user-id>")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cred, err := a.store.FetchCredential(ctx, a.cfg.Graph.AppID, *userID)
	if err != nil {
		return fmt.Errorf("resolve credential for user %s: %w", *userID, err)
	}

	accounts, err := a.graph.ListAdAccounts(ctx, cred.AccessToken)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		fmt.Printf("%s\t%s\n", account.ID, account.Name)
	}
	logging.Info().Int("accounts", len(accounts)).Msg("Discovery complete")
	return nil
}
