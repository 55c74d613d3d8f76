package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/planethub/planethub/internal/ident"
	"github.com/planethub/planethub/internal/logger"
	"github.com/planethub/planethub/internal/protocol/resp"
	"github.com/planethub/planethub/pkg/config"
	"github.com/planethub/planethub/pkg/fileservice"
	"github.com/planethub/planethub/pkg/metrics"
	"github.com/planethub/planethub/pkg/router"
	"github.com/planethub/planethub/pkg/userdb"
	"github.com/planethub/planethub/pkg/userservice"
)

var startCmd = &cobra.Command{
	Use:   "start [file|user|router]...",
	Short: "Start the PlanetHub servers",
	Long: `Start one or more PlanetHub servers. With no arguments all three
servers run in one process; naming services starts only those.

Examples:
  # Run everything
  planethub start

  # Run only the file service
  planethub start file

  # Run the user service and the session router
  planethub start user router`,
	ValidArgs: []string{"file", "user", "router"},
	Args:      cobra.OnlyValidArgs,
	RunE:      runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	wanted := map[string]bool{}
	if len(args) == 0 {
		wanted["file"], wanted["user"], wanted["router"] = true, true, true
	}
	for _, a := range args {
		wanted[a] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	// One error channel collects every server goroutine; the first failure
	// or the first clean exit after cancellation ends the process.
	type result struct {
		name string
		err  error
	}
	done := make(chan result, 4)
	running := 0

	if wanted["file"] {
		root, err := fileservice.OpenRoot(ctx, cfg.File.BaseDir)
		if err != nil {
			logger.Error("Cannot open file service root", "basedir", cfg.File.BaseDir, "error", err)
			return err
		}
		svc := fileservice.New(root, cfg.File.SizeLimit)
		srv := resp.NewServer(resp.ServerConfig{
			Host:       cfg.File.Host,
			Port:       cfg.File.Port,
			Name:       "file",
			NewHandler: func() resp.Handler { return svc.NewHandler() },
		})
		running++
		go func() { done <- result{"file", srv.Serve(ctx)} }()
	}

	if wanted["user"] {
		db := userdb.New(cfg.Redis)
		defer func() { _ = db.Close() }()
		if err := db.Ping(ctx); err != nil {
			logger.Error("Cannot reach user database", "address", cfg.Redis.Addr(), "error", err)
			return err
		}
		svc := userservice.New(db, cfg.User, ident.NewCrypto())
		srv := resp.NewServer(resp.ServerConfig{
			Host:       cfg.User.Host,
			Port:       cfg.User.Port,
			Name:       "user",
			NewHandler: func() resp.Handler { return svc.NewHandler() },
		})
		running++
		go func() { done <- result{"user", srv.Serve(ctx)} }()
	}

	if wanted["router"] {
		var notifier router.Notifier
		if cfg.Router.FileNotify {
			host := cfg.File.Host
			if host == "" {
				host = "127.0.0.1"
			}
			notifier = router.NewFileNotifier(fmt.Sprintf("%s:%d", host, cfg.File.Port))
		}
		r := router.New(cfg.Router, ident.NewCrypto(), notifier)
		srv := router.NewServer(r, cfg.Router.Host, cfg.Router.Port)
		running++
		go func() { done <- result{"router", srv.Serve(ctx)} }()
	}

	if cfg.Metrics.Enabled {
		running++
		go func() { done <- result{"metrics", metrics.Serve(ctx, "", cfg.Metrics.Port)} }()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("PlanetHub running", "services", running)

	var firstErr error
	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	case res := <-done:
		running--
		if res.err != nil {
			logger.Error("Server failed", "service", res.name, "error", res.err)
			firstErr = res.err
		}
		cancel()
	}

	for ; running > 0; running-- {
		res := <-done
		if res.err != nil && firstErr == nil {
			logger.Error("Server shutdown error", "service", res.name, "error", res.err)
			firstErr = res.err
		}
	}

	if firstErr != nil {
		return firstErr
	}
	logger.Info("PlanetHub stopped")
	return nil
}
