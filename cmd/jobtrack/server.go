package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/kalambet/jobtrack/internal/api"
	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/blob"
	"github.com/kalambet/jobtrack/internal/client"
	"github.com/kalambet/jobtrack/internal/config"
	"github.com/kalambet/jobtrack/internal/gateway"
	"github.com/kalambet/jobtrack/internal/postgres"
	"github.com/kalambet/jobtrack/internal/profile"
	"github.com/kalambet/jobtrack/internal/storage"
	"github.com/kalambet/jobtrack/internal/sweeper"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the jobtrack backend (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running jobtrack backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

// backendStore is what the server needs from a record store.
type backendStore interface {
	gateway.RecordStore
	auth.Store
	profile.ProfileStore
	sweeper.SessionPurger
	api.Pinger
	Close() error
}

func openStore(ctx context.Context, cfg config.Config) (backendStore, error) {
	if cfg.Storage.Driver == config.DriverPostgres {
		s, err := postgres.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "jobtrack.pid")
}

func lockFilePath(dataDir string) string {
	return filepath.Join(dataDir, "jobtrack.lock")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// acquireDataDir takes an exclusive lock on the data directory so two
// servers never share one database.
func acquireDataDir(dataDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	lock := flock.New(lockFilePath(dataDir))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking data directory: %w", err)
	}
	if !ok {
		if pid, pidErr := readPIDFile(pidFilePath(dataDir)); pidErr == nil {
			return nil, fmt.Errorf("server already running (PID %d)", pid)
		}
		return nil, errors.New("server already running on this data directory")
	}
	return lock, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	lock, err := acquireDataDir(cfg.Storage.DataDir)
	if err != nil {
		printWarning("%v", err)
		return err
	}
	defer lock.Unlock()

	pidPath := pidFilePath(cfg.Storage.DataDir)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()
	slog.Info("storage ready", "driver", cfg.Storage.Driver)

	files, err := blob.NewFSStore(cfg.BlobDir(), cfg.PublicBaseURL())
	if err != nil {
		return err
	}

	handler := api.NewAppHandler(api.AppDeps{
		Auth:     auth.NewService(store, cfg.SessionTTL(), cfg.Auth.SignInPerMinute),
		Gateway:  gateway.NewBackend(store, files, auth.ContextOwner{}),
		Profiles: profile.NewManager(store),
		Files:    files,
		DB:       store,
		Driver:   cfg.Storage.Driver,
		Version:  version,
		Logger:   logger,
	})

	worker, err := sweeper.NewScheduledWorker(store, cfg.Auth.SweepSchedule)
	if err != nil {
		slog.Warn("invalid sweep schedule, sweeping hourly", "value", cfg.Auth.SweepSchedule, "error", err)
		worker = sweeper.NewWorker(store, time.Hour)
	}
	go worker.Run(ctx)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("jobtrack listening", "addr", addr, "version", version, "public_url", cfg.PublicBaseURL())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("jobtrack is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop jobtrack (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to jobtrack (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	c := client.New(cfg.ServerURL(), client.WithHTTPClient(&http.Client{Timeout: 2 * time.Second}))
	h, err := c.Health(ctx)
	if err != nil {
		printStatus("Server", "not available at %s (%v)", cfg.ServerURL(), err)
	} else {
		printStatus("Server", "running at %s (version %s)", cfg.ServerURL(), h.Version)
		printStatus("Storage", "%s", h.Storage)
	}

	if pid, err := readPIDFile(pidFilePath(cfg.Storage.DataDir)); err == nil {
		printStatus("PID", "%d", pid)
	}
	printStatus("Driver", "%s", cfg.Storage.Driver)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Files dir", "%s", cfg.BlobDir())

	if tok, _ := config.GetSessionToken(config.NewKeychain()); tok != "" {
		printStatus("Session", "saved")
	} else {
		printStatus("Session", "signed out")
	}
	return nil
}
