package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelsoc/sentinel/internal/app"
	"github.com/sentinelsoc/sentinel/internal/services"
	"github.com/sentinelsoc/sentinel/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) > 0 && args[0] == "create-user" {
		return runCreateUser(ctx, args[1:], out)
	}
	return runServer(ctx, args, out)
}

func runServer(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sentinel-server", flag.ContinueOnError)
	fs.SetOutput(out)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := prepare(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync() // best effort

	stack, err := bootstrapRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		stack.Shutdown(shutdownCtx, log)
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           stack.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

// runCreateUser provisions an account from the command line, for recovery when no administrator can log in.
func runCreateUser(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sentinel-server create-user", flag.ContinueOnError)
	fs.SetOutput(out)

	var (
		configPath string
		input      services.CreateUserInput
	)
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")
	fs.StringVar(&input.Username, "username", "", "Username of the new account")
	fs.StringVar(&input.Email, "email", "", "Email address of the new account")
	fs.StringVar(&input.Password, "password", "", "Password (read from SENTINEL_NEW_USER_PASSWORD when empty)")
	fs.StringVar(&input.Role, "role", "analyst", "Role: admin, analyst or viewer")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if input.Password == "" {
		input.Password = os.Getenv("SENTINEL_NEW_USER_PASSWORD")
	}

	cfg, log, err := prepare(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync() // best effort

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDatabase(st.DB, log)

	users, err := services.NewUserService(st.Repo)
	if err != nil {
		return err
	}
	summary, err := users.Create(ctx, input)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "created %s user %q (%s)\n", summary.Role, summary.Username, summary.ID)
	return nil
}

// prepare loads, defaults and validates configuration, then initialises logging.
func prepare(configPath string) (*app.Config, *zap.Logger, error) {
	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := app.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel, cfg.Server.LogFormat); err != nil {
		return nil, nil, fmt.Errorf("configure logging: %w", err)
	}

	log := logger.WithModule("bootstrap")
	for key := range generated {
		log.Info("applied runtime default", zap.String("key", key))
	}
	return cfg, log, nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}
