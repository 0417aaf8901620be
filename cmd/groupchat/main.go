// Command groupchat runs the group chat server.
//
//	groupchat [-config file.json] [-env-file .env]
//	groupchat keygen
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"groupchat/internal/app"
	"groupchat/internal/auth"
	"groupchat/internal/config"
	"groupchat/internal/logging"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run returns the process exit code. Serving stops when ctx ends.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "keygen" {
		return keygen(stdout, stderr)
	}

	flags := flag.NewFlagSet("groupchat", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "JSON config file (overrides environment; default $GROUPCHAT_CONFIG_FILE)")
	envFile := flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(stderr, "config error: %v\n", err)
		return exitConfig
	}
	if *configPath == "" {
		*configPath = os.Getenv(config.EnvPrefix + "CONFIG_FILE")
	}

	cfg, err := config.LoadConfigWithPrecedence(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config error: %v\n", err)
		return exitConfig
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "config error: %v\n", err)
		return exitConfig
	}

	return serve(ctx, cfg, logger)
}

// serve runs the server until ctx ends or the listener fails.
func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) int {
	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create application")
		return exitRuntime
	}

	// Stop owns the database from here on, including on a failed Start.
	code := exitOK
	if err := application.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to start")
		code = exitRuntime
	} else {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutdown signal received")
		case err := <-application.Errors():
			logger.Error().Err(err).Msg("server failed")
			code = exitRuntime
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		code = exitRuntime
	}
	return code
}

func keygen(stdout, stderr io.Writer) int {
	secret, err := auth.GenerateSecret(auth.DefaultSecretLength)
	if err != nil {
		fmt.Fprintf(stderr, "keygen: %v\n", err)
		return exitRuntime
	}
	fmt.Fprintln(stdout, secret)
	return exitOK
}
