package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dealdesk/sessioncore/config"
	"github.com/dealdesk/sessioncore/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"login": {
			name:        "login",
			description: "Authenticate and persist the session",
			run:         runLogin,
		},
		"status": {
			name:        "status",
			description: "Show the current session state",
			run:         runStatus,
		},
		"refresh": {
			name:        "refresh",
			description: "Force an access token refresh",
			run:         runRefresh,
		},
		"logout": {
			name:        "logout",
			description: "Tear the session down and clear stored credentials",
			run:         runLogout,
		},
		"register": {
			name:        "register",
			description: "Create an account and start a session",
			run:         runRegister,
		},
		"reset-password": {
			name:        "reset-password",
			description: "Request a password reset email",
			run:         runResetPassword,
		},
		"2fa-setup": {
			name:        "2fa-setup",
			description: "Enroll a second factor for the authenticated user",
			run:         runTwoFactorSetup,
		},
		"2fa-status": {
			name:        "2fa-status",
			description: "Show second-factor enrollment status",
			run:         runTwoFactorStatus,
		},
		"watch": {
			name:        "watch",
			description: "Hold the session open with automatic refresh until interrupted",
			run:         runWatch,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: sessionctl <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	for _, c := range commands() {
		if err := writef(os.Stdout, "  %-16s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
