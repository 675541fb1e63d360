package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/hakim-ai/identity-gateway/config"
	"github.com/hakim-ai/identity-gateway/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
	// skipConfig marks commands that work without a loadable environment.
	skipConfig bool
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Stdout io.Writer
	Stdin  io.Reader
}

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
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
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Stdout: os.Stdout,
		Stdin:  os.Stdin,
	}
	if !cmd.skipConfig {
		cfg, err := bootstrap.LoadConfig()
		if err != nil {
			logger.ErrorContext(ctx, "load config", "error", err)
			stop()
			os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
		}
		bootstrap.ApplyLogLevel(&cfg)
		cmdCtx.Config = cfg
	}

	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(ctx, "command failed", "command", cmdName, "error", runErr)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"list-pending": {
			name:        "list-pending",
			description: "List registrations awaiting approval",
			run:         runListPending,
		},
		"approve": {
			name:        "approve",
			description: "Approve a pending registration and lock its role",
			run:         runApprove,
		},
		"reject": {
			name:        "reject",
			description: "Reject a pending registration and revoke its sessions",
			run:         runReject,
		},
		"deactivate": {
			name:        "deactivate",
			description: "Disable an account and revoke its sessions",
			run:         runDeactivate,
		},
		"activate": {
			name:        "activate",
			description: "Re-enable a disabled account",
			run:         runActivate,
		},
		"history": {
			name:        "history",
			description: "Show the role audit trail of an account",
			run:         runHistory,
		},
		"revoke-sessions": {
			name:        "revoke-sessions",
			description: "Delete every live session of an account",
			run:         runRevokeSessions,
		},
		"gen-key": {
			name:        "gen-key",
			description: "Print a new PAYLOAD_ENCRYPTION_KEY",
			run:         runGenKey,
			skipConfig:  true,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: hakim-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	all := commands()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-18s %s\n", name, all[name].description); err != nil {
			return fmt.Errorf("print command %q: %w", name, err)
		}
	}
	return nil
}
