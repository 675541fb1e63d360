package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hakim-ai/identity-gateway/internal/bootstrap"
	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	"github.com/hakim-ai/identity-gateway/internal/service"
)

const (
	defaultCommandTimeout   = 30 * time.Second
	defaultMigrationTimeout = 5 * time.Minute
)

// operator is recorded in the role audit trail for decisions made from this CLI.
var operator = service.Actor{Role: domainauth.RoleSuperAdmin, Label: "hakim-admin"}

type accountAdmin interface {
	ListPending(ctx context.Context, actor service.Actor, limit, offset int) ([]*domainauth.Account, error)
	Approve(ctx context.Context, in service.DecisionInput) (*domainauth.Account, error)
	Reject(ctx context.Context, in service.DecisionInput) (*domainauth.Account, error)
	SetActive(ctx context.Context, accountID string, active bool) error
	History(ctx context.Context, accountID string) ([]domainauth.RoleAuditEntry, error)
}

type listOptions struct {
	Limit   int
	Offset  int
	Timeout time.Duration
}

type accountOptions struct {
	ID      string
	Reason  string
	Yes     bool
	Timeout time.Duration
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func parseListFlags(args []string) (listOptions, error) {
	fs := newFlagSet("list-pending")
	opts := listOptions{}
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum number of registrations to list")
	fs.IntVar(&opts.Offset, "offset", 0, "Number of registrations to skip")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")
	if err := fs.Parse(args); err != nil {
		return listOptions{}, err
	}
	if opts.Limit <= 0 {
		return listOptions{}, errors.New("--limit must be greater than zero")
	}
	if opts.Offset < 0 {
		return listOptions{}, errors.New("--offset must not be negative")
	}
	return opts, nil
}

func parseAccountFlags(name string, args []string, reasonRequired bool) (accountOptions, error) {
	fs := newFlagSet(name)
	opts := accountOptions{}
	fs.StringVar(&opts.ID, "id", "", "Account id")
	fs.StringVar(&opts.Reason, "reason", "", "Reason recorded in the role audit trail")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")
	if err := fs.Parse(args); err != nil {
		return accountOptions{}, err
	}
	opts.ID = strings.TrimSpace(opts.ID)
	opts.Reason = strings.TrimSpace(opts.Reason)
	if opts.ID == "" {
		return accountOptions{}, errors.New("--id is required")
	}
	if reasonRequired && opts.Reason == "" {
		return accountOptions{}, errors.New("--reason is required")
	}
	if opts.Timeout <= 0 {
		return accountOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

// withInfra runs f against freshly connected services and closes them afterwards.
func withInfra(
	cmdCtx *commandContext,
	timeout time.Duration,
	wantRedis bool,
	f func(context.Context, *adminInfra) error,
) (err error) {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, timeout)
	defer cancel()

	infra, err := openInfra(cmdCtx, wantRedis)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := infra.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("close infrastructure failed", "error", closeErr)
		}
	}()
	return f(ctx, infra)
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("migrate")
	timeout := fs.Duration("timeout", defaultMigrationTimeout, "Maximum duration to wait for migrations to complete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *timeout <= 0 {
		return errors.New("--timeout must be greater than zero")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("running database migrations")
	if err := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); err != nil {
		return err
	}
	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func runListPending(cmdCtx *commandContext, args []string) error {
	opts, err := parseListFlags(args)
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, opts.Timeout, false, func(ctx context.Context, infra *adminInfra) error {
		return listPending(ctx, infra.Identity, cmdCtx.Stdout, opts)
	})
}

func listPending(ctx context.Context, admin accountAdmin, out io.Writer, opts listOptions) error {
	accounts, err := admin.ListPending(ctx, operator, opts.Limit, opts.Offset)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return writeln(out, "No registrations awaiting approval.")
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tROLE\tNAME\tLICENSE\tHOSPITAL\tREQUESTED"); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}
	for _, acc := range accounts {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			acc.ID,
			acc.Role,
			valueOr(&acc.Profile.Name, "-"),
			valueOr(acc.LicenseNumber, "-"),
			valueOr(acc.HospitalID, "-"),
			acc.CreatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("write account %s: %w", acc.ID, err)
		}
	}
	return tw.Flush()
}

func runApprove(cmdCtx *commandContext, args []string) error {
	opts, err := parseAccountFlags("approve", args, false)
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, opts.Timeout, false, func(ctx context.Context, infra *adminInfra) error {
		return decide(ctx, infra.Identity, cmdCtx, opts, true)
	})
}

func runReject(cmdCtx *commandContext, args []string) error {
	opts, err := parseAccountFlags("reject", args, true)
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, opts.Timeout, true, func(ctx context.Context, infra *adminInfra) error {
		return decide(ctx, infra.Identity, cmdCtx, opts, false)
	})
}

func decide(ctx context.Context, admin accountAdmin, cmdCtx *commandContext, opts accountOptions, approve bool) error {
	verb := "reject"
	if approve {
		verb = "approve"
	}
	if err := confirm(cmdCtx.Stdin, cmdCtx.Stdout, fmt.Sprintf("About to %s account %s.", verb, opts.ID), opts.Yes); err != nil {
		return err
	}

	in := service.DecisionInput{AccountID: opts.ID, Actor: operator, Reason: opts.Reason}
	var (
		acc *domainauth.Account
		err error
	)
	if approve {
		acc, err = admin.Approve(ctx, in)
	} else {
		acc, err = admin.Reject(ctx, in)
	}
	if err != nil {
		return err
	}
	return writef(cmdCtx.Stdout, "Account %s is now %s (%s).\n", acc.ID, acc.Status, acc.Role)
}

func runDeactivate(cmdCtx *commandContext, args []string) error {
	opts, err := parseAccountFlags("deactivate", args, false)
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, opts.Timeout, true, func(ctx context.Context, infra *adminInfra) error {
		return setActive(ctx, infra.Identity, cmdCtx, opts, false)
	})
}

func runActivate(cmdCtx *commandContext, args []string) error {
	opts, err := parseAccountFlags("activate", args, false)
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, opts.Timeout, false, func(ctx context.Context, infra *adminInfra) error {
		return setActive(ctx, infra.Identity, cmdCtx, opts, true)
	})
}

func setActive(ctx context.Context, admin accountAdmin, cmdCtx *commandContext, opts accountOptions, active bool) error {
	state := "disabled"
	if active {
		state = "enabled"
	}
	if !active {
		prompt := fmt.Sprintf("About to disable account %s and sign it out everywhere.", opts.ID)
		if err := confirm(cmdCtx.Stdin, cmdCtx.Stdout, prompt, opts.Yes); err != nil {
			return err
		}
	}
	if err := admin.SetActive(ctx, opts.ID, active); err != nil {
		return err
	}
	return writef(cmdCtx.Stdout, "Account %s %s.\n", opts.ID, state)
}

func runHistory(cmdCtx *commandContext, args []string) error {
	opts, err := parseAccountFlags("history", args, false)
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, opts.Timeout, false, func(ctx context.Context, infra *adminInfra) error {
		return history(ctx, infra.Identity, cmdCtx.Stdout, opts.ID)
	})
}

func history(ctx context.Context, admin accountAdmin, out io.Writer, accountID string) error {
	entries, err := admin.History(ctx, accountID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return writef(out, "No role changes recorded for %s.\n", accountID)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "WHEN\tROLE\tSTATUS\tACTOR\tREASON"); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}
	for _, e := range entries {
		role := string(e.NewRole)
		if e.OldRole != "" && e.OldRole != e.NewRole {
			role = string(e.OldRole) + " -> " + role
		}
		status := string(e.NewStatus)
		if e.OldStatus != "" && e.OldStatus != e.NewStatus {
			status = string(e.OldStatus) + " -> " + status
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.UTC().Format(time.RFC3339), role, status, e.Actor, valueOr(&e.Reason, "-"),
		); err != nil {
			return fmt.Errorf("write audit entry %s: %w", e.ID, err)
		}
	}
	return tw.Flush()
}

func runRevokeSessions(cmdCtx *commandContext, args []string) error {
	opts, err := parseAccountFlags("revoke-sessions", args, false)
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, opts.Timeout, true, func(ctx context.Context, infra *adminInfra) error {
		n, err := infra.Sessions.RevokeAll(ctx, opts.ID)
		if err != nil {
			return err
		}
		return writef(cmdCtx.Stdout, "Revoked %d session(s) for account %s.\n", n, opts.ID)
	})
}

func runGenKey(cmdCtx *commandContext, _ []string) error {
	key, err := generateKey(rand.Reader)
	if err != nil {
		return err
	}
	return writeln(cmdCtx.Stdout, key)
}

// generateKey returns 32 random bytes hex encoded, the form used verbatim as the AES-256 key.
func generateKey(r io.Reader) (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
