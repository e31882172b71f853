// Command kpauthctl administers kpauth accounts and the database schema.
//
//	kpauthctl create -email E -password P [-superuser]
//	kpauthctl list
//	kpauthctl delete -email E
//	kpauthctl update-password -email E -password P
//	kpauthctl toggle-active -email E
//	kpauthctl migrate [-direction up|down]
//
// Configuration is read like the server does (environment, optional .env).
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
	"text/tabwriter"
	"time"

	"kpauth/cmd/identity"
	"kpauth/cmd/internal/app"
	"kpauth/cmd/internal/auth"
	"kpauth/cmd/internal/db"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// command runs against a wired auth service.
type command func(ctx context.Context, svc *auth.Service, fs *flag.FlagSet, args []string, out io.Writer) error

var commands = map[string]command{
	"create":          cmdCreate,
	"list":            cmdList,
	"delete":          cmdDelete,
	"update-password": cmdUpdatePassword,
	"toggle-active":   cmdToggleActive,
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	name, rest := args[0], args[1:]

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if name == "migrate" {
		if err := cmdMigrate(ctx, cfg, rest, stdout, stderr); err != nil {
			fmt.Fprintln(stderr, "migrate:", err)
			return 1
		}
		return 0
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		usage(stderr)
		return 2
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(stderr, "DATABASE_URL is not set")
		return 1
	}

	log := app.NewLogger("error", cfg.LogFormat, stderr)
	backend, err := app.OpenBackend(ctx, cfg, log)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer backend.Close()

	svc, err := app.NewAuthService(cfg, backend)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := cmd(ctx, svc, fs, rest, stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "%s: %v\n", name, err)
		}
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: kpauthctl <create|list|delete|update-password|toggle-active|migrate> [flags]")
}

func required(vals map[string]string) error {
	for name, v := range vals {
		if v == "" {
			return fmt.Errorf("-%s is required", name)
		}
	}
	return nil
}

func cmdCreate(ctx context.Context, svc *auth.Service, fs *flag.FlagSet, args []string, out io.Writer) error {
	email := fs.String("email", "", "account email")
	pw := fs.String("password", "", "initial password")
	superuser := fs.Bool("superuser", false, "grant superuser")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"email": *email, "password": *pw}); err != nil {
		return err
	}

	u, err := svc.CreateUser(ctx, *email, *pw, *superuser)
	if identity.IsConflict(err) {
		return fmt.Errorf("user %s already exists", *email)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created %s (%s)\n", u.Email, u.ID)
	return nil
}

func cmdList(ctx context.Context, svc *auth.Service, fs *flag.FlagSet, args []string, out io.Writer) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	users, err := svc.ListUsers(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tACTIVE\tSUPERUSER\tLAST LOGIN")
	for _, u := range users {
		last := "-"
		if u.LastLoginAt != nil {
			last = u.LastLoginAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", u.ID, u.Email, u.IsActive, u.IsSuperuser, last)
	}
	return tw.Flush()
}

func cmdDelete(ctx context.Context, svc *auth.Service, fs *flag.FlagSet, args []string, out io.Writer) error {
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"email": *email}); err != nil {
		return err
	}

	res, err := svc.DeleteUser(ctx, *email)
	if err != nil {
		return notFound(err, *email)
	}
	fmt.Fprintf(out, "deleted %s (%d sessions, %d devices)\n", *email, res.Sessions, res.Devices)
	return nil
}

func cmdUpdatePassword(ctx context.Context, svc *auth.Service, fs *flag.FlagSet, args []string, out io.Writer) error {
	email := fs.String("email", "", "account email")
	pw := fs.String("password", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"email": *email, "password": *pw}); err != nil {
		return err
	}

	if err := svc.UpdatePassword(ctx, *email, *pw); err != nil {
		return notFound(err, *email)
	}
	fmt.Fprintf(out, "password updated for %s\n", *email)
	return nil
}

func cmdToggleActive(ctx context.Context, svc *auth.Service, fs *flag.FlagSet, args []string, out io.Writer) error {
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"email": *email}); err != nil {
		return err
	}

	active, err := svc.ToggleActive(ctx, *email)
	if err != nil {
		return notFound(err, *email)
	}
	state := "inactive"
	if active {
		state = "active"
	}
	fmt.Fprintf(out, "%s is now %s\n", *email, state)
	return nil
}

func cmdMigrate(ctx context.Context, cfg app.Config, args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(errOut)
	direction := fs.String("direction", "up", "migration direction: up or down")
	if err := fs.Parse(args); err != nil {
		return err
	}

	err := db.Migrate(ctx, cfg.DatabaseURL, cfg.DBSchema, *direction)
	if errors.Is(err, db.ErrNoChange) {
		fmt.Fprintln(out, "no change")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "migrated %s in schema %s\n", *direction, cfg.DBSchema)
	return nil
}

func notFound(err error, email string) error {
	if identity.IsNotFound(err) || errors.Is(err, auth.ErrNotFound) {
		return fmt.Errorf("no user with email %s", email)
	}
	return err
}
