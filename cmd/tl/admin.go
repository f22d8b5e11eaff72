package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"taskline/internal/app"
	"taskline/internal/config"
	"taskline/internal/identity"
	"taskline/internal/migrate"
	"taskline/internal/repo"
)

// withLocal opens and migrates the store and hands over the built-in identity provider.
func withLocal(ctx context.Context, fn func(context.Context, *config.Config, identity.Local) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn, dialect, err := app.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	log := newLogger(cfg)
	if err := migrate.New(conn, dialect, log).Up(ctx); err != nil {
		return err
	}
	return fn(ctx, cfg, app.LocalIdentity(cfg, conn, dialect, log))
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{
		Use:   "user",
		Short: "Manage local login accounts",
		Long:  "Accounts used by POST /auth/login when auth.mode is local. Membership of the admin group grants the admin role.",
	}
	usr.AddCommand(userCreateCmd())
	usr.AddCommand(userListCmd())
	usr.AddCommand(userImportCmd())
	usr.AddCommand(userPasswdCmd())
	return usr
}

func userCreateCmd() *cobra.Command {
	var username, password string
	var groups []string
	var mustChange bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd.Context(), func(ctx context.Context, _ *config.Config, l identity.Local) error {
				u, err := l.CreateUser(ctx, username, password, groups, mustChange)
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	cmd.Flags().StringSliceVar(&groups, "group", nil, "group membership (repeatable)")
	cmd.Flags().BoolVar(&mustChange, "must-change", false, "require a new password on first login")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd.Context(), func(ctx context.Context, _ *config.Config, l identity.Local) error {
				users, err := l.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(users))
				for _, u := range users {
					rows = append(rows, table.Row{u.Username, u.UserID, strings.Join(u.Groups, ","), u.MustChangePassword, u.CreatedAt})
				}
				return printJSONOrTable(users, table.Row{"Username", "User ID", "Groups", "Must change", "Created"}, rows)
			})
		},
	}
}

func userImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create users listed in a YAML seed file; existing usernames are skipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd.Context(), func(ctx context.Context, _ *config.Config, l identity.Local) error {
				created, err := l.ImportUsers(ctx, args[0])
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(created))
				for _, u := range created {
					rows = append(rows, table.Row{u.Username, u.UserID, strings.Join(u.Groups, ",")})
				}
				return printJSONOrTable(created, table.Row{"Username", "User ID", "Groups"}, rows)
			})
		},
	}
}

func userPasswdCmd() *cobra.Command {
	var username, password string
	var mustChange bool
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Reset a user's password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd.Context(), func(ctx context.Context, _ *config.Config, l identity.Local) error {
				if err := l.ResetPassword(ctx, username, password, mustChange); err != nil {
					return err
				}
				fmt.Println("password updated for", username)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	cmd.Flags().BoolVar(&mustChange, "must-change", true, "require another change on next login")
	return cmd
}

func tokenCmd() *cobra.Command {
	tok := &cobra.Command{Use: "token", Short: "Work with bearer tokens"}
	var subject string
	var groups []string
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Sign a token with the local HMAC secret (local mode only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.Mode != config.ModeLocal {
				return fmt.Errorf("token mint needs auth.mode %q", config.ModeLocal)
			}
			raw, err := app.Issuer(cfg).Mint(subject, groups)
			if err != nil {
				return err
			}
			fmt.Println(raw)
			return nil
		},
	}
	mint.Flags().StringVar(&subject, "subject", "", "user id placed in the sub claim")
	mint.Flags().StringSliceVar(&groups, "group", nil, "group membership (repeatable)")
	tok.AddCommand(mint)
	return tok
}

func eventsCmd() *cobra.Command {
	evt := &cobra.Command{Use: "events", Short: "Inspect the audit event log"}
	var n int
	var f repo.EventFilter
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd.Context(), func(ctx context.Context, _ *config.Config, l identity.Local) error {
				events, err := l.Repo.LatestEvents(ctx, n, f)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(events))
				for _, e := range events {
					rows = append(rows, table.Row{e.ID, e.TS, e.Type, e.EntityKind, e.EntityID, e.ActorID, e.Payload})
				}
				return printJSONOrTable(events, table.Row{"ID", "TS", "Type", "Kind", "Entity", "Actor", "Payload"}, rows)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&f.Type, "type", "", "event type filter")
	tail.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind filter")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	tail.Flags().Int64Var(&f.Before, "before", 0, "only events older than this id")
	evt.AddCommand(tail)
	return evt
}
