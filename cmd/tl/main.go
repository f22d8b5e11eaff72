package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"taskline/internal/app"
	"taskline/internal/config"
	"taskline/internal/logger"
	"taskline/internal/migrate"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Taskline CLI",
	Long: `Taskline is a multi-tenant project and task tracker served over HTTP.
- Projects are created, updated and deleted by admins (members of the "admin" group) and are visible only to their owner.
- Tasks belong to whoever created them and may reference any existing project.
- Deleting a project deletes every task that references it.
Run 'tl serve' to start the API; the project and task commands talk to a running server.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default <workspace>/taskline.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "API base URL for remote commands")
	rootCmd.PersistentFlags().String("token", "", "bearer token for remote commands")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
}

// overrideKeys are config keys that may be set through TASKLINE_* variables or flags.
var overrideKeys = map[string]func(*config.Config, string){
	"addr":                  func(c *config.Config, v string) { c.Addr = v },
	"base_path":             func(c *config.Config, v string) { c.BasePath = v },
	"database.driver":       func(c *config.Config, v string) { c.Database.Driver = v },
	"database.dsn":          func(c *config.Config, v string) { c.Database.DSN = v },
	"auth.mode":             func(c *config.Config, v string) { c.Auth.Mode = v },
	"auth.hmac_secret":      func(c *config.Config, v string) { c.Auth.HMACSecret = v },
	"auth.issuer":           func(c *config.Config, v string) { c.Auth.Issuer = v },
	"auth.audience":         func(c *config.Config, v string) { c.Auth.Audience = v },
	"auth.jwks_url":         func(c *config.Config, v string) { c.Auth.JWKSURL = v },
	"auth.aws_region":       func(c *config.Config, v string) { c.Auth.AWSRegion = v },
	"auth.user_pool_id":     func(c *config.Config, v string) { c.Auth.UserPoolID = v },
	"auth.client_id":        func(c *config.Config, v string) { c.Auth.ClientID = v },
	"auth.groups_claim":     func(c *config.Config, v string) { c.Auth.GroupsClaim = v },
	"rate_limit.redis_addr": func(c *config.Config, v string) { c.RateLimit.RedisAddr = v },
	"log.level":             func(c *config.Config, v string) { c.Log.Level = v },
	"log.format":            func(c *config.Config, v string) { c.Log.Format = v },
}

// loadConfig reads the config file (optional unless --config is given), applies
// TASKLINE_* overrides and validates the result.
func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	var (
		cfg *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.LoadOptional(workspace)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Database.Workspace == "" || cfg.Database.Workspace == "." {
		cfg.Database.Workspace = workspace
	}
	for key, set := range overrideKeys {
		if viper.IsSet(key) {
			set(cfg, viper.GetString(key))
		}
	}
	cfg.Finalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logger.New(cfg.Log.Level, cfg.Log.Format)
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default taskline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o600); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			masked := *c
			if masked.Auth.HMACSecret != "" {
				masked.Auth.HMACSecret = "********"
			}
			if masked.RateLimit.RedisPassword != "" {
				masked.RateLimit.RedisPassword = "********"
			}
			if viper.GetBool("json") {
				return printJSON(masked)
			}
			out, err := yaml.Marshal(masked)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			if cfg.Auth.Mode == config.ModeLocal && cfg.Auth.HMACSecret == "change-me" {
				log.Warn("auth.hmac_secret is the default value; set TASKLINE_AUTH_HMAC_SECRET")
			}
			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Printf("Serving Taskline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", cfg.Addr, cfg.BasePath)
			return a.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides config)")
	cmd.Flags().String("base-path", "", "API base path (overrides config)")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("base_path", cmd.Flags().Lookup("base-path"))
	return cmd
}

func migrateCmd() *cobra.Command {
	mig := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), func(ctx context.Context, r migrate.Runner) error {
				return r.Up(ctx)
			})
		},
	}
	mig.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), func(ctx context.Context, r migrate.Runner) error {
				if err := r.Up(ctx); err != nil {
					return err
				}
				v, err := r.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Println("schema version", v)
				return nil
			})
		},
	})
	mig.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), func(ctx context.Context, r migrate.Runner) error {
				return r.Status(ctx)
			})
		},
	})
	var to int64
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations to --to (default: one step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), func(ctx context.Context, r migrate.Runner) error {
				target := to
				if target < 0 {
					v, err := r.Version(ctx)
					if err != nil {
						return err
					}
					target = v - 1
					if target < 0 {
						return errors.New("nothing to roll back")
					}
				}
				return r.Down(ctx, target)
			})
		},
	}
	down.Flags().Int64Var(&to, "to", -1, "target schema version")
	mig.AddCommand(down)
	return mig
}

// --- helpers ---

func withRunner(ctx context.Context, fn func(context.Context, migrate.Runner) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn, dialect, err := app.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, migrate.New(conn, dialect, newLogger(cfg)))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printJSONOrTable renders rows as a table, or v as JSON when --json is set.
func printJSONOrTable(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

func optionalString(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}
