package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ares/internal/app"
	"ares/internal/config"
	"ares/internal/db"
	"ares/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "ares",
	Short: "ARES script mission backend",
	Long: `ARES tracks test-script missions from request to release.
- Workspace: the .ares folder holding the SQLite database; ares.yml sits next to it.
- Mission: one script's workflow record, kept in the create store until its first release and in the update store afterwards.
- Lifecycle: create -> assess -> review -> plan -> confirm -> development -> validation -> edit-readme -> readme -> pre-release -> release.
- Orders: next moves forward, prev sends the mission back, wait keeps it in place while testers sign off.
- Outbox: mails, repository tags and source cleanup queued by each change and run by 'ares outbox run' or 'ares serve'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ARES")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides log.level)")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text, json or logfmt")
	for _, name := range []string{"workspace", "json", "actor-id", "force", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(remindCmd())
	rootCmd.AddCommand(outboxCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
}

// loadConfig reads ares.yml and applies flag and ARES_* overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	overrides := []struct {
		key string
		dst *string
	}{
		{"log-level", &cfg.Log.Level},
		{"log-format", &cfg.Log.Format},
		{"jwt-secret", &cfg.Server.JWTSecret},
		{"mail-host", &cfg.Mail.Host},
		{"repository-token", &cfg.Repository.Token},
		{"portal", &cfg.Portal.Endpoint},
	}
	for _, o := range overrides {
		if v := viper.GetString(o.key); v != "" {
			*o.dst = v
		}
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) *log.Logger {
	return logging.New(os.Stderr, logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, viper.GetString("workspace"), cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
