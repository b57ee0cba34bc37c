// Package cli implements the rentledger command line: the API server and the
// maintenance commands operators run against the same database.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/matthewbaird/rentledger/internal/config"
	"github.com/matthewbaird/rentledger/internal/logging"
)

// env is the state shared by every subcommand once the root has loaded
// configuration.
type env struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger
}

// NewRootCmd builds the rentledger command tree.
func NewRootCmd() *cobra.Command {
	e := &env{v: viper.New()}

	root := &cobra.Command{
		Use:   "rentledger",
		Short: "Lease financial ledger",
		Long: `rentledger tracks advance rent, invoices, payment submissions and
security deposits per lease, and serves them over an HTTP API.

Configuration is read from --config, then RENTLEDGER_* environment variables,
then flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(e.v, e.cfgFile)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(log)
			e.cfg, e.log = cfg, log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.log != nil {
				_ = e.log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&e.cfgFile, "config", "c", "", "Path to a config file (yaml, toml or json)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "json", "Log format: json or console")
	pf.String("db-driver", "sqlite", "Database driver: sqlite or postgres")
	pf.String("db-dsn", "", "Database DSN")
	bindFlags(e.v, pf, map[string]string{
		"log.level":       "log-level",
		"log.format":      "log-format",
		"database.driver": "db-driver",
		"database.dsn":    "db-dsn",
	})

	root.AddCommand(
		newServeCmd(e),
		newMigrateCmd(e),
		newRepairDepositsCmd(e),
		newRetroApplyCmd(e),
		newAuditCmd(e),
		newMarkOverdueCmd(e),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// bindFlags maps config keys to flags so an explicitly set flag wins over
// file and environment values.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
