// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/config"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/observability"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/service"
)

// flagBindings maps command flags onto configuration keys. A flag only
// overrides the file and environment when the user sets it.
var flagBindings = map[string]string{
	"addr":         "server.addr",
	"database-url": "database.url",
}

// app carries the state shared by the root command and its subcommands.
type app struct {
	cfgFile string
	cfg     config.Interface
	factory service.ComponentFactory
}

// newRootCmd builds the command tree. Components are created through factory
// so tests can substitute it.
func newRootCmd(factory service.ComponentFactory) (*cobra.Command, *app) {
	a := &app{factory: factory}

	root := &cobra.Command{
		Use:     "warehouse-cloud",
		Short:   "Cloud coordinator for the smart warehouse edge controllers.",
		Version: Version,
		// This runs before any subcommand, setting up config and logging.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := a.readConfigFile(v); err != nil {
				return err
			}
			if err := bindFlags(cmd, v); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				// Initialize a fallback logger so the failure is still reported.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "warehouse-cloud"})
				return err
			}
			a.cfg = cfg

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Info("Starting warehouse-cloud", zap.String("version", Version))
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.warehouse-cloud/config.yaml)")
	root.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newSimulateCmd(a))
	root.AddCommand(newVersionCmd())
	return root, a
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	root, _ := newRootCmd(service.NewComponentFactory())
	if err := root.ExecuteContext(context.Background()); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// readConfigFile loads the explicit --config file, or searches the working
// directory and the user's home for config.yaml. A missing file is not an error.
func (a *app) readConfigFile(v *viper.Viper) error {
	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".warehouse-cloud"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagBindings {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %q: %w", name, err)
		}
	}
	return nil
}
