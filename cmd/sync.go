package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	syncsvc "github.com/accessops/idsync/pkg/sync"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	syncCfgFile string
)

//nolint:gochecknoglobals // Cobra commands are typically global
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the synchronization daemon",
	Long: `Runs the full daemon: source poller, differential cache, task worker,
leader election, admin API and metrics.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVar(&syncCfgFile, "config", "config.yaml", "config file (default is config.yaml)")
}

func loadAppConfigFromFile(file string) (*syncsvc.AppConfig, error) {
	if file == "" {
		file = "config.yaml"
	}

	config := &syncsvc.AppConfig{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(file) //nolint:gosec // User-provided config file path
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, err
	}

	return config, nil
}

func runSync(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	config, err := loadAppConfigFromFile(syncCfgFile)
	if err != nil {
		return err
	}

	level, err := logrus.ParseLevel(config.Logging)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	logger.Info("Configuration loaded")

	app := syncsvc.NewApplication(config, logger)
	if err := app.Start(context.Background()); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	return app.Stop()
}
