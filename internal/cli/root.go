package cli

import (
	"os"

	"github.com/spf13/cobra"

	"risehigh-xp-service/internal/config"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

const defaultConfigPath = "config/config.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "xp-service",
		Short:         "RiseHigh challenge closing and XP leveling service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			applyEnvFlags(cmd)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&port, "port", "", "port to listen on (overrides server.port, env PORT)")
	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to YAML config (env CONFIG_PATH)")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewCloseChallengeCmd(&configPath))
	cmd.AddCommand(NewAwardSubmissionCmd(&configPath))
	return cmd
}

// applyEnvFlags fills flags the user did not pass from PORT and CONFIG_PATH.
// It runs after .env is loaded so values set only there are honoured.
func applyEnvFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if v := os.Getenv("PORT"); v != "" && !flags.Changed("port") {
		port = v
	}
	if v := os.Getenv("CONFIG_PATH"); v != "" && !flags.Changed("config") {
		configPath = v
	}
}
