package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowforge/copilot/pkg/config"
	"github.com/flowforge/copilot/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "Streaming assistant engine",
	Long:  `Streams assistant responses, tracking tool calls, thinking sections and resume checkpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := viper.GetString("prompt")
		if prompt == "" {
			return cmd.Help()
		}
		return runPrompt(cmd.Context(), prompt)
	},
}

// Execute runs the root command
func Execute() {
	defer logger.Close()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is .copilot/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().StringP("prompt", "p", "", "send a single prompt and stream the response")
	viper.BindPFlag("prompt", rootCmd.PersistentFlags().Lookup("prompt"))

	rootCmd.PersistentFlags().Bool("resume", false, "resume an interrupted stream before sending")
	viper.BindPFlag("resume", rootCmd.PersistentFlags().Lookup("resume"))
}

func initConfig() {
	if err := config.Init(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	settings := config.Get()
	if err := logger.Init(settings.Logging.LogFile, settings.Logging.Level, settings.Logging.Persist); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
	}
}
