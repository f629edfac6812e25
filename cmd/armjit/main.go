// armjit runs 32-bit ARM guest programs on translated host code.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/armjit/common"
	"github.com/colorfulnotion/armjit/log"
	"github.com/colorfulnotion/armjit/types"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	configPath string
	logLevel   string
	logModules string

	cfg types.Config
)

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		if cfg, err = types.LoadConfig(configPath); err != nil {
			return err
		}
	} else {
		cfg = types.DefaultConfig()
	}
	if cmd.Flags().Changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = logLevel
	}
	if logModules != "" {
		cfg.LogModules = logModules
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	log.InitLogger(cfg.LogLevel)
	log.EnableModules(cfg.LogModules)
	return cfg.Validate()
}

func main() {
	rootCmd := &cobra.Command{
		Use:               "armjit",
		Short:             "ARM guest dynamic binary translator",
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logModules, "debug", "", "comma separated log modules to enable")

	rootCmd.AddCommand(
		newRunCmd(),
		newDisasmCmd(),
		newTableCmd(),
		newChartCmd(),
		newConsoleCmd(),
		newVerifyCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("armjit %s (commit %s, built %s)\n", Version, common.GetCommitHash(), BuildTime)
			},
		},
	)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
