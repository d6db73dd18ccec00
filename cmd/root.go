/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/magadiflo/usersvc/config"
	"github.com/magadiflo/usersvc/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "usersvc",
	Short: "User and role management service with JWT authentication",
	Long: `usersvc manages users and roles and issues access and refresh tokens.

	usersvc server
	usersvc migrate up
	usersvc seed apply --file development/seed.yaml
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and the logger shared by every command.
func setup() (config.Config, *zap.SugaredLogger) {
	cfg := config.LoadConfig()
	return cfg, logger.New(cfg.Log.Level)
}
