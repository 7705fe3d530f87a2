package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/BradenHooton/loginpopup/internal/config"
	pkglogger "github.com/BradenHooton/loginpopup/pkg/logger"
)

var logLevel string

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "loginctl",
	Short: "Operator tool for the login popup service",
	Long: `loginctl manages the login popup service: database migrations,
user accounts, TOTP enrollment, and headless logins through the popup endpoint.

Configuration is read from the same environment (and .env file) as the server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	logger, _ := pkglogger.New(pkglogger.Options{Level: logLevel})
	return logger
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// promptPassword asks for a secret without echoing it. Tests replace it.
var promptPassword = func(title string) (string, error) {
	var value string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&value).
		Run()
	return value, err
}
