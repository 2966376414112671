package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/classcord/classcord-server/internal/app"
	"github.com/classcord/classcord-server/internal/auth"
	"github.com/classcord/classcord-server/internal/config"
	"github.com/classcord/classcord-server/internal/log"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "classcord-server",
		Short:         "Classcord chat relay server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	tokenCmd := &cobra.Command{
		Use:   "admin-token [subject]",
		Short: "Mint a control-port token signed with the configured admin secret",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject := "admin"
			if len(args) > 0 {
				subject = args[0]
			}
			return runAdminToken(configPath, subject)
		},
	}
	root.AddCommand(tokenCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	bootLogger := log.New("info", "")

	cfg, path, err := config.Load(bootLogger, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := log.New(cfg.LogLevel, cfg.LogFile)
	logger.Info().Str("config", path).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Str("control_addr", cfg.ControlAddr).Msg("starting classcord server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runAdminToken(configPath, subject string) error {
	cfg, _, err := config.Load(nil, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tokens := app.AdminTokens(&cfg)
	if !tokens.Enabled() {
		return fmt.Errorf("admin_secret is not configured")
	}

	token, err := auth.GenerateAdminToken(tokens, subject)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	fmt.Println(token)
	return nil
}
