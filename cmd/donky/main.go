package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/semmidev/donky/internal/app"
	"github.com/semmidev/donky/internal/config"
	"github.com/semmidev/donky/internal/usecase"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "/etc/donky/donky.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if step := usecase.Step(err); step != "" {
			fmt.Fprintf(os.Stderr, "Failed step: %s\n", step)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "donky",
		Short:         "Restore MySQL physical backups into throwaway containers and depersonalize them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")

	withApp := func(fn func(ctx context.Context, a *app.App, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			application, err := app.New(ctx, cfg, configPath)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			defer application.Shutdown()

			return fn(ctx, application, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "obfuscate <name|all>",
			Short: "Restore the newest backup of an obfuscator and run its script",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
				if args[0] == "all" {
					_, err := a.ObfuscateAll(ctx)
					return err
				}
				_, err := a.Obfuscate(ctx, args[0])
				return err
			}),
		},
		&cobra.Command{
			Use:   "resolve <name>",
			Short: "Validate the newest backup of an obfuscator without restoring it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}

				inspector, err := app.NewInspector(cfg)
				if err != nil {
					return fmt.Errorf("initialize app: %w", err)
				}
				defer inspector.Close()

				b, err := inspector.Resolve(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "artifact:   %s\nmetadata:   %s\nformat:     %s\ncompressed: %t\nserver:     %s\nxtrabackup: %s\n",
					b.ArtifactPath, b.MetadataPath, b.Format, b.Compressed, b.ServerVersion, b.ToolVersion)
				return nil
			},
		},
		&cobra.Command{
			Use:   "cleanup <name>",
			Short: "Remove the containers and volume of an obfuscator",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
				return a.Cleanup(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "schedule",
			Short: "Run obfuscators on their cron schedules until interrupted",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
				return a.Run(ctx)
			}),
		},
	)

	return root
}
