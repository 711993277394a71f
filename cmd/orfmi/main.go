// Command orfmi builds an Amazon Machine Image: it launches a disposable
// EC2 instance from a config-selected source image, customizes it over
// SSH with a setup script, snapshots it into an AMI, and removes every
// transient resource it created on the way.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/10U-Labs-LLC/orfmi/internal/build"
	"github.com/10U-Labs-LLC/orfmi/internal/config"
	"github.com/10U-Labs-LLC/orfmi/internal/ec2"
	"github.com/10U-Labs-LLC/orfmi/internal/ssh"
)

var errUsage = fmt.Errorf("invalid usage")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) || errors.Is(err, config.ErrInvalidConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile string
		setupFile  string
		extraFiles []string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "orfmi",
		Short:         "Build an AMI from a config file and a setup script",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("%w: invalid log level %q", errUsage, logLevel)
			}
			log := clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			ctx := clog.WithLogger(cmd.Context(), log)

			for flag, path := range map[string]string{
				"config-file": configFile,
				"setup-file":  setupFile,
			} {
				if path == "" {
					return fmt.Errorf("%w: --%s is required", errUsage, flag)
				}
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("%w: --%s: %v", errUsage, flag, err)
				}
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
			if err != nil {
				return fmt.Errorf("loading AWS configuration: %w", err)
			}

			infra := ec2.NewClient(awsec2.NewFromConfig(awsCfg))
			builder := build.New(cfg, infra, ssh.NewProvisioner(), setupFile, extraFiles)

			imageID, err := builder.Build(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "AMI_ID=%s\n", imageID)
			return nil
		},
	}

	cmd.Flags().StringVar(&configFile, "config-file", "", "path to the YAML build configuration")
	cmd.Flags().StringVar(&setupFile, "setup-file", "", "path to the setup script executed on the instance")
	cmd.Flags().StringSliceVar(&extraFiles, "extra-files", nil, "additional files uploaded to the instance after setup")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cmd.ExecuteContext(ctx)
}
