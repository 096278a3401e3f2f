package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tunnelkit/support/internal/app"
	"github.com/tunnelkit/support/internal/config"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "supportctl",
		Short:        "Send problem reports with an anonymised log bundle",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newReportCmd(), newViewLogCmd(), newPruneCmd())
	return rootCmd
}

func newReportCmd() *cobra.Command {
	var email, message string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Collect logs and send a problem report",
		Long: `Collects the application logs, removes the account token and other
identifying data, and sends them with your message. On failure you can retry
with the same report or edit it first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			wf := a.NewSession()
			wf.SetEmail(email)
			wf.SetMessage(message)

			p := &prompter{in: cmd.InOrStdin(), out: cmd.OutOrStdout()}
			return runReport(cmd.Context(), wf, p)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Address the support team can reply to (optional)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Description of the problem")
	return cmd
}

func newViewLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view-log",
		Short: "Collect the anonymised log bundle without sending it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			h, err := a.NewSession().ViewLog(cmd.Context())
			if err != nil {
				return fmt.Errorf("collect log: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

func newPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old log bundles",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if olderThan <= 0 {
				olderThan = a.Config().BundleRetention
			}
			n, err := a.PruneBundles(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d bundle(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age threshold (default BUNDLE_RETENTION)")
	return cmd
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return app.New(ctx, cfg)
}

var errAborted = errors.New("report not sent")
