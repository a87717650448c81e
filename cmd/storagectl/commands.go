package main

import (
	"context"
	"fmt"
	"time"

	"alcyxob/attachment-offload/internal/service"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// deps are the services the CLI drives.
type deps struct {
	Registry service.ConfigRegistry
	Migrator service.BulkMigrator
	Status   service.StatusService
}

type openFunc func(ctx context.Context, configPath string) (*deps, func(), error)

func newRootCommand(open openFunc) *cobra.Command {
	var (
		configPath string
		timeout    time.Duration
	)

	rootCmd := &cobra.Command{
		Use:           "storagectl",
		Short:         "Administer remote attachment storage",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "Config file or directory")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Hour, "Overall command timeout")

	// run opens the services, runs fn and releases them.
	run := func(cmd *cobra.Command, fn func(ctx context.Context, d *deps) error) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		d, closeFn, err := open(ctx, configPath)
		if err != nil {
			return err
		}
		defer closeFn()
		return fn(ctx, d)
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the active configuration and offload statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, d *deps) error {
				report, err := d.Status.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
				return nil
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "activate <config-id>",
		Short: "Make a remote config the only active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := primitive.ObjectIDFromHex(args[0])
			if err != nil {
				return fmt.Errorf("invalid config id %q", args[0])
			}
			return run(cmd, func(ctx context.Context, d *deps) error {
				cfg, err := d.Registry.Activate(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Activated %s (bucket %s)\n", cfg.Name, cfg.Bucket)
				return nil
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "test-connection <config-id>",
		Short: "Check that a remote config can write to its bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := primitive.ObjectIDFromHex(args[0])
			if err != nil {
				return fmt.Errorf("invalid config id %q", args[0])
			}
			return run(cmd, func(ctx context.Context, d *deps) error {
				result, err := d.Registry.TestConnection(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.Message)
				if !result.Success {
					return fmt.Errorf("connection test failed")
				}
				return nil
			})
		},
	})

	rootCmd.AddCommand(newMigrateCommand(run))
	return rootCmd
}

func newMigrateCommand(run func(*cobra.Command, func(context.Context, *deps) error) error) *cobra.Command {
	var (
		mimetype string
		rawIDs   []string
		preview  bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upload existing local attachments to the active bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.MigrationRequest{Mimetype: mimetype}
			for _, raw := range rawIDs {
				id, err := primitive.ObjectIDFromHex(raw)
				if err != nil {
					return fmt.Errorf("invalid attachment id %q", raw)
				}
				req.IDs = append(req.IDs, id)
			}
			return run(cmd, func(ctx context.Context, d *deps) error {
				if preview {
					p, err := d.Migrator.Preview(ctx, req)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%d files, %s\n", p.FileCount, service.FormatBytes(p.TotalBytes))
					return nil
				}
				report, err := d.Migrator.Migrate(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.Message)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mimetype, "mimetype", "", "Select attachments by MIME type")
	cmd.Flags().StringSliceVar(&rawIDs, "id", nil, "Select attachments by id (repeatable)")
	cmd.Flags().BoolVar(&preview, "preview", false, "Only report how much would be uploaded")
	return cmd
}
