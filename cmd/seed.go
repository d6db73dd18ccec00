/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/magadiflo/usersvc/config"
	"github.com/magadiflo/usersvc/internal/auth"
	"github.com/magadiflo/usersvc/internal/db"
	"github.com/magadiflo/usersvc/internal/seed"
	"github.com/magadiflo/usersvc/internal/services"
	"github.com/magadiflo/usersvc/internal/storage"
	"github.com/magadiflo/usersvc/internal/store"
	"github.com/spf13/cobra"
)

var (
	seedFile   string
	seedObject string
	seedKey    string
)

// seedCmd represents the seed command.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load roles and users from a YAML manifest",
}

var seedApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create the roles and users listed in a manifest",
	Long: `Applies a seed manifest to the database. Existing roles and users are
kept; missing ones are created and listed roles are granted.

Without --file or --object the built-in roles are created.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, lg := setup()
		ctx := cmd.Context()

		if cfg.Database.Backend == config.DBBackendMemory {
			return errors.New("seed apply needs a persistent database")
		}

		src := seed.Source{File: cfg.Seed.File, ObjectKey: cfg.Seed.ObjectKey}
		if seedFile != "" || seedObject != "" {
			src = seed.Source{File: seedFile, ObjectKey: seedObject}
		}

		var objects *storage.Storage
		if src.File == "" && src.ObjectKey != "" {
			var err error
			objects, err = storage.New(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			if objects != nil {
				defer objects.Close()
			}
		}

		manifest, err := seed.Load(ctx, src, objects)
		if err != nil {
			return err
		}

		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer conn.Close()

		userService := services.NewUserService(
			store.NewUserRepository(conn),
			store.NewRoleRepository(conn),
			auth.NewBcryptHasher(),
			lg,
		)
		res, err := seed.Apply(ctx, userService, manifest, lg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "roles created: %d, users created: %d, roles granted: %d\n",
			res.RolesCreated, res.UsersCreated, res.Assignments)
		return nil
	},
}

var seedPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Validate a manifest and upload it to object storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, lg := setup()
		ctx := cmd.Context()

		data, err := os.ReadFile(seedFile)
		if err != nil {
			return fmt.Errorf("read manifest: %w", err)
		}

		objects, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		if objects == nil {
			return errors.New("STORAGE_BACKEND is not configured")
		}
		defer objects.Close()

		if err := seed.Push(ctx, objects, seedKey, data); err != nil {
			return err
		}
		lg.Infow("seed manifest uploaded", "bucket", objects.Bucket(), "key", seedKey)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.AddCommand(seedApplyCmd)
	seedCmd.AddCommand(seedPushCmd)

	seedApplyCmd.Flags().StringVar(&seedFile, "file", "", "local manifest path")
	seedApplyCmd.Flags().StringVar(&seedObject, "object", "", "manifest object key in the configured bucket")

	seedPushCmd.Flags().StringVar(&seedFile, "file", "", "local manifest path")
	seedPushCmd.Flags().StringVar(&seedKey, "key", "", "destination object key")
	_ = seedPushCmd.MarkFlagRequired("file")
	_ = seedPushCmd.MarkFlagRequired("key")
}
