package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/webskill/pkg/db"
	"github.com/jingkaihe/webskill/pkg/db/migrations"
	"github.com/jingkaihe/webskill/pkg/presenter"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management commands",
	Long:  `Commands for managing the AFC database (migrations, status, etc.)`,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database migration status",
	Long:  `Shows the current database migration status, including applied and pending migrations.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path := getDatabasePath()

		conn, err := db.Open(ctx, path)
		if err != nil {
			return errors.Wrap(err, "failed to open database")
		}
		defer conn.Close()

		applied, err := db.NewMigrationRunner(conn).GetAppliedVersions(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to get migration status")
		}

		appliedMap := make(map[int64]bool)
		for _, v := range applied {
			appliedMap[v] = true
		}

		allMigrations := migrations.All()

		fmt.Println("Database Migration Status")
		fmt.Println("=========================")
		fmt.Printf("Database: %s\n\n", path)

		appliedCount := 0
		for _, m := range allMigrations {
			status := "[ ]"
			if appliedMap[m.Version] {
				status = "[x]"
				appliedCount++
			}
			fmt.Printf("%s %d - %s\n", status, m.Version, m.Description)
		}

		fmt.Printf("\nApplied: %d/%d migrations\n", appliedCount, len(allMigrations))

		return nil
	},
}

var dbRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Rollback the last database migration",
	Long:  `Rolls back the most recently applied database migration.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		conn, err := db.Open(ctx, getDatabasePath())
		if err != nil {
			return errors.Wrap(err, "failed to open database")
		}
		defer conn.Close()

		runner := db.NewMigrationRunner(conn)
		applied, err := runner.GetAppliedVersions(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to get migration status")
		}

		if len(applied) == 0 {
			presenter.Warning("No migrations to rollback")
			return nil
		}

		lastVersion := applied[len(applied)-1]

		var description string
		for _, m := range migrations.All() {
			if m.Version == lastVersion {
				description = m.Description
				break
			}
		}

		presenter.Info(fmt.Sprintf("Rolling back migration %d: %s", lastVersion, description))

		if err := runner.Rollback(ctx, migrations.All()); err != nil {
			return errors.Wrap(err, "failed to rollback migration")
		}

		presenter.Success(fmt.Sprintf("Successfully rolled back migration %d", lastVersion))

		return nil
	},
}

func getDatabasePath() string {
	if path := viper.GetString("db_path"); path != "" {
		return path
	}
	path, err := db.DefaultDBPath()
	if err != nil {
		return "unknown"
	}
	return path
}

func init() {
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbRollbackCmd)
}
