package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/niraliveastro/astro-call-service/internal/database"
	"github.com/spf13/cobra"
)

var commandCmd = &cobra.Command{
	Use:   "command [name]",
	Short: "Run one-time command (migrate, migrate-create)",
	RunE:  runCommand,
}

func init() {
	rootCmd.AddCommand(commandCmd)
}

func runCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "available: migrate, migrate-create")
		return nil
	}
	name := args[0]
	switch name {
	case "migrate":
		return runMigrateUp(cmd, nil)
	case "migrate-create":
		migrationName := ""
		if len(args) > 1 {
			migrationName = args[1]
		} else {
			fmt.Fprint(cmd.OutOrStdout(), "Enter migration name: ")
			_, _ = fmt.Fscanln(cmd.InOrStdin(), &migrationName)
		}
		if migrationName == "" {
			return errors.New("migration name required")
		}
		base, err := database.CreateMigration(migrationName, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s.up.sql and %s.down.sql\n", base, base)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", name)
	}
}
