package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/archers7727/rokey5/internal/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down]",
	Short: "Run database migrations",
	Long: `Connect to PostgreSQL and apply (up, the default) or roll back (down) the
embedded schema migrations: the ros2_commands table and its NOTIFY trigger.

Reads the DSN from --postgres-dsn flag, POSTGRES_DSN env var, or config file.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"up", "down"},
	RunE:      runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	direction := "up"
	if len(args) == 1 {
		direction = args[0]
	}

	changed, err := postgres.Migrate(viper.GetString("postgres_dsn"), direction)
	if err != nil {
		return err
	}
	if !changed {
		fmt.Fprintln(cmd.OutOrStdout(), "no change")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migrations %s complete\n", direction)
	return nil
}
