package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/archers7727/rokey5/internal/domain"
	"github.com/archers7727/rokey5/internal/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status COMMAND_ID",
	Short: "Print a command record",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringP("output", "o", "json", "output format: json | yaml")
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, viper.GetString("postgres_dsn"))
	if err != nil {
		return err
	}
	defer pool.Close()

	c, err := postgres.NewRepository(pool).GetByID(ctx, args[0])
	if err != nil {
		return err
	}
	return writeCommand(cmd.OutOrStdout(), c, format)
}

// writeCommand renders c as indented JSON or as YAML with the same field names.
func writeCommand(w io.Writer, c *domain.Command, format string) error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if format == "json" {
		_, err = fmt.Fprintln(w, string(raw))
		return err
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	return enc.Close()
}
