package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	etl "github.com/whois-cat/ETL/internal/app"
	"github.com/whois-cat/ETL/pkg/checkpoint"
	"github.com/whois-cat/ETL/pkg/models"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or change the stored watermarks",
	Long: `Read and edit the per-kind checkpoints. Stop the running pipeline first: a
running instance keeps advancing its own watermarks.`,
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the watermark of every kind",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, store checkpoint.Store, _ []string) error {
		views, err := listCheckpoints(cmd.Context(), store)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		return writeCheckpoints(cmd.OutOrStdout(), views, format)
	}),
}

var checkpointSetCmd = &cobra.Command{
	Use:   "set <kind> <timestamp>",
	Short: "Move a kind's watermark to an RFC 3339 timestamp",
	Long: `Move a kind's watermark. Rows modified after the timestamp are reloaded on
the next cycle. Example: etl checkpoint set movies 2021-06-16T20:14:09Z`,
	Args: cobra.ExactArgs(2),
	RunE: withStore(func(cmd *cobra.Command, store checkpoint.Store, args []string) error {
		return setCheckpoint(cmd.Context(), store, args[0], args[1])
	}),
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset [kind...]",
	Short: "Delete checkpoints so the kinds reload from the beginning",
	RunE: withStore(func(cmd *cobra.Command, store checkpoint.Store, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		return resetCheckpoints(cmd.Context(), store, args, all)
	}),
}

func init() {
	checkpointListCmd.Flags().String("format", "table", "Output format (table, json or yaml)")
	checkpointResetCmd.Flags().Bool("all", false, "Reset every kind")

	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointSetCmd)
	checkpointCmd.AddCommand(checkpointResetCmd)
}

// withStore opens only the checkpoint backend before running fn.
func withStore(fn func(cmd *cobra.Command, store checkpoint.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, logger, sync, err := bootstrap()
		if err != nil {
			return err
		}
		defer sync()

		a := etl.New(cfg, logger)
		defer func() { _ = a.Stop(context.WithoutCancel(cmd.Context())) }()

		if err := a.OpenCheckpoints(cmd.Context()); err != nil {
			return err
		}
		return fn(cmd, a.Store, args)
	}
}

type checkpointView struct {
	Kind      string  `json:"kind" yaml:"kind"`
	Key       string  `json:"key" yaml:"key"`
	UpdatedAt *string `json:"updated_at" yaml:"updated_at"`
	LastID    string  `json:"last_id,omitempty" yaml:"last_id,omitempty"`
}

func listCheckpoints(ctx context.Context, store checkpoint.Store) ([]checkpointView, error) {
	views := make([]checkpointView, 0, len(models.Kinds))
	for _, kind := range models.Kinds {
		pos, err := store.Get(ctx, kind)
		if err != nil {
			return nil, err
		}
		view := checkpointView{Kind: kind.String(), Key: checkpoint.Key(kind)}
		if pos != nil {
			s := pos.Modified.UTC().Format(time.RFC3339Nano)
			view.UpdatedAt = &s
			view.LastID = pos.ID
		}
		views = append(views, view)
	}
	return views, nil
}

func writeCheckpoints(w io.Writer, views []checkpointView, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(views)
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tKEY\tUPDATED AT\tLAST ID")
		for _, v := range views {
			updated := "never (loads from " + checkpoint.Epoch.Format(time.RFC3339) + ")"
			if v.UpdatedAt != nil {
				updated = *v.UpdatedAt
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Kind, v.Key, updated, v.LastID)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q (use table, json or yaml)", format)
	}
}

func setCheckpoint(ctx context.Context, store checkpoint.Store, kindArg, tsArg string) error {
	kind, err := models.ParseKind(kindArg)
	if err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, tsArg)
	if err != nil {
		return fmt.Errorf("timestamp must be RFC 3339, e.g. 2021-06-16T20:14:09Z: %w", err)
	}
	// no id: every row at ts counts as loaded
	return store.Set(ctx, kind, models.Position{Modified: ts})
}

func resetCheckpoints(ctx context.Context, store checkpoint.Store, args []string, all bool) error {
	var kinds []models.Kind
	switch {
	case all && len(args) > 0:
		return errors.New("pass kinds or --all, not both")
	case all:
		kinds = models.Kinds
	case len(args) == 0:
		return errors.New("name at least one kind or pass --all")
	default:
		for _, arg := range args {
			kind, err := models.ParseKind(arg)
			if err != nil {
				return err
			}
			kinds = append(kinds, kind)
		}
	}

	for _, kind := range kinds {
		if err := store.Delete(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}
