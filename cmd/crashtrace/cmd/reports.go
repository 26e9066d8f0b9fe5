package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/store"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Manage stored crash reports",
	Long: `List, inspect and prune the crash reports persisted by the
termination pipeline.

Examples:
  crashtrace reports
  crashtrace reports show 4f1c2a9e
  crashtrace reports prune --keep 10`,
	RunE: runReportsList,
}

var reportsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print the rendered report text",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsShow,
}

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a stored report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsDelete,
}

var reportsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest reports",
	RunE:  runReportsPrune,
}

var (
	reportsLimit int
	reportsKeep  int
)

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsDeleteCmd)
	reportsCmd.AddCommand(reportsPruneCmd)

	reportsCmd.Flags().IntVar(&reportsLimit, "limit", 0,
		"maximum reports to list (0 = all)")
	reportsPruneCmd.Flags().IntVar(&reportsKeep, "keep", 10,
		"number of newest reports to keep")
}

func openReportStore() (*store.SQLiteReportStore, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	reportStore, err := store.NewSQLiteReportStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening report store: %w", err)
	}
	return reportStore, nil
}

func runReportsList(cmd *cobra.Command, _ []string) error {
	reportStore, err := openReportStore()
	if err != nil {
		return err
	}
	defer func() { _ = reportStore.Close() }()

	reports, err := reportStore.List(context.Background(), reportsLimit)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no reports stored")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tKIND\tMESSAGE")
	for _, r := range reports {
		msg := r.Message
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Kind, msg)
	}
	return w.Flush()
}

func runReportsShow(cmd *cobra.Command, args []string) error {
	reportStore, err := openReportStore()
	if err != nil {
		return err
	}
	defer func() { _ = reportStore.Close() }()

	r, err := reportStore.Get(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), r.Report)
	return nil
}

func runReportsDelete(cmd *cobra.Command, args []string) error {
	reportStore, err := openReportStore()
	if err != nil {
		return err
	}
	defer func() { _ = reportStore.Close() }()

	if err := reportStore.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "deleted %s\n", args[0])
	}
	return nil
}

func runReportsPrune(cmd *cobra.Command, _ []string) error {
	reportStore, err := openReportStore()
	if err != nil {
		return err
	}
	defer func() { _ = reportStore.Close() }()

	if err := reportStore.Prune(context.Background(), reportsKeep); err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "kept newest %d reports\n", reportsKeep)
	}
	return nil
}
