package main

import (
	"errors"
	"fmt"
	"time"

	"protocolo-municipal/internal/app"
	"protocolo-municipal/internal/audit"

	"github.com/spf13/cobra"
)

const cleanupLockTTL = time.Hour

func newAuditCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit trail maintenance and reports",
	}
	cmd.AddCommand(newAuditCleanupCommand(ctx))
	cmd.AddCommand(newAuditReportCommand(ctx))
	return cmd
}

func newAuditCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete entries older than AUDIT_RETENTION (error and critical entries are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				var deleted int64
				err := withJobLock(cmd.Context(), a, "audit-cleanup", cleanupLockTTL, func() error {
					var err error
					deleted, err = a.Audit.CleanupOldLogs(cmd.Context())
					return err
				})
				if errors.Is(err, errJobBusy) {
					fmt.Fprintln(cmd.ErrOrStderr(), "Cleanup skipped: "+err.Error())
					return nil
				}
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]int64{"deleted": deleted})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit entries\n", deleted)
				return nil
			})
		},
	}
}

func newAuditReportCommand(ctx *commandContext) *cobra.Command {
	var (
		userID int64
		action string
		from   string
		to     string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate the audit trail per action",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDate, err := parseDateFlag("from", from)
			if err != nil {
				return err
			}
			toDate, err := parseDateFlag("to", to)
			if err != nil {
				return err
			}
			f := audit.ReportFilter{UserID: userID, Action: action, From: fromDate}
			if !toDate.IsZero() {
				f.To = toDate.AddDate(0, 0, 1).Add(-time.Nanosecond)
			}
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				rows, err := a.Audit.Report(cmd.Context(), f)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, rows)
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No audit entries match")
					return nil
				}
				table := make([][]string, 0, len(rows))
				for _, r := range rows {
					table = append(table, []string{r.Label, r.Action, itoa(r.Total), itoa(r.UniqueUsers), itoa(r.RecordsAffected)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Acao", "Codigo", "Total", "Usuarios", "Protocolos"},
					table,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "Filter by user id")
	cmd.Flags().StringVar(&action, "action", "", "Filter by action code")
	cmd.Flags().StringVar(&from, "from", "", "Entries on or after (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Entries on or before (YYYY-MM-DD)")
	return cmd
}
