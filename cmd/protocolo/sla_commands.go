package main

import (
	"errors"
	"fmt"
	"time"

	"protocolo-municipal/internal/app"
	"protocolo-municipal/internal/calendar"
	"protocolo-municipal/internal/sla"

	"github.com/spf13/cobra"
)

const sweepLockTTL = 30 * time.Minute

func newSLACommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sla",
		Short: "Deadline tracking jobs and reports",
	}
	cmd.AddCommand(newSLASweepCommand(ctx))
	cmd.AddCommand(newSLAReportCommand(ctx))
	return cmd
}

func newSLASweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Recompute deadlines of every active protocol, alerting and escalating as needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				var res sla.SweepResult
				err := withJobLock(cmd.Context(), a, "sla-sweep", sweepLockTTL, func() error {
					var err error
					res, err = a.SLA.CheckAllDeadlines(cmd.Context())
					return err
				})
				if errors.Is(err, errJobBusy) {
					fmt.Fprintln(cmd.ErrOrStderr(), "Sweep skipped: "+err.Error())
					return nil
				}
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, res)
				}
				rows := [][]string{
					{"Checked", itoa(res.Checked)},
					{"Level changed", itoa(res.Changed)},
					{"Notified", itoa(res.Notified)},
					{"Escalated", itoa(res.Escalated)},
					{"Failed", itoa(res.Failed)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Sweep", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newSLAReportCommand(ctx *commandContext) *cobra.Command {
	var (
		tipo        string
		responsavel string
		from        string
		to          string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize deadline health and list overdue protocols",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDate, err := parseDateFlag("from", from)
			if err != nil {
				return err
			}
			toDate, err := parseDateFlag("to", to)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				rep, err := a.SLA.Report(cmd.Context(), sla.ReportFilter{
					TipoDocumento: tipo,
					Responsavel:   responsavel,
					From:          calendar.Format(fromDate),
					To:            calendar.Format(toDate),
				})
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, rep)
				}
				renderSLAReport(cmd, rep)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tipo, "tipo", "", "Filter by document type")
	cmd.Flags().StringVar(&responsavel, "responsavel", "", "Filter by responsible name")
	cmd.Flags().StringVar(&from, "from", "", "Opened on or after (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Opened on or before (YYYY-MM-DD)")
	return cmd
}

var reportLevels = []sla.Level{
	sla.LevelVerde,
	sla.LevelAmarelo,
	sla.LevelLaranja,
	sla.LevelVermelho,
	sla.LevelSemPrazo,
	sla.LevelConcluido,
}

func renderSLAReport(cmd *cobra.Command, rep sla.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Total: %d  Overdue: %d  Average elapsed: %.1f%%\n", rep.Total, rep.Overdue, rep.AveragePercent)

	levels := make([][]string, 0, len(reportLevels))
	for _, l := range reportLevels {
		levels = append(levels, []string{string(l), itoa(rep.ByLevel[l])})
	}
	fmt.Fprintln(out, renderTable([]string{"Level", "Protocols"}, levels, []columnAlignment{alignLeft, alignRight}))

	if len(rep.OverdueItems) == 0 {
		return
	}
	rows := make([][]string, 0, len(rep.OverdueItems))
	for _, it := range rep.OverdueItems {
		rows = append(rows, []string{it.Numero, it.Assunto, it.Responsavel, it.DataLimite, itoa(it.DiasAtraso)})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Numero", "Assunto", "Responsavel", "Data limite", "Dias atraso"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
}
