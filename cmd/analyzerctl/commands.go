package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"interview-analyzer/internal/analysis"
	"interview-analyzer/internal/batch"
	"interview-analyzer/internal/bootstrap"
	"interview-analyzer/internal/evaluations"
	"interview-analyzer/internal/jobs"
	"interview-analyzer/internal/queue"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one inventory pass and the commentary drain that follows it",
		RunE: func(cmd *cobra.Command, args []string) error {
			lock := flock.New(ctx.lockPath())
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire scan lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("another scan holds %s", ctx.lockPath())
			}
			defer lock.Unlock()

			return ctx.withOrchestrator(cmd.Context(), func(app *bootstrap.App) error {
				report, scanErr := app.Orchestrator.RunScan(cmd.Context())
				app.Batch.Wait()

				if ctx.jsonOutput() {
					out := map[string]any{"scan": report}
					if last, ok := app.Batch.LastReport(); ok && report.BatchTriggered {
						out["drain"] = last
					}
					if err := writeJSON(cmd, out); err != nil {
						return err
					}
					return scanErr
				}

				fmt.Fprintln(cmd.OutOrStdout(), renderScanReport(report))
				if last, ok := app.Batch.LastReport(); ok && report.BatchTriggered {
					fmt.Fprintln(cmd.OutOrStdout(), renderDrainReport(last))
				}
				return scanErr
			})
		},
	}
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var sessionTag string
	var commentary bool

	cmd := &cobra.Command{
		Use:   "analyze <ownerId> <unitId>",
		Short: "Analyze one unit and wait for the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOrchestrator(cmd.Context(), func(app *bootstrap.App) error {
				job, err := app.Orchestrator.AnalyzeUnit(cmd.Context(), args[0], args[1], sessionTag)
				if err != nil {
					return err
				}
				var drain *batch.Report
				if commentary && job.Status == jobs.StatusCompleted {
					report := app.Orchestrator.DrainBatch(cmd.Context())
					drain = &report
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"job": job, "drain": drain})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderJobs([]jobs.Job{job}))
				if job.ErrorMessage != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", *job.ErrorMessage)
				}
				if drain != nil {
					fmt.Fprintln(cmd.OutOrStdout(), renderDrainReport(*drain))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sessionTag, "session-tag", jobs.SessionManual, "Session tag recorded on the job")
	cmd.Flags().BoolVar(&commentary, "commentary", false, "Generate commentary right after a successful analysis")
	return cmd
}

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var sessionTag string

	cmd := &cobra.Command{
		Use:   "enqueue <ownerId> <unitId>",
		Short: "Send an analysis trigger to the worker queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			if app.Queue == nil {
				return errors.New("RA_SQS_QUEUE_URL is not configured")
			}
			ownerID, unitID := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
			if ownerID == "" || unitID == "" {
				return errors.New("ownerId and unitId are required")
			}
			msg := queue.NewMessage(ownerID, unitID, sessionTag, time.Now())
			if err := app.Queue.Send(cmd.Context(), msg); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, msg)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s/%s request=%s\n", msg.OwnerID, msg.UnitID, msg.RequestID)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionTag, "session-tag", "", "Session tag recorded on the job")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var filter jobs.ListFilter

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent analysis jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			list, err := app.Orchestrator.ListRecent(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				if list == nil {
					list = []jobs.Job{}
				}
				return writeJSON(cmd, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJobs(list))
			return nil
		},
	}
	cmd.Flags().IntVar(&filter.Limit, "limit", analysis.DefaultListLimit, "Maximum number of jobs")
	cmd.Flags().StringVar(&filter.Status, "status", "", "Only jobs with this status")
	cmd.Flags().StringVar(&filter.OwnerID, "owner", "", "Only jobs for this owner")
	cmd.Flags().StringVar(&filter.SessionTag, "session-tag", "", "Only jobs with this session tag")
	return cmd
}

func newEvaluationsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluations <ownerId>",
		Short: "Show stored evaluations for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			list, err := app.EvalRepo.ListByOwner(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				if list == nil {
					list = []evaluations.Evaluation{}
				}
				return writeJSON(cmd, list)
			}
			if len(list) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No evaluations for %s\n", args[0])
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderEvaluations(list))
			return nil
		},
	}
}

func newInventoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inventory",
		Short: "List units present in the content store",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			units, err := app.Orchestrator.ListInventory(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, units)
			}
			if len(units) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No units in %s\n", app.Orchestrator.Bucket())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderInventory(units))
			return nil
		},
	}
}

func renderJobs(list []jobs.Job) string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			job.AnalysisID,
			job.OwnerID,
			job.UnitID,
			job.SessionTag,
			job.Status,
			job.Stage,
			strconv.Itoa(job.Progress),
			formatTime(job.UpdatedAt),
		})
	}
	return renderTable(
		[]string{"Analysis", "Owner", "Unit", "Session", "Status", "Stage", "Progress", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func renderEvaluations(list []evaluations.Evaluation) string {
	rows := make([][]string, 0, len(list))
	for _, e := range list {
		rows = append(rows, []string{
			e.UnitID,
			formatScore(e.PrimaryScore),
			formatScore(e.GazeScore),
			yesNo(e.SuspectedCopying),
			yesNo(e.SuspectedImpersonation),
			e.StrengthKeywords,
			e.WeaknessKeywords,
		})
	}
	return renderTable(
		[]string{"Unit", "Primary", "Gaze", "Copying", "Impersonation", "Strengths", "Weaknesses"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight},
	)
}

func renderInventory(units map[string][]string) string {
	owners := make([]string, 0, len(units))
	for owner := range units {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	rows := make([][]string, 0, len(owners))
	for _, owner := range owners {
		rows = append(rows, []string{owner, strconv.Itoa(len(units[owner])), strings.Join(units[owner], ", ")})
	}
	return renderTable([]string{"Owner", "Count", "Units"}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderScanReport(r analysis.ScanReport) string {
	rows := [][]string{
		{"Discovered", strconv.Itoa(r.Discovered)},
		{"Completed", strconv.Itoa(r.Completed)},
		{"Failed", strconv.Itoa(r.Failed)},
		{"Cancelled", strconv.Itoa(r.Cancelled)},
		{"Batch triggered", yesNo(r.BatchTriggered)},
		{"Duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()},
	}
	if r.Interrupted {
		rows = append(rows, []string{"Interrupted", "yes"})
	}
	if r.Error != "" {
		rows = append(rows, []string{"Error", r.Error})
	}
	return renderTable([]string{"Scan", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderDrainReport(r batch.Report) string {
	if !r.Ran {
		return fmt.Sprintf("Commentary drain did not run (%s)", r.Reason)
	}
	rows := make([][]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		detail := ""
		if o.Err != nil {
			detail = o.Err.Error()
		}
		rows = append(rows, []string{o.Entry.OwnerID, o.Entry.UnitID, o.Status, detail})
	}
	return renderTable([]string{"Owner", "Unit", "Commentary", "Detail"}, rows, nil)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
