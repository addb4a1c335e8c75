// ticketsctl submits clustering tasks and browses their results from the
// command line, against the same job service the dashboard uses.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/hellof20/mihoyo-cs-tickets/internal/catalog"
	"github.com/hellof20/mihoyo-cs-tickets/internal/config"
	"github.com/hellof20/mihoyo-cs-tickets/internal/jobsvc"
	"github.com/hellof20/mihoyo-cs-tickets/internal/logger"
	"github.com/hellof20/mihoyo-cs-tickets/internal/monitor"
	"github.com/hellof20/mihoyo-cs-tickets/internal/submission"
	"github.com/hellof20/mihoyo-cs-tickets/internal/table"
	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
)

const usage = `Usage:
  ticketsctl [--base-url URL] [--timeout D] <command> [flags]

Commands:
  submit   --business B --lang L --start YYYY-MM-DD --end YYYY-MM-DD
  tasks    [--page N] [--size N] [--lang L] [--status S]
  task     TASK_ID [--csv]
  faq      TASK_ID [--csv]
  cluster  CLUSTER_ID [--csv]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.Load(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", jobsvc.Message(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("ticketsctl", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(io.Discard)
	baseURL := fs.String("base-url", cfg.JobService.BaseURL, "job service base URL")
	timeout := fs.Duration("timeout", cfg.JobService.Timeout, "request timeout")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprint(stdout, usage)
			return nil
		}
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return errors.New("missing command\n" + usage)
	}

	client := jobsvc.NewHTTPClient(strings.TrimRight(*baseURL, "/"),
		jobsvc.WithTimeout(*timeout),
		jobsvc.WithLogger(logger.Discard()),
	)

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "submit":
		return runSubmit(ctx, client, cfg.Dashboard.CatalogFile, cmdArgs, stdout)
	case "tasks":
		return runTasks(ctx, client, cmdArgs, stdout)
	case "task":
		return runTask(ctx, client, cmdArgs, stdout)
	case "faq":
		return runFAQ(ctx, client, cmdArgs, stdout)
	case "cluster":
		return runCluster(ctx, client, cmdArgs, stdout)
	case "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func runSubmit(ctx context.Context, client jobsvc.Client, catalogFile string, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("submit", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var form submission.Form
	fs.StringVar(&form.Business, "business", "", "business line")
	fs.StringVar(&form.Lang, "lang", "", "ticket language")
	fs.StringVar(&form.StartDate, "start", "", "first day, YYYY-MM-DD")
	fs.StringVar(&form.EndDate, "end", "", "last day, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cat, err := catalog.Load(catalogFile)
	if err != nil {
		return err
	}
	req, err := submission.NewValidator(cat).Validate(form)
	if err != nil {
		return err
	}

	job, err := client.SubmitJob(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Task created successfully (ID: %s)\n", job.TaskID)
	return nil
}

func runTasks(ctx context.Context, client jobsvc.Client, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("tasks", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	q := monitor.DefaultQuery()
	var status string
	fs.IntVar(&q.Page, "page", q.Page, "page number, from 1")
	fs.IntVar(&q.PageSize, "size", q.PageSize, "tasks per page")
	fs.StringVar(&q.Lang, "lang", "", "only tasks in this language")
	fs.StringVar(&status, "status", "", "only tasks in this status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if q.Page < 1 || q.PageSize < 1 {
		return errors.New("--page and --size must be positive")
	}
	if status != "" {
		q.Status = models.JobStatus(status)
		if !q.Status.Valid() {
			return fmt.Errorf("unknown status %q", status)
		}
	}

	jobs, err := client.ListJobs(ctx, jobsvc.ListFilter{
		Limit:  q.PageSize,
		Offset: q.Offset(),
		Lang:   q.Lang,
		Status: q.Status,
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(append(table.Header(table.JobColumns), "FAQ"), "\t"))
	for _, row := range monitor.Rows(jobs) {
		faq := "-"
		if row.CanViewFAQ {
			faq = "ready"
		}
		fmt.Fprintln(tw, strings.Join(append(row.Cells, faq), "\t"))
	}
	return tw.Flush()
}

func runTask(ctx context.Context, client jobsvc.Client, args []string, stdout io.Writer) error {
	id, asCSV, err := idArgs("task", "TASK_ID", args)
	if err != nil {
		return err
	}
	job, err := client.GetJob(ctx, id)
	if err != nil {
		return err
	}
	jobs := []models.Job{*job}
	if asCSV {
		return table.WriteCSV(stdout, table.JobColumns, jobs, false)
	}
	return writeTable(stdout, table.JobColumns, jobs)
}

func runFAQ(ctx context.Context, client jobsvc.Client, args []string, stdout io.Writer) error {
	id, asCSV, err := idArgs("faq", "TASK_ID", args)
	if err != nil {
		return err
	}
	items, err := client.GetFAQ(ctx, id)
	if err != nil {
		return err
	}
	if asCSV {
		return table.WriteCSV(stdout, table.FAQColumns, items, false)
	}
	return writeTable(stdout, table.FAQColumns, items)
}

func runCluster(ctx context.Context, client jobsvc.Client, args []string, stdout io.Writer) error {
	id, asCSV, err := idArgs("cluster", "CLUSTER_ID", args)
	if err != nil {
		return err
	}
	items, err := client.GetClusterDetail(ctx, id)
	if err != nil {
		return err
	}
	if asCSV {
		return table.WriteCSV(stdout, table.DetailColumns, items, true)
	}
	return writeTable(stdout, table.DetailColumns, items)
}

// idArgs parses "<ID> [--csv]".
func idArgs(name, idName string, args []string) (string, bool, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	asCSV := fs.Bool("csv", false, "write CSV instead of a table")
	if err := fs.Parse(args); err != nil {
		return "", false, err
	}
	if fs.NArg() != 1 {
		return "", false, fmt.Errorf("%s needs exactly one %s", name, idName)
	}
	return fs.Arg(0), *asCSV, nil
}

func writeTable[T any](w io.Writer, cols []table.Column[T], items []T) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(table.Header(cols), "\t"))
	for _, it := range items {
		cells := table.Row(cols, it)
		for i, c := range cells {
			cells[i] = strings.ReplaceAll(c, "\n", " ")
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
