// Package table describes how jobs, FAQ clusters and tickets are laid out
// as rows: column titles, widths and a formatter per column. The same
// columns drive the HTML tables, the CLI output and CSV export.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
)

// Column is static metadata for one column plus its cell formatter.
type Column[T any] struct {
	Key    string
	Title  string
	Width  int // preferred width in pixels; 0 lets the layout decide
	Format func(T) string
}

// Header returns the column titles.
func Header[T any](cols []Column[T]) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Title
	}
	return out
}

// Row formats item with every column.
func Row[T any](cols []Column[T], item T) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Format(item)
	}
	return out
}

// BOM is the UTF-8 byte order mark spreadsheet tools use to detect encoding.
const BOM = "\uFEFF"

// WriteCSV writes a header line and one line per row. Fields containing a
// comma, quote or newline are quoted with quotes doubled.
func WriteCSV[T any](w io.Writer, cols []Column[T], rows []T, withBOM bool) error {
	if withBOM {
		if _, err := io.WriteString(w, BOM); err != nil {
			return fmt.Errorf("writing bom: %w", err)
		}
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(cols)); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(Row(cols, r)); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Tone is the display color class of a status tag.
type Tone string

const (
	ToneProcessing Tone = "processing"
	ToneSuccess    Tone = "success"
	ToneError      Tone = "error"
	ToneWarning    Tone = "warning"
	ToneDefault    Tone = "default"
)

// StatusTone maps a job status to its tag tone.
func StatusTone(s models.JobStatus) Tone {
	switch s {
	case models.JobStatusRunning:
		return ToneProcessing
	case models.JobStatusSuccess:
		return ToneSuccess
	case models.JobStatusFailed:
		return ToneError
	case models.JobStatusCanceled:
		return ToneWarning
	default:
		return ToneDefault
	}
}

// JobColumns lays out the job list.
var JobColumns = []Column[models.Job]{
	{Key: "task_id", Title: "Task ID", Format: func(j models.Job) string { return j.TaskID }},
	{Key: "business", Title: "Business", Format: func(j models.Job) string { return j.Business }},
	{Key: "lang", Title: "Language", Format: func(j models.Job) string { return strings.ToUpper(j.Lang) }},
	{Key: "status", Title: "Status", Format: func(j models.Job) string { return strings.ToUpper(string(j.Status)) }},
	{Key: "start_date", Title: "Start Date", Format: func(j models.Job) string { return j.StartDate.String() }},
	{Key: "end_date", Title: "End Date", Format: func(j models.Job) string { return j.EndDate.String() }},
	{Key: "created_at", Title: "Created At", Format: func(j models.Job) string { return j.CreatedAt.String() }},
	{Key: "updated_at", Title: "Updated At", Format: func(j models.Job) string { return j.UpdatedAt.String() }},
	{Key: "error_message", Title: "Error Message", Format: func(j models.Job) string { return orDash(j.ErrorMessage) }},
}

// FAQColumns lays out the FAQ clusters of a job.
var FAQColumns = []Column[models.FaqItem]{
	{Key: "cluster_id", Title: "Cluster ID", Width: 120, Format: func(f models.FaqItem) string { return f.ClusterID }},
	{Key: "business", Title: "Business", Width: 120, Format: func(f models.FaqItem) string { return f.Business }},
	{Key: "num_tickets", Title: "Tickets", Width: 100, Format: func(f models.FaqItem) string { return strconv.Itoa(f.NumTickets) }},
	{Key: "summarized", Title: "Summary", Format: func(f models.FaqItem) string { return f.Summarized }},
}

// DetailColumns lays out the tickets of a cluster.
var DetailColumns = []Column[models.ClusterDetailItem]{
	{Key: "ticket_id", Title: "Ticket ID", Width: 120, Format: func(d models.ClusterDetailItem) string { return d.TicketID }},
	{Key: "ticket_language", Title: "Language", Width: 100, Format: func(d models.ClusterDetailItem) string { return d.TicketLanguage }},
	{Key: "dt", Title: "Date", Width: 120, Format: func(d models.ClusterDetailItem) string { return d.Dt.String() }},
	{Key: "player_issue_description", Title: "Player Issue", Width: 300, Format: func(d models.ClusterDetailItem) string { return d.PlayerIssueDescription }},
	{Key: "user_issue", Title: "User Issue", Format: func(d models.ClusterDetailItem) string { return d.UserIssue }},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
