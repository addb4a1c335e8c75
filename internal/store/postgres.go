package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const taskColumns = `task_id, business, start_date, end_date, lang, status, error_message, created_at, updated_at`

// --- Tasks ---

func (s *PostgresStore) CreateTask(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.TaskID, job.Business, job.StartDate.Time, job.EndDate.Time, job.Lang, string(job.Status),
		nullString(job.ErrorMessage), job.CreatedAt.Time, job.UpdatedAt.Time)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (*models.Job, error) {
	job, err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE task_id = $1`, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]models.Job, error) {
	var (
		where []string
		args  []any
	)
	if filter.Lang != "" {
		args = append(args, filter.Lang)
		where = append(where, fmt.Sprintf("lang = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, task_id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		job, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateTaskStatus moves a task to status. The current row is locked so
// concurrent workers cannot both leave the running state.
func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, taskID string, status models.JobStatus, errorMessage string) (*models.Job, error) {
	var updated *models.Job
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM tasks WHERE task_id = $1 FOR UPDATE`, taskID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get task status: %w", err)
		}

		if !models.CanTransition(models.JobStatus(current), status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
		}

		updated, err = scanTask(tx.QueryRow(ctx,
			`UPDATE tasks SET status = $2, error_message = $3, updated_at = $4
			 WHERE task_id = $1 RETURNING `+taskColumns,
			taskID, string(status), nullString(errorMessage), time.Now().UTC()))
		if err != nil {
			return fmt.Errorf("update task status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// --- Results ---

// ReplaceResults swaps the task's clusters and tickets for results in one
// transaction. Failed and canceled tasks reject results with ErrTaskClosed.
func (s *PostgresStore) ReplaceResults(ctx context.Context, taskID string, results []models.ClusterResult) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM tasks WHERE task_id = $1 FOR UPDATE`, taskID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get task status: %w", err)
		}
		switch models.JobStatus(status) {
		case models.JobStatusFailed, models.JobStatusCanceled:
			return fmt.Errorf("%w: task is %s", ErrTaskClosed, status)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM faq_clusters WHERE task_id = $1`, taskID); err != nil {
			return fmt.Errorf("delete clusters: %w", err)
		}

		batch := &pgx.Batch{}
		for i, r := range results {
			batch.Queue(
				`INSERT INTO faq_clusters (cluster_id, task_id, position, business, num_tickets, summarized)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				r.ClusterID, taskID, i, r.Business, r.NumTickets, r.Summarized)
			for j, t := range r.Tickets {
				batch.Queue(
					`INSERT INTO cluster_tickets (cluster_id, position, ticket_id, ticket_language, dt, player_issue_description, user_issue)
					 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
					r.ClusterID, j, t.TicketID, t.TicketLanguage, nullDate(t.Dt), t.PlayerIssueDescription, t.UserIssue)
			}
		}
		if batch.Len() == 0 {
			return nil
		}

		br := tx.SendBatch(ctx, batch)
		for range batch.Len() {
			if _, err := br.Exec(); err != nil {
				br.Close()
				if isDuplicateKeyError(err) {
					return ErrDuplicateKey
				}
				return fmt.Errorf("insert results: %w", err)
			}
		}
		return br.Close()
	})
}

func (s *PostgresStore) GetFAQ(ctx context.Context, taskID string) ([]models.FaqItem, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE task_id = $1)`, taskID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check task: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.pool.Query(ctx,
		`SELECT cluster_id, business, num_tickets, summarized
		 FROM faq_clusters WHERE task_id = $1 ORDER BY position`, taskID)
	if err != nil {
		return nil, fmt.Errorf("get faq: %w", err)
	}
	defer rows.Close()

	items := []models.FaqItem{}
	for rows.Next() {
		var item models.FaqItem
		if err := rows.Scan(&item.ClusterID, &item.Business, &item.NumTickets, &item.Summarized); err != nil {
			return nil, fmt.Errorf("scan faq item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetClusterDetail(ctx context.Context, clusterID string) ([]models.ClusterDetailItem, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM faq_clusters WHERE cluster_id = $1)`, clusterID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check cluster: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.pool.Query(ctx,
		`SELECT ticket_id, ticket_language, dt, player_issue_description, user_issue
		 FROM cluster_tickets WHERE cluster_id = $1 ORDER BY position`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("get cluster detail: %w", err)
	}
	defer rows.Close()

	items := []models.ClusterDetailItem{}
	for rows.Next() {
		var (
			item models.ClusterDetailItem
			dt   *time.Time
		)
		if err := rows.Scan(&item.TicketID, &item.TicketLanguage, &dt, &item.PlayerIssueDescription, &item.UserIssue); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		if dt != nil {
			item.Dt = models.DateOf(*dt)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanTask(row pgx.Row) (*models.Job, error) {
	var (
		job                  models.Job
		status               string
		errorMessage         *string
		start, end           time.Time
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&job.TaskID, &job.Business, &start, &end, &job.Lang, &status,
		&errorMessage, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	job.StartDate = models.DateOf(start)
	job.EndDate = models.DateOf(end)
	job.Status = models.JobStatus(status)
	job.CreatedAt = models.TimestampOf(createdAt)
	job.UpdatedAt = models.TimestampOf(updatedAt)
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	return &job, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullDate(d models.Date) *time.Time {
	if d.IsZero() {
		return nil
	}
	return &d.Time
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
