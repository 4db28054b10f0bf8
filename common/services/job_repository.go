package services

import (
	"context"

	"github.com/tdrizzle0202/hiddencash/common/constants"
	"github.com/tdrizzle0202/hiddencash/common/db"
	"github.com/tdrizzle0202/hiddencash/common/models"
)

// JobRepository is the PostgreSQL implementation of JobService.
type JobRepository struct {
	db *db.DB
}

// NewJobRepository creates a new PostgreSQL JobRepository
func NewJobRepository(database *db.DB) JobService {
	return &JobRepository{
		db: database,
	}
}

func (r *JobRepository) CreateJob(ctx context.Context, profileID, stateCode string, priority int) (string, error) {
	var id string
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO search_jobs (search_profile_id, state_code, priority)
		VALUES ($1, $2, $3)
		RETURNING id`,
		profileID, stateCode, priority).Scan(&id)
	return id, err
}

func (r *JobRepository) MarkStarted(ctx context.Context, jobID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE search_jobs
		SET status = $2, started_at = now()
		WHERE id = $1`,
		jobID, constants.JobProcessing)
	return err
}

func (r *JobRepository) MarkCompleted(ctx context.Context, jobID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE search_jobs
		SET status = $2, completed_at = now()
		WHERE id = $1`,
		jobID, constants.JobCompleted)
	return err
}

func (r *JobRepository) MarkFailed(ctx context.Context, jobID, message string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE search_jobs
		SET status = $2, error_message = $3, completed_at = now()
		WHERE id = $1`,
		jobID, constants.JobFailed, message)
	return err
}

func (r *JobRepository) CountForUser(ctx context.Context, userID string) (models.JobCounts, error) {
	var counts models.JobCounts
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE sj.status IN ($2, $3)),
		       COUNT(*) FILTER (WHERE sj.status = $4)
		FROM search_jobs sj
		JOIN search_profiles sp ON sp.id = sj.search_profile_id
		WHERE sp.user_id = $1`,
		userID, constants.JobPending, constants.JobProcessing, constants.JobCompleted).
		Scan(&counts.Pending, &counts.Completed)
	return counts, err
}
