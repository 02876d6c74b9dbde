package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"gorm.io/datatypes"

	"github.com/unilearn/lms/core/progress"
)

const progressColumns = `id, student_id, material_id, "current_time", total_duration, watched_percentage,
	watched_seconds, is_completed, completed_at, has_triggered_attendance, watch_sessions, created_at, updated_at`

type progressRow struct {
	ID                     string                                     `db:"id"`
	StudentID              string                                     `db:"student_id"`
	MaterialID             string                                     `db:"material_id"`
	CurrentTime            float64                                    `db:"current_time"`
	TotalDuration          null.Float64                               `db:"total_duration"`
	WatchedPercentage      float64                                    `db:"watched_percentage"`
	WatchedSeconds         float64                                    `db:"watched_seconds"`
	IsCompleted            bool                                       `db:"is_completed"`
	CompletedAt            null.Time                                  `db:"completed_at"`
	HasTriggeredAttendance bool                                       `db:"has_triggered_attendance"`
	WatchSessions          datatypes.JSONSlice[progress.WatchSession] `db:"watch_sessions"`
	CreatedAt              time.Time                                  `db:"created_at"`
	UpdatedAt              time.Time                                  `db:"updated_at"`
}

func newProgressRow(vp progress.VideoProgress) progressRow {
	sessions := vp.WatchSessions
	if sessions == nil {
		sessions = []progress.WatchSession{}
	}
	return progressRow{
		ID:                     vp.ID,
		StudentID:              vp.StudentID,
		MaterialID:             vp.MaterialID,
		CurrentTime:            vp.CurrentTime,
		TotalDuration:          null.Float64FromPtr(vp.TotalDuration),
		WatchedPercentage:      vp.WatchedPercentage,
		WatchedSeconds:         vp.WatchedSeconds,
		IsCompleted:            vp.IsCompleted,
		CompletedAt:            null.TimeFromPtr(vp.CompletedAt),
		HasTriggeredAttendance: vp.HasTriggeredAttendance,
		WatchSessions:          datatypes.JSONSlice[progress.WatchSession](sessions),
		CreatedAt:              vp.CreatedAt,
		UpdatedAt:              vp.UpdatedAt,
	}
}

func (row progressRow) toProgress() progress.VideoProgress {
	vp := progress.VideoProgress{
		ID:                     row.ID,
		StudentID:              row.StudentID,
		MaterialID:             row.MaterialID,
		CurrentTime:            row.CurrentTime,
		TotalDuration:          row.TotalDuration.Ptr(),
		WatchedPercentage:      row.WatchedPercentage,
		WatchedSeconds:         row.WatchedSeconds,
		IsCompleted:            row.IsCompleted,
		HasTriggeredAttendance: row.HasTriggeredAttendance,
		WatchSessions:          []progress.WatchSession(row.WatchSessions),
		CreatedAt:              row.CreatedAt.UTC(),
		UpdatedAt:              row.UpdatedAt.UTC(),
	}
	if row.CompletedAt.Valid {
		at := row.CompletedAt.Time.UTC()
		vp.CompletedAt = &at
	}
	if vp.WatchSessions == nil {
		vp.WatchSessions = []progress.WatchSession{}
	}
	return vp
}

type aggregateRow struct {
	MaterialID        string  `db:"material_id"`
	Viewers           int     `db:"viewers"`
	CompletedViewers  int     `db:"completed_viewers"`
	AveragePercentage float64 `db:"average_percentage"`
	TriggeredCount    int     `db:"triggered_count"`
}

type progressRepository struct {
	db *sqlx.DB
}

var _ progress.Repository = (*progressRepository)(nil)

func NewProgressRepository(db *sqlx.DB) *progressRepository {
	return &progressRepository{db: db}
}

// UpdateOrCreateProgress inserts the row if missing then locks it with SELECT ... FOR UPDATE,
// so concurrent updates of the same (student, material) run one after the other.
func (repo *progressRepository) UpdateOrCreateProgress(
	ctx context.Context,
	studentID, materialID string,
	mutate func(vp *progress.VideoProgress) error,
) (progress.VideoProgress, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return progress.VideoProgress{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO video_progress (id, student_id, material_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (student_id, material_id) DO NOTHING`,
		uuid.NewString(), studentID, materialID, now,
	)
	if err != nil {
		return progress.VideoProgress{}, errors.Wrap(err, "inserting video progress")
	}

	var row progressRow
	err = tx.GetContext(
		ctx, &row,
		"SELECT "+progressColumns+" FROM video_progress WHERE student_id = $1 AND material_id = $2 FOR UPDATE",
		studentID, materialID,
	)
	if err != nil {
		return progress.VideoProgress{}, errors.Wrap(err, "locking video progress")
	}

	vp := row.toProgress()
	if err = mutate(&vp); err != nil {
		return progress.VideoProgress{}, err
	}

	_, err = tx.NamedExecContext(ctx, `UPDATE video_progress SET
		"current_time" = :current_time,
		total_duration = :total_duration,
		watched_percentage = :watched_percentage,
		watched_seconds = :watched_seconds,
		is_completed = :is_completed,
		completed_at = :completed_at,
		has_triggered_attendance = :has_triggered_attendance,
		watch_sessions = :watch_sessions,
		updated_at = :updated_at
		WHERE id = :id`, newProgressRow(vp))
	if err != nil {
		return progress.VideoProgress{}, errors.Wrap(err, "updating video progress")
	}
	if err = tx.Commit(); err != nil {
		return progress.VideoProgress{}, errors.Wrap(err, "committing video progress")
	}
	return vp, nil
}

func (repo *progressRepository) MarkAttendanceTriggered(ctx context.Context, id string) (bool, error) {
	res, err := repo.db.ExecContext(
		ctx,
		`UPDATE video_progress SET has_triggered_attendance = true, updated_at = $2
		WHERE id = $1 AND NOT has_triggered_attendance`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return false, errors.Wrap(err, "marking attendance triggered")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "marking attendance triggered")
	}
	return n == 1, nil
}

func (repo *progressRepository) GetProgress(ctx context.Context, studentID, materialID string) (progress.VideoProgress, error) {
	var row progressRow
	err := repo.db.GetContext(
		ctx, &row,
		"SELECT "+progressColumns+" FROM video_progress WHERE student_id = $1 AND material_id = $2",
		studentID, materialID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return progress.VideoProgress{}, progress.ErrNotFound
		}
		return progress.VideoProgress{}, errors.Wrap(err, "selecting video progress")
	}
	return row.toProgress(), nil
}

func (repo *progressRepository) QueryProgress(ctx context.Context, studentID string, materialIDs []string) ([]progress.VideoProgress, error) {
	if len(materialIDs) == 0 {
		return []progress.VideoProgress{}, nil
	}
	query, args, err := build(
		repo.db,
		"SELECT "+progressColumns+" FROM video_progress WHERE student_id = ? AND material_id IN (?)",
		studentID, materialIDs,
	)
	if err != nil {
		return nil, err
	}

	var rows []progressRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting video progress")
	}
	res := make([]progress.VideoProgress, len(rows))
	for i, row := range rows {
		res[i] = row.toProgress()
	}
	return res, nil
}

func (repo *progressRepository) AggregateByMaterials(ctx context.Context, materialIDs []string) ([]progress.Aggregate, error) {
	if len(materialIDs) == 0 {
		return []progress.Aggregate{}, nil
	}
	query, args, err := build(repo.db, `SELECT
			material_id,
			COUNT(*) AS viewers,
			COUNT(*) FILTER (WHERE is_completed) AS completed_viewers,
			COALESCE(AVG(watched_percentage), 0) AS average_percentage,
			COUNT(*) FILTER (WHERE has_triggered_attendance) AS triggered_count
		FROM video_progress
		WHERE material_id IN (?)
		GROUP BY material_id`, materialIDs)
	if err != nil {
		return nil, err
	}

	var rows []aggregateRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "aggregating video progress")
	}
	aggs := make([]progress.Aggregate, len(rows))
	for i, row := range rows {
		aggs[i] = progress.Aggregate(row)
	}
	return aggs, nil
}
