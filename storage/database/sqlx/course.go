package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/unilearn/lms/core/course"
)

const (
	courseColumns   = "id, code, title, lecturer_id, created_at, updated_at"
	materialColumns = "id, course_id, title, type, week, order_index, is_attendance_trigger, attendance_threshold, created_at, updated_at"
)

type courseRow struct {
	ID         string    `db:"id"`
	Code       string    `db:"code"`
	Title      string    `db:"title"`
	LecturerID string    `db:"lecturer_id"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (row courseRow) toCourse() course.Course {
	return course.Course{
		ID:         row.ID,
		Code:       row.Code,
		Title:      row.Title,
		LecturerID: row.LecturerID,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

type materialRow struct {
	ID                  string       `db:"id"`
	CourseID            string       `db:"course_id"`
	Title               string       `db:"title"`
	Type                string       `db:"type"`
	Week                int          `db:"week"`
	OrderIndex          int          `db:"order_index"`
	IsAttendanceTrigger bool         `db:"is_attendance_trigger"`
	AttendanceThreshold null.Float64 `db:"attendance_threshold"`
	CreatedAt           time.Time    `db:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at"`
}

func (row materialRow) toMaterial() course.Material {
	return course.Material{
		ID:                  row.ID,
		CourseID:            row.CourseID,
		Title:               row.Title,
		Type:                course.MaterialType(row.Type),
		Week:                row.Week,
		OrderIndex:          row.OrderIndex,
		IsAttendanceTrigger: row.IsAttendanceTrigger,
		AttendanceThreshold: row.AttendanceThreshold.Ptr(),
		CreatedAt:           row.CreatedAt.UTC(),
		UpdatedAt:           row.UpdatedAt.UTC(),
	}
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	if crs.ID == "" {
		crs.ID = uuid.NewString()
	}
	_, err := repo.db.ExecContext(
		ctx,
		"INSERT INTO courses ("+courseColumns+") VALUES ($1, $2, $3, $4, $5, $6)",
		crs.ID, crs.Code, crs.Title, crs.LecturerID, crs.CreatedAt, crs.UpdatedAt,
	)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	var row courseRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+courseColumns+" FROM courses WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "selecting course")
	}
	return row.toCourse(), nil
}

func (repo *courseRepository) CreateMaterial(ctx context.Context, mat course.Material) (course.Material, error) {
	if mat.ID == "" {
		mat.ID = uuid.NewString()
	}
	_, err := repo.db.ExecContext(
		ctx,
		"INSERT INTO course_materials ("+materialColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		mat.ID, mat.CourseID, mat.Title, string(mat.Type), mat.Week, mat.OrderIndex,
		mat.IsAttendanceTrigger, null.Float64FromPtr(mat.AttendanceThreshold), mat.CreatedAt, mat.UpdatedAt,
	)
	if err != nil {
		return course.Material{}, errors.Wrap(err, "inserting course material")
	}
	return mat, nil
}

func (repo *courseRepository) GetMaterial(ctx context.Context, id string) (course.Material, error) {
	var row materialRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+materialColumns+" FROM course_materials WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return course.Material{}, course.ErrMaterialNotFound
		}
		return course.Material{}, errors.Wrap(err, "selecting course material")
	}
	return row.toMaterial(), nil
}

func (repo *courseRepository) QueryMaterials(ctx context.Context, filter course.MaterialFilter) ([]course.Material, error) {
	var w where
	if filter.CourseID != "" {
		w.and("course_id = ?", filter.CourseID)
	}
	if filter.Type != "" {
		w.and("type = ?", string(filter.Type))
	}
	if filter.Week != nil {
		w.and("week = ?", *filter.Week)
	}
	if filter.IsAttendanceTrigger != nil {
		w.and("is_attendance_trigger = ?", *filter.IsAttendanceTrigger)
	}

	var rows []materialRow
	query := "SELECT " + materialColumns + " FROM course_materials" + w.String() + " ORDER BY week, order_index, id"
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting course materials")
	}
	mats := make([]course.Material, len(rows))
	for i, row := range rows {
		mats[i] = row.toMaterial()
	}
	return mats, nil
}

func (repo *courseRepository) Enroll(ctx context.Context, courseID string, studentIDs ...string) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range studentIDs {
		_, err = tx.ExecContext(
			ctx,
			"INSERT INTO course_enrollments (course_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			courseID, id,
		)
		if err != nil {
			return errors.Wrap(err, "inserting enrollment")
		}
	}
	return errors.Wrap(tx.Commit(), "committing enrollments")
}

func (repo *courseRepository) CountEnrolledStudents(ctx context.Context, courseID string) (int, error) {
	var count int
	if err := repo.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1", courseID); err != nil {
		return 0, errors.Wrap(err, "counting enrollments")
	}
	return count, nil
}
