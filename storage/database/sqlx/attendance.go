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

	"github.com/unilearn/lms/core"
	"github.com/unilearn/lms/core/attendance"
)

const attendanceColumns = `id, student_id, course_id, attendance_date, status, attendance_type, trigger_material_id,
	notes, submitted_at, verified_by, verified_at, metadata, created_at, updated_at`

var attendanceOrderings = map[string]string{
	"attendance_date": "attendance_date",
	"submitted_at":    "submitted_at",
	"created_at":      "created_at",
	"status":          "status",
}

type attendanceRow struct {
	ID                string            `db:"id"`
	StudentID         string            `db:"student_id"`
	CourseID          string            `db:"course_id"`
	AttendanceDate    null.Time         `db:"attendance_date"`
	Status            string            `db:"status"`
	AttendanceType    string            `db:"attendance_type"`
	TriggerMaterialID null.String       `db:"trigger_material_id"`
	Notes             string            `db:"notes"`
	SubmittedAt       null.Time         `db:"submitted_at"`
	VerifiedBy        null.String       `db:"verified_by"`
	VerifiedAt        null.Time         `db:"verified_at"`
	Metadata          datatypes.JSONMap `db:"metadata"`
	CreatedAt         time.Time         `db:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at"`
}

func (row attendanceRow) toAttendance() attendance.Attendance {
	att := attendance.Attendance{
		ID:                row.ID,
		StudentID:         row.StudentID,
		CourseID:          row.CourseID,
		Status:            attendance.Status(row.Status),
		Type:              attendance.Type(row.AttendanceType),
		TriggerMaterialID: row.TriggerMaterialID.Ptr(),
		Notes:             row.Notes,
		VerifiedBy:        row.VerifiedBy.Ptr(),
		Metadata:          map[string]interface{}(row.Metadata),
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
	if row.AttendanceDate.Valid {
		att.Date = attendance.DayOf(row.AttendanceDate.Time)
	}
	if row.SubmittedAt.Valid {
		att.SubmittedAt = row.SubmittedAt.Time.UTC()
	}
	if row.VerifiedAt.Valid {
		at := row.VerifiedAt.Time.UTC()
		att.VerifiedAt = &at
	}
	if att.Metadata == nil {
		att.Metadata = map[string]interface{}{}
	}
	return att
}

// dateArg binds a day to a DATE column whatever the session time zone.
func dateArg(day time.Time) string {
	return attendance.DayOf(day).Format(attendance.DateLayout)
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) CreateAttendance(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	att.ID = uuid.NewString()
	meta := att.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}

	_, err := repo.db.ExecContext(
		ctx,
		"INSERT INTO attendances ("+attendanceColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)",
		att.ID, att.StudentID, att.CourseID, dateArg(att.Date), string(att.Status), string(att.Type),
		null.StringFromPtr(att.TriggerMaterialID), att.Notes, att.SubmittedAt,
		null.StringFromPtr(att.VerifiedBy), null.TimeFromPtr(att.VerifiedAt), datatypes.JSONMap(meta),
		att.CreatedAt, att.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return attendance.Attendance{}, attendance.ErrAlreadySubmitted
		}
		return attendance.Attendance{}, errors.Wrap(err, "inserting attendance")
	}
	return att, nil
}

func (repo *attendanceRepository) GetAttendance(ctx context.Context, id string) (attendance.Attendance, error) {
	var row attendanceRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+attendanceColumns+" FROM attendances WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return attendance.Attendance{}, attendance.ErrNotFound
		}
		return attendance.Attendance{}, errors.Wrap(err, "selecting attendance")
	}
	return row.toAttendance(), nil
}

func (repo *attendanceRepository) FindDailyAttendance(
	ctx context.Context,
	studentID, courseID string,
	day time.Time,
) (attendance.Attendance, error) {
	var row attendanceRow
	err := repo.db.GetContext(
		ctx, &row,
		"SELECT "+attendanceColumns+" FROM attendances WHERE student_id = $1 AND course_id = $2 AND attendance_date = $3",
		studentID, courseID, dateArg(day),
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return attendance.Attendance{}, attendance.ErrNotFound
		}
		return attendance.Attendance{}, errors.Wrap(err, "selecting daily attendance")
	}
	return row.toAttendance(), nil
}

func (repo *attendanceRepository) QueryAttendances(
	ctx context.Context,
	filter attendance.QueryFilter,
	ordering ...core.DBOrdering,
) ([]attendance.Attendance, error) {
	var w where
	w.and("attendance_date IS NOT NULL")
	if filter.StudentID != "" {
		w.and("student_id = ?", filter.StudentID)
	}
	if filter.CourseID != "" {
		w.and("course_id = ?", filter.CourseID)
	}
	if filter.LecturerID != "" {
		w.and("course_id IN (SELECT id FROM courses WHERE lecturer_id = ?)", filter.LecturerID)
	}
	if filter.Status != "" {
		w.and("status = ?", string(filter.Status))
	}
	if filter.Type != "" {
		w.and("attendance_type = ?", string(filter.Type))
	}
	if !filter.DateFrom.IsZero() {
		w.and("attendance_date >= ?", dateArg(filter.DateFrom))
	}
	if !filter.DateTo.IsZero() {
		w.and("attendance_date <= ?", dateArg(filter.DateTo))
	}

	query := "SELECT " + attendanceColumns + " FROM attendances" + w.String() +
		orderBy(ordering, attendanceOrderings, "attendance_date DESC, created_at DESC")
	return repo.selectAttendances(ctx, repo.db.Rebind(query), w.args...)
}

func (repo *attendanceRepository) selectAttendances(ctx context.Context, query string, args ...interface{}) ([]attendance.Attendance, error) {
	var rows []attendanceRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting attendances")
	}
	atts := make([]attendance.Attendance, len(rows))
	for i, row := range rows {
		atts[i] = row.toAttendance()
	}
	return atts, nil
}

func (repo *attendanceRepository) UpdateAttendance(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	meta := att.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	res, err := repo.db.ExecContext(
		ctx,
		`UPDATE attendances SET status = $2, notes = $3, verified_by = $4, verified_at = $5, metadata = $6, updated_at = $7
		WHERE id = $1`,
		att.ID, string(att.Status), att.Notes, null.StringFromPtr(att.VerifiedBy), null.TimeFromPtr(att.VerifiedAt),
		datatypes.JSONMap(meta), att.UpdatedAt,
	)
	if err != nil {
		return attendance.Attendance{}, errors.Wrap(err, "updating attendance")
	}
	if n, err := res.RowsAffected(); err != nil {
		return attendance.Attendance{}, errors.Wrap(err, "updating attendance")
	} else if n == 0 {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	return att, nil
}

func (repo *attendanceRepository) CountByTriggerMaterials(ctx context.Context, materialIDs []string) (int, error) {
	if len(materialIDs) == 0 {
		return 0, nil
	}
	query, args, err := build(repo.db, "SELECT COUNT(*) FROM attendances WHERE trigger_material_id IN (?)", materialIDs)
	if err != nil {
		return 0, err
	}
	var count int
	if err = repo.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, errors.Wrap(err, "counting attendances")
	}
	return count, nil
}

func (repo *attendanceRepository) FindByTriggerMaterials(
	ctx context.Context,
	studentID string,
	materialIDs []string,
) ([]attendance.Attendance, error) {
	if len(materialIDs) == 0 {
		return []attendance.Attendance{}, nil
	}
	query, args, err := build(
		repo.db,
		"SELECT "+attendanceColumns+" FROM attendances WHERE student_id = ? AND trigger_material_id IN (?) ORDER BY submitted_at",
		studentID, materialIDs,
	)
	if err != nil {
		return nil, err
	}
	return repo.selectAttendances(ctx, query, args...)
}

func (repo *attendanceRepository) CountByStatus(
	ctx context.Context,
	courseID string,
	from, to time.Time,
) (map[attendance.Status]int, error) {
	var w where
	w.and("course_id = ?", courseID)
	w.and("attendance_date IS NOT NULL")
	if !from.IsZero() {
		w.and("attendance_date >= ?", dateArg(from))
	}
	if !to.IsZero() {
		w.and("attendance_date <= ?", dateArg(to))
	}

	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	query := repo.db.Rebind("SELECT status, COUNT(*) AS count FROM attendances" + w.String() + " GROUP BY status")
	if err := repo.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "counting attendances by status")
	}
	counts := make(map[attendance.Status]int, len(rows))
	for _, row := range rows {
		counts[attendance.Status(row.Status)] = row.Count
	}
	return counts, nil
}

func (repo *attendanceRepository) QueryUndatedAttendances(ctx context.Context) ([]attendance.Undated, error) {
	var rows []struct {
		ID          string    `db:"id"`
		SubmittedAt null.Time `db:"submitted_at"`
		CreatedAt   null.Time `db:"created_at"`
	}
	err := repo.db.SelectContext(
		ctx, &rows,
		"SELECT id, submitted_at, created_at FROM attendances WHERE attendance_date IS NULL ORDER BY created_at, id",
	)
	if err != nil {
		return nil, errors.Wrap(err, "selecting undated attendances")
	}
	undated := make([]attendance.Undated, len(rows))
	for i, row := range rows {
		undated[i] = attendance.Undated{ID: row.ID}
		if row.SubmittedAt.Valid {
			undated[i].SubmittedAt = row.SubmittedAt.Time
		}
		if row.CreatedAt.Valid {
			undated[i].CreatedAt = row.CreatedAt.Time
		}
	}
	return undated, nil
}

func (repo *attendanceRepository) SetAttendanceDate(ctx context.Context, id string, day time.Time) error {
	res, err := repo.db.ExecContext(
		ctx,
		"UPDATE attendances SET attendance_date = $2, updated_at = $3 WHERE id = $1",
		id, dateArg(day), time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return attendance.ErrAlreadySubmitted
		}
		return errors.Wrap(err, "setting attendance date")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "setting attendance date")
	} else if n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

func (repo *attendanceRepository) DeleteAttendances(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := build(repo.db, "DELETE FROM attendances WHERE id IN (?)", ids)
	if err != nil {
		return err
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "deleting attendances")
	}
	return nil
}
