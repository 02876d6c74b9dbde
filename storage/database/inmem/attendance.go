package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/unilearn/lms/core"
	"github.com/unilearn/lms/core/attendance"
)

type attendanceRepository struct {
	db      *attendanceTable
	courses *courseTable
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db.attendance, courses: db.course}
}

// InsertAttendance stores att as is, skipping every check; a zero Date stores a legacy undated row.
func (db *DB) InsertAttendance(att attendance.Attendance) attendance.Attendance {
	db.attendance.mutex.Lock()
	defer db.attendance.mutex.Unlock()

	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	saved := copyAttendance(att)
	db.attendance.table[att.ID] = &saved
	return att
}

// sameDay must be called with the lock held.
func (repo *attendanceRepository) sameDay(studentID, courseID string, day time.Time, excludedID string) *attendance.Attendance {
	if day.IsZero() {
		return nil
	}
	for _, att := range repo.db.table {
		if att.ID != excludedID && att.StudentID == studentID && att.CourseID == courseID && att.Date.Equal(day) {
			return att
		}
	}
	return nil
}

func (repo *attendanceRepository) CreateAttendance(_ context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.sameDay(att.StudentID, att.CourseID, att.Date, "") != nil {
		return attendance.Attendance{}, attendance.ErrAlreadySubmitted
	}
	att.ID = uuid.NewString()
	saved := copyAttendance(att)
	repo.db.table[att.ID] = &saved
	return att, nil
}

func (repo *attendanceRepository) GetAttendance(_ context.Context, id string) (attendance.Attendance, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if att, ok := repo.db.table[id]; ok {
		return copyAttendance(*att), nil
	}
	return attendance.Attendance{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) FindDailyAttendance(_ context.Context, studentID, courseID string, day time.Time) (attendance.Attendance, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if att := repo.sameDay(studentID, courseID, attendance.DayOf(day), ""); att != nil {
		return copyAttendance(*att), nil
	}
	return attendance.Attendance{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) lecturerCourses(lecturerID string) map[string]bool {
	repo.courses.mutex.RLock()
	defer repo.courses.mutex.RUnlock()

	ids := make(map[string]bool)
	for _, crs := range repo.courses.courses {
		if crs.LecturerID == lecturerID {
			ids[crs.ID] = true
		}
	}
	return ids
}

func (repo *attendanceRepository) QueryAttendances(
	_ context.Context,
	filter attendance.QueryFilter,
	ordering ...core.DBOrdering,
) ([]attendance.Attendance, error) {
	var taught map[string]bool
	if filter.LecturerID != "" {
		taught = repo.lecturerCourses(filter.LecturerID)
	}

	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	atts := make([]attendance.Attendance, 0)
	for _, att := range repo.db.table {
		switch {
		case att.Date.IsZero(),
			filter.StudentID != "" && att.StudentID != filter.StudentID,
			filter.CourseID != "" && att.CourseID != filter.CourseID,
			taught != nil && !taught[att.CourseID],
			filter.Status != "" && att.Status != filter.Status,
			filter.Type != "" && att.Type != filter.Type,
			!filter.DateFrom.IsZero() && att.Date.Before(attendance.DayOf(filter.DateFrom)),
			!filter.DateTo.IsZero() && att.Date.After(attendance.DayOf(filter.DateTo)):
			continue
		}
		atts = append(atts, copyAttendance(*att))
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "attendance_date"}, {Field: "created_at"}}
	}
	sort.SliceStable(atts, func(i, j int) bool {
		for _, ord := range ordering {
			cmp := compareAttendances(atts[i], atts[j], ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return atts[i].ID < atts[j].ID
	})
	return atts, nil
}

func compareAttendances(a, b attendance.Attendance, field string) int {
	cmpTime := func(t1, t2 time.Time) int {
		switch {
		case t1.Before(t2):
			return -1
		case t1.After(t2):
			return 1
		default:
			return 0
		}
	}
	switch field {
	case "attendance_date":
		return cmpTime(a.Date, b.Date)
	case "submitted_at":
		return cmpTime(a.SubmittedAt, b.SubmittedAt)
	case "created_at":
		return cmpTime(a.CreatedAt, b.CreatedAt)
	case "status":
		switch {
		case a.Status < b.Status:
			return -1
		case a.Status > b.Status:
			return 1
		}
	}
	return 0
}

func (repo *attendanceRepository) UpdateAttendance(_ context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[att.ID]; !ok {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	if repo.sameDay(att.StudentID, att.CourseID, att.Date, att.ID) != nil {
		return attendance.Attendance{}, attendance.ErrAlreadySubmitted
	}
	saved := copyAttendance(att)
	repo.db.table[att.ID] = &saved
	return att, nil
}

func (repo *attendanceRepository) CountByTriggerMaterials(_ context.Context, materialIDs []string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, att := range repo.db.table {
		if att.TriggerMaterialID != nil && contains(materialIDs, *att.TriggerMaterialID) {
			count++
		}
	}
	return count, nil
}

func (repo *attendanceRepository) FindByTriggerMaterials(_ context.Context, studentID string, materialIDs []string) ([]attendance.Attendance, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	atts := make([]attendance.Attendance, 0)
	for _, att := range repo.db.table {
		if att.StudentID == studentID && att.TriggerMaterialID != nil && contains(materialIDs, *att.TriggerMaterialID) {
			atts = append(atts, copyAttendance(*att))
		}
	}
	sort.Slice(atts, func(i, j int) bool { return atts[i].SubmittedAt.Before(atts[j].SubmittedAt) })
	return atts, nil
}

func (repo *attendanceRepository) CountByStatus(_ context.Context, courseID string, from, to time.Time) (map[attendance.Status]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	counts := make(map[attendance.Status]int)
	for _, att := range repo.db.table {
		if att.CourseID != courseID || att.Date.IsZero() {
			continue
		}
		if (!from.IsZero() && att.Date.Before(from)) || (!to.IsZero() && att.Date.After(to)) {
			continue
		}
		counts[att.Status]++
	}
	return counts, nil
}

func (repo *attendanceRepository) QueryUndatedAttendances(_ context.Context) ([]attendance.Undated, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rows := make([]attendance.Undated, 0)
	for _, att := range repo.db.table {
		if att.Date.IsZero() {
			rows = append(rows, attendance.Undated{ID: att.ID, SubmittedAt: att.SubmittedAt, CreatedAt: att.CreatedAt})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (repo *attendanceRepository) SetAttendanceDate(_ context.Context, id string, day time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	att, ok := repo.db.table[id]
	if !ok {
		return attendance.ErrNotFound
	}
	day = attendance.DayOf(day)
	if repo.sameDay(att.StudentID, att.CourseID, day, att.ID) != nil {
		return attendance.ErrAlreadySubmitted
	}
	att.Date = day
	return nil
}

func (repo *attendanceRepository) DeleteAttendances(_ context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

func copyAttendance(att attendance.Attendance) attendance.Attendance {
	if att.TriggerMaterialID != nil {
		id := *att.TriggerMaterialID
		att.TriggerMaterialID = &id
	}
	if att.VerifiedBy != nil {
		by := *att.VerifiedBy
		att.VerifiedBy = &by
	}
	if att.VerifiedAt != nil {
		at := *att.VerifiedAt
		att.VerifiedAt = &at
	}
	meta := make(map[string]interface{}, len(att.Metadata))
	for k, v := range att.Metadata {
		meta[k] = v
	}
	att.Metadata = meta
	return att
}
