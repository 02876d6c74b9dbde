package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/unilearn/lms/core"
	"github.com/unilearn/lms/core/course"
	"github.com/unilearn/lms/core/user"
)

var (
	// errors
	ErrNotFound         = core.NewError(core.KindNotFound, "attendance not found")
	ErrNotTrigger       = core.NewError(core.KindInvalidState, "material is not configured to trigger attendance")
	ErrWrongCourse      = core.NewError(core.KindInvalidState, "material does not belong to this course")
	ErrAlreadySubmitted = core.NewError(core.KindConflict, "attendance already submitted for this day")

	nowFunc = time.Now
)

type (
	Repository interface {
		// CreateAttendance returns ErrAlreadySubmitted when a row exists for the same (student, course, day).
		CreateAttendance(ctx context.Context, att Attendance) (Attendance, error)
		GetAttendance(ctx context.Context, id string) (Attendance, error)
		FindDailyAttendance(ctx context.Context, studentID, courseID string, day time.Time) (Attendance, error)
		QueryAttendances(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Attendance, error)
		UpdateAttendance(ctx context.Context, att Attendance) (Attendance, error)
		CountByTriggerMaterials(ctx context.Context, materialIDs []string) (int, error)
		FindByTriggerMaterials(ctx context.Context, studentID string, materialIDs []string) ([]Attendance, error)
		// CountByStatus counts the course's attendances per status, from/to being optional day bounds.
		CountByStatus(ctx context.Context, courseID string, from, to time.Time) (map[Status]int, error)
		QueryUndatedAttendances(ctx context.Context) ([]Undated, error)
		SetAttendanceDate(ctx context.Context, id string, day time.Time) error
		DeleteAttendances(ctx context.Context, ids ...string) error
	}

	Catalog interface {
		GetCourse(ctx context.Context, id string) (course.Course, error)
		GetMaterial(ctx context.Context, id string) (course.Material, error)
		TriggerMaterials(ctx context.Context, courseID string, week int) ([]course.Material, error)
		CountEnrolledStudents(ctx context.Context, courseID string) (int, error)
	}

	Users interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// Service is the attendance ledger.
	Service struct {
		repo    Repository
		catalog Catalog
		users   Users
		logger  core.Logger
		metrics core.Metrics
	}
)

func NewService(repo Repository, catalog Catalog, users Users, logger core.Logger, metrics core.Metrics) *Service {
	if metrics == nil {
		metrics = core.NopMetrics{}
	}
	return &Service{
		repo:    repo,
		catalog: catalog,
		users:   users,
		logger:  logger,
		metrics: metrics,
	}
}

// AutoSubmit records a video-completion attendance for today.
func (svc *Service) AutoSubmit(ctx context.Context, sub AutoSubmission) (Attendance, error) {
	if _, err := svc.users.GetByID(ctx, sub.StudentID); err != nil {
		return Attendance{}, err
	}
	if _, err := svc.catalog.GetCourse(ctx, sub.CourseID); err != nil {
		return Attendance{}, err
	}
	mat, err := svc.catalog.GetMaterial(ctx, sub.MaterialID)
	if err != nil {
		return Attendance{}, err
	}
	if mat.CourseID != sub.CourseID {
		return Attendance{}, ErrWrongCourse
	}
	if !mat.IsAttendanceTrigger {
		return Attendance{}, ErrNotTrigger
	}

	now := nowFunc()
	att := newAttendance(sub.StudentID, sub.CourseID, now)
	att.Status = StatusAutoPresent
	att.Type = TypeVideoCompletion
	att.TriggerMaterialID = &mat.ID
	att.Notes = fmt.Sprintf("Auto-submitted after watching %.1f%% of %q", sub.CompletionPercentage, mat.Title)
	for k, v := range sub.Metadata {
		att.Metadata[k] = v
	}
	att.Metadata["videoProgress"] = sub.CompletionPercentage
	att.Metadata["completionTime"] = now.UTC().Format(time.RFC3339)
	att.Metadata["ipAddress"] = sub.IPAddress
	att.Metadata["userAgent"] = sub.UserAgent

	return svc.create(ctx, att)
}

// Create records an attendance entered by a lecturer or an admin; it is verified by its author.
func (svc *Service) Create(ctx context.Context, na NewAttendance, createdBy string) (Attendance, error) {
	if _, err := svc.users.GetByID(ctx, na.StudentID); err != nil {
		return Attendance{}, err
	}
	if _, err := svc.catalog.GetCourse(ctx, na.CourseID); err != nil {
		return Attendance{}, err
	}

	now := nowFunc()
	att := newAttendance(na.StudentID, na.CourseID, now, na.Day())
	att.Status = na.Status
	att.Type = TypeManual
	att.Notes = na.Notes
	att.verify(createdBy, now)

	return svc.create(ctx, att)
}

func (svc *Service) create(ctx context.Context, att Attendance) (Attendance, error) {
	typ := string(att.Type)
	_, err := svc.repo.FindDailyAttendance(ctx, att.StudentID, att.CourseID, att.Date)
	switch {
	case err == nil:
		svc.metrics.AttendanceConflict(typ)
		return Attendance{}, ErrAlreadySubmitted
	case errors.Cause(err) != ErrNotFound:
		return Attendance{}, errors.Wrap(err, "finding daily attendance")
	}

	// a concurrent submission may still win the race: the storage unique index decides.
	att, err = svc.repo.CreateAttendance(ctx, att)
	if err != nil {
		if errors.Cause(err) == ErrAlreadySubmitted {
			svc.metrics.AttendanceConflict(typ)
			return Attendance{}, ErrAlreadySubmitted
		}
		return Attendance{}, errors.Wrap(err, "creating attendance")
	}
	svc.metrics.AttendanceSubmitted(typ)
	return att, nil
}

// Update merges ua into the attendance; an updater re-verifies it.
func (svc *Service) Update(ctx context.Context, id string, ua UpdateAttendance, updatedBy string) (Attendance, error) {
	att, err := svc.repo.GetAttendance(ctx, id)
	if err != nil {
		return Attendance{}, err
	}
	now := nowFunc()
	ua.apply(&att)
	if updatedBy != "" {
		att.verify(updatedBy, now)
	}
	att.UpdatedAt = now.UTC()
	return svc.repo.UpdateAttendance(ctx, att)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Attendance, error) {
	return svc.repo.GetAttendance(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Attendance, error) {
	ordering = core.FilterOrderings(ordering, "attendance_date", "submitted_at", "created_at", "status")
	return svc.repo.QueryAttendances(ctx, filter, ordering...)
}

// HasWeeklyAttendance reports whether the student completed any of the week's trigger videos.
func (svc *Service) HasWeeklyAttendance(ctx context.Context, studentID, courseID string, week int) (bool, error) {
	mats, err := svc.catalog.TriggerMaterials(ctx, courseID, week)
	if err != nil {
		return false, err
	}
	if len(mats) == 0 {
		return false, nil
	}
	atts, err := svc.repo.FindByTriggerMaterials(ctx, studentID, materialIDs(mats))
	if err != nil {
		return false, errors.Wrap(err, "finding weekly attendances")
	}
	return len(atts) > 0, nil
}

// WeeklySummary reports the attendance rate of every week in [startWeek, endWeek] that has trigger videos.
func (svc *Service) WeeklySummary(ctx context.Context, courseID string, startWeek, endWeek int) ([]WeeklySummary, error) {
	if _, err := svc.catalog.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	students, err := svc.catalog.CountEnrolledStudents(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "counting enrolled students")
	}

	startWeek, endWeek = clampWeeks(startWeek, endWeek)
	summaries := make([]WeeklySummary, 0)
	for week := startWeek; week <= endWeek; week++ {
		mats, err := svc.catalog.TriggerMaterials(ctx, courseID, week)
		if err != nil {
			return nil, err
		}
		if len(mats) == 0 {
			continue
		}
		count, err := svc.repo.CountByTriggerMaterials(ctx, materialIDs(mats))
		if err != nil {
			return nil, errors.Wrapf(err, "counting attendances of week %d", week)
		}
		summaries = append(summaries, WeeklySummary{
			Week:            week,
			RequiredVideos:  len(mats),
			AttendanceCount: count,
			TotalStudents:   students,
			AttendanceRate:  rate(count, students),
		})
	}
	return summaries, nil
}

// StudentWeeklyStatus reports, per week having trigger videos, whether the student attended.
func (svc *Service) StudentWeeklyStatus(ctx context.Context, studentID, courseID string, startWeek, endWeek int) ([]StudentWeek, error) {
	if _, err := svc.catalog.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}

	startWeek, endWeek = clampWeeks(startWeek, endWeek)
	weeks := make([]StudentWeek, 0)
	for week := startWeek; week <= endWeek; week++ {
		mats, err := svc.catalog.TriggerMaterials(ctx, courseID, week)
		if err != nil {
			return nil, err
		}
		if len(mats) == 0 {
			continue
		}
		atts, err := svc.repo.FindByTriggerMaterials(ctx, studentID, materialIDs(mats))
		if err != nil {
			return nil, errors.Wrapf(err, "finding attendances of week %d", week)
		}

		sw := StudentWeek{Week: week, RequiredVideos: len(mats)}
		if len(atts) > 0 {
			att := atts[0]
			date := att.Date
			sw.HasAttendance = true
			sw.AttendanceDate = &date
			sw.TriggerMaterialID = att.TriggerMaterialID
			for _, mat := range mats {
				if att.TriggerMaterialID != nil && mat.ID == *att.TriggerMaterialID {
					sw.TriggerMaterialTitle = mat.Title
					break
				}
			}
		}
		weeks = append(weeks, sw)
	}
	return weeks, nil
}

// CourseStats counts the course's attendances per status; from and to are optional.
func (svc *Service) CourseStats(ctx context.Context, courseID string, from, to time.Time) (CourseStats, error) {
	if _, err := svc.catalog.GetCourse(ctx, courseID); err != nil {
		return CourseStats{}, err
	}
	students, err := svc.catalog.CountEnrolledStudents(ctx, courseID)
	if err != nil {
		return CourseStats{}, errors.Wrap(err, "counting enrolled students")
	}
	if !from.IsZero() {
		from = DayOf(from)
	}
	if !to.IsZero() {
		to = DayOf(to)
	}
	counts, err := svc.repo.CountByStatus(ctx, courseID, from, to)
	if err != nil {
		return CourseStats{}, errors.Wrap(err, "counting attendances by status")
	}

	stats := CourseStats{
		CourseID:      courseID,
		Present:       counts[StatusPresent],
		Absent:        counts[StatusAbsent],
		AutoPresent:   counts[StatusAutoPresent],
		Excused:       counts[StatusExcused],
		Late:          counts[StatusLate],
		TotalStudents: students,
	}
	if !from.IsZero() {
		stats.From = &from
	}
	if !to.IsZero() {
		stats.To = &to
	}
	stats.Total = stats.Present + stats.Absent + stats.AutoPresent + stats.Excused + stats.Late
	stats.AttendanceRate = rate(stats.Present+stats.AutoPresent+stats.Excused+stats.Late, students)
	return stats, nil
}

// CleanupNullDates repairs legacy rows stored without a day bucket: the day is
// derived from submitted_at or created_at, rows having neither are deleted.
// A repaired row clashing with an existing attendance of the same day is deleted too.
func (svc *Service) CleanupNullDates(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult

	rows, err := svc.repo.QueryUndatedAttendances(ctx)
	if err != nil {
		return res, errors.Wrap(err, "querying undated attendances")
	}

	var toDelete []string
	for _, row := range rows {
		day, ok := row.FallbackDay()
		if !ok {
			toDelete = append(toDelete, row.ID)
			continue
		}
		if err := svc.repo.SetAttendanceDate(ctx, row.ID, day); err != nil {
			if errors.Cause(err) == ErrAlreadySubmitted {
				svc.logger.Warn("attendance cleanup: duplicate day", map[string]interface{}{
					"id":  row.ID,
					"day": day.Format(DateLayout),
				})
				toDelete = append(toDelete, row.ID)
				continue
			}
			return res, errors.Wrapf(err, "fixing attendance %s", row.ID)
		}
		res.Fixed++
	}

	if len(toDelete) > 0 {
		if err := svc.repo.DeleteAttendances(ctx, toDelete...); err != nil {
			return res, errors.Wrap(err, "deleting undated attendances")
		}
		res.Deleted = len(toDelete)
	}
	svc.logger.Info("attendance cleanup done", map[string]interface{}{"fixed": res.Fixed, "deleted": res.Deleted})
	return res, nil
}

func materialIDs(mats []course.Material) []string {
	ids := make([]string, len(mats))
	for i, mat := range mats {
		ids[i] = mat.ID
	}
	return ids
}

func clampWeeks(start, end int) (int, int) {
	if start < 1 {
		start = 1
	}
	if end > MaxWeek {
		end = MaxWeek
	}
	return start, end
}

func rate(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}
