package progress

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/unilearn/lms/core"
	"github.com/unilearn/lms/core/attendance"
	"github.com/unilearn/lms/core/course"
	"github.com/unilearn/lms/core/user"
)

var (
	// errors
	ErrNotFound = core.NewError(core.KindNotFound, "video progress not found")
	ErrNotVideo = core.NewError(core.KindInvalidState, "progress can only be tracked on video materials")

	nowFunc = time.Now
)

// DefaultCompletionThreshold applies when neither the material nor the configuration set one.
const DefaultCompletionThreshold = 80.0

type (
	Repository interface {
		// UpdateOrCreateProgress loads (creating it if needed) the progress of (studentID, materialID)
		// and holds it locked while mutate runs; the mutated progress is then saved.
		// Nothing is written when mutate fails.
		UpdateOrCreateProgress(ctx context.Context, studentID, materialID string, mutate func(vp *VideoProgress) error) (VideoProgress, error)
		// MarkAttendanceTriggered sets has_triggered_attendance; it reports false if it was already set.
		MarkAttendanceTriggered(ctx context.Context, id string) (bool, error)
		GetProgress(ctx context.Context, studentID, materialID string) (VideoProgress, error)
		QueryProgress(ctx context.Context, studentID string, materialIDs []string) ([]VideoProgress, error)
		AggregateByMaterials(ctx context.Context, materialIDs []string) ([]Aggregate, error)
	}

	Catalog interface {
		GetCourse(ctx context.Context, id string) (course.Course, error)
		GetMaterial(ctx context.Context, id string) (course.Material, error)
		VideoMaterials(ctx context.Context, courseID string) ([]course.Material, error)
	}

	Users interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// Ledger receives the completions of attendance-triggering videos.
	Ledger interface {
		AutoSubmit(ctx context.Context, sub attendance.AutoSubmission) (attendance.Attendance, error)
	}

	// Service is the video progress tracker.
	Service struct {
		repo      Repository
		catalog   Catalog
		users     Users
		ledger    Ledger
		threshold float64
		logger    core.Logger
		metrics   core.Metrics
	}
)

func NewService(
	repo Repository,
	catalog Catalog,
	users Users,
	ledger Ledger,
	conf *core.Config,
	logger core.Logger,
	metrics core.Metrics,
) *Service {
	threshold := DefaultCompletionThreshold
	if conf != nil && conf.Video.CompletionThreshold > 0 {
		threshold = conf.Video.CompletionThreshold
	}
	if metrics == nil {
		metrics = core.NopMetrics{}
	}
	return &Service{
		repo:      repo,
		catalog:   catalog,
		users:     users,
		ledger:    ledger,
		threshold: threshold,
		logger:    logger,
		metrics:   metrics,
	}
}

// UpdateProgress records a watch-position update of a video. The first time the
// video gets completed, an attendance is submitted if the video triggers one;
// failing to submit it never fails the update.
func (svc *Service) UpdateProgress(ctx context.Context, studentID string, np NewProgress) (ProgressView, error) {
	usr, err := svc.users.GetByID(ctx, studentID)
	if err != nil {
		return ProgressView{}, err
	}
	mat, err := svc.catalog.GetMaterial(ctx, np.MaterialID)
	if err != nil {
		return ProgressView{}, err
	}
	if !mat.IsVideo() {
		return ProgressView{}, ErrNotVideo
	}

	pct := CalculatePercentage(np.CurrentTime, np.TotalDuration, np.WatchedPercentage)
	completed := pct >= mat.CompletionThreshold(svc.threshold)
	now := nowFunc().UTC()

	var wasCompleted bool
	vp, err := svc.repo.UpdateOrCreateProgress(ctx, studentID, mat.ID, func(vp *VideoProgress) error {
		wasCompleted = vp.IsCompleted

		vp.CurrentTime = np.CurrentTime
		if np.TotalDuration != nil {
			dur := *np.TotalDuration
			vp.TotalDuration = &dur
		}
		vp.WatchedPercentage = pct
		if np.WatchedSeconds != nil {
			vp.WatchedSeconds = *np.WatchedSeconds
		}
		if completed && !vp.IsCompleted {
			vp.IsCompleted = true
			vp.CompletedAt = &now
		}
		if np.WatchSession != nil {
			session := *np.WatchSession
			session.Timestamp = now
			vp.WatchSessions = append(vp.WatchSessions, session)
		}
		vp.UpdatedAt = now
		return nil
	})
	if err != nil {
		return ProgressView{}, errors.Wrap(err, "saving video progress")
	}
	svc.metrics.ProgressUpdated(vp.IsCompleted)

	if completed && !wasCompleted && mat.IsAttendanceTrigger && !vp.HasTriggeredAttendance {
		if svc.triggerAttendance(ctx, usr, mat, vp, np, pct) {
			vp.HasTriggeredAttendance = true
		}
	}
	return newView(vp, mat, svc.threshold), nil
}

// triggerAttendance reports whether the attendance got submitted and recorded on the progress.
func (svc *Service) triggerAttendance(
	ctx context.Context,
	usr user.User,
	mat course.Material,
	vp VideoProgress,
	np NewProgress,
	pct float64,
) bool {
	extra := map[string]interface{}{
		"material_id": mat.ID,
		"course_id":   mat.CourseID,
		"progress_id": vp.ID,
		"percentage":  pct,
	}

	_, err := svc.ledger.AutoSubmit(ctx, attendance.AutoSubmission{
		StudentID:            usr.ID,
		CourseID:             mat.CourseID,
		MaterialID:           mat.ID,
		CompletionPercentage: pct,
		IPAddress:            np.IPAddress,
		UserAgent:            np.UserAgent,
		Metadata: map[string]interface{}{
			"materialTitle": mat.Title,
			"week":          mat.Week,
		},
	})
	if err != nil {
		svc.metrics.AttendanceTriggerFailed()
		if core.IsConflict(err) {
			svc.logger.Info("attendance auto-submit skipped", err, extra, usr)
		} else {
			svc.logger.Error("attendance auto-submit failed", err, extra, usr)
		}
		return false
	}

	marked, err := svc.repo.MarkAttendanceTriggered(ctx, vp.ID)
	if err != nil {
		svc.logger.Error("marking attendance triggered failed", err, extra, usr)
		return false
	}
	if !marked {
		svc.logger.Warn("attendance already triggered", extra, usr)
	}
	return true
}

// GetResumePosition returns nil when the student never watched the video.
func (svc *Service) GetResumePosition(ctx context.Context, studentID, materialID string) (*ResumePosition, error) {
	vp, err := svc.repo.GetProgress(ctx, studentID, materialID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &ResumePosition{CurrentTime: vp.CurrentTime, WatchedPercentage: vp.WatchedPercentage}, nil
}

// GetProgressByCourse returns the student's progress on the course videos, in course-structure order.
func (svc *Service) GetProgressByCourse(ctx context.Context, studentID, courseID string) ([]ProgressView, error) {
	if _, err := svc.catalog.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	mats, err := svc.catalog.VideoMaterials(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying course videos")
	}

	views := make([]ProgressView, 0, len(mats))
	if len(mats) == 0 {
		return views, nil
	}
	progresses, err := svc.repo.QueryProgress(ctx, studentID, videoIDs(mats))
	if err != nil {
		return nil, errors.Wrap(err, "querying video progress")
	}
	byMaterial := make(map[string]VideoProgress, len(progresses))
	for _, vp := range progresses {
		byMaterial[vp.MaterialID] = vp
	}
	for _, mat := range mats {
		if vp, ok := byMaterial[mat.ID]; ok {
			views = append(views, newView(vp, mat, svc.threshold))
		}
	}
	return views, nil
}

// GetCourseVideoStats aggregates the viewing of every video of the course.
func (svc *Service) GetCourseVideoStats(ctx context.Context, courseID string) ([]MaterialStat, error) {
	if _, err := svc.catalog.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	mats, err := svc.catalog.VideoMaterials(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying course videos")
	}

	stats := make([]MaterialStat, 0, len(mats))
	if len(mats) == 0 {
		return stats, nil
	}
	aggs, err := svc.repo.AggregateByMaterials(ctx, videoIDs(mats))
	if err != nil {
		return nil, errors.Wrap(err, "aggregating video progress")
	}
	byMaterial := make(map[string]Aggregate, len(aggs))
	for _, agg := range aggs {
		byMaterial[agg.MaterialID] = agg
	}
	for _, mat := range mats {
		agg := byMaterial[mat.ID]
		stats = append(stats, MaterialStat{
			MaterialID:          mat.ID,
			Title:               mat.Title,
			Week:                mat.Week,
			OrderIndex:          mat.OrderIndex,
			IsAttendanceTrigger: mat.IsAttendanceTrigger,
			Viewers:             agg.Viewers,
			CompletedViewers:    agg.CompletedViewers,
			AveragePercentage:   agg.AveragePercentage,
			TriggeredCount:      agg.TriggeredCount,
		})
	}
	return stats, nil
}

func videoIDs(mats []course.Material) []string {
	ids := make([]string, len(mats))
	for i, mat := range mats {
		ids[i] = mat.ID
	}
	return ids
}
