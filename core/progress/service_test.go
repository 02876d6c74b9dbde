package progress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unilearn/lms/core"
	"github.com/unilearn/lms/core/attendance"
	"github.com/unilearn/lms/core/course"
	"github.com/unilearn/lms/core/progress"
	"github.com/unilearn/lms/core/user"
	inmemdb "github.com/unilearn/lms/storage/database/inmem"
	"github.com/unilearn/lms/testutil"
)

// countingLedger counts the submissions reaching the real ledger.
type countingLedger struct {
	mu    sync.Mutex
	calls int
	next  progress.Ledger
	err   error
}

func (l *countingLedger) AutoSubmit(ctx context.Context, sub attendance.AutoSubmission) (attendance.Attendance, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if l.err != nil {
		return attendance.Attendance{}, l.err
	}
	return l.next.AutoSubmit(ctx, sub)
}

func (l *countingLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type env struct {
	db       *inmemdb.DB
	usrRepo  user.Repository
	crsRepo  course.Repository
	attRepo  attendance.Repository
	attSvc   *attendance.Service
	ledger   *countingLedger
	svc      *progress.Service
	lecturer user.User
	student  user.User
	course   course.Course
}

func newEnv(t *testing.T) *env {
	db := inmemdb.Open()
	e := &env{
		db:      db,
		usrRepo: inmemdb.NewUserRepository(db),
		crsRepo: inmemdb.NewCourseRepository(db),
		attRepo: inmemdb.NewAttendanceRepository(db),
	}
	usrSvc := user.NewService(e.usrRepo)
	crsSvc := course.NewService(e.crsRepo)
	e.attSvc = attendance.NewService(e.attRepo, crsSvc, usrSvc, testutil.NopLogger{}, nil)
	e.ledger = &countingLedger{next: e.attSvc}
	conf := &core.Config{Video: core.VideoConfig{CompletionThreshold: 80}}
	e.svc = progress.NewService(inmemdb.NewProgressRepository(db), crsSvc, usrSvc, e.ledger, conf, testutil.NopLogger{}, nil)

	e.lecturer = testutil.CreateUser(t, e.usrRepo, "Lecturer", "lecturer@test.edu", []string{user.RoleLecturer})
	e.student = testutil.CreateUser(t, e.usrRepo, "Student", "student@test.edu", []string{user.RoleStudent})
	e.course = testutil.CreateCourse(t, e.crsRepo, "CS101", e.lecturer)
	testutil.Enroll(t, e.crsRepo, e.course, e.student)
	return e
}

func (e *env) update(t *testing.T, mat course.Material, current, total float64) progress.ProgressView {
	t.Helper()
	view, err := e.svc.UpdateProgress(context.Background(), e.student.ID, progress.NewProgress{
		MaterialID:    mat.ID,
		CurrentTime:   current,
		TotalDuration: testutil.FloatPtr(total),
	})
	require.NoError(t, err)
	return view
}

func (e *env) attendances(t *testing.T) []attendance.Attendance {
	t.Helper()
	atts, err := e.attSvc.Query(context.Background(), attendance.QueryFilter{StudentID: e.student.ID, CourseID: e.course.ID})
	require.NoError(t, err)
	return atts
}

func TestService_UpdateProgress_thresholdBoundary(t *testing.T) {
	tests := []struct {
		name          string
		current       float64
		wantCompleted bool
	}{
		{name: "below threshold", current: 79, wantCompleted: false},
		{name: "at threshold", current: 80, wantCompleted: true},
		{name: "above threshold", current: 95, wantCompleted: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			mat := testutil.CreateMaterial(t, e.crsRepo, e.course, "Intro", 1, testutil.Threshold(80))

			view := e.update(t, mat, tt.current, 100)
			assert.Equal(t, tt.wantCompleted, view.IsCompleted)
			assert.Equal(t, tt.wantCompleted, view.CompletedAt != nil)
			assert.Equal(t, tt.current, view.WatchedPercentage)
			assert.Equal(t, 80.0, view.CompletionThreshold)
		})
	}
}

func TestService_UpdateProgress_defaultThreshold(t *testing.T) {
	e := newEnv(t)
	conf := &core.Config{Video: core.VideoConfig{CompletionThreshold: 50}}
	usrSvc := user.NewService(e.usrRepo)
	svc := progress.NewService(inmemdb.NewProgressRepository(e.db), course.NewService(e.crsRepo), usrSvc, e.ledger, conf, testutil.NopLogger{}, nil)
	mat := testutil.CreateMaterial(t, e.crsRepo, e.course, "Intro", 1)
	strict := testutil.CreateMaterial(t, e.crsRepo, e.course, "Strict", 1, testutil.Threshold(90))

	view, err := svc.UpdateProgress(context.Background(), e.student.ID, progress.NewProgress{
		MaterialID: mat.ID, CurrentTime: 10, WatchedPercentage: testutil.FloatPtr(55),
	})
	require.NoError(t, err)
	assert.True(t, view.IsCompleted)
	assert.Equal(t, 50.0, view.CompletionThreshold)

	view, err = svc.UpdateProgress(context.Background(), e.student.ID, progress.NewProgress{
		MaterialID: strict.ID, CurrentTime: 60, TotalDuration: testutil.FloatPtr(100),
	})
	require.NoError(t, err)
	assert.False(t, view.IsCompleted)
	assert.Equal(t, 90.0, view.CompletionThreshold)
}

func TestService_UpdateProgress_monotonicCompletion(t *testing.T) {
	e := newEnv(t)
	mat := testutil.CreateMaterial(t, e.crsRepo, e.course, "Intro", 1)

	first := e.update(t, mat, 90, 100)
	require.True(t, first.IsCompleted)
	require.NotNil(t, first.CompletedAt)

	for _, current := range []float64{10, 0, 50, 79} {
		view := e.update(t, mat, current, 100)
		assert.True(t, view.IsCompleted, "current_time=%v", current)
		assert.Equal(t, current, view.WatchedPercentage)
		assert.Equal(t, current, view.CurrentTime)
		assert.True(t, first.CompletedAt.Equal(*view.CompletedAt), "completed_at must not move")
	}
}

func TestService_UpdateProgress_monotonicTrigger(t *testing.T) {
	e := newEnv(t)
	mat := testutil.CreateMaterial(t, e.crsRepo, e.course, "Week 1", 1, testutil.Trigger)

	view := e.update(t, mat, 50, 100)
	assert.False(t, view.HasTriggeredAttendance)
	assert.Equal(t, 0, e.ledger.count())

	view = e.update(t, mat, 85, 100)
	assert.True(t, view.HasTriggeredAttendance)
	assert.Equal(t, 1, e.ledger.count())

	for _, current := range []float64{90, 100, 20, 100} {
		view = e.update(t, mat, current, 100)
		assert.True(t, view.HasTriggeredAttendance)
	}
	assert.Equal(t, 1, e.ledger.count())
	assert.Len(t, e.attendances(t), 1)
}

func TestService_UpdateProgress_concurrentCompletion(t *testing.T) {
	e := newEnv(t)
	mat := testutil.CreateMaterial(t, e.crsRepo, e.course, "Week 1", 1, testutil.Trigger)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.UpdateProgress(context.Background(), e.student.ID, progress.NewProgress{
				MaterialID: mat.ID, CurrentTime: 100, TotalDuration: testutil.FloatPtr(100),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, e.ledger.count())
	assert.Len(t, e.attendances(t), 1)
}

func TestService_UpdateProgress_nonVideo(t *testing.T) {
	e := newEnv(t)
	pdf := testutil.CreateMaterial(t, e.crsRepo, e.course, "Slides", 1, testutil.OfType(course.MaterialPDF), testutil.Trigger)

	_, err := e.svc.UpdateProgress(context.Background(), e.student.ID, progress.NewProgress{
		MaterialID: pdf.ID, CurrentTime: 100, TotalDuration: testutil.FloatPtr(100),
	})
	assert.Equal(t, progress.ErrNotVideo, err)
	assert.True(t, core.IsInvalidState(err))

	pos, err := e.svc.GetResumePosition(context.Background(), e.student.ID, pdf.ID)
	require.NoError(t, err)
	assert.Nil(t, pos, "no progress row must be written")
	assert.Equal(t, 0, e.ledger.count())
}

func TestService_UpdateProgress_notFound(t *testing.T) {
	e := newEnv(t)
	mat := testutil.CreateMaterial(t, e.crsRepo, e.course, "Intro", 1)

	_, err := e.svc.UpdateProgress(context.Background(), e.student.ID, progress.NewProgress{MaterialID: "7c1b1c4e-7b2a-4f43-9d1e-2f7f2bb0c001"})
	assert.Equal(t, course.ErrMaterialNotFound, err)

	_, err = e.svc.UpdateProgress(context.Background(), "7c1b1c4e-7b2a-4f43-9d1e-2f7f2bb0c002", progress.NewProgress{MaterialID: mat.ID})
	assert.Equal(t, user.ErrNotFound, err)
	assert.True(t, core.IsNotFound(err))
}

func TestService_UpdateProgress_ledgerFailureIsSwallowed(t *testing.T) {
	e := newEnv(t)
	e.ledger.err = core.NewError(core.KindUnknown, "ledger down")
	mat := testutil.CreateMaterial(t, e.crsRepo, e.course, "Week 1", 1, testutil.Trigger)

	view := e.update(t, mat, 100, 100)
	assert.True(t, view.IsCompleted)
	assert.False(t, view.HasTriggeredAttendance)
	assert.Equal(t, 1, e.ledger.count())

	pos, err := e.svc.GetResumePosition(context.Background(), e.student.ID, mat.ID)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 100.0, pos.CurrentTime)

	// edge-triggered: no retry on later updates
	e.ledger.err = nil
	e.update(t, mat, 100, 100)
	assert.Equal(t, 1, e.ledger.count())
	assert.Empty(t, e.attendances(t))
}

func TestService_UpdateProgress_sameDayConflictIsSwallowed(t *testing.T) {
	e := newEnv(t)
	vidA := testutil.CreateMaterial(t, e.crsRepo, e.course, "A", 1, testutil.Trigger)
	vidB := testutil.CreateMaterial(t, e.crsRepo, e.course, "B", 2, testutil.Trigger)

	assert.True(t, e.update(t, vidA, 100, 100).HasTriggeredAttendance)

	view := e.update(t, vidB, 100, 100)
	assert.True(t, view.IsCompleted)
	assert.False(t, view.HasTriggeredAttendance)
	assert.Equal(t, 2, e.ledger.count())
	assert.Len(t, e.attendances(t), 1)
}

func TestService_UpdateProgress_endToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	vid := testutil.CreateMaterial(t, e.crsRepo, e.course, "Week 3 lecture", 3, testutil.Trigger, testutil.Threshold(80))

	view := e.update(t, vid, 500, 600)
	assert.InDelta(t, 83.33, view.WatchedPercentage, 0.01)
	assert.True(t, view.IsCompleted)
	assert.True(t, view.HasTriggeredAttendance)
	assert.Equal(t, "Week 3 lecture", view.MaterialTitle)
	assert.Equal(t, 3, view.Week)

	atts := e.attendances(t)
	require.Len(t, atts, 1)
	att := atts[0]
	assert.Equal(t, attendance.StatusAutoPresent, att.Status)
	assert.Equal(t, attendance.TypeVideoCompletion, att.Type)
	assert.Equal(t, attendance.DayOf(time.Now()), att.Date)
	require.NotNil(t, att.TriggerMaterialID)
	assert.Equal(t, vid.ID, *att.TriggerMaterialID)
	assert.InDelta(t, 83.33, att.Metadata["videoProgress"], 0.01)

	view = e.update(t, vid, 600, 600)
	assert.Equal(t, 100.0, view.WatchedPercentage)
	assert.Len(t, e.attendances(t), 1)

	ok, err := e.attSvc.HasWeeklyAttendance(ctx, e.student.ID, e.course.ID, 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_UpdateProgress_watchSessions(t *testing.T) {
	e := newEnv(t)
	mat := testutil.CreateMaterial(t, e.crsRepo, e.course, "Intro", 1)

	var view progress.ProgressView
	for i := 0; i < 3; i++ {
		var err error
		view, err = e.svc.UpdateProgress(context.Background(), e.student.ID, progress.NewProgress{
			MaterialID:     mat.ID,
			CurrentTime:    float64(10 * (i + 1)),
			WatchedSeconds: testutil.FloatPtr(float64(10 * (i + 1))),
			WatchSession:   &progress.WatchSession{StartTime: float64(10 * i), EndTime: float64(10 * (i + 1)), Duration: 10},
		})
		require.NoError(t, err)
	}
	require.Len(t, view.WatchSessions, 3)
	assert.Equal(t, 30.0, view.WatchedSeconds)
	assert.Nil(t, view.TotalDuration)
	for _, ws := range view.WatchSessions {
		assert.False(t, ws.Timestamp.IsZero())
	}
}

func TestService_GetResumePosition(t *testing.T) {
	e := newEnv(t)
	mat := testutil.CreateMaterial(t, e.crsRepo, e.course, "Intro", 1)

	pos, err := e.svc.GetResumePosition(context.Background(), e.student.ID, mat.ID)
	require.NoError(t, err)
	assert.Nil(t, pos)

	e.update(t, mat, 42, 200)
	pos, err = e.svc.GetResumePosition(context.Background(), e.student.ID, mat.ID)
	require.NoError(t, err)
	assert.Equal(t, &progress.ResumePosition{CurrentTime: 42, WatchedPercentage: 21}, pos)
}

func TestService_GetProgressByCourse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w2b := testutil.CreateMaterial(t, e.crsRepo, e.course, "w2b", 2, testutil.OrderIndex(2))
	w1 := testutil.CreateMaterial(t, e.crsRepo, e.course, "w1", 1, testutil.OrderIndex(5))
	w2a := testutil.CreateMaterial(t, e.crsRepo, e.course, "w2a", 2, testutil.OrderIndex(1))
	testutil.CreateMaterial(t, e.crsRepo, e.course, "unwatched", 1, testutil.OrderIndex(1))
	testutil.CreateMaterial(t, e.crsRepo, e.course, "pdf", 1, testutil.OfType(course.MaterialPDF))

	other := testutil.CreateCourse(t, e.crsRepo, "CS102", e.lecturer)
	elsewhere := testutil.CreateMaterial(t, e.crsRepo, other, "elsewhere", 1)

	for _, mat := range []course.Material{w2b, w1, w2a, elsewhere} {
		e.update(t, mat, 10, 100)
	}

	views, err := e.svc.GetProgressByCourse(ctx, e.student.ID, e.course.ID)
	require.NoError(t, err)
	titles := make([]string, len(views))
	for i, v := range views {
		titles[i] = v.MaterialTitle
	}
	assert.Equal(t, []string{"w1", "w2a", "w2b"}, titles)

	_, err = e.svc.GetProgressByCourse(ctx, e.student.ID, "7c1b1c4e-7b2a-4f43-9d1e-2f7f2bb0c003")
	assert.Equal(t, course.ErrNotFound, err)
}

func TestService_GetCourseVideoStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	other := testutil.CreateUser(t, e.usrRepo, "Other", "other@test.edu", []string{user.RoleStudent})
	vid := testutil.CreateMaterial(t, e.crsRepo, e.course, "Week 1", 1, testutil.Trigger)
	quiet := testutil.CreateMaterial(t, e.crsRepo, e.course, "Quiet", 2)

	e.update(t, vid, 100, 100)
	_, err := e.svc.UpdateProgress(ctx, other.ID, progress.NewProgress{
		MaterialID: vid.ID, CurrentTime: 40, TotalDuration: testutil.FloatPtr(100),
	})
	require.NoError(t, err)

	stats, err := e.svc.GetCourseVideoStats(ctx, e.course.ID)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, vid.ID, stats[0].MaterialID)
	assert.Equal(t, 2, stats[0].Viewers)
	assert.Equal(t, 1, stats[0].CompletedViewers)
	assert.Equal(t, 70.0, stats[0].AveragePercentage)
	assert.Equal(t, 1, stats[0].TriggeredCount)

	assert.Equal(t, quiet.ID, stats[1].MaterialID)
	assert.Zero(t, stats[1].Viewers)
}
