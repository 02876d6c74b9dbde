package echoapi_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unilearn/lms/core/attendance"
	"github.com/unilearn/lms/core/course"
	"github.com/unilearn/lms/core/progress"
	"github.com/unilearn/lms/testutil"
)

func progressBody(t *testing.T, materialID string, current, total float64) []byte {
	return marchallObj(t, map[string]interface{}{
		"material_id":    materialID,
		"current_time":   current,
		"total_duration": total,
	})
}

func Test_progressApi_update(t *testing.T) {
	env := setup(t)

	video := testutil.CreateMaterial(t, env.crsRepo, env.course, "Lecture 1", 1, testutil.Trigger)
	pdf := testutil.CreateMaterial(t, env.crsRepo, env.course, "Slides", 1, testutil.OfType(course.MaterialPDF))
	studentToken := getToken(t, env.student)

	runHttpTests(t, env.app, []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: "/v1/progress",
			body: progressBody(t, video.ID, 10, 600), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "Student required", method: http.MethodPost, path: "/v1/progress", token: getToken(t, env.lecturer),
			body: progressBody(t, video.ID, 10, 600), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Invalid data", method: http.MethodPost, path: "/v1/progress", token: studentToken,
			body: marchallObj(t, map[string]interface{}{"current_time": -1}), wantCode: http.StatusBadRequest,
		},
		{
			name: "Unknown material", method: http.MethodPost, path: "/v1/progress", token: studentToken,
			body: progressBody(t, "5b0f5f0e-8a54-4e41-9c3b-0d6b1f4fd1e2", 10, 600), wantCode: http.StatusNotFound,
		},
		{
			name: "Not a video", method: http.MethodPost, path: "/v1/progress", token: studentToken,
			body: progressBody(t, pdf.ID, 10, 600), wantCode: http.StatusUnprocessableEntity,
			wantData: marchallObj(t, httpErr{Error: progress.ErrNotVideo.Error()}),
		},
	})
}

func Test_progressApi_completionSubmitsAttendance(t *testing.T) {
	env := setup(t)

	video := testutil.CreateMaterial(t, env.crsRepo, env.course, "Lecture 1", 1, testutil.Trigger)
	token := getToken(t, env.student)

	// below the threshold
	req, rec := newAuthRequest(http.MethodPost, "/v1/progress", token, progressBody(t, video.ID, 300, 600))
	env.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view progress.ProgressView
	decode(t, rec, &view)
	assert.Equal(t, 50.0, view.WatchedPercentage)
	assert.False(t, view.IsCompleted)
	assert.False(t, view.HasTriggeredAttendance)
	assert.Equal(t, 80.0, view.CompletionThreshold)

	// crossing it
	req, rec = newAuthRequest(http.MethodPost, "/v1/progress", token, progressBody(t, video.ID, 500, 600))
	req.Header.Set("User-Agent", "player/1.0")
	env.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &view)
	assert.InDelta(t, 83.33, view.WatchedPercentage, 0.01)
	assert.True(t, view.IsCompleted)
	assert.NotNil(t, view.CompletedAt)
	assert.True(t, view.HasTriggeredAttendance)

	req, rec = newAuthRequest(http.MethodGet, "/v1/attendances", token)
	env.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var atts []attendance.Attendance
	decode(t, rec, &atts)
	require.Len(t, atts, 1)
	assert.Equal(t, attendance.StatusAutoPresent, atts[0].Status)
	assert.Equal(t, attendance.TypeVideoCompletion, atts[0].Type)
	if assert.NotNil(t, atts[0].TriggerMaterialID) {
		assert.Equal(t, video.ID, *atts[0].TriggerMaterialID)
	}
	assert.Equal(t, "player/1.0", atts[0].Metadata["userAgent"])
	assert.Equal(t, "192.0.2.1", atts[0].Metadata["ipAddress"])

	// watching again changes nothing
	req, rec = newAuthRequest(http.MethodPost, "/v1/progress", token, progressBody(t, video.ID, 600, 600))
	env.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	atts, err := env.attSvc.Query(req.Context(), attendance.QueryFilter{StudentID: env.student.ID})
	require.NoError(t, err)
	assert.Len(t, atts, 1)
}

func Test_progressApi_resume(t *testing.T) {
	env := setup(t)

	video := testutil.CreateMaterial(t, env.crsRepo, env.course, "Lecture 1", 1)
	token := getToken(t, env.student)
	path := fmt.Sprintf("/v1/progress/materials/%s/resume", video.ID)

	runHttpTests(t, env.app, []httpTest{
		{name: "Never watched", path: path, token: token, wantCode: http.StatusOK, wantData: marchallObj(t, progress.ResumePosition{})},
		{name: "Malformed id", path: "/v1/progress/materials/lol/resume", token: token, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
	})

	req, rec := newAuthRequest(http.MethodPost, "/v1/progress", token, progressBody(t, video.ID, 150, 600))
	env.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	runHttpTests(t, env.app, []httpTest{
		{
			name: "Watched", path: path, token: token, wantCode: http.StatusOK,
			wantData: marchallObj(t, progress.ResumePosition{CurrentTime: 150, WatchedPercentage: 25}),
		},
	})
}

func Test_progressApi_byCourse(t *testing.T) {
	env := setup(t)

	second := testutil.CreateMaterial(t, env.crsRepo, env.course, "Lecture 2", 2)
	first := testutil.CreateMaterial(t, env.crsRepo, env.course, "Lecture 1", 1)
	testutil.CreateMaterial(t, env.crsRepo, env.course, "Slides", 1, testutil.OfType(course.MaterialPDF))
	token := getToken(t, env.student)

	for _, mat := range []course.Material{second, first} {
		req, rec := newAuthRequest(http.MethodPost, "/v1/progress", token, progressBody(t, mat.ID, 60, 600))
		env.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req, rec := newAuthRequest(http.MethodGet, "/v1/progress/courses/"+env.course.ID, token)
	env.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []progress.ProgressView
	decode(t, rec, &views)
	require.Len(t, views, 2)
	assert.Equal(t, first.ID, views[0].MaterialID)
	assert.Equal(t, second.ID, views[1].MaterialID)

	runHttpTests(t, env.app, []httpTest{
		{
			name: "Unknown course", path: "/v1/progress/courses/5b0f5f0e-8a54-4e41-9c3b-0d6b1f4fd1e2", token: token,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: course.ErrNotFound.Error()}),
		},
	})
}

func Test_progressApi_stats(t *testing.T) {
	env := setup(t)

	video := testutil.CreateMaterial(t, env.crsRepo, env.course, "Lecture 1", 1, testutil.Trigger)
	req, rec := newAuthRequest(http.MethodPost, "/v1/progress", getToken(t, env.student), progressBody(t, video.ID, 600, 600))
	env.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	path := fmt.Sprintf("/v1/progress/courses/%s/stats", env.course.ID)
	want := marchallObj(t, []progress.MaterialStat{{
		MaterialID:          video.ID,
		Title:               video.Title,
		Week:                1,
		IsAttendanceTrigger: true,
		Viewers:             1,
		CompletedViewers:    1,
		AveragePercentage:   100,
		TriggeredCount:      1,
	}})

	runHttpTests(t, env.app, []httpTest{
		{name: "Staff required", path: path, token: getToken(t, env.student), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "Not the course lecturer", path: path, token: getToken(t, env.other), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "Course lecturer", path: path, token: getToken(t, env.lecturer), wantCode: http.StatusOK, wantData: want},
		{name: "Admin", path: path, token: getToken(t, env.admin), wantCode: http.StatusOK, wantData: want},
	})
}
