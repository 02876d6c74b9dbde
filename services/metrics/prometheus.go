package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unilearn/lms/core"
)

var (
	progressUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_video_progress_updates_total",
		Help: "Video progress updates, by completion state after the update",
	}, []string{"completed"})

	attendanceSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_attendance_submissions_total",
		Help: "Attendances recorded, by attendance type",
	}, []string{"type"})

	attendanceConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_attendance_conflicts_total",
		Help: "Attendances rejected because one already exists for the day",
	}, []string{"type"})

	attendanceTriggerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lms_attendance_trigger_failures_total",
		Help: "Video completions whose attendance auto-submit failed",
	})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lms_http_request_duration_seconds",
		Help:    "HTTP request latency, by method, route and status",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "route", "status"})
)

// Prometheus records the domain events with the default prometheus registry.
type Prometheus struct{}

var _ core.Metrics = Prometheus{}

func NewPrometheus() Prometheus {
	return Prometheus{}
}

func (Prometheus) ProgressUpdated(completed bool) {
	progressUpdates.WithLabelValues(strconv.FormatBool(completed)).Inc()
}

func (Prometheus) AttendanceSubmitted(attendanceType string) {
	attendanceSubmissions.WithLabelValues(attendanceType).Inc()
}

func (Prometheus) AttendanceConflict(attendanceType string) {
	attendanceConflicts.WithLabelValues(attendanceType).Inc()
}

func (Prometheus) AttendanceTriggerFailed() {
	attendanceTriggerFailures.Inc()
}

// Middleware observes the latency of every request.
func (Prometheus) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status == http.StatusOK {
					status = http.StatusInternalServerError
				}
			}
			httpRequestDuration.
				WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler exposes the registry in the prometheus text format.
func (Prometheus) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
