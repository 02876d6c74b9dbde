package progress

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/unilearn/lms/core/course"
)

type WatchSession struct {
	StartTime float64   `json:"start_time" validate:"min=0"`
	EndTime   float64   `json:"end_time" validate:"min=0,gtefield=StartTime"`
	Duration  float64   `json:"duration" validate:"min=0"`
	Timestamp time.Time `json:"timestamp"` // UTC, set by the server
}

type VideoProgress struct {
	ID                     string         `json:"id"`
	StudentID              string         `json:"student_id"`
	MaterialID             string         `json:"material_id"`
	CurrentTime            float64        `json:"current_time"`   // seconds
	TotalDuration          *float64       `json:"total_duration"` // seconds
	WatchedPercentage      float64        `json:"watched_percentage"`
	WatchedSeconds         float64        `json:"watched_seconds"`
	IsCompleted            bool           `json:"is_completed"`
	CompletedAt            *time.Time     `json:"completed_at"` // UTC
	HasTriggeredAttendance bool           `json:"has_triggered_attendance"`
	WatchSessions          []WatchSession `json:"watch_sessions"`
	CreatedAt              time.Time      `json:"created_at"` // UTC
	UpdatedAt              time.Time      `json:"updated_at"` // UTC
}

// NewProgress is a watch-position update sent by a video player.
type NewProgress struct {
	MaterialID        string        `json:"material_id" validate:"required,uuid"`
	CurrentTime       float64       `json:"current_time" validate:"min=0"`
	TotalDuration     *float64      `json:"total_duration" validate:"omitempty,min=0"`
	WatchedPercentage *float64      `json:"watched_percentage" validate:"omitempty,min=0,max=100"`
	WatchedSeconds    *float64      `json:"watched_seconds" validate:"omitempty,min=0"`
	WatchSession      *WatchSession `json:"watch_session"`

	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

func (np *NewProgress) Validate(validate *validator.Validate) error {
	return validate.Struct(np)
}

// CalculatePercentage derives the watched percentage from the position when the
// duration is known, or falls back to the reported percentage.
func CalculatePercentage(currentTime float64, totalDuration, reported *float64) float64 {
	if totalDuration != nil && *totalDuration > 0 {
		return math.Min(currentTime * 100 / *totalDuration, 100)
	}
	if reported != nil {
		return math.Max(math.Min(*reported, 100), 0)
	}
	return 0
}

// ProgressView is a progress with the details of its material.
type ProgressView struct {
	VideoProgress
	MaterialTitle       string              `json:"material_title"`
	MaterialType        course.MaterialType `json:"material_type"`
	Week                int                 `json:"week"`
	OrderIndex          int                 `json:"order_index"`
	CompletionThreshold float64             `json:"completion_threshold"`
	IsAttendanceTrigger bool                `json:"is_attendance_trigger"`
}

func newView(vp VideoProgress, mat course.Material, defThreshold float64) ProgressView {
	if vp.WatchSessions == nil {
		vp.WatchSessions = []WatchSession{}
	}
	return ProgressView{
		VideoProgress:       vp,
		MaterialTitle:       mat.Title,
		MaterialType:        mat.Type,
		Week:                mat.Week,
		OrderIndex:          mat.OrderIndex,
		CompletionThreshold: mat.CompletionThreshold(defThreshold),
		IsAttendanceTrigger: mat.IsAttendanceTrigger,
	}
}

type ResumePosition struct {
	CurrentTime       float64 `json:"current_time"`
	WatchedPercentage float64 `json:"watched_percentage"`
}

// Aggregate is what storage computes over the progresses of one material.
type Aggregate struct {
	MaterialID        string
	Viewers           int
	CompletedViewers  int
	AveragePercentage float64
	TriggeredCount    int
}

type MaterialStat struct {
	MaterialID          string  `json:"material_id"`
	Title               string  `json:"title"`
	Week                int     `json:"week"`
	OrderIndex          int     `json:"order_index"`
	IsAttendanceTrigger bool    `json:"is_attendance_trigger"`
	Viewers             int     `json:"viewers"`
	CompletedViewers    int     `json:"completed_viewers"`
	AveragePercentage   float64 `json:"average_percentage"`
	TriggeredCount      int     `json:"attendance_triggered"`
}
