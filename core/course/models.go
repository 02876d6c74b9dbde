package course

import "time"

type MaterialType string

// Material types
const (
	MaterialVideo    MaterialType = "video"
	MaterialPDF      MaterialType = "pdf"
	MaterialDocument MaterialType = "document"
	MaterialLink     MaterialType = "link"
	MaterialQuiz     MaterialType = "quiz"
)

func (mt MaterialType) Valid() bool {
	switch mt {
	case MaterialVideo, MaterialPDF, MaterialDocument, MaterialLink, MaterialQuiz:
		return true
	default:
		return false
	}
}

type Course struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	Title      string    `json:"title"`
	LecturerID string    `json:"lecturer_id"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

type Material struct {
	ID                  string       `json:"id"`
	CourseID            string       `json:"course_id"`
	Title               string       `json:"title"`
	Type                MaterialType `json:"type"`
	Week                int          `json:"week"`
	OrderIndex          int          `json:"order_index"`
	IsAttendanceTrigger bool         `json:"is_attendance_trigger"`
	AttendanceThreshold *float64     `json:"attendance_threshold"` // percent; nil = global default
	CreatedAt           time.Time    `json:"created_at"`           // UTC
	UpdatedAt           time.Time    `json:"updated_at"`           // UTC
}

func (m Material) IsVideo() bool {
	return m.Type == MaterialVideo
}

// CompletionThreshold returns the material's own threshold, or def when it has none.
func (m Material) CompletionThreshold(def float64) float64 {
	if m.AttendanceThreshold != nil {
		return *m.AttendanceThreshold
	}
	return def
}

// MaterialFilter applies AND operation on the set fields.
// Results are ordered by (week, order_index) ascending.
type MaterialFilter struct {
	CourseID            string
	Type                MaterialType
	Week                *int
	IsAttendanceTrigger *bool
}
