package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/unilearn/lms/core"
)

// DateLayout is the wire format of attendance dates.
const DateLayout = "2006-01-02"

// MaxWeek is the last week of an academic year; week ranges are clamped to [1, MaxWeek].
const MaxWeek = 52

type Status string

// Statuses
const (
	StatusPresent     Status = "present"
	StatusAbsent      Status = "absent"
	StatusAutoPresent Status = "auto_present"
	StatusExcused     Status = "excused"
	StatusLate        Status = "late"
)

var AllStatuses = []Status{StatusPresent, StatusAbsent, StatusAutoPresent, StatusExcused, StatusLate}

func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Attended reports whether the status counts towards the attendance rate.
func (s Status) Attended() bool {
	return s != StatusAbsent
}

type Type string

// Types
const (
	TypeManual          Type = "manual"
	TypeVideoCompletion Type = "video_completion"
	// reserved: no behavior attached yet
	TypeQRCode        Type = "qr_code"
	TypeLocationBased Type = "location_based"
)

func (t Type) Valid() bool {
	switch t {
	case TypeManual, TypeVideoCompletion, TypeQRCode, TypeLocationBased:
		return true
	default:
		return false
	}
}

type Attendance struct {
	ID                string                 `json:"id"`
	StudentID         string                 `json:"student_id"`
	CourseID          string                 `json:"course_id"`
	Date              time.Time              `json:"attendance_date"` // UTC midnight
	Status            Status                 `json:"status"`
	Type              Type                   `json:"attendance_type"`
	TriggerMaterialID *string                `json:"trigger_material_id"`
	Notes             string                 `json:"notes"`
	SubmittedAt       time.Time              `json:"submitted_at"` // UTC
	VerifiedBy        *string                `json:"verified_by"`
	VerifiedAt        *time.Time             `json:"verified_at"` // UTC
	Metadata          map[string]interface{} `json:"metadata"`
	CreatedAt         time.Time              `json:"created_at"` // UTC
	UpdatedAt         time.Time              `json:"updated_at"` // UTC
}

// DayOf returns the UTC day bucket of t.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// newAttendance is the only way attendances are built: the day bucket always
// derives from the submission time unless an explicit day is given.
func newAttendance(studentID, courseID string, submittedAt time.Time, day ...time.Time) Attendance {
	submittedAt = submittedAt.UTC()
	date := DayOf(submittedAt)
	if len(day) > 0 && !day[0].IsZero() {
		date = DayOf(day[0])
	}
	return Attendance{
		StudentID:   studentID,
		CourseID:    courseID,
		Date:        date,
		SubmittedAt: submittedAt,
		Metadata:    map[string]interface{}{},
		CreatedAt:   submittedAt,
		UpdatedAt:   submittedAt,
	}
}

func (att *Attendance) verify(by string, at time.Time) {
	at = at.UTC()
	att.VerifiedBy = &by
	att.VerifiedAt = &at
}

// NewAttendance contains information needed to record an attendance manually.
type NewAttendance struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	CourseID  string `json:"course_id" validate:"required,uuid"`
	Date      string `json:"attendance_date" validate:"omitempty,datetime=2006-01-02"`
	Status    Status `json:"status" validate:"required,manualstatus"`
	Notes     string `json:"notes"`
}

func (na *NewAttendance) Validate(validate *validator.Validate) error {
	na.Notes = core.CleanString(na.Notes)
	return validate.Struct(na)
}

// Day returns the requested day, zero if none was given.
func (na NewAttendance) Day() time.Time {
	if na.Date == "" {
		return time.Time{}
	}
	day, _ := ParseDay(na.Date)
	return day
}

// UpdateAttendance is a partial update: nil fields are left unchanged.
type UpdateAttendance struct {
	Status   *Status                `json:"status" validate:"omitempty,manualstatus"`
	Notes    *string                `json:"notes"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (ua *UpdateAttendance) Validate(validate *validator.Validate) error {
	if ua.Notes != nil {
		notes := core.CleanString(*ua.Notes)
		ua.Notes = &notes
	}
	return validate.Struct(ua)
}

func (ua UpdateAttendance) apply(att *Attendance) {
	if ua.Status != nil {
		att.Status = *ua.Status
	}
	if ua.Notes != nil {
		att.Notes = *ua.Notes
	}
	if ua.Metadata != nil {
		if att.Metadata == nil {
			att.Metadata = make(map[string]interface{}, len(ua.Metadata))
		}
		for k, v := range ua.Metadata {
			att.Metadata[k] = v
		}
	}
}

// QueryFilter applies AND operation on the set fields.
type QueryFilter struct {
	StudentID  string    `query:"student_id"`
	CourseID   string    `query:"course_id"`
	LecturerID string    `query:"-"`
	Status     Status    `query:"status"`
	Type       Type      `query:"attendance_type"`
	DateFrom   time.Time `query:"-"`
	DateTo     time.Time `query:"-"`
}

// AutoSubmission is what the progress tracker sends when a trigger video gets completed.
type AutoSubmission struct {
	StudentID            string
	CourseID             string
	MaterialID           string
	CompletionPercentage float64
	IPAddress            string
	UserAgent            string
	Metadata             map[string]interface{}
}

type WeeklySummary struct {
	Week            int     `json:"week"`
	RequiredVideos  int     `json:"required_videos"`
	AttendanceCount int     `json:"attendance_count"`
	TotalStudents   int     `json:"total_students"`
	AttendanceRate  float64 `json:"attendance_rate"` // percent
}

type StudentWeek struct {
	Week                 int        `json:"week"`
	RequiredVideos       int        `json:"required_videos"`
	HasAttendance        bool       `json:"has_attendance"`
	AttendanceDate       *time.Time `json:"attendance_date"`
	TriggerMaterialID    *string    `json:"trigger_material_id"`
	TriggerMaterialTitle string     `json:"trigger_material_title"`
}

type CourseStats struct {
	CourseID       string     `json:"course_id"`
	From           *time.Time `json:"from"`
	To             *time.Time `json:"to"`
	Present        int        `json:"present"`
	Absent         int        `json:"absent"`
	AutoPresent    int        `json:"auto_present"`
	Excused        int        `json:"excused"`
	Late           int        `json:"late"`
	Total          int        `json:"total"`
	TotalStudents  int        `json:"total_students"`
	AttendanceRate float64    `json:"attendance_rate"` // percent
}

// Undated is a legacy attendance row stored without a day bucket.
type Undated struct {
	ID          string
	SubmittedAt time.Time // zero when unknown
	CreatedAt   time.Time // zero when unknown
}

// FallbackDay returns the day bucket derived from the row's timestamps.
func (u Undated) FallbackDay() (time.Time, bool) {
	switch {
	case !u.SubmittedAt.IsZero():
		return DayOf(u.SubmittedAt), true
	case !u.CreatedAt.IsZero():
		return DayOf(u.CreatedAt), true
	default:
		return time.Time{}, false
	}
}

type CleanupResult struct {
	Fixed   int `json:"fixed"`
	Deleted int `json:"deleted"`
}

// ParseDay parses a YYYY-MM-DD day.
func ParseDay(raw string) (time.Time, error) {
	day, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parsing day %q", raw)
	}
	return day, nil
}
