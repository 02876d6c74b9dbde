package core

// Metrics receives the domain events worth counting.
type Metrics interface {
	ProgressUpdated(completed bool)
	AttendanceSubmitted(attendanceType string)
	AttendanceConflict(attendanceType string)
	AttendanceTriggerFailed()
}

// NopMetrics discards everything.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) ProgressUpdated(bool)        {}
func (NopMetrics) AttendanceSubmitted(string) {}
func (NopMetrics) AttendanceConflict(string)  {}
func (NopMetrics) AttendanceTriggerFailed()   {}
