package attendance

import "github.com/unilearn/lms/core/user"

// ScopeFilter narrows filter to what usr may see:
// students their own attendances, lecturers the ones of the courses they teach.
func ScopeFilter(usr user.User, filter QueryFilter) QueryFilter {
	switch {
	case usr.IsAdmin():
	case usr.IsLecturer():
		filter.LecturerID = usr.ID
	default:
		filter.StudentID = usr.ID
	}
	return filter
}

// CanView reports whether usr may see att, lecturerID being the lecturer of att's course.
func CanView(usr user.User, att Attendance, lecturerID string) bool {
	switch {
	case usr.IsAdmin():
		return true
	case usr.IsLecturer():
		return lecturerID == usr.ID
	default:
		return att.StudentID == usr.ID
	}
}
