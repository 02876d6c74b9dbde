package inmemdb

import (
	"sync"

	"github.com/unilearn/lms/core/attendance"
	"github.com/unilearn/lms/core/course"
	"github.com/unilearn/lms/core/progress"
	"github.com/unilearn/lms/core/user"
)

type (
	// DB is an in-memory store implementing every repository of the app.
	DB struct {
		user       *userTable
		course     *courseTable
		progress   *progressTable
		attendance *attendanceTable
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	courseTable struct {
		courses     map[string]*course.Course
		materials   map[string]*course.Material
		enrollments map[string]map[string]struct{} // course ID -> student IDs
		mutex       sync.RWMutex
	}

	progressTable struct {
		table map[string]*progress.VideoProgress
		mutex sync.Mutex
	}

	attendanceTable struct {
		table map[string]*attendance.Attendance
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:       &userTable{table: make(map[string]*user.User)},
		course:     newCourseTable(),
		progress:   &progressTable{table: make(map[string]*progress.VideoProgress)},
		attendance: &attendanceTable{table: make(map[string]*attendance.Attendance)},
	}
}

func newCourseTable() *courseTable {
	return &courseTable{
		courses:     make(map[string]*course.Course),
		materials:   make(map[string]*course.Material),
		enrollments: make(map[string]map[string]struct{}),
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.user.mutex.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.mutex.Unlock()

	db.course.mutex.Lock()
	fresh := newCourseTable()
	db.course.courses, db.course.materials, db.course.enrollments = fresh.courses, fresh.materials, fresh.enrollments
	db.course.mutex.Unlock()

	db.progress.mutex.Lock()
	db.progress.table = make(map[string]*progress.VideoProgress)
	db.progress.mutex.Unlock()

	db.attendance.mutex.Lock()
	db.attendance.table = make(map[string]*attendance.Attendance)
	db.attendance.mutex.Unlock()
}

func contains(ids []string, id string) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
