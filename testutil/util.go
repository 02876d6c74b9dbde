package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/unilearn/lms/core/course"
	"github.com/unilearn/lms/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email string,
	roles []string,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Roles:     roles,
		IsActive:  true,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, repo course.Repository, code string, lecturer user.User) course.Course {
	now := time.Now().UTC()
	crs, err := repo.CreateCourse(context.Background(), course.Course{
		Code:       code,
		Title:      "Course " + code,
		LecturerID: lecturer.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

// MaterialOption tweaks a material before it gets created.
type MaterialOption func(mat *course.Material)

// Trigger makes the material an attendance trigger.
func Trigger(mat *course.Material) {
	mat.IsAttendanceTrigger = true
}

func Threshold(pct float64) MaterialOption {
	return func(mat *course.Material) {
		mat.AttendanceThreshold = &pct
	}
}

func OfType(typ course.MaterialType) MaterialOption {
	return func(mat *course.Material) {
		mat.Type = typ
	}
}

func OrderIndex(idx int) MaterialOption {
	return func(mat *course.Material) {
		mat.OrderIndex = idx
	}
}

// CreateMaterial creates a video of the course's week; opts may change that.
func CreateMaterial(t *testing.T, repo course.Repository, crs course.Course, title string, week int, opts ...MaterialOption) course.Material {
	now := time.Now().UTC()
	mat := course.Material{
		CourseID:  crs.ID,
		Title:     title,
		Type:      course.MaterialVideo,
		Week:      week,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(&mat)
	}
	mat, err := repo.CreateMaterial(context.Background(), mat)
	if err != nil {
		t.Fatalf("CreateMaterial() failed: %v", err)
	}
	return mat
}

func Enroll(t *testing.T, repo course.Repository, crs course.Course, students ...user.User) {
	ids := make([]string, len(students))
	for i, usr := range students {
		ids[i] = usr.ID
	}
	if err := repo.Enroll(context.Background(), crs.ID, ids...); err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
}

func FloatPtr(f float64) *float64 { return &f }

// NopLogger discards every log.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}
