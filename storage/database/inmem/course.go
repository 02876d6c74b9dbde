package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/unilearn/lms/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db.course}
}

func (repo *courseRepository) CreateCourse(_ context.Context, crs course.Course) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if crs.ID == "" {
		crs.ID = uuid.NewString()
	}
	repo.db.courses[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if crs, ok := repo.db.courses[id]; ok {
		return *crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) CreateMaterial(_ context.Context, mat course.Material) (course.Material, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[mat.CourseID]; !ok {
		return course.Material{}, course.ErrNotFound
	}
	if mat.ID == "" {
		mat.ID = uuid.NewString()
	}
	repo.db.materials[mat.ID] = &mat
	return mat, nil
}

func (repo *courseRepository) GetMaterial(_ context.Context, id string) (course.Material, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if mat, ok := repo.db.materials[id]; ok {
		return *mat, nil
	}
	return course.Material{}, course.ErrMaterialNotFound
}

func (repo *courseRepository) QueryMaterials(_ context.Context, filter course.MaterialFilter) ([]course.Material, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	mats := make([]course.Material, 0)
	for _, mat := range repo.db.materials {
		if filter.CourseID != "" && mat.CourseID != filter.CourseID {
			continue
		}
		if filter.Type != "" && mat.Type != filter.Type {
			continue
		}
		if filter.Week != nil && mat.Week != *filter.Week {
			continue
		}
		if filter.IsAttendanceTrigger != nil && mat.IsAttendanceTrigger != *filter.IsAttendanceTrigger {
			continue
		}
		mats = append(mats, *mat)
	}
	sort.Slice(mats, func(i, j int) bool {
		if mats[i].Week != mats[j].Week {
			return mats[i].Week < mats[j].Week
		}
		if mats[i].OrderIndex != mats[j].OrderIndex {
			return mats[i].OrderIndex < mats[j].OrderIndex
		}
		return mats[i].ID < mats[j].ID
	})
	return mats, nil
}

func (repo *courseRepository) Enroll(_ context.Context, courseID string, studentIDs ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[courseID]; !ok {
		return course.ErrNotFound
	}
	students, ok := repo.db.enrollments[courseID]
	if !ok {
		students = make(map[string]struct{})
		repo.db.enrollments[courseID] = students
	}
	for _, id := range studentIDs {
		students[id] = struct{}{}
	}
	return nil
}

func (repo *courseRepository) CountEnrolledStudents(_ context.Context, courseID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return len(repo.db.enrollments[courseID]), nil
}
