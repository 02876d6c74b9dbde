package course

import (
	"context"

	"github.com/pkg/errors"

	"github.com/unilearn/lms/core"
	"github.com/unilearn/lms/core/user"
)

var (
	// errors
	ErrNotFound         = core.NewError(core.KindNotFound, "course not found")
	ErrMaterialNotFound = core.NewError(core.KindNotFound, "course material not found")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		CreateMaterial(ctx context.Context, mat Material) (Material, error)
		GetMaterial(ctx context.Context, id string) (Material, error)
		QueryMaterials(ctx context.Context, filter MaterialFilter) ([]Material, error)
		Enroll(ctx context.Context, courseID string, studentIDs ...string) error
		CountEnrolledStudents(ctx context.Context, courseID string) (int, error)
	}

	// Service is the read side of the course material catalog.
	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) GetCourse(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *Service) GetMaterial(ctx context.Context, id string) (Material, error) {
	return svc.repo.GetMaterial(ctx, id)
}

// VideoMaterials returns the course's videos in course-structure order.
func (svc *Service) VideoMaterials(ctx context.Context, courseID string) ([]Material, error) {
	return svc.repo.QueryMaterials(ctx, MaterialFilter{CourseID: courseID, Type: MaterialVideo})
}

// TriggerMaterials returns the videos of a course week that trigger attendance.
func (svc *Service) TriggerMaterials(ctx context.Context, courseID string, week int) ([]Material, error) {
	trigger := true
	mats, err := svc.repo.QueryMaterials(ctx, MaterialFilter{
		CourseID:            courseID,
		Type:                MaterialVideo,
		Week:                &week,
		IsAttendanceTrigger: &trigger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying trigger materials")
	}
	return mats, nil
}

func (svc *Service) CountEnrolledStudents(ctx context.Context, courseID string) (int, error) {
	return svc.repo.CountEnrolledStudents(ctx, courseID)
}

// CanManage reports whether usr may manage the course's attendance and statistics.
func CanManage(usr user.User, crs Course) bool {
	if usr.IsAdmin() {
		return true
	}
	return usr.IsLecturer() && crs.LecturerID == usr.ID
}
