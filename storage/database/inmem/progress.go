package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/unilearn/lms/core/progress"
)

type progressRepository struct {
	db *progressTable
}

var _ progress.Repository = (*progressRepository)(nil)

func NewProgressRepository(db *DB) *progressRepository {
	return &progressRepository{db: db.progress}
}

func (repo *progressRepository) find(studentID, materialID string) *progress.VideoProgress {
	for _, vp := range repo.db.table {
		if vp.StudentID == studentID && vp.MaterialID == materialID {
			return vp
		}
	}
	return nil
}

func (repo *progressRepository) UpdateOrCreateProgress(
	_ context.Context,
	studentID, materialID string,
	mutate func(vp *progress.VideoProgress) error,
) (progress.VideoProgress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var vp progress.VideoProgress
	if stored := repo.find(studentID, materialID); stored != nil {
		vp = copyProgress(*stored)
	} else {
		now := time.Now().UTC()
		vp = progress.VideoProgress{
			ID:            uuid.NewString(),
			StudentID:     studentID,
			MaterialID:    materialID,
			WatchSessions: []progress.WatchSession{},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	if err := mutate(&vp); err != nil {
		return progress.VideoProgress{}, err
	}
	saved := copyProgress(vp)
	repo.db.table[vp.ID] = &saved
	return vp, nil
}

func (repo *progressRepository) MarkAttendanceTriggered(_ context.Context, id string) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	vp, ok := repo.db.table[id]
	if !ok {
		return false, progress.ErrNotFound
	}
	if vp.HasTriggeredAttendance {
		return false, nil
	}
	vp.HasTriggeredAttendance = true
	vp.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (repo *progressRepository) GetProgress(_ context.Context, studentID, materialID string) (progress.VideoProgress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if vp := repo.find(studentID, materialID); vp != nil {
		return copyProgress(*vp), nil
	}
	return progress.VideoProgress{}, progress.ErrNotFound
}

func (repo *progressRepository) QueryProgress(_ context.Context, studentID string, materialIDs []string) ([]progress.VideoProgress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	res := make([]progress.VideoProgress, 0)
	for _, vp := range repo.db.table {
		if vp.StudentID == studentID && contains(materialIDs, vp.MaterialID) {
			res = append(res, copyProgress(*vp))
		}
	}
	return res, nil
}

func (repo *progressRepository) AggregateByMaterials(_ context.Context, materialIDs []string) ([]progress.Aggregate, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	aggs := make(map[string]*progress.Aggregate)
	sums := make(map[string]float64)
	for _, vp := range repo.db.table {
		if !contains(materialIDs, vp.MaterialID) {
			continue
		}
		agg, ok := aggs[vp.MaterialID]
		if !ok {
			agg = &progress.Aggregate{MaterialID: vp.MaterialID}
			aggs[vp.MaterialID] = agg
		}
		agg.Viewers++
		if vp.IsCompleted {
			agg.CompletedViewers++
		}
		if vp.HasTriggeredAttendance {
			agg.TriggeredCount++
		}
		sums[vp.MaterialID] += vp.WatchedPercentage
	}

	res := make([]progress.Aggregate, 0, len(aggs))
	for id, agg := range aggs {
		agg.AveragePercentage = sums[id] / float64(agg.Viewers)
		res = append(res, *agg)
	}
	return res, nil
}

func copyProgress(vp progress.VideoProgress) progress.VideoProgress {
	if vp.TotalDuration != nil {
		dur := *vp.TotalDuration
		vp.TotalDuration = &dur
	}
	if vp.CompletedAt != nil {
		at := *vp.CompletedAt
		vp.CompletedAt = &at
	}
	vp.WatchSessions = append(make([]progress.WatchSession, 0, len(vp.WatchSessions)), vp.WatchSessions...)
	return vp
}
