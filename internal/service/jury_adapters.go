package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/BorisSavianov/doxa-backend/internal/jury"
	"github.com/BorisSavianov/doxa-backend/internal/model"
	"github.com/BorisSavianov/doxa-backend/internal/repository"
)

// ── 评审引擎协作方适配：Repository → jury 接口 ──

// candidateDirectory 实现 jury.CandidateDirectory
type candidateDirectory struct {
	users repository.UserRepository
}

func (d *candidateDirectory) FindByScientificField(ctx context.Context, field string) ([]model.User, error) {
	return d.users.ListByScientificField(ctx, field)
}

func (d *candidateDirectory) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := d.users.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return u, err
}

func (d *candidateDirectory) UpdateJuryDates(ctx context.Context, id string, date time.Time) error {
	return d.users.ShiftJuryDates(ctx, id, date)
}

// availabilityOracle 实现 jury.AvailabilityOracle
type availabilityOracle struct {
	periods repository.UnavailabilityRepository
}

func (o *availabilityOracle) IsAvailable(ctx context.Context, userID string, date time.Time) (bool, error) {
	blocked, err := o.periods.ExistsCovering(ctx, userID, date)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}

// procedureStore 实现 jury.ProcedureStore
type procedureStore struct {
	procedures repository.ProcedureRepository
	loc        *time.Location
}

func (s *procedureStore) FindByID(ctx context.Context, id string) (*model.Procedure, error) {
	p, err := s.procedures.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, jury.ErrProcedureNotFound
	}
	return p, err
}

func (s *procedureStore) FindSameDay(ctx context.Context, date time.Time, excludeID string) ([]model.Procedure, error) {
	start, end := jury.DayBounds(date, s.loc)
	return s.procedures.ListByDateRange(ctx, start, end, excludeID)
}

func (s *procedureStore) Save(ctx context.Context, p *model.Procedure) (*model.Procedure, error) {
	if err := s.procedures.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
