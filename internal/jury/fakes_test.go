package jury

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BorisSavianov/doxa-backend/internal/model"
	pkgerrors "github.com/BorisSavianov/doxa-backend/pkg/errors"
)

// ── 测试夹具：内存实现的协作方 ──

const (
	testHome  = "Home University"
	testField = "Mathematics"
)

var errBoom = errors.New("boom")

func sofia() *time.Location {
	loc, err := time.LoadLocation("Europe/Sofia")
	if err != nil {
		panic(err)
	}
	return loc
}

func procedureDate() time.Time {
	return time.Date(2026, 3, 10, 10, 0, 0, 0, sofia())
}

func professor(id, university string, distance float64) model.User {
	return model.User{
		UserID:          id,
		FullName:        id,
		AcademicRank:    model.RankProfessor,
		ScientificField: testField,
		University:      university,
		DistanceToCity:  distance,
	}
}

func associate(id, university string, distance float64) model.User {
	u := professor(id, university, distance)
	u.AcademicRank = model.RankAssociateProfessor
	return u
}

type fakeDirectory struct {
	mu         sync.Mutex
	users      []model.User
	findErr    error
	failUpdate string // 该成员的下一次 UpdateJuryDates 返回 errBoom
	updated    []string
}

func newFakeDirectory(users ...model.User) *fakeDirectory {
	return &fakeDirectory{users: users}
}

func (d *fakeDirectory) FindByScientificField(_ context.Context, field string) ([]model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findErr != nil {
		return nil, d.findErr
	}
	var out []model.User
	for _, u := range d.users {
		if u.ScientificField == field {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *fakeDirectory) FindByID(_ context.Context, id string) (*model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.users {
		if d.users[i].UserID == id {
			u := d.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (d *fakeDirectory) UpdateJuryDates(_ context.Context, id string, date time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id == d.failUpdate {
		d.failUpdate = ""
		return errBoom
	}
	for i := range d.users {
		if d.users[i].UserID == id {
			if last := d.users[i].LastJuryDate; last != nil && last.Equal(date) {
				return nil
			}
			d.users[i].PenultimateJuryDate = d.users[i].LastJuryDate
			dt := date
			d.users[i].LastJuryDate = &dt
			d.updated = append(d.updated, id)
			return nil
		}
	}
	return errors.New("user not found")
}

func (d *fakeDirectory) user(id string) model.User {
	u, _ := d.FindByID(context.Background(), id)
	return *u
}

type fakeOracle struct {
	unavailable map[string]bool
	err         error
}

func (o *fakeOracle) IsAvailable(_ context.Context, userID string, _ time.Time) (bool, error) {
	if o.err != nil {
		return false, o.err
	}
	return !o.unavailable[userID], nil
}

type fakeStore struct {
	mu         sync.Mutex
	procedures map[string]*model.Procedure
	sameDay    []model.Procedure
	conflicts  int // 前 N 次 Save 返回版本冲突
	saves      int
}

func newFakeStore(ps ...*model.Procedure) *fakeStore {
	s := &fakeStore{procedures: map[string]*model.Procedure{}}
	for _, p := range ps {
		s.procedures[p.ProcedureID] = p.Clone()
	}
	return s
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*model.Procedure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procedures[id]
	if !ok {
		return nil, ErrProcedureNotFound
	}
	return p.Clone(), nil
}

func (s *fakeStore) FindSameDay(_ context.Context, _ time.Time, _ string) ([]model.Procedure, error) {
	return s.sameDay, nil
}

func (s *fakeStore) Save(_ context.Context, p *model.Procedure) (*model.Procedure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts > 0 {
		s.conflicts--
		return nil, pkgerrors.ErrOptimisticLock
	}
	cur, ok := s.procedures[p.ProcedureID]
	if !ok {
		return nil, ErrProcedureNotFound
	}
	if cur.Version != p.Version {
		return nil, pkgerrors.ErrOptimisticLock
	}
	next := p.Clone()
	next.Version++
	s.procedures[p.ProcedureID] = next
	s.saves++
	return next.Clone(), nil
}

func (s *fakeStore) get(id string) *model.Procedure {
	p, _ := s.FindByID(context.Background(), id)
	return p
}

type responseEvent struct {
	userID   string
	accepted bool
}

type fakeNotifier struct {
	invitations [][]string
	responses   []responseEvent
	err         error
}

func (n *fakeNotifier) NotifyInvitation(_ context.Context, _ *model.Procedure, userIDs []string) error {
	if n.err != nil {
		return n.err
	}
	n.invitations = append(n.invitations, append([]string(nil), userIDs...))
	return nil
}

func (n *fakeNotifier) NotifyResponse(_ context.Context, _ *model.Procedure, userID string, accepted bool) error {
	if n.err != nil {
		return n.err
	}
	n.responses = append(n.responses, responseEvent{userID: userID, accepted: accepted})
	return nil
}

func memberIDs(ms model.JuryMembers) []string {
	ids := make([]string, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.UserID)
	}
	return ids
}

func userIDs(us []model.User) []string {
	ids := make([]string, 0, len(us))
	for _, u := range us {
		ids = append(ids, u.UserID)
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
