package jury

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BorisSavianov/doxa-backend/internal/model"
)

// SelectRequest 一次选拔的输入
type SelectRequest struct {
	ProcedureID         string
	ScientificField     string
	Date                time.Time
	ExcludedUserIDs     []string
	SameDayProcedureIDs []string
}

// Selection 选拔结果
// External 按距离升序；Internal 保持目录顺序
type Selection struct {
	Internal        []model.User
	External        []model.User
	ReserveInternal *model.User
	ReserveExternal *model.User
}

// Members 正式成员（先校内后校外）
func (s *Selection) Members() []model.User {
	out := make([]model.User, 0, len(s.Internal)+len(s.External))
	out = append(out, s.Internal...)
	return append(out, s.External...)
}

// Selector 评审委员会选拔器
type Selector struct {
	directory      CandidateDirectory
	filter         *EligibilityFilter
	homeUniversity string
	logger         *zap.Logger
}

// NewSelector 创建选拔器
func NewSelector(directory CandidateDirectory, filter *EligibilityFilter, homeUniversity string, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		directory:      directory,
		filter:         filter,
		homeUniversity: homeUniversity,
		logger:         logger,
	}
}

// IsExternal 非本校即为校外成员
func (s *Selector) IsExternal(u *model.User) bool {
	return u.University != s.homeUniversity
}

// SelectJury 按程序类型的完整名额选拔
func (s *Selector) SelectJury(ctx context.Context, t model.ProcedureType, req SelectRequest) (*Selection, error) {
	reqs, err := RequirementsFor(t)
	if err != nil {
		return nil, err
	}
	return s.SelectFor(ctx, reqs, req)
}

// SelectFor 按给定名额选拔，用于补齐空缺时传入剩余名额
func (s *Selector) SelectFor(ctx context.Context, reqs Requirements, req SelectRequest) (*Selection, error) {
	candidates, err := s.directory.FindByScientificField(ctx, req.ScientificField)
	if err != nil {
		return nil, collaboratorErr("directory.find_by_scientific_field", err)
	}

	eligible, err := s.filter.FilterEligible(ctx, candidates, req.Date, req.ExcludedUserIDs, req.SameDayProcedureIDs)
	if err != nil {
		return nil, err
	}

	var internal, external []model.User
	for _, c := range eligible {
		if s.IsExternal(&c) {
			external = append(external, c)
		} else {
			internal = append(internal, c)
		}
	}
	// 距离相同时保持目录顺序
	sort.SliceStable(external, func(i, j int) bool {
		return external[i].DistanceToCity < external[j].DistanceToCity
	})

	sel, err := pick(internal, external, reqs)
	if err != nil {
		s.logger.Warn("评审选拔失败：合格候选人不足",
			zap.String("procedure_id", req.ProcedureID),
			zap.String("scientific_field", req.ScientificField),
			zap.Int("eligible_internal", len(internal)),
			zap.Int("eligible_external", len(external)),
			zap.Int("need_total", reqs.TotalMembers),
			zap.Int("need_external", reqs.ExternalMembers),
			zap.Int("need_professors", reqs.MinProfessors),
		)
		return nil, err
	}

	s.logger.Info("评审选拔完成",
		zap.String("procedure_id", req.ProcedureID),
		zap.Int("internal", len(sel.Internal)),
		zap.Int("external", len(sel.External)),
		zap.Bool("reserve_internal", sel.ReserveInternal != nil),
		zap.Bool("reserve_external", sel.ReserveExternal != nil),
	)
	return sel, nil
}

// pick 在已分区的合格候选人中按名额选拔
// internal 为目录顺序，external 已按距离升序
func pick(internal, external []model.User, reqs Requirements) (*Selection, error) {
	internalNeeded := reqs.InternalMembers()
	externalNeeded := reqs.ExternalMembers

	extProfs, extAssocs := splitByRank(external)
	intProfs, intAssocs := splitByRank(internal)

	chosen := make(map[string]struct{})
	var selInternal, selExternal []model.User
	takeExternal := func(u model.User) {
		selExternal = append(selExternal, u)
		chosen[u.UserID] = struct{}{}
	}
	takeInternal := func(u model.User) {
		selInternal = append(selInternal, u)
		chosen[u.UserID] = struct{}{}
	}
	isChosen := func(u model.User) bool {
		_, ok := chosen[u.UserID]
		return ok
	}

	// 1. 教授名额优先由距离最近的校外教授承担
	extProfsTaken := 0
	for _, p := range extProfs {
		if len(selExternal) >= externalNeeded || extProfsTaken >= reqs.MinProfessors {
			break
		}
		takeExternal(p)
		extProfsTaken++
	}

	// 2. 剩余教授名额由校内教授承担
	intProfsTaken := 0
	remainingProfs := reqs.MinProfessors - extProfsTaken
	for _, p := range intProfs {
		if len(selInternal) >= internalNeeded || intProfsTaken >= remainingProfs {
			break
		}
		takeInternal(p)
		intProfsTaken++
	}

	// 3. 教授名额仍不足时，再尝试未选中的校外教授
	if extProfsTaken+intProfsTaken < reqs.MinProfessors {
		for _, p := range extProfs {
			if len(selExternal) >= externalNeeded || extProfsTaken+intProfsTaken >= reqs.MinProfessors {
				break
			}
			if isChosen(p) {
				continue
			}
			takeExternal(p)
			extProfsTaken++
		}
	}

	// 4. 副教授补齐剩余席位：校外按距离，校内按目录顺序
	for _, a := range extAssocs {
		if len(selExternal) >= externalNeeded {
			break
		}
		takeExternal(a)
	}
	for _, a := range intAssocs {
		if len(selInternal) >= internalNeeded {
			break
		}
		takeInternal(a)
	}

	// 5. 副教授不足时由同侧剩余候选人补齐
	for _, c := range external {
		if len(selExternal) >= externalNeeded {
			break
		}
		if !isChosen(c) {
			takeExternal(c)
		}
	}
	for _, c := range internal {
		if len(selInternal) >= internalNeeded {
			break
		}
		if !isChosen(c) {
			takeInternal(c)
		}
	}

	// 6. 校验席位与教授名额
	if len(selInternal)+len(selExternal) < reqs.TotalMembers {
		return nil, fmt.Errorf("%w: 需要 %d 人，仅选出 %d 人",
			ErrInsufficientCandidates, reqs.TotalMembers, len(selInternal)+len(selExternal))
	}
	if profs := countProfessors(selInternal) + countProfessors(selExternal); profs < reqs.MinProfessors {
		return nil, fmt.Errorf("%w: 至少需要 %d 名教授，仅选出 %d 名",
			ErrInsufficientCandidates, reqs.MinProfessors, profs)
	}

	// 7. 候补：校内取首个未选中者，校外取距离最近的未选中者
	sel := &Selection{Internal: selInternal, External: sortedByPartition(selExternal, external)}
	if reqs.ReserveInternal {
		sel.ReserveInternal = firstUnchosen(internal, chosen)
		if sel.ReserveInternal == nil {
			return nil, fmt.Errorf("%w: 无可用校内候补", ErrInsufficientCandidates)
		}
	}
	if reqs.ReserveExternal {
		sel.ReserveExternal = firstUnchosen(external, chosen)
		if sel.ReserveExternal == nil {
			return nil, fmt.Errorf("%w: 无可用校外候补", ErrInsufficientCandidates)
		}
	}
	return sel, nil
}

func splitByRank(users []model.User) (profs, others []model.User) {
	for _, u := range users {
		if u.IsProfessor() {
			profs = append(profs, u)
		} else {
			others = append(others, u)
		}
	}
	return profs, others
}

func countProfessors(users []model.User) int {
	n := 0
	for i := range users {
		if users[i].IsProfessor() {
			n++
		}
	}
	return n
}

func firstUnchosen(users []model.User, chosen map[string]struct{}) *model.User {
	for i := range users {
		if _, ok := chosen[users[i].UserID]; !ok {
			u := users[i]
			return &u
		}
	}
	return nil
}

// sortedByPartition 按候选人在 partition 中的位置重排 selected
func sortedByPartition(selected, partition []model.User) []model.User {
	pos := make(map[string]int, len(partition))
	for i, u := range partition {
		pos[u.UserID] = i
	}
	out := append([]model.User(nil), selected...)
	sort.SliceStable(out, func(i, j int) bool {
		return pos[out[i].UserID] < pos[out[j].UserID]
	})
	return out
}
