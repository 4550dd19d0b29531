package jury

import (
	"fmt"

	"github.com/BorisSavianov/doxa-backend/internal/model"
)

// Requirements 评审委员会名额要求
type Requirements struct {
	TotalMembers    int
	ExternalMembers int
	MinProfessors   int

	// 是否需要选出校内 / 校外候补各一名
	ReserveInternal bool
	ReserveExternal bool
}

// InternalMembers 校内成员名额 = 总数 - 校外
func (r Requirements) InternalMembers() int {
	return r.TotalMembers - r.ExternalMembers
}

// requirementsTable 各程序类型的法定名额，不得修改
var requirementsTable = map[model.ProcedureType]Requirements{
	model.ProcedureDoctor:             {TotalMembers: 5, ExternalMembers: 3, MinProfessors: 1},
	model.ProcedureDoctorOfSciences:   {TotalMembers: 7, ExternalMembers: 4, MinProfessors: 3},
	model.ProcedureAssociateProfessor: {TotalMembers: 7, ExternalMembers: 3, MinProfessors: 3},
	model.ProcedureProfessor:          {TotalMembers: 7, ExternalMembers: 3, MinProfessors: 4},
}

// RequirementsFor 返回程序类型对应的完整名额要求（含两名候补）
func RequirementsFor(t model.ProcedureType) (Requirements, error) {
	r, ok := requirementsTable[t]
	if !ok {
		return Requirements{}, fmt.Errorf("%w: %q", ErrUnknownProcedureType, t)
	}
	r.ReserveInternal = true
	r.ReserveExternal = true
	return r, nil
}

// ValidProcedureType 是否为受支持的程序类型
func ValidProcedureType(t model.ProcedureType) bool {
	_, ok := requirementsTable[t]
	return ok
}
