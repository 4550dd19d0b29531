package jury

import (
	"errors"
	"testing"

	"github.com/BorisSavianov/doxa-backend/internal/model"
)

func TestRequirementsFor(t *testing.T) {
	tests := []struct {
		typ                      model.ProcedureType
		total, external, minProf int
	}{
		{model.ProcedureDoctor, 5, 3, 1},
		{model.ProcedureDoctorOfSciences, 7, 4, 3},
		{model.ProcedureAssociateProfessor, 7, 3, 3},
		{model.ProcedureProfessor, 7, 3, 4},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			r, err := RequirementsFor(tt.typ)
			if err != nil {
				t.Fatalf("意外错误: %v", err)
			}
			if r.TotalMembers != tt.total || r.ExternalMembers != tt.external || r.MinProfessors != tt.minProf {
				t.Errorf("名额不符: %+v", r)
			}
			if r.InternalMembers() != tt.total-tt.external {
				t.Errorf("校内名额期望 %d，实际 %d", tt.total-tt.external, r.InternalMembers())
			}
			if !r.ReserveInternal || !r.ReserveExternal {
				t.Error("完整名额应要求两名候补")
			}
		})
	}
}

func TestRequirementsFor_Unknown(t *testing.T) {
	if _, err := RequirementsFor("habilitation"); !errors.Is(err, ErrUnknownProcedureType) {
		t.Errorf("期望 ErrUnknownProcedureType，实际 %v", err)
	}
	if ValidProcedureType("habilitation") {
		t.Error("未知类型不应有效")
	}
}
