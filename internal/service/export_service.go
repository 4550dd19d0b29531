package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BorisSavianov/doxa-backend/internal/model"
	"github.com/BorisSavianov/doxa-backend/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoMembers    = errors.New("该程序尚未选出评审委员会")
	ErrExportNoProcedures = errors.New("所选范围内没有程序")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// exportMaxProcedures 概览导出上限
const exportMaxProcedures = 1000

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	// ExportJuryRoster 导出单个程序的评审委员会名单
	ExportJuryRoster(ctx context.Context, procedureID string) (*bytes.Buffer, string, error)
	// ExportProcedures 导出程序概览（每个程序一行）
	ExportProcedures(ctx context.Context, filter repository.ProcedureFilter) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, loc: loc, logger: logger}
}

var memberStatusLabels = map[model.MemberStatus]string{
	model.MemberPending:  "待答复",
	model.MemberAccepted: "已接受",
	model.MemberRejected: "已拒绝",
}

var procedureStatusLabels = map[model.ProcedureStatus]string{
	model.StatusDraft:                 "草稿",
	model.StatusPendingJury:           "待选评审",
	model.StatusJurySelected:          "评审已选",
	model.StatusAwaitingConfirmations: "等待确认",
	model.StatusConfirmed:             "已确认",
	model.StatusCompleted:             "已完成",
	model.StatusCancelled:             "已取消",
}

// ═══════════════════════════════════════════════════════════
// ExportJuryRoster: 评审委员会名单
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - 标题行：程序类型 / 候选人 / 日期
//   - 表头：序号 | 姓名 | 职称 | 单位 | 类别 | 身份 | 答复状态 | 答复时间
//   - 行顺序与 jury_members 一致（候补在后）

func (s *exportService) ExportJuryRoster(ctx context.Context, procedureID string) (*bytes.Buffer, string, error) {
	p, err := s.repo.Procedure.GetByID(ctx, procedureID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrProcedureNotFound
		}
		s.logger.Error("查询程序失败", zap.Error(err))
		return nil, "", err
	}
	if len(p.JuryMembers) == 0 {
		return nil, "", ErrExportNoMembers
	}

	ids := make([]string, 0, len(p.JuryMembers))
	for _, m := range p.JuryMembers {
		ids = append(ids, m.UserID)
	}
	users, err := s.repo.User.ListByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("查询评审成员失败", zap.Error(err))
		return nil, "", err
	}
	byID := make(map[string]*model.User, len(users))
	for i := range users {
		byID[users[i].UserID] = &users[i]
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "评审委员会"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headers := []string{"序号", "姓名", "职称", "单位", "类别", "身份", "答复状态", "答复时间"}
	widths := []float64{6, 24, 12, 32, 8, 8, 10, 18}
	for i, w := range widths {
		col := colName(i)
		f.SetColWidth(sheetName, col, col, w)
	}
	headerStyle, _ := newHeaderStyle(f)

	date := p.Date.In(s.loc).Format("2006-01-02 15:04")
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s (%s)", procedureLabel(p), date))
	f.MergeCell(sheetName, "A1", cell(colName(len(headers)-1), 1))
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	for i, h := range headers {
		f.SetCellValue(sheetName, cell(colName(i), 2), h)
	}
	f.SetCellStyle(sheetName, "A2", cell(colName(len(headers)-1), 2), headerStyle)

	for i, m := range p.JuryMembers {
		row := 3 + i
		name, rank, university := m.UserID, "", ""
		if u, ok := byID[m.UserID]; ok {
			name, university = u.FullName, u.University
			rank = "副教授"
			if u.IsProfessor() {
				rank = "教授"
			}
		}
		side := "校内"
		if m.IsExternal {
			side = "校外"
		}
		role := "正式"
		if m.IsReserve {
			role = "候补"
		}
		responded := "-"
		if m.RespondedAt != nil {
			responded = m.RespondedAt.In(s.loc).Format("2006-01-02 15:04")
		}

		values := []interface{}{i + 1, name, rank, university, side, role, memberStatusLabels[m.Status], responded}
		for c, v := range values {
			f.SetCellValue(sheetName, cell(colName(c), row), v)
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("评审委员会_%s_%s.xlsx", p.Date.In(s.loc).Format("20060102"), p.ProcedureID[:min(8, len(p.ProcedureID))])
	return buf, filename, nil
}

// ═══════════════════════════════════════════════════════════
// ExportProcedures: 程序概览
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportProcedures(ctx context.Context, filter repository.ProcedureFilter) (*bytes.Buffer, string, error) {
	procedures, _, err := s.repo.Procedure.List(ctx, filter, 0, exportMaxProcedures)
	if err != nil {
		s.logger.Error("查询程序列表失败", zap.Error(err))
		return nil, "", err
	}
	if len(procedures) == 0 {
		return nil, "", ErrExportNoProcedures
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "程序概览"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headers := []string{"日期", "类型", "候选人", "学科", "状态", "已接受", "待答复", "已拒绝"}
	widths := []float64{18, 16, 24, 24, 10, 8, 8, 8}
	for i, w := range widths {
		col := colName(i)
		f.SetColWidth(sheetName, col, col, w)
	}
	headerStyle, _ := newHeaderStyle(f)
	for i, h := range headers {
		f.SetCellValue(sheetName, cell(colName(i), 1), h)
	}
	f.SetCellStyle(sheetName, "A1", cell(colName(len(headers)-1), 1), headerStyle)

	for i := range procedures {
		p := &procedures[i]
		counts := make(map[model.MemberStatus]int)
		for _, m := range p.JuryMembers {
			if !m.IsReserve {
				counts[m.Status]++
			}
		}
		values := []interface{}{
			p.Date.In(s.loc).Format("2006-01-02 15:04"),
			procedureTypeLabels[p.Type],
			p.CandidateName,
			p.ScientificField,
			procedureStatusLabels[p.Status],
			counts[model.MemberAccepted],
			counts[model.MemberPending],
			counts[model.MemberRejected],
		}
		for c, v := range values {
			f.SetCellValue(sheetName, cell(colName(c), i+2), v)
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	return buf, "程序概览.xlsx", nil
}

// ── 辅助函数 ──

func newHeaderStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
