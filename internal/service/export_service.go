package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/vtakaj/ShiftAgent/internal/model"
	"github.com/vtakaj/ShiftAgent/internal/store"
	"github.com/vtakaj/ShiftAgent/pkg/apperr"
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 仅对已完成作业的解导出
//   - Excel：按 ISO 周分 Sheet，末尾附工作量汇总 Sheet
//   - 日历：iCalendar，可按员工过滤；一个已分配班次对应一个 VEVENT
//   - 均以 bytes.Buffer 返回，由外层决定落盘或作为响应体
type ExportService interface {
	// ExportExcel 导出排班表为 Excel，返回 buf 与建议文件名
	ExportExcel(ctx context.Context, jobID string) (*bytes.Buffer, string, error)
	// ExportCalendar 导出 iCalendar；employeeID 为空串时导出全员
	ExportCalendar(ctx context.Context, jobID, employeeID string) (*bytes.Buffer, string, error)
}

type exportService struct {
	store  store.JobStore
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(st store.JobStore, logger *zap.Logger) ExportService {
	return &exportService{store: st, logger: logger}
}

// loadSolution 读取已完成作业的解
func (s *exportService) loadSolution(ctx context.Context, jobID string) (*model.Schedule, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobCompleted || job.OutputSchedule == nil {
		return nil, apperr.Newf(apperr.KindInvalidState, "invalid_state.not_completed",
			"状态 %s 不允许导出", job.Status).WithJob(jobID)
	}
	return job.OutputSchedule, nil
}

// ═══════════════════════════════════════════════════════════
// ExportExcel — 导出排班表为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - 每个 ISO 周一个 Sheet（如 "2024-W03"），行 = 班次（按开始时刻排序）
//   - 列：班次ID | 日期 | 开始 | 结束 | 地点 | 优先级 | 员工 | 所需技能
//   - 末尾 "汇总" Sheet：每员工班次数 / 总工时

func (s *exportService) ExportExcel(ctx context.Context, jobID string) (*bytes.Buffer, string, error) {
	sched, err := s.loadSolution(ctx, jobID)
	if err != nil {
		return nil, "", err
	}
	loc := sched.Location()
	empIndex := sched.EmployeeIndex()

	// 按 ISO 周分组并排序
	byWeek := make(map[string][]*model.Shift)
	for _, sh := range sched.Shifts {
		y, w := sh.Start.In(loc).ISOWeek()
		key := fmt.Sprintf("%04d-W%02d", y, w)
		byWeek[key] = append(byWeek[key], sh)
	}
	weeks := make([]string, 0, len(byWeek))
	for w := range byWeek {
		weeks = append(weeks, w)
	}
	sort.Strings(weeks)

	f := excelize.NewFile()
	defer f.Close()

	headers := []string{"班次ID", "日期", "开始", "结束", "地点", "优先级", "员工", "所需技能"}
	for i, week := range weeks {
		sheet := week
		if i == 0 {
			f.SetSheetName("Sheet1", sheet)
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, "", fmt.Errorf("创建 Sheet 失败: %w", err)
			}
		}

		for col, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			_ = f.SetCellValue(sheet, cell, h)
		}

		shifts := byWeek[week]
		sort.Slice(shifts, func(i, j int) bool {
			if !shifts[i].Start.Equal(shifts[j].Start) {
				return shifts[i].Start.Before(shifts[j].Start)
			}
			return shifts[i].ID < shifts[j].ID
		})

		for row, sh := range shifts {
			assignee := "未分配"
			if sh.IsAssigned() {
				if emp := empIndex[sh.AssigneeID()]; emp != nil {
					assignee = emp.Name
				}
			}
			values := []any{
				sh.ID,
				sh.Start.In(loc).Format("2006-01-02"),
				sh.Start.In(loc).Format("15:04"),
				sh.End.In(loc).Format("15:04"),
				sh.Location,
				sh.Priority,
				assignee,
				strings.Join(sh.RequiredSkills, ", "),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
				_ = f.SetCellValue(sheet, cell, v)
			}
		}
	}

	// 汇总 Sheet
	analysis := AnalyzeSchedule(sched)
	summary := "汇总"
	if len(weeks) == 0 {
		f.SetSheetName("Sheet1", summary)
	} else {
		if _, err := f.NewSheet(summary); err != nil {
			return nil, "", fmt.Errorf("创建汇总 Sheet 失败: %w", err)
		}
	}
	for col, h := range []string{"员工", "班次数", "总工时(h)"} {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(summary, cell, h)
	}
	for row, w := range analysis.Workloads {
		for col, v := range []any{w.Name, w.ShiftCount, float64(w.TotalMinutes) / 60} {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(summary, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		s.logger.Error("生成 Excel 失败", zap.Error(err))
		return nil, "", fmt.Errorf("生成 Excel 文件失败: %w", err)
	}

	filename := fmt.Sprintf("schedule_%s.xlsx", jobID)
	return buf, filename, nil
}

// ═══════════════════════════════════════════════════════════
// ExportCalendar — 导出 iCalendar
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportCalendar(ctx context.Context, jobID, employeeID string) (*bytes.Buffer, string, error) {
	sched, err := s.loadSolution(ctx, jobID)
	if err != nil {
		return nil, "", err
	}
	if employeeID != "" {
		if _, err := sched.EmployeeByID(employeeID); err != nil {
			return nil, "", apperr.Newf(apperr.KindNotFound, "not_found.employee", "员工不存在: %s", employeeID).WithJob(jobID)
		}
	}
	empIndex := sched.EmployeeIndex()

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//ShiftAgent//Schedule Export//EN")

	now := time.Now().UTC()
	for _, sh := range sched.Shifts {
		if !sh.IsAssigned() {
			continue
		}
		if employeeID != "" && sh.AssigneeID() != employeeID {
			continue
		}
		emp := empIndex[sh.AssigneeID()]

		event := cal.AddEvent(fmt.Sprintf("%s-%s@shiftagent", jobID, sh.ID))
		event.SetDtStampTime(now)
		event.SetStartAt(sh.Start)
		event.SetEndAt(sh.End)
		summary := strings.Join(sh.RequiredSkills, "/")
		if emp != nil {
			summary = fmt.Sprintf("%s（%s）", summary, emp.Name)
		}
		event.SetSummary(summary)
		if sh.Location != "" {
			event.SetLocation(sh.Location)
		}
	}

	buf := bytes.NewBufferString(cal.Serialize())
	suffix := "all"
	if employeeID != "" {
		suffix = employeeID
	}
	filename := fmt.Sprintf("schedule_%s_%s.ics", jobID, suffix)
	return buf, filename, nil
}

