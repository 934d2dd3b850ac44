package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/vtakaj/ShiftAgent/pkg/apperr"
)

func TestAnalyzeSchedule(t *testing.T) {
	sched := scenarioDSchedule(t)
	analysis := AnalyzeSchedule(sched)

	if analysis.TotalShifts != 2 || analysis.AssignedShifts != 1 {
		t.Errorf("汇总计数不符: %+v", analysis)
	}
	if len(analysis.UnassignedShifts) != 1 || analysis.UnassignedShifts[0] != "s1" {
		t.Errorf("未分配列表不符: %v", analysis.UnassignedShifts)
	}
	if len(analysis.Workloads) != 1 {
		t.Fatalf("应有 1 个员工的工作量，got %d", len(analysis.Workloads))
	}
	w := analysis.Workloads[0]
	if w.EmployeeID != "e1" || w.ShiftCount != 1 || w.TotalMinutes != 480 {
		t.Errorf("工作量汇总不符: %+v", w)
	}
	if w.WeekMinutes["2024-W03"] != 480 {
		t.Errorf("周分钟汇总不符: %v", w.WeekMinutes)
	}
}

func TestExportExcel(t *testing.T) {
	m, st := newTestManager(t, 1, false)
	jobID := seedCompletedJob(t, m, scenarioDSchedule(t))
	svc := NewExportService(st, zap.NewNop())

	buf, filename, err := svc.ExportExcel(context.Background(), jobID)
	if err != nil {
		t.Fatalf("ExportExcel: %v", err)
	}
	if !strings.HasSuffix(filename, ".xlsx") {
		t.Errorf("文件名应以 .xlsx 结尾: %s", filename)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("生成的文件应可被重新打开: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	found := false
	for _, s := range sheets {
		if s == "2024-W03" {
			found = true
		}
	}
	if !found {
		t.Errorf("应存在 ISO 周 Sheet，got %v", sheets)
	}

	rows, err := f.GetRows("2024-W03")
	if err != nil {
		t.Fatal(err)
	}
	// 表头 + 2 个班次
	if len(rows) != 3 {
		t.Errorf("周 Sheet 行数不符: %d", len(rows))
	}
	if rows[0][0] != "班次ID" {
		t.Errorf("表头不符: %v", rows[0])
	}
}

func TestExportCalendar(t *testing.T) {
	m, st := newTestManager(t, 1, false)
	jobID := seedCompletedJob(t, m, scenarioDSchedule(t))
	svc := NewExportService(st, zap.NewNop())

	buf, filename, err := svc.ExportCalendar(context.Background(), jobID, "")
	if err != nil {
		t.Fatalf("ExportCalendar: %v", err)
	}
	content := buf.String()
	if !strings.Contains(content, "BEGIN:VCALENDAR") {
		t.Error("应为合法 iCalendar 内容")
	}
	// 仅已分配班次生成事件：s2 有，s1 没有
	if !strings.Contains(content, "s2@shiftagent") {
		t.Error("已分配班次应生成 VEVENT")
	}
	if strings.Contains(content, "-s1@shiftagent") {
		t.Error("未分配班次不应生成 VEVENT")
	}
	if !strings.HasSuffix(filename, ".ics") {
		t.Errorf("文件名应以 .ics 结尾: %s", filename)
	}

	// 按员工过滤：未知员工报 not_found
	if _, _, err := svc.ExportCalendar(context.Background(), jobID, "ghost"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("未知员工应返回 not_found，got %v", err)
	}
}

func TestExportRequiresCompleted(t *testing.T) {
	m, st := newTestManager(t, 1, false)
	jobID, err := m.Submit(context.Background(), basicRequest())
	if err != nil {
		t.Fatal(err)
	}
	svc := NewExportService(st, zap.NewNop())

	if _, _, err := svc.ExportExcel(context.Background(), jobID); !apperr.IsKind(err, apperr.KindInvalidState) {
		t.Errorf("未完成作业导出应返回 invalid_state，got %v", err)
	}
}
