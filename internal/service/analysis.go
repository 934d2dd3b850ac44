package service

import (
	"fmt"
	"sort"

	"github.com/vtakaj/ShiftAgent/internal/model"
)

// ── 排班分析报告 ──

// EmployeeWorkload 单员工工作量汇总
type EmployeeWorkload struct {
	EmployeeID   string         `json:"employee_id"`
	Name         string         `json:"name"`
	ShiftCount   int            `json:"shift_count"`
	TotalMinutes int            `json:"total_minutes"`
	WeekMinutes  map[string]int `json:"week_minutes"` // ISO 周 → 分钟
}

// ScheduleAnalysis 排班表分析结果
type ScheduleAnalysis struct {
	TotalShifts      int                `json:"total_shifts"`
	AssignedShifts   int                `json:"assigned_shifts"`
	UnassignedShifts []string           `json:"unassigned_shifts"` // 班次 ID
	Workloads        []EmployeeWorkload `json:"workloads"`
	Score            *model.Score       `json:"score"`
}

// AnalyzeSchedule 汇总排班表的工作量分布与未分配班次
func AnalyzeSchedule(s *model.Schedule) *ScheduleAnalysis {
	loc := s.Location()
	analysis := &ScheduleAnalysis{
		TotalShifts: len(s.Shifts),
		Score:       s.Score,
	}

	byEmp := make(map[string]*EmployeeWorkload)
	for _, e := range s.Employees {
		byEmp[e.ID] = &EmployeeWorkload{
			EmployeeID:  e.ID,
			Name:        e.Name,
			WeekMinutes: make(map[string]int),
		}
	}

	for _, sh := range s.Shifts {
		if !sh.IsAssigned() {
			analysis.UnassignedShifts = append(analysis.UnassignedShifts, sh.ID)
			continue
		}
		analysis.AssignedShifts++
		w, ok := byEmp[sh.AssigneeID()]
		if !ok {
			continue
		}
		w.ShiftCount++
		w.TotalMinutes += sh.DurationMinutes()
		y, wk := sh.Start.In(loc).ISOWeek()
		w.WeekMinutes[fmt.Sprintf("%04d-W%02d", y, wk)] += sh.DurationMinutes()
	}

	for _, w := range byEmp {
		analysis.Workloads = append(analysis.Workloads, *w)
	}
	sort.Slice(analysis.Workloads, func(i, j int) bool {
		return analysis.Workloads[i].EmployeeID < analysis.Workloads[j].EmployeeID
	})
	sort.Strings(analysis.UnassignedShifts)

	return analysis
}
