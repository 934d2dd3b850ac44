package dto

import (
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/vtakaj/ShiftAgent/internal/model"
	"github.com/vtakaj/ShiftAgent/pkg/apperr"
)

// normalizeTags 技能标签统一做 Unicode NFC 归一，之后按字节比较
func normalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = norm.NFC.String(t)
	}
	return out
}

// parseInstant 解析 ISO-8601 时刻；纯日期按 loc 的当日零点解释
// 原始数据混用 date-only 与 datetime 字符串，这一兼容属于加载层职责。
func parseInstant(value string, loc *time.Location) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("无法解析时间 %q", value)
}

// ToSchedule 将提交载荷转换为域模型并完成提交期校验
func (req *ScheduleRequest) ToSchedule() (*model.Schedule, error) {
	sched := &model.Schedule{Timezone: req.Timezone}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return nil, apperr.Newf(apperr.KindInvalidInput, "invalid_input.timezone", "未知时区: %s", req.Timezone)
		}
	}
	loc := sched.Location()

	for _, e := range req.Employees {
		emp := &model.Employee{
			ID:                e.ID,
			Name:              e.Name,
			Skills:            normalizeTags(e.Skills),
			PreferredDaysOff:  e.PreferredDaysOff,
			PreferredWorkDays: e.PreferredWorkDays,
		}
		for _, d := range e.UnavailableDates {
			t, err := parseInstant(d, loc)
			if err != nil {
				return nil, apperr.Newf(apperr.KindInvalidInput, "invalid_input.date", "员工 %s 的不可用日期非法: %v", e.ID, err)
			}
			emp.UnavailableDates = append(emp.UnavailableDates, t)
		}
		sched.Employees = append(sched.Employees, emp)
	}

	for _, s := range req.Shifts {
		start, err := parseInstant(s.StartTime, loc)
		if err != nil {
			return nil, apperr.Newf(apperr.KindInvalidInput, "invalid_input.date", "班次 %s 的起始时刻非法: %v", s.ID, err)
		}
		end, err := parseInstant(s.EndTime, loc)
		if err != nil {
			return nil, apperr.Newf(apperr.KindInvalidInput, "invalid_input.date", "班次 %s 的结束时刻非法: %v", s.ID, err)
		}
		priority := s.Priority
		if priority == 0 {
			priority = 5 // 载荷缺省优先级
		}
		sh := &model.Shift{
			ID:             s.ID,
			Start:          start,
			End:            end,
			RequiredSkills: normalizeTags(s.RequiredSkills),
			Location:       s.Location,
			Priority:       priority,
			Pinned:         s.Pinned,
		}
		if s.Assignee != nil {
			sh.Assign(*s.Assignee)
		}
		sched.Shifts = append(sched.Shifts, sh)
	}

	if err := sched.Validate(); err != nil {
		return nil, err
	}
	return sched, nil
}

// ToEmployee 将员工载荷转换为域模型（变更操作用）
func (e *EmployeeRequest) ToEmployee(loc *time.Location) (*model.Employee, error) {
	if e.ID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "invalid_input.empty_id", "员工 ID 不能为空")
	}
	emp := &model.Employee{
		ID:                e.ID,
		Name:              e.Name,
		Skills:            normalizeTags(e.Skills),
		PreferredDaysOff:  e.PreferredDaysOff,
		PreferredWorkDays: e.PreferredWorkDays,
	}
	for _, sk := range emp.Skills {
		if sk == "" {
			return nil, apperr.Newf(apperr.KindInvalidInput, "invalid_input.empty_skill", "员工 %s 的技能集中包含空字符串", e.ID)
		}
	}
	for _, d := range e.UnavailableDates {
		t, err := parseInstant(d, loc)
		if err != nil {
			return nil, apperr.Newf(apperr.KindInvalidInput, "invalid_input.date", "员工 %s 的不可用日期非法: %v", e.ID, err)
		}
		emp.UnavailableDates = append(emp.UnavailableDates, t)
	}
	return emp, nil
}

