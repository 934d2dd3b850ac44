package model

import (
	"errors"
	"testing"
	"time"
)

// ── 测试辅助 ──

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("解析时间失败: %v", err)
	}
	return ts
}

func newShift(t *testing.T, id, start, end string, skills ...string) *Shift {
	t.Helper()
	return &Shift{
		ID:             id,
		Start:          mustTime(t, start),
		End:            mustTime(t, end),
		RequiredSkills: skills,
		Priority:       5,
	}
}

func TestShiftDurationMinutes(t *testing.T) {
	sh := newShift(t, "s1", "2024-01-15T08:00:00Z", "2024-01-15T16:00:00Z")
	if got := sh.DurationMinutes(); got != 480 {
		t.Errorf("DurationMinutes() = %d, want 480", got)
	}
}

func TestShiftOverlaps(t *testing.T) {
	tests := []struct {
		name         string
		aStart, aEnd string
		bStart, bEnd string
		want         bool
	}{
		{"完全重叠", "2024-01-15T08:00:00Z", "2024-01-15T16:00:00Z", "2024-01-15T08:00:00Z", "2024-01-15T16:00:00Z", true},
		{"部分重叠", "2024-01-15T08:00:00Z", "2024-01-15T16:00:00Z", "2024-01-15T15:00:00Z", "2024-01-15T23:00:00Z", true},
		{"首尾相接不算重叠", "2024-01-15T08:00:00Z", "2024-01-15T16:00:00Z", "2024-01-15T16:00:00Z", "2024-01-16T00:00:00Z", false},
		{"完全分离", "2024-01-15T08:00:00Z", "2024-01-15T12:00:00Z", "2024-01-16T08:00:00Z", "2024-01-16T12:00:00Z", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newShift(t, "a", tt.aStart, tt.aEnd)
			b := newShift(t, "b", tt.bStart, tt.bEnd)
			if got := a.OverlapsWith(b); got != tt.want {
				t.Errorf("OverlapsWith() = %v, want %v", got, tt.want)
			}
			if got := b.OverlapsWith(a); got != tt.want {
				t.Errorf("OverlapsWith() 应满足对称性")
			}
		})
	}
}

func TestShiftWeekday(t *testing.T) {
	// 2024-01-15 为周一
	sh := newShift(t, "s1", "2024-01-15T08:00:00Z", "2024-01-15T16:00:00Z")
	if got := sh.Weekday(time.UTC); got != "monday" {
		t.Errorf("Weekday() = %q, want %q", got, "monday")
	}

	// UTC 周一 23:00 在东京时区已是周二
	late := newShift(t, "s2", "2024-01-15T23:00:00Z", "2024-01-16T07:00:00Z")
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("时区数据不可用")
	}
	if got := late.Weekday(tokyo); got != "tuesday" {
		t.Errorf("Weekday(Tokyo) = %q, want %q", got, "tuesday")
	}
}

func TestEmployeeSkills(t *testing.T) {
	e := &Employee{ID: "e1", Name: "田中", Skills: []string{"Nurse", "CPR"}}

	if !e.HasAllSkills([]string{"Nurse"}) {
		t.Error("应具备 Nurse 技能")
	}
	if !e.HasAllSkills([]string{"Nurse", "CPR"}) {
		t.Error("应具备全部技能")
	}
	if e.HasAllSkills([]string{"Nurse", "Surgery"}) {
		t.Error("不应具备 Surgery 技能")
	}
	if missing := e.MissingSkills([]string{"Surgery", "CPR"}); len(missing) != 1 || missing[0] != "Surgery" {
		t.Errorf("MissingSkills() = %v, want [Surgery]", missing)
	}
}

func TestEmployeeUnavailableByCivilDate(t *testing.T) {
	e := &Employee{
		ID:               "e1",
		UnavailableDates: []time.Time{mustTime(t, "2024-01-15T00:00:00Z")},
	}

	// 同一日历日内任意时刻均不可用（时间部分被忽略）
	if !e.IsUnavailableOn(mustTime(t, "2024-01-15T22:30:00Z"), time.UTC) {
		t.Error("同日班次应不可用")
	}
	if e.IsUnavailableOn(mustTime(t, "2024-01-16T00:00:00Z"), time.UTC) {
		t.Error("次日班次应可用")
	}
}

func TestScheduleIndexAndClone(t *testing.T) {
	sched := &Schedule{
		Employees: []*Employee{{ID: "e1", Name: "A"}, {ID: "e2", Name: "B"}},
		Shifts:    []*Shift{newShift(t, "s1", "2024-01-15T08:00:00Z", "2024-01-15T16:00:00Z", "Nurse")},
	}
	sched.Shifts[0].Assign("e1")

	if _, err := sched.EmployeeByID("e1"); err != nil {
		t.Errorf("EmployeeByID(e1) 不应失败: %v", err)
	}
	if _, err := sched.EmployeeByID("missing"); !errors.Is(err, ErrEmployeeNotFound) {
		t.Errorf("悬空 ID 应返回 ErrEmployeeNotFound，得到 %v", err)
	}
	if _, err := sched.ShiftByID("missing"); !errors.Is(err, ErrShiftNotFound) {
		t.Errorf("悬空 ID 应返回 ErrShiftNotFound，得到 %v", err)
	}

	clone := sched.Clone()
	clone.Shifts[0].Assign("e2")
	clone.Employees[0].Skills = append(clone.Employees[0].Skills, "CPR")
	if sched.Shifts[0].AssigneeID() != "e1" {
		t.Error("Clone 后修改副本不应影响原排班表")
	}
	if len(sched.Employees[0].Skills) != 0 {
		t.Error("Clone 应深拷贝技能集")
	}
}

func TestScoreCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Score
		want int
	}{
		{"硬约束优先", Score{Hard: 1, Medium: 0, Soft: 0}, Score{Hard: 0, Medium: 99, Soft: 99}, 1},
		{"中约束次之", Score{Hard: 0, Medium: 1, Soft: 0}, Score{Hard: 0, Medium: 0, Soft: 99}, 1},
		{"软约束最后", Score{Hard: 0, Medium: 0, Soft: 1}, Score{Hard: 0, Medium: 0, Soft: 2}, -1},
		{"相等", Score{Hard: 1, Medium: 2, Soft: 3}, Score{Hard: 1, Medium: 2, Soft: 3}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compare(tt.b); got != tt.want {
				t.Errorf("Compare() = %d, want %d", got, tt.want)
			}
		})
	}

	if (Score{Hard: 0, Medium: 0, Soft: 5}).String() != "0hard/0medium/-5soft" {
		t.Error("String() 输出格式不符")
	}
}

func TestJobStatusTransitions(t *testing.T) {
	allowed := map[JobStatus][]JobStatus{
		JobScheduled: {JobSolving, JobCompleted},
		JobSolving:   {JobCompleted, JobFailed},
		JobCompleted: {JobSolving},
		JobFailed:    {},
	}
	all := []JobStatus{JobScheduled, JobSolving, JobCompleted, JobFailed}
	for from, tos := range allowed {
		ok := make(map[JobStatus]bool)
		for _, to := range tos {
			ok[to] = true
		}
		for _, to := range all {
			if got := from.CanTransition(to); got != ok[to] {
				t.Errorf("CanTransition(%s → %s) = %v, want %v", from, to, got, ok[to])
			}
		}
	}
}

func TestScheduleValidate(t *testing.T) {
	base := func() *Schedule {
		return &Schedule{
			Employees: []*Employee{{ID: "e1", Name: "A", Skills: []string{"Nurse"}}},
			Shifts:    []*Shift{newShift(t, "s1", "2024-01-15T08:00:00Z", "2024-01-15T16:00:00Z", "Nurse")},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("合法排班表不应报错: %v", err)
	}

	dup := base()
	dup.Employees = append(dup.Employees, &Employee{ID: "e1", Name: "B"})
	if err := dup.Validate(); err == nil {
		t.Error("重复员工 ID 应校验失败")
	}

	dangling := base()
	dangling.Shifts[0].Assign("ghost")
	if err := dangling.Validate(); err == nil {
		t.Error("悬空 assignee 应校验失败")
	}

	inverted := base()
	inverted.Shifts[0].End = inverted.Shifts[0].Start
	if err := inverted.Validate(); err == nil {
		t.Error("end <= start 应校验失败")
	}

	emptySkill := base()
	emptySkill.Employees[0].Skills = []string{"Nurse", ""}
	if err := emptySkill.Validate(); err == nil {
		t.Error("空技能串应校验失败")
	}
}
