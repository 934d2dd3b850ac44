package planner

import (
	"testing"
	"time"

	"github.com/vtakaj/ShiftAgent/config"
	"github.com/vtakaj/ShiftAgent/internal/model"
	"github.com/vtakaj/ShiftAgent/internal/solver"
)

func testEvaluator() *solver.Evaluator {
	return solver.NewEvaluator(config.TargetConfig{FullTimeMinutes: 40 * 60, PartTimeMinutes: 20 * 60})
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("解析时间失败: %v", err)
	}
	return ts
}

func shift(t *testing.T, id, start, end string, skills ...string) *model.Shift {
	t.Helper()
	return &model.Shift{
		ID:             id,
		Start:          mustTime(t, start),
		End:            mustTime(t, end),
		RequiredSkills: skills,
		Priority:       1,
	}
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func TestPinForAddEmployee(t *testing.T) {
	// s1: 干净分配；s2: 技能违反；s3: 未分配
	sched := &model.Schedule{
		Employees: []*model.Employee{
			{ID: "e1", Skills: []string{"Nurse"}},
			{ID: "e2", Skills: []string{"Reception"}},
		},
		Shifts: []*model.Shift{
			shift(t, "s1", "2024-01-15T08:00:00Z", "2024-01-15T16:00:00Z", "Nurse"),
			shift(t, "s2", "2024-01-16T08:00:00Z", "2024-01-16T16:00:00Z", "Nurse"),
			shift(t, "s3", "2024-01-17T08:00:00Z", "2024-01-17T16:00:00Z", "Nurse"),
		},
	}
	sched.Shifts[0].Assign("e1")
	sched.Shifts[1].Assign("e2")

	plan := PinForAddEmployee(testEvaluator(), sched)

	if !contains(plan.Pinned, "s1") {
		t.Error("干净分配的班次应被固定")
	}
	if !contains(plan.Unpinned, "s2") {
		t.Error("存在硬违反的班次应解除固定")
	}
	if !contains(plan.Unpinned, "s3") {
		t.Error("未分配班次应解除固定")
	}

	// 计划已落到排班表
	for _, sh := range sched.Shifts {
		wantPinned := contains(plan.Pinned, sh.ID)
		if sh.Pinned != wantPinned {
			t.Errorf("班次 %s pinned=%v, want %v", sh.ID, sh.Pinned, wantPinned)
		}
	}
}

func TestPinForAddEmployeeSoftViolationStaysPinned(t *testing.T) {
	// 仅有软罚分（S3 偏离目标）的分配不触发解除固定
	sched := &model.Schedule{
		Employees: []*model.Employee{{ID: "e1", Skills: []string{"Nurse"}}},
		Shifts:    []*model.Shift{shift(t, "s1", "2024-01-15T08:00:00Z", "2024-01-15T16:00:00Z", "Nurse")},
	}
	sched.Shifts[0].Assign("e1")

	plan := PinForAddEmployee(testEvaluator(), sched)
	if !contains(plan.Pinned, "s1") {
		t.Error("软违反不应导致解除固定")
	}
}

func TestPinForSkillUpdateDowngrade(t *testing.T) {
	// 场景 E：e1 失去 CPR，其承担的 CPR 班次进入受影响集
	sched := &model.Schedule{
		Employees: []*model.Employee{
			{ID: "e1", Skills: []string{"Nurse"}}, // 已替换为新技能
			{ID: "e2", Skills: []string{"Nurse", "CPR"}},
		},
		Shifts: []*model.Shift{
			shift(t, "s1", "2024-01-15T08:00:00Z", "2024-01-15T16:00:00Z", "CPR"),
			shift(t, "s2", "2024-01-16T08:00:00Z", "2024-01-16T16:00:00Z", "Nurse"),
		},
	}
	sched.Shifts[0].Assign("e1")
	sched.Shifts[1].Assign("e1")

	plan := PinForSkillUpdate(testEvaluator(), sched, "e1",
		[]string{"Nurse", "CPR"}, []string{"Nurse"})

	if !contains(plan.Unpinned, "s1") {
		t.Error("失去所需技能的班次应解除固定")
	}
	if !contains(plan.Pinned, "s2") {
		t.Error("新旧技能均可胜任的班次应保持固定")
	}
}

func TestPinForSkillUpdateResolvesOthersViolation(t *testing.T) {
	// e2 被违规分配到 CPR 班次；e1 升级获得 CPR → 该班次解除固定
	sched := &model.Schedule{
		Employees: []*model.Employee{
			{ID: "e1", Skills: []string{"Nurse", "CPR"}}, // 已替换为新技能
			{ID: "e2", Skills: []string{"Reception"}},
		},
		Shifts: []*model.Shift{
			shift(t, "s1", "2024-01-15T08:00:00Z", "2024-01-15T16:00:00Z", "CPR"),
		},
	}
	sched.Shifts[0].Assign("e2")

	plan := PinForSkillUpdate(testEvaluator(), sched, "e1",
		[]string{"Nurse"}, []string{"Nurse", "CPR"})

	if !contains(plan.Unpinned, "s1") {
		t.Error("升级后可解除他人 H1 违反的班次应解除固定")
	}
}

// L2: pin → unpin 后排班表回到原状
func TestPinUnpinRoundTrip(t *testing.T) {
	sched := &model.Schedule{
		Employees: []*model.Employee{{ID: "e1", Skills: []string{"Nurse"}}},
		Shifts:    []*model.Shift{shift(t, "s1", "2024-01-15T08:00:00Z", "2024-01-15T16:00:00Z", "Nurse")},
	}
	sched.Shifts[0].Assign("e1")
	before := sched.Clone()

	PinForAddEmployee(testEvaluator(), sched)
	sched.ClearPins()

	for i := range sched.Shifts {
		if sched.Shifts[i].Pinned != before.Shifts[i].Pinned {
			t.Error("ClearPins 后固定标记应复原")
		}
		if sched.Shifts[i].AssigneeID() != before.Shifts[i].AssigneeID() {
			t.Error("固定计划不应改动任何分配")
		}
	}
}
