package service

import (
	"context"
	"testing"
	"time"

	"github.com/vtakaj/ShiftAgent/internal/dto"
	"github.com/vtakaj/ShiftAgent/internal/model"
	"github.com/vtakaj/ShiftAgent/internal/planner"
	"github.com/vtakaj/ShiftAgent/pkg/apperr"
)

// ── 测试辅助 ──

func ts(t *testing.T, value string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

// seedCompletedJob 直接向存储写入一个已完成作业
func seedCompletedJob(t *testing.T, m *JobManager, sched *model.Schedule) string {
	t.Helper()
	score := m.evaluator.Evaluate(sched)
	sched.Score = &score

	now := time.Now().UTC()
	job := &model.Job{
		ID:             "aaaaaaaa-0000-0000-0000-000000000001",
		Status:         model.JobCompleted,
		SubmittedAt:    now,
		StartedAt:      &now,
		CompletedAt:    &now,
		InputSchedule:  sched.Clone(),
		OutputSchedule: sched,
	}
	if err := m.store.Save(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	return job.ID
}

// 场景 D 前置：s1 无人可胜任而未分配，s2 干净分配给 e1
func scenarioDSchedule(t *testing.T) *model.Schedule {
	t.Helper()
	s1 := &model.Shift{
		ID: "s1", Start: ts(t, "2024-01-15T08:00:00Z"), End: ts(t, "2024-01-15T16:00:00Z"),
		RequiredSkills: []string{"CPR"}, Priority: 1,
	}
	s2 := &model.Shift{
		ID: "s2", Start: ts(t, "2024-01-16T08:00:00Z"), End: ts(t, "2024-01-16T16:00:00Z"),
		RequiredSkills: []string{"Nurse"}, Priority: 1,
	}
	s2.Assign("e1")
	return &model.Schedule{
		Timezone:  "UTC",
		Employees: []*model.Employee{{ID: "e1", Name: "佐藤", Skills: []string{"Nurse"}}},
		Shifts:    []*model.Shift{s1, s2},
	}
}

// 场景 D：追加具备所需技能的员工解除未分配
func TestAddEmployeeResolvesUnassigned(t *testing.T) {
	m, _ := newTestManager(t, 1, false)
	jobID := seedCompletedJob(t, m, scenarioDSchedule(t))

	job, err := m.AddEmployee(context.Background(), jobID, &dto.AddEmployeeRequest{
		Employee: dto.EmployeeRequest{ID: "e_new", Name: "高橋", Skills: []string{"CPR"}},
	})
	if err != nil {
		t.Fatalf("AddEmployee: %v", err)
	}

	out := job.OutputSchedule
	if out.Score.Hard != 0 {
		t.Errorf("want hard=0, got %v", out.Score)
	}
	s1, _ := out.ShiftByID("s1")
	if s1.AssigneeID() != "e_new" {
		t.Errorf("s1 应分配给新员工，got %q", s1.AssigneeID())
	}
	// P5: 干净班次保持原分配
	s2, _ := out.ShiftByID("s2")
	if s2.AssigneeID() != "e1" {
		t.Errorf("干净班次 s2 不应被改动，got %q", s2.AssigneeID())
	}
	// 重求解结束后固定标记全部清除
	for _, sh := range out.Shifts {
		if sh.Pinned {
			t.Errorf("班次 %s 的固定标记未清除", sh.ID)
		}
	}
	if job.Status != model.JobCompleted {
		t.Errorf("变更后作业应为 COMPLETED，got %s", job.Status)
	}
}

func TestAddEmployeeDuplicateID(t *testing.T) {
	m, _ := newTestManager(t, 1, false)
	jobID := seedCompletedJob(t, m, scenarioDSchedule(t))

	_, err := m.AddEmployee(context.Background(), jobID, &dto.AddEmployeeRequest{
		Employee: dto.EmployeeRequest{ID: "e1", Name: "重复", Skills: []string{"CPR"}},
	})
	if !apperr.IsKind(err, apperr.KindInvalidInput) {
		t.Errorf("重复 ID 应返回 invalid_input，got %v", err)
	}
}

func TestMutationRequiresCompleted(t *testing.T) {
	m, _ := newTestManager(t, 1, false)
	jobID, err := m.Submit(context.Background(), basicRequest())
	if err != nil {
		t.Fatal(err)
	}

	_, err = m.AddEmployee(context.Background(), jobID, &dto.AddEmployeeRequest{
		Employee: dto.EmployeeRequest{ID: "e9", Name: "新人", Skills: []string{"Nurse"}},
	})
	if !apperr.IsKind(err, apperr.KindInvalidState) {
		t.Errorf("未完成作业的变更应返回 invalid_state，got %v", err)
	}
}

// 场景 E：技能降级触发重分配
func TestUpdateSkillsDowngrade(t *testing.T) {
	m, _ := newTestManager(t, 1, false)

	s1 := &model.Shift{
		ID: "s1", Start: ts(t, "2024-01-15T08:00:00Z"), End: ts(t, "2024-01-15T16:00:00Z"),
		RequiredSkills: []string{"CPR"}, Priority: 1,
	}
	s1.Assign("e1")
	sched := &model.Schedule{
		Timezone: "UTC",
		Employees: []*model.Employee{
			{ID: "e1", Name: "佐藤", Skills: []string{"Nurse", "CPR"}},
			{ID: "e2", Name: "鈴木", Skills: []string{"Nurse", "CPR"}},
		},
		Shifts: []*model.Shift{s1},
	}
	jobID := seedCompletedJob(t, m, sched)

	job, err := m.UpdateSkills(context.Background(), jobID, &dto.UpdateSkillsRequest{
		EmployeeID: "e1",
		Skills:     []string{"Nurse"},
	})
	if err != nil {
		t.Fatalf("UpdateSkills: %v", err)
	}

	out := job.OutputSchedule
	if out.Score.Hard != 0 {
		t.Errorf("want hard=0, got %v", out.Score)
	}
	got, _ := out.ShiftByID("s1")
	if got.AssigneeID() != "e2" {
		t.Errorf("s1 应改派给仍具备 CPR 的 e2，got %q", got.AssigneeID())
	}
	emp, _ := out.EmployeeByID("e1")
	if emp.HasSkill("CPR") {
		t.Error("e1 的技能集应已被替换")
	}
}

func TestUpdateSkillsUnknownEmployee(t *testing.T) {
	m, _ := newTestManager(t, 1, false)
	jobID := seedCompletedJob(t, m, scenarioDSchedule(t))

	_, err := m.UpdateSkills(context.Background(), jobID, &dto.UpdateSkillsRequest{
		EmployeeID: "ghost", Skills: []string{"Nurse"},
	})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("未知员工应返回 not_found，got %v", err)
	}
}

// P6: 直接改派仅在不增加硬罚分时生效
func TestReassignShift(t *testing.T) {
	m, _ := newTestManager(t, 1, false)

	sched := scenarioDSchedule(t)
	sched.Employees = append(sched.Employees, &model.Employee{ID: "e2", Name: "鈴木", Skills: []string{"Nurse"}})
	jobID := seedCompletedJob(t, m, sched)

	// 合法：e2 同样胜任 s2
	e2 := "e2"
	job, err := m.ReassignShift(context.Background(), jobID, &dto.ReassignShiftRequest{
		ShiftID: "s2", EmployeeID: &e2,
	})
	if err != nil {
		t.Fatalf("合法改派不应失败: %v", err)
	}
	got, _ := job.OutputSchedule.ShiftByID("s2")
	if got.AssigneeID() != "e2" {
		t.Errorf("改派未生效，got %q", got.AssigneeID())
	}

	// 非法：e2 不具备 CPR，s1 改派给 e2 会引入 H1 违反
	_, err = m.ReassignShift(context.Background(), jobID, &dto.ReassignShiftRequest{
		ShiftID: "s1", EmployeeID: &e2,
	})
	if !apperr.IsKind(err, apperr.KindIllegalMove) {
		t.Errorf("引入硬违反的改派应返回 illegal_move，got %v", err)
	}

	// 非法改派不得改动存量解
	after, _ := m.Get(context.Background(), jobID)
	s1, _ := after.OutputSchedule.ShiftByID("s1")
	if s1.IsAssigned() {
		t.Error("被拒绝的改派不应修改作业")
	}

	// 取消分配始终合法（不会增加硬罚分）
	job, err = m.ReassignShift(context.Background(), jobID, &dto.ReassignShiftRequest{
		ShiftID: "s2", EmployeeID: nil,
	})
	if err != nil {
		t.Fatalf("取消分配不应失败: %v", err)
	}
	got, _ = job.OutputSchedule.ShiftByID("s2")
	if got.IsAssigned() {
		t.Error("取消分配未生效")
	}
}

func TestSwapShifts(t *testing.T) {
	m, _ := newTestManager(t, 1, false)

	s1 := &model.Shift{
		ID: "s1", Start: ts(t, "2024-01-15T08:00:00Z"), End: ts(t, "2024-01-15T16:00:00Z"),
		RequiredSkills: []string{"Nurse"}, Priority: 1,
	}
	s2 := &model.Shift{
		ID: "s2", Start: ts(t, "2024-01-16T08:00:00Z"), End: ts(t, "2024-01-16T16:00:00Z"),
		RequiredSkills: []string{"Nurse"}, Priority: 1,
	}
	s1.Assign("e1")
	s2.Assign("e2")
	sched := &model.Schedule{
		Timezone: "UTC",
		Employees: []*model.Employee{
			{ID: "e1", Name: "佐藤", Skills: []string{"Nurse"}},
			{ID: "e2", Name: "鈴木", Skills: []string{"Nurse"}},
		},
		Shifts: []*model.Shift{s1, s2},
	}
	jobID := seedCompletedJob(t, m, sched)

	job, err := m.SwapShifts(context.Background(), jobID, &dto.SwapShiftsRequest{
		Shift1ID: "s1", Shift2ID: "s2",
	})
	if err != nil {
		t.Fatalf("SwapShifts: %v", err)
	}
	a, _ := job.OutputSchedule.ShiftByID("s1")
	b, _ := job.OutputSchedule.ShiftByID("s2")
	if a.AssigneeID() != "e2" || b.AssigneeID() != "e1" {
		t.Errorf("互换未生效: s1=%q s2=%q", a.AssigneeID(), b.AssigneeID())
	}
}

func TestPinShiftsToggle(t *testing.T) {
	m, _ := newTestManager(t, 1, false)
	jobID := seedCompletedJob(t, m, scenarioDSchedule(t))
	ctx := context.Background()

	job, err := m.PinShifts(ctx, jobID, &dto.PinShiftsRequest{ShiftIDs: []string{"s2"}, Pin: true})
	if err != nil {
		t.Fatalf("PinShifts: %v", err)
	}
	sh, _ := job.OutputSchedule.ShiftByID("s2")
	if !sh.Pinned {
		t.Error("固定未生效")
	}

	// L2: unpin 还原
	job, err = m.PinShifts(ctx, jobID, &dto.PinShiftsRequest{ShiftIDs: []string{"s2"}, Pin: false})
	if err != nil {
		t.Fatal(err)
	}
	sh, _ = job.OutputSchedule.ShiftByID("s2")
	if sh.Pinned {
		t.Error("解除固定未生效")
	}

	if _, err := m.PinShifts(ctx, jobID, &dto.PinShiftsRequest{ShiftIDs: []string{"ghost"}, Pin: true}); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("未知班次应返回 not_found，got %v", err)
	}
}

// L3: 全固定的空变更重求解返回相同分配与得分
func TestResolveAllPinnedIsNoop(t *testing.T) {
	m, _ := newTestManager(t, 1, false)

	sched := scenarioDSchedule(t)
	jobID := seedCompletedJob(t, m, sched)
	ctx := context.Background()

	job, err := m.loadCompleted(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	before := job.OutputSchedule.Clone()
	beforeScore := *before.Score

	working := job.OutputSchedule.Clone()
	working.Score = nil
	var plan planner.PinPlan
	for _, sh := range working.Shifts {
		sh.Pin()
		plan.Pinned = append(plan.Pinned, sh.ID)
	}

	updated, err := m.resolveWithPins(ctx, job, working, plan)
	if err != nil {
		t.Fatal(err)
	}
	for i, sh := range updated.OutputSchedule.Shifts {
		if sh.AssigneeID() != before.Shifts[i].AssigneeID() {
			t.Errorf("全固定重求解不应改动分配（班次 %s）", sh.ID)
		}
	}
	if *updated.OutputSchedule.Score != beforeScore {
		t.Errorf("得分应保持不变: %v vs %v", updated.OutputSchedule.Score, beforeScore)
	}
}
