package solver

import (
	"sort"

	"github.com/vtakaj/ShiftAgent/internal/model"
)

// construct 构造阶段：按优先级降序（priority 数值越小越优先）、
// 同优先级按起始时刻升序，为每个未固定且未分配的班次贪心选择员工。
//
// 候选条件：满足 H1（技能）与 H4（可用日期），且不与该员工既有班次重叠（H2）；
// 在此之上最小化增量 hard+medium 罚分，平手时取当周累计分钟数最小者，
// 仍平手按员工 ID 取最小保证确定性。无可用候选时保持未分配。
func (r *solveRun) construct() {
	working := r.working
	loc := working.Location()
	empIndex := working.EmployeeIndex()

	// 员工 → 已分配班次（随构造推进更新）
	assigned := make(map[string][]*model.Shift)
	// 员工-周 → 累计分钟
	weekMinutes := make(map[string]int)
	weekKey := func(empID string, sh *model.Shift) string {
		return empID + "|" + isoWeek(sh.Start, loc)
	}
	for _, sh := range working.Shifts {
		if sh.IsAssigned() {
			id := sh.AssigneeID()
			assigned[id] = append(assigned[id], sh)
			weekMinutes[weekKey(id, sh)] += sh.DurationMinutes()
		}
	}

	// 构造访问顺序
	order := make([]*model.Shift, 0, len(working.Shifts))
	for _, sh := range working.Shifts {
		if !sh.Pinned && !sh.IsAssigned() {
			order = append(order, sh)
		}
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].Priority != order[j].Priority {
			return order[i].Priority < order[j].Priority
		}
		if !order[i].Start.Equal(order[j].Start) {
			return order[i].Start.Before(order[j].Start)
		}
		return order[i].ID < order[j].ID
	})

	// 员工遍历序固定，保证同分候选的确定性
	empIDs := make([]string, 0, len(working.Employees))
	for _, e := range working.Employees {
		empIDs = append(empIDs, e.ID)
	}
	sort.Strings(empIDs)

	for _, sh := range order {
		if _, stop := r.checkTermination(); stop {
			return
		}

		bestEmp := ""
		bestPenalty := 0
		bestWeekMins := 0
		found := false

		for _, empID := range empIDs {
			emp := empIndex[empID]
			if !emp.HasAllSkills(sh.RequiredSkills) {
				continue // H1
			}
			if emp.IsUnavailableOn(sh.Start, loc) {
				continue // H4
			}
			overlaps := false
			for _, other := range assigned[empID] {
				if sh.OverlapsWith(other) {
					overlaps = true
					break
				}
			}
			if overlaps {
				continue // H2
			}

			// 试探性分配并度量增量 hard+medium
			sh.Assign(empID)
			trial := r.solver.evaluator.Evaluate(working)
			sh.Assignee = nil
			penalty := trial.Hard*100000 + trial.Medium

			wm := weekMinutes[weekKey(empID, sh)]
			if !found || penalty < bestPenalty || (penalty == bestPenalty && wm < bestWeekMins) {
				found = true
				bestEmp = empID
				bestPenalty = penalty
				bestWeekMins = wm
			}
		}

		if found {
			sh.Assign(bestEmp)
			assigned[bestEmp] = append(assigned[bestEmp], sh)
			weekMinutes[weekKey(bestEmp, sh)] += sh.DurationMinutes()
		}
	}
}
