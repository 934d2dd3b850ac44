package solver

import (
	"math/rand"
	"sort"

	"github.com/vtakaj/ShiftAgent/internal/model"
)

// 延迟接受历史长度（Late Acceptance Hill Climbing）
const lateAcceptanceLength = 200

// 交换动作占比（百分比），其余为改派动作
const swapMovePercent = 30

type rng struct{ *rand.Rand }

func newRNG(seed int64) *rng {
	return &rng{rand.New(rand.NewSource(seed))}
}

// localSearch 局部搜索阶段：改派/交换两类动作 + 延迟接受准则
//
// 接受准则：候选分不劣于当前分，或不劣于 L 步之前的历史分，
// 以此接受部分非改进动作逃出局部最优。历史最优独立于 walker 位置维护。
func (r *solveRun) localSearch(current model.Score) TerminationReason {
	working := r.working

	movable := make([]*model.Shift, 0, len(working.Shifts))
	for _, sh := range working.Shifts {
		if !sh.Pinned {
			movable = append(movable, sh)
		}
	}
	sort.Slice(movable, func(i, j int) bool { return movable[i].ID < movable[j].ID })

	// 全部固定（或无班次）时没有可行动作，直接按预算终止返回
	if len(movable) == 0 {
		if r.bestRecorded && r.best.IsZero() {
			return TerminatedByOptimum
		}
		return TerminatedByBudget
	}

	empIDs := make([]string, 0, len(working.Employees))
	for _, e := range working.Employees {
		empIDs = append(empIDs, e.ID)
	}
	sort.Strings(empIDs)

	history := make([]model.Score, lateAcceptanceLength)
	for i := range history {
		history[i] = current
	}

	for iter := 0; ; iter++ {
		if reason, stop := r.checkTermination(); stop {
			return reason
		}

		var candidate model.Score
		var revert func()
		applied := false

		if len(movable) >= 2 && r.rng.Intn(100) < swapMovePercent {
			candidate, revert, applied = r.trySwapMove(movable)
		} else {
			candidate, revert, applied = r.tryChangeMove(movable, empIDs)
		}
		if !applied {
			continue
		}

		accept := candidate.Compare(current) <= 0 ||
			candidate.Compare(history[iter%lateAcceptanceLength]) <= 0

		if accept {
			current = candidate
			r.recordBest(current)
		} else {
			revert()
		}
		history[iter%lateAcceptanceLength] = current
	}
}

// applyAssign 固定纪律的唯一改写入口：已固定班次在此被拒绝
func applyAssign(sh *model.Shift, employeeID string) {
	if sh.Pinned {
		// 动作生成器只产出未固定班次，到达此处即不变量被破坏
		panic("固定班次的分配被试图改写: " + sh.ID)
	}
	sh.Assign(employeeID)
}

// tryChangeMove 改派动作：将一个未固定班次改派给任一员工或置空
func (r *solveRun) tryChangeMove(movable []*model.Shift, empIDs []string) (model.Score, func(), bool) {
	sh := movable[r.rng.Intn(len(movable))]
	prev := sh.AssigneeID()

	// 目标取值域 = 全部员工 + 未分配
	idx := r.rng.Intn(len(empIDs) + 1)
	next := ""
	if idx < len(empIDs) {
		next = empIDs[idx]
	}
	if next == prev {
		return model.Score{}, nil, false
	}

	applyAssign(sh, next)
	score := r.solver.evaluator.Evaluate(r.working)
	return score, func() { applyAssign(sh, prev) }, true
}

// trySwapMove 交换动作：互换两个未固定班次的分配
func (r *solveRun) trySwapMove(movable []*model.Shift) (model.Score, func(), bool) {
	i := r.rng.Intn(len(movable))
	j := r.rng.Intn(len(movable) - 1)
	if j >= i {
		j++
	}
	a, b := movable[i], movable[j]
	prevA, prevB := a.AssigneeID(), b.AssigneeID()
	if prevA == prevB {
		return model.Score{}, nil, false
	}

	applyAssign(a, prevB)
	applyAssign(b, prevA)
	score := r.solver.evaluator.Evaluate(r.working)
	return score, func() {
		applyAssign(a, prevA)
		applyAssign(b, prevB)
	}, true
}
