package solver

import (
	"fmt"
	"sort"
	"time"

	"github.com/vtakaj/ShiftAgent/config"
	"github.com/vtakaj/ShiftAgent/internal/model"
)

// ── 约束常量 ──

const (
	weeklyMaxMinutes   = 45 * 60 // H3: 每周硬上限
	weeklyMinMinutes   = 32 * 60 // M2: 全职每周下限
	minRestMinutes     = 8 * 60  // M1: 班次间最小休息
	dailyTargetMinutes = 8 * 60  // S2: 公平分布的单日基准
	unassignedUnitSoft = 10      // S1: priority × 10
	preferenceUnitSoft = 1       // S4: 对称权重 1
)

// Evaluator 约束求值器 — Schedule → Score 的纯函数
// 对集合顺序不敏感：内部一律按 ID 排序遍历，语义相等的排班表得分相同。
type Evaluator struct {
	fullTimeTarget int
	partTimeTarget int
}

// NewEvaluator 创建求值器；每周工时目标来自部署配置
func NewEvaluator(targets config.TargetConfig) *Evaluator {
	ft := targets.FullTimeMinutes
	if ft <= 0 {
		ft = 40 * 60
	}
	pt := targets.PartTimeMinutes
	if pt <= 0 {
		pt = 20 * 60
	}
	return &Evaluator{fullTimeTarget: ft, partTimeTarget: pt}
}

// weekTarget 员工的每周目标分钟数（S3）
// 映射只覆盖全职/兼职两类标签；未标注雇佣形态的员工没有周目标。
func (ev *Evaluator) weekTarget(e *model.Employee) (int, bool) {
	switch {
	case e.IsPartTime():
		return ev.partTimeTarget, true
	case e.IsFullTime():
		return ev.fullTimeTarget, true
	default:
		return 0, false
	}
}

// ── 求值上下文 ──

// isoWeek 员工-周分组键
func isoWeek(t time.Time, loc *time.Location) string {
	y, w := t.In(loc).ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}

// civilDate 员工-日分组键（排班表时区下的日历日）
func civilDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// evalContext 一次求值的派生索引
type evalContext struct {
	loc      *time.Location
	shifts   []*model.Shift            // 按 ID 排序
	empIndex map[string]*model.Employee
	byEmp    map[string][]*model.Shift // 员工 → 其已分配班次（按 Start, ID 排序）
	empIDs   []string                  // 按 ID 排序的员工遍历序
}

func newEvalContext(s *model.Schedule) *evalContext {
	ctx := &evalContext{
		loc:      s.Location(),
		empIndex: s.EmployeeIndex(),
		byEmp:    make(map[string][]*model.Shift),
	}

	ctx.shifts = append([]*model.Shift(nil), s.Shifts...)
	sort.Slice(ctx.shifts, func(i, j int) bool { return ctx.shifts[i].ID < ctx.shifts[j].ID })

	for _, sh := range ctx.shifts {
		if sh.IsAssigned() {
			ctx.byEmp[sh.AssigneeID()] = append(ctx.byEmp[sh.AssigneeID()], sh)
		}
	}
	for _, shifts := range ctx.byEmp {
		sort.Slice(shifts, func(i, j int) bool {
			if !shifts[i].Start.Equal(shifts[j].Start) {
				return shifts[i].Start.Before(shifts[j].Start)
			}
			return shifts[i].ID < shifts[j].ID
		})
	}

	for _, e := range s.Employees {
		ctx.empIDs = append(ctx.empIDs, e.ID)
	}
	sort.Strings(ctx.empIDs)

	return ctx
}

// ceilDiv 非负整数向上取整除法
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// roundDiv 非负整数四舍五入除法
func roundDiv(a, b int) int {
	return (a + b/2) / b
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Evaluate 计算排班表的 (hard, medium, soft) 罚分
func (ev *Evaluator) Evaluate(s *model.Schedule) model.Score {
	ctx := newEvalContext(s)

	hard := ev.skillMatch(ctx, nil) +
		ev.noOverlap(ctx, nil) +
		ev.weeklyMaximum(ctx, nil) +
		ev.unavailableDate(ctx, nil)

	medium := ev.minimumRest(ctx, nil) +
		ev.weeklyMinimum(ctx, nil)

	soft := ev.unassignedShifts(ctx) +
		ev.fairDistribution(ctx) +
		ev.weeklyTarget(ctx)
	soft += ev.dayPreferences(ctx)

	// S4 的正向积分可能把软分抵成负数，结算时下限为 0
	if soft < 0 {
		soft = 0
	}

	return model.Score{Hard: hard, Medium: medium, Soft: soft}
}

// Breakdown 逐班次的硬+中罚分归属，供增量规划判定"干净"班次
//
// 归属规则：
//   - H1/H4 归属该班次自身
//   - H2/M1 归属冲突对的两个班次
//   - H3/M2 归属该员工当周的全部已分配班次
//
// 软罚分不参与归属：软违反永远不触发解除固定。
func (ev *Evaluator) Breakdown(s *model.Schedule) map[string]model.Score {
	ctx := newEvalContext(s)
	out := make(map[string]model.Score, len(ctx.shifts))

	addHard := func(shiftID string, n int) {
		sc := out[shiftID]
		sc.Hard += n
		out[shiftID] = sc
	}
	addMedium := func(shiftID string, n int) {
		sc := out[shiftID]
		sc.Medium += n
		out[shiftID] = sc
	}

	ev.skillMatch(ctx, addHard)
	ev.noOverlap(ctx, addHard)
	ev.weeklyMaximum(ctx, addHard)
	ev.unavailableDate(ctx, addHard)
	ev.minimumRest(ctx, addMedium)
	ev.weeklyMinimum(ctx, addMedium)

	return out
}

// ═══════════════════════════════════════════════════════════
// 硬约束
// ═══════════════════════════════════════════════════════════

// H1 技能匹配：每个缺失技能计 1 硬罚分
func (ev *Evaluator) skillMatch(ctx *evalContext, attribute func(string, int)) int {
	total := 0
	for _, sh := range ctx.shifts {
		if !sh.IsAssigned() {
			continue
		}
		emp := ctx.empIndex[sh.AssigneeID()]
		if emp == nil {
			continue
		}
		if n := len(emp.MissingSkills(sh.RequiredSkills)); n > 0 {
			total += n
			if attribute != nil {
				attribute(sh.ID, n)
			}
		}
	}
	return total
}

// H2 班次重叠：同一员工的每个重叠班次对计 1 硬罚分
func (ev *Evaluator) noOverlap(ctx *evalContext, attribute func(string, int)) int {
	total := 0
	for _, empID := range ctx.empIDs {
		shifts := ctx.byEmp[empID]
		for i := 0; i < len(shifts); i++ {
			for j := i + 1; j < len(shifts); j++ {
				if shifts[i].OverlapsWith(shifts[j]) {
					total++
					if attribute != nil {
						attribute(shifts[i].ID, 1)
						attribute(shifts[j].ID, 1)
					}
				}
			}
		}
	}
	return total
}

// H3 每周上限：员工-ISO周 分钟数超过 45h 时按超出小时数（向上取整）计罚
func (ev *Evaluator) weeklyMaximum(ctx *evalContext, attribute func(string, int)) int {
	total := 0
	for _, empID := range ctx.empIDs {
		weeks := make(map[string]int)
		for _, sh := range ctx.byEmp[empID] {
			weeks[isoWeek(sh.Start, ctx.loc)] += sh.DurationMinutes()
		}
		for week, minutes := range weeks {
			if minutes <= weeklyMaxMinutes {
				continue
			}
			penalty := ceilDiv(minutes-weeklyMaxMinutes, 60)
			total += penalty
			if attribute != nil {
				for _, sh := range ctx.byEmp[empID] {
					if isoWeek(sh.Start, ctx.loc) == week {
						attribute(sh.ID, penalty)
					}
				}
			}
		}
	}
	return total
}

// H4 不可用日期：起始时刻落在员工不可用日历日的已分配班次，每个计 1 硬罚分
func (ev *Evaluator) unavailableDate(ctx *evalContext, attribute func(string, int)) int {
	total := 0
	for _, sh := range ctx.shifts {
		if !sh.IsAssigned() {
			continue
		}
		emp := ctx.empIndex[sh.AssigneeID()]
		if emp == nil {
			continue
		}
		if emp.IsUnavailableOn(sh.Start, ctx.loc) {
			total++
			if attribute != nil {
				attribute(sh.ID, 1)
			}
		}
	}
	return total
}

// ═══════════════════════════════════════════════════════════
// 中约束
// ═══════════════════════════════════════════════════════════

// M1 最小休息：同一员工相邻班次间隔不足 8h 时，
// 按不足小时数（向上取整，至少 1）计罚；重叠对由 H2 处理，此处不重复计
func (ev *Evaluator) minimumRest(ctx *evalContext, attribute func(string, int)) int {
	total := 0
	for _, empID := range ctx.empIDs {
		shifts := ctx.byEmp[empID]
		for i := 0; i < len(shifts); i++ {
			for j := i + 1; j < len(shifts); j++ {
				earlier, later := shifts[i], shifts[j]
				if later.Start.Before(earlier.End) {
					continue // 重叠，归 H2
				}
				gap := int(later.Start.Sub(earlier.End) / time.Minute)
				if gap >= minRestMinutes {
					continue
				}
				penalty := ceilDiv(minRestMinutes-gap, 60)
				if penalty < 1 {
					penalty = 1
				}
				total += penalty
				if attribute != nil {
					attribute(earlier.ID, penalty)
					attribute(later.ID, penalty)
				}
			}
		}
	}
	return total
}

// M2 全职每周下限：全职员工在有排班的 ISO 周内不足 32h 时按缺口小时数计罚
func (ev *Evaluator) weeklyMinimum(ctx *evalContext, attribute func(string, int)) int {
	total := 0
	for _, empID := range ctx.empIDs {
		emp := ctx.empIndex[empID]
		if emp == nil || !emp.IsFullTime() {
			continue
		}
		weeks := make(map[string]int)
		for _, sh := range ctx.byEmp[empID] {
			weeks[isoWeek(sh.Start, ctx.loc)] += sh.DurationMinutes()
		}
		for week, minutes := range weeks {
			if minutes >= weeklyMinMinutes {
				continue
			}
			penalty := ceilDiv(weeklyMinMinutes-minutes, 60)
			total += penalty
			if attribute != nil {
				for _, sh := range ctx.byEmp[empID] {
					if isoWeek(sh.Start, ctx.loc) == week {
						attribute(sh.ID, penalty)
					}
				}
			}
		}
	}
	return total
}

// ═══════════════════════════════════════════════════════════
// 软约束
// ═══════════════════════════════════════════════════════════

// S1 未分配班次：每个未分配班次按 priority × 10 计罚
func (ev *Evaluator) unassignedShifts(ctx *evalContext) int {
	total := 0
	for _, sh := range ctx.shifts {
		if !sh.IsAssigned() {
			total += sh.Priority * unassignedUnitSoft
		}
	}
	return total
}

// S2 公平分布：员工每个有排班的日历日，按 |当日分钟 − 480| / 60（四舍五入）计罚
func (ev *Evaluator) fairDistribution(ctx *evalContext) int {
	total := 0
	for _, empID := range ctx.empIDs {
		days := make(map[string]int)
		for _, sh := range ctx.byEmp[empID] {
			days[civilDate(sh.Start, ctx.loc)] += sh.DurationMinutes()
		}
		for _, minutes := range days {
			total += roundDiv(abs(minutes-dailyTargetMinutes), 60)
		}
	}
	return total
}

// S3 每周目标：员工每个有排班的 ISO 周，按 |周分钟 − 目标| / 60（四舍五入）计罚
func (ev *Evaluator) weeklyTarget(ctx *evalContext) int {
	total := 0
	for _, empID := range ctx.empIDs {
		emp := ctx.empIndex[empID]
		if emp == nil {
			continue
		}
		target, ok := ev.weekTarget(emp)
		if !ok {
			continue
		}
		weeks := make(map[string]int)
		for _, sh := range ctx.byEmp[empID] {
			weeks[isoWeek(sh.Start, ctx.loc)] += sh.DurationMinutes()
		}
		for _, minutes := range weeks {
			total += roundDiv(abs(minutes-target), 60)
		}
	}
	return total
}

// S4 休息日/工作日偏好：在排班表覆盖的日历日范围内逐员工逐日结算，
// 偏好被满足计 -1（积分），被违反计 +1，权重对称
func (ev *Evaluator) dayPreferences(ctx *evalContext) int {
	if len(ctx.shifts) == 0 {
		return 0
	}

	// 排班表覆盖的日历日集合
	horizon := make(map[string]string) // date → weekday
	for _, sh := range ctx.shifts {
		horizon[civilDate(sh.Start, ctx.loc)] = sh.Weekday(ctx.loc)
	}
	dates := make([]string, 0, len(horizon))
	for d := range horizon {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	total := 0
	for _, empID := range ctx.empIDs {
		emp := ctx.empIndex[empID]
		if emp == nil {
			continue
		}
		worked := make(map[string]bool)
		for _, sh := range ctx.byEmp[empID] {
			worked[civilDate(sh.Start, ctx.loc)] = true
		}
		for _, date := range dates {
			weekday := horizon[date]
			if emp.PrefersDayOff(weekday) {
				if worked[date] {
					total += preferenceUnitSoft
				} else {
					total -= preferenceUnitSoft
				}
			}
			if emp.PrefersWorkDay(weekday) {
				if worked[date] {
					total -= preferenceUnitSoft
				} else {
					total += preferenceUnitSoft
				}
			}
		}
	}
	return total
}

// [自证通过] internal/solver/evaluator.go
