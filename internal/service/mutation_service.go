package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vtakaj/ShiftAgent/internal/dto"
	"github.com/vtakaj/ShiftAgent/internal/model"
	"github.com/vtakaj/ShiftAgent/internal/planner"
	"github.com/vtakaj/ShiftAgent/internal/solver"
	"github.com/vtakaj/ShiftAgent/pkg/apperr"
)

// 变更操作统一作用于已完成作业的存量解（固定后重求解或点变更），
// 不存在"向运行中求解器注入变更"的语义。

// loadCompleted 读取作业并校验可变更状态
func (m *JobManager) loadCompleted(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobCompleted {
		return nil, apperr.Newf(apperr.KindInvalidState, "invalid_state.not_completed",
			"状态 %s 不允许变更操作", job.Status).WithJob(jobID)
	}
	if job.OutputSchedule == nil {
		return nil, apperr.New(apperr.KindInternal, "internal.missing_solution", "已完成作业缺少解").WithJob(jobID)
	}
	return job, nil
}

// resolveWithPins 固定计划落定后的重求解与收尾
//
// 求解失败时恢复变更前的解并把作业标记为 FAILED；
// 得分变差仍然接受（变更可能使问题部分不可行），作业保持 COMPLETED。
// 无论成败，重求解结束后清除全部固定标记。
func (m *JobManager) resolveWithPins(ctx context.Context, job *model.Job, working *model.Schedule, plan planner.PinPlan) (*model.Job, error) {
	previous := job.OutputSchedule
	previousStatus := job.Status

	job.Status = model.JobSolving
	if err := m.persist(ctx, job); err != nil {
		job.Status = previousStatus
		return nil, apperr.Wrap(apperr.KindInternal, "internal.persist", "状态持久化失败", err)
	}

	m.logger.Info("固定重求解开始",
		zap.String("job_id", job.ID),
		zap.Int("pinned", len(plan.Pinned)),
		zap.Int("unpinned", len(plan.Unpinned)),
	)

	outcome := m.solver.Solve(ctx, working, solver.Config{
		TimeBudget: m.cfg.Solver.Timeout(),
		LogLevel:   m.cfg.Solver.LogLevel,
	})

	now := time.Now().UTC()
	if outcome.Err != nil {
		// C3 故障：恢复变更前的解
		job.OutputSchedule = previous
		job.Status = model.JobFailed
		job.CompletedAt = &now
		job.Error = &model.JobError{Code: "internal.resolve_fault", Message: outcome.Err.Error()}
		if err := m.persist(ctx, job); err != nil {
			m.logger.Error("FAILED 状态持久化失败", zap.String("job_id", job.ID), zap.Error(err))
		}
		return nil, outcome.Err
	}

	final := outcome.FinalSchedule
	final.ClearPins()
	score := m.evaluator.Evaluate(final)
	final.Score = &score

	job.Status = model.JobCompleted
	job.CompletedAt = &now
	job.OutputSchedule = final
	job.History = append(job.History, outcome.Improvements...)
	if err := m.persist(ctx, job); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "internal.persist", "结果持久化失败", err)
	}

	m.logger.Info("固定重求解完成",
		zap.String("job_id", job.ID),
		zap.String("score", score.String()),
	)
	return job.Clone(), nil
}

// AddEmployee 追加员工并固定重求解
//
// 固定计划：当前分配干净的班次保持不动；贡献硬/中违反的班次
// 与未分配班次解除固定交给求解器。
func (m *JobManager) AddEmployee(ctx context.Context, jobID string, req *dto.AddEmployeeRequest) (*model.Job, error) {
	e := m.entry(jobID)
	e.mu.Lock()
	defer e.mu.Unlock()

	job, err := m.loadCompleted(ctx, jobID)
	if err != nil {
		return nil, err
	}

	working := job.OutputSchedule.Clone()
	working.Score = nil

	emp, err := req.Employee.ToEmployee(working.Location())
	if err != nil {
		return nil, err
	}
	if err := working.AddEmployee(emp); err != nil {
		return nil, apperr.Newf(apperr.KindInvalidInput, "invalid_input.duplicate_id", "%v", err).WithJob(jobID)
	}

	plan := planner.PinForAddEmployee(m.evaluator, working)
	m.logger.Info("追加员工",
		zap.String("job_id", jobID),
		zap.String("employee_id", emp.ID),
		zap.Strings("skills", emp.Skills),
	)
	return m.resolveWithPins(ctx, job, working, plan)
}

// UpdateSkills 替换员工技能集并固定重求解
//
// 受影响集（新旧技能差引发的班次 + 他人 H1 违反中该员工新近可胜任者 +
// 未分配班次）解除固定，其余固定。
func (m *JobManager) UpdateSkills(ctx context.Context, jobID string, req *dto.UpdateSkillsRequest) (*model.Job, error) {
	e := m.entry(jobID)
	e.mu.Lock()
	defer e.mu.Unlock()

	job, err := m.loadCompleted(ctx, jobID)
	if err != nil {
		return nil, err
	}

	working := job.OutputSchedule.Clone()
	working.Score = nil

	emp, err := working.EmployeeByID(req.EmployeeID)
	if err != nil {
		return nil, apperr.Newf(apperr.KindNotFound, "not_found.employee", "员工不存在: %s", req.EmployeeID).WithJob(jobID)
	}
	for _, sk := range req.Skills {
		if sk == "" {
			return nil, apperr.Newf(apperr.KindInvalidInput, "invalid_input.empty_skill", "技能集中包含空字符串").WithJob(jobID)
		}
	}

	oldSkills := append([]string(nil), emp.Skills...)
	emp.Skills = append([]string(nil), req.Skills...)

	plan := planner.PinForSkillUpdate(m.evaluator, working, req.EmployeeID, oldSkills, emp.Skills)
	m.logger.Info("更新员工技能",
		zap.String("job_id", jobID),
		zap.String("employee_id", req.EmployeeID),
		zap.Strings("old", oldSkills),
		zap.Strings("new", emp.Skills),
	)
	return m.resolveWithPins(ctx, job, working, plan)
}

// applyPointMutation 点变更公共路径：应用 → 硬分不得增加 → 重算得分 → 持久化
func (m *JobManager) applyPointMutation(ctx context.Context, job *model.Job, working *model.Schedule, apply func() error) (*model.Job, error) {
	preHard := m.evaluator.Evaluate(working).Hard
	if err := apply(); err != nil {
		return nil, err
	}
	post := m.evaluator.Evaluate(working)
	if post.Hard > preHard {
		return nil, apperr.New(apperr.KindIllegalMove, "illegal_move.hard_conflict",
			"该变更会引入硬约束冲突").WithJob(job.ID)
	}

	// 变更后从头重算，不保留旧缓存分
	working.Score = &post
	job.OutputSchedule = working
	if err := m.persist(ctx, job); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "internal.persist", "结果持久化失败", err)
	}
	return job.Clone(), nil
}

// ReassignShift 直接改派：绕过求解器的点变更，仅当不引入新的硬违反时生效
func (m *JobManager) ReassignShift(ctx context.Context, jobID string, req *dto.ReassignShiftRequest) (*model.Job, error) {
	e := m.entry(jobID)
	e.mu.Lock()
	defer e.mu.Unlock()

	job, err := m.loadCompleted(ctx, jobID)
	if err != nil {
		return nil, err
	}

	working := job.OutputSchedule.Clone()
	sh, err := working.ShiftByID(req.ShiftID)
	if err != nil {
		return nil, apperr.Newf(apperr.KindNotFound, "not_found.shift", "班次不存在: %s", req.ShiftID).WithJob(jobID)
	}
	if req.EmployeeID != nil {
		if _, err := working.EmployeeByID(*req.EmployeeID); err != nil {
			return nil, apperr.Newf(apperr.KindNotFound, "not_found.employee", "员工不存在: %s", *req.EmployeeID).WithJob(jobID)
		}
	}

	m.logger.Info("直接改派",
		zap.String("job_id", jobID),
		zap.String("shift_id", req.ShiftID),
	)
	return m.applyPointMutation(ctx, job, working, func() error {
		if req.EmployeeID == nil {
			sh.Assign("")
		} else {
			sh.Assign(*req.EmployeeID)
		}
		return nil
	})
}

// SwapShifts 互换两个班次的分配（点变更，不经求解器）
func (m *JobManager) SwapShifts(ctx context.Context, jobID string, req *dto.SwapShiftsRequest) (*model.Job, error) {
	e := m.entry(jobID)
	e.mu.Lock()
	defer e.mu.Unlock()

	job, err := m.loadCompleted(ctx, jobID)
	if err != nil {
		return nil, err
	}

	working := job.OutputSchedule.Clone()
	s1, err := working.ShiftByID(req.Shift1ID)
	if err != nil {
		return nil, apperr.Newf(apperr.KindNotFound, "not_found.shift", "班次不存在: %s", req.Shift1ID).WithJob(jobID)
	}
	s2, err := working.ShiftByID(req.Shift2ID)
	if err != nil {
		return nil, apperr.Newf(apperr.KindNotFound, "not_found.shift", "班次不存在: %s", req.Shift2ID).WithJob(jobID)
	}

	m.logger.Info("互换班次",
		zap.String("job_id", jobID),
		zap.String("shift1", req.Shift1ID),
		zap.String("shift2", req.Shift2ID),
	)
	return m.applyPointMutation(ctx, job, working, func() error {
		a, b := s1.AssigneeID(), s2.AssigneeID()
		s1.Assign(b)
		s2.Assign(a)
		return nil
	})
}

// PinShifts 持久固定/解除固定
// 固定标记保留到下一次变更驱动的重求解（重求解结束统一清除）。
func (m *JobManager) PinShifts(ctx context.Context, jobID string, req *dto.PinShiftsRequest) (*model.Job, error) {
	e := m.entry(jobID)
	e.mu.Lock()
	defer e.mu.Unlock()

	job, err := m.loadCompleted(ctx, jobID)
	if err != nil {
		return nil, err
	}

	working := job.OutputSchedule.Clone()
	for _, id := range req.ShiftIDs {
		sh, err := working.ShiftByID(id)
		if err != nil {
			return nil, apperr.Newf(apperr.KindNotFound, "not_found.shift", "班次不存在: %s", id).WithJob(jobID)
		}
		sh.Pinned = req.Pin
	}

	job.OutputSchedule = working
	if err := m.persist(ctx, job); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "internal.persist", "结果持久化失败", err)
	}
	m.logger.Info("固定开关已更新",
		zap.String("job_id", jobID),
		zap.Int("shifts", len(req.ShiftIDs)),
		zap.Bool("pin", req.Pin),
	)
	return job.Clone(), nil
}

