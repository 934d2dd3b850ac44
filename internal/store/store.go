package store

import (
	"context"

	"github.com/vtakaj/ShiftAgent/internal/model"
)

// JobStore 作业持久化接口
// 每个作业一条记录，保存最新快照；写入在各后端内保证原子性。
// Get/List 返回的均为独立副本，调用方可自由修改。
type JobStore interface {
	// Save 保存（新建或覆盖）作业快照
	Save(ctx context.Context, job *model.Job) error
	// Get 读取作业；不存在时返回 not_found 类错误
	Get(ctx context.Context, id string) (*model.Job, error)
	// List 列出全部作业
	List(ctx context.Context) ([]*model.Job, error)
	// Delete 删除作业；不存在时返回 not_found 类错误
	Delete(ctx context.Context, id string) error
	// Close 释放后端资源
	Close() error
}

