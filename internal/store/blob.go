package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/vtakaj/ShiftAgent/internal/model"
	"github.com/vtakaj/ShiftAgent/pkg/apperr"
)

// BlobStore 对象存储作业后端（GCS）
// 布局：<prefix>/<job_id>.json，负载与文件系统后端完全一致。
// 写入为无条件覆盖（last-writer-wins），不使用 generation 条件写，不提供跨主机的单写者保证。
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewBlobStore 创建对象存储后端并校验 bucket 可达
func NewBlobStore(ctx context.Context, bucket, prefix string) (*BlobStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("创建对象存储客户端失败: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("bucket %s 不可达: %w", bucket, err)
	}
	return &BlobStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (s *BlobStore) objectName(id string) string {
	if s.prefix == "" {
		return id + ".json"
	}
	return s.prefix + "/" + id + ".json"
}

func (s *BlobStore) Save(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("序列化作业失败: %w", err)
	}

	obj := s.client.Bucket(s.bucket).Object(s.objectName(job.ID))
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("写入对象失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("提交对象失败: %w", err)
	}
	return nil
}

func (s *BlobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.objectName(id)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, apperr.Newf(apperr.KindNotFound, "not_found.job", "作业不存在: %s", id)
		}
		return nil, fmt.Errorf("读取对象失败: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("读取对象内容失败: %w", err)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("反序列化作业失败: %w", err)
	}
	return &job, nil
}

func (s *BlobStore) List(ctx context.Context) ([]*model.Job, error) {
	query := &storage.Query{}
	if s.prefix != "" {
		query.Prefix = s.prefix + "/"
	}

	var out []*model.Job
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("遍历对象失败: %w", err)
		}
		name := attrs.Name
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name[strings.LastIndex(name, "/")+1:], ".json")
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

func (s *BlobStore) Delete(ctx context.Context, id string) error {
	err := s.client.Bucket(s.bucket).Object(s.objectName(id)).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return apperr.Newf(apperr.KindNotFound, "not_found.job", "作业不存在: %s", id)
		}
		return fmt.Errorf("删除对象失败: %w", err)
	}
	return nil
}

func (s *BlobStore) Close() error { return s.client.Close() }

