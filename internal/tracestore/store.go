package tracestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/flowgrid/flow"
)

// =============================================================================
// 🗄️ 运行轨迹存档
// =============================================================================

// RunRecord 一次工作流运行的持久化记录
type RunRecord struct {
	RunID         string    `gorm:"primaryKey;column:run_id" json:"runId"`
	WorkflowID    string    `gorm:"index;column:workflow_id" json:"workflowId"`
	Status        string    `gorm:"column:status" json:"status"`
	StartTime     time.Time `gorm:"column:start_time" json:"startTime"`
	EndTime       time.Time `gorm:"index;column:end_time" json:"endTime"`
	NodesExecuted int       `gorm:"column:nodes_executed" json:"nodesExecuted"`
	// Detail 存放结果与节点状态的 JSON 快照
	Detail []byte `gorm:"column:detail" json:"-"`
}

// TableName 指定表名
func (RunRecord) TableName() string {
	return "run_traces"
}

// runDetail 是 Detail 字段的 JSON 结构
type runDetail struct {
	Results map[string]*flow.Envelope  `json:"results"`
	States  map[string]flow.NodeState  `json:"states"`
	Order   []string                   `json:"order"`
}

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("run trace not found")

// Store 基于 SQLite 的运行轨迹存档，供回放与排障查询
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open 打开（或创建）存档数据库并迁移表结构
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open trace store: %w", err)
	}

	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate trace store: %w", err)
	}

	logger.Info("trace store opened", zap.String("path", path))

	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "trace_store")),
	}, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Save 存档一次运行的最终轨迹
func (s *Store) Save(ctx context.Context, trace *flow.RunTrace) error {
	if trace == nil {
		return fmt.Errorf("trace cannot be nil")
	}

	executed := trace.ExecutedNodes()
	detail, err := json.Marshal(runDetail{
		Results: trace.Results(),
		States:  trace.States(),
		Order:   executed,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal trace detail: %w", err)
	}

	record := RunRecord{
		RunID:         trace.RunID,
		WorkflowID:    trace.WorkflowID,
		Status:        string(trace.Status),
		StartTime:     trace.StartTime,
		EndTime:       trace.EndTime,
		NodesExecuted: len(executed),
		Detail:        detail,
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logger.Error("trace save failed", zap.String("run_id", trace.RunID), zap.Error(err))
		return fmt.Errorf("failed to save trace: %w", err)
	}
	return nil
}

// Get 按 run_id 查询一条存档记录
func (s *Store) Get(ctx context.Context, runID string) (*RunRecord, error) {
	var record RunRecord
	err := s.db.WithContext(ctx).First(&record, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trace: %w", err)
	}
	return &record, nil
}

// ListByWorkflow 按工作流查询最近的运行记录，按结束时间倒序
func (s *Store) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []RunRecord
	err := s.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("end_time DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}
	return records, nil
}

// Results 反序列化记录的结果快照
func (r *RunRecord) Results() (map[string]*flow.Envelope, error) {
	var detail runDetail
	if err := json.Unmarshal(r.Detail, &detail); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace detail: %w", err)
	}
	return detail.Results, nil
}

// States 反序列化记录的节点状态快照
func (r *RunRecord) States() (map[string]flow.NodeState, error) {
	var detail runDetail
	if err := json.Unmarshal(r.Detail, &detail); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace detail: %w", err)
	}
	return detail.States, nil
}

// Prune 只保留最近 maxRuns 条记录，其余按结束时间淘汰
func (s *Store) Prune(ctx context.Context, maxRuns int) error {
	if maxRuns <= 0 {
		return nil
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&RunRecord{}).Count(&total).Error; err != nil {
		return fmt.Errorf("failed to count traces: %w", err)
	}
	if total <= int64(maxRuns) {
		return nil
	}

	// 找到保留窗口外最新一条的结束时间，删除更早的记录
	var cutoff RunRecord
	err := s.db.WithContext(ctx).
		Order("end_time DESC").
		Offset(maxRuns).
		First(&cutoff).Error
	if err != nil {
		return fmt.Errorf("failed to find prune cutoff: %w", err)
	}

	result := s.db.WithContext(ctx).
		Where("end_time <= ?", cutoff.EndTime).
		Delete(&RunRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to prune traces: %w", result.Error)
	}

	s.logger.Info("trace store pruned",
		zap.Int64("deleted", result.RowsAffected),
		zap.Int("max_runs", maxRuns),
	)
	return nil
}

// Ping 验证底层数据库连接可用，供就绪探针使用
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭底层数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
