package Elevation

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// ProgressCallback 协作式取消回调。核心在取数边界轮询：
// 取消或要求重试时，失败的键不会进入黑名单。
type ProgressCallback interface {
	IsCanceled() bool
	NeedsRetry() bool
}

// Progress 带请求标识的默认实现，标识用于日志关联
type Progress struct {
	id       string
	canceled atomic.Bool
	retry    atomic.Bool
}

// NewProgress 创建进度回调
func NewProgress() *Progress {
	return &Progress{id: uuid.NewString()}
}

// ID 请求标识
func (p *Progress) ID() string { return p.id }

// Cancel 标记取消
func (p *Progress) Cancel() { p.canceled.Store(true) }

// SetNeedsRetry 标记需要重试
func (p *Progress) SetNeedsRetry() { p.retry.Store(true) }

func (p *Progress) IsCanceled() bool { return p.canceled.Load() }
func (p *Progress) NeedsRetry() bool { return p.retry.Load() }

// canceledOrRetry 判定失败是否属于瞬态（nil 回调视为非瞬态）
func canceledOrRetry(progress ProgressCallback) bool {
	return progress != nil && (progress.IsCanceled() || progress.NeedsRetry())
}
