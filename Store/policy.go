// Package Store 提供高程瓦片的持久化缓存槽（cache bin）：
// bbolt 或 sqlite 作为持久化后端，可选 Redis 作为前置缓存层，
// 并按缓存策略控制只读、只写、仅缓存与过期语义。
package Store

import (
	"time"
)

// CacheUsage 缓存使用模式
type CacheUsage int

const (
	// UsageReadWrite 读写缓存（默认）
	UsageReadWrite CacheUsage = iota
	// UsageReadOnly 只读缓存，不写回
	UsageReadOnly
	// UsageWriteOnly 只写缓存，读取绕过
	UsageWriteOnly
	// UsageCacheOnly 仅用缓存，不触发源取数
	UsageCacheOnly
	// UsageNone 禁用缓存
	UsageNone
)

// CachePolicy 缓存策略：使用模式与条目最大年龄（0 表示永不过期）
type CachePolicy struct {
	Usage  CacheUsage
	MaxAge time.Duration
}

// DefaultCachePolicy 默认策略：读写、永不过期
func DefaultCachePolicy() CachePolicy {
	return CachePolicy{Usage: UsageReadWrite}
}

// IsCacheOnly 是否仅用缓存
func (p CachePolicy) IsCacheOnly() bool { return p.Usage == UsageCacheOnly }

// IsCacheReadable 是否允许读缓存
func (p CachePolicy) IsCacheReadable() bool {
	return p.Usage == UsageReadWrite || p.Usage == UsageReadOnly || p.Usage == UsageCacheOnly
}

// IsCacheWriteable 是否允许写缓存
func (p CachePolicy) IsCacheWriteable() bool {
	return p.Usage == UsageReadWrite || p.Usage == UsageWriteOnly
}

// IsExpired 按条目写入时间判断是否过期
func (p CachePolicy) IsExpired(lastModified time.Time) bool {
	if p.MaxAge <= 0 || lastModified.IsZero() {
		return false
	}
	return time.Since(lastModified) > p.MaxAge
}
