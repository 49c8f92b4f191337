// Package metrics 暴露高程合成核心的 prometheus 计数器。
// 计数点对应核心的关键路径：单层合成调用、缓存命中、驱动取数与黑名单拦截。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CreateHeightFieldCalls 单层瓦片合成调用次数（按图层）
	CreateHeightFieldCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elevation_create_heightfield_total",
		Help: "Number of single-layer height field synthesis calls.",
	}, []string{"layer"})

	// MemCacheHits 内存缓存命中次数（按图层）
	MemCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elevation_memcache_hits_total",
		Help: "Number of in-process memory cache hits.",
	}, []string{"layer"})

	// PersistCacheHits 持久化缓存命中次数（按图层）
	PersistCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elevation_persist_cache_hits_total",
		Help: "Number of persistent cache bin hits.",
	}, []string{"layer"})

	// DriverFetches 驱动取数次数（按图层）
	DriverFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elevation_driver_fetches_total",
		Help: "Number of tile source driver fetches.",
	}, []string{"layer"})

	// DriverFailures 驱动取数失败次数（按图层）
	DriverFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elevation_driver_failures_total",
		Help: "Number of failed tile source driver fetches.",
	}, []string{"layer"})

	// BlacklistHits 黑名单拦截次数（按图层）
	BlacklistHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elevation_blacklist_hits_total",
		Help: "Number of fetches short-circuited by the tile blacklist.",
	}, []string{"layer"})

	// PopulateCalls 多层合成（populate）调用次数
	PopulateCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_populate_total",
		Help: "Number of layer-stack populate calls.",
	})
)
