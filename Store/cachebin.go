package Store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"elevation-platform/logger"
)

// StorageBackend 持久化后端类型
type StorageBackend string

const (
	BackendBBolt  StorageBackend = "bbolt"
	BackendSQLite StorageBackend = "sqlite"
)

// ReadResult 缓存读取结果：负载、写入时间与命中标志
type ReadResult struct {
	Value        []byte
	LastModified time.Time
	OK           bool
}

// Succeeded 是否命中
func (r ReadResult) Succeeded() bool { return r.OK }

// CacheBin 缓存槽接口：按字符串键读写二进制负载。
// Read 未命中返回 OK=false 的结果，不作为错误处理。
type CacheBin interface {
	Read(key string) ReadResult
	Write(key string, value []byte) error
}

// TileCacheConfig 瓦片缓存槽配置
type TileCacheConfig struct {
	// 持久化后端选择（bbolt 或 sqlite）
	Backend StorageBackend
	// 持久化数据库目录
	DBDir string
	// 缓存槽名（如 "elevation"），作为桶/表名与 Redis 前缀
	Bin string
	// Redis 地址（为空则使用默认地址）
	RedisAddr string
	// 是否启用 Redis 缓存层
	EnableCache bool
	// Redis 缓存过期时间（0 表示永不过期）
	CacheExpiration time.Duration
	// 是否启用异步持久化（Redis 作为写缓冲区）
	EnableAsyncPersist bool
	// 异步持久化批次大小（默认 100）
	PersistBatchSize int
	// 异步持久化间隔（默认 5 秒）
	PersistInterval time.Duration
}

// TileCacheBin 瓦片缓存槽（Redis 缓存层 + bbolt/sqlite 持久化）。
// 写入时在负载前加 8 字节写入时间帧，读取时还原，
// 供上层按缓存策略判断条目是否过期。
type TileCacheBin struct {
	config TileCacheConfig

	// 异步持久化相关
	persistQueue chan *persistTask
	persistWg    sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
}

// persistTask 持久化任务
type persistTask struct {
	cacheKey string
	value    []byte
}

// NewTileCacheBin 创建瓦片缓存槽
func NewTileCacheBin(config TileCacheConfig) (*TileCacheBin, error) {
	// 验证配置
	if config.Backend != BackendBBolt && config.Backend != BackendSQLite {
		return nil, fmt.Errorf("不支持的后端类型: %s", config.Backend)
	}
	if config.DBDir == "" {
		return nil, errors.New("DBDir 不能为空")
	}
	if config.Bin == "" {
		config.Bin = "elevation"
	}

	// 如果启用缓存但未提供 Redis 地址，使用默认地址
	if config.EnableCache && config.RedisAddr == "" {
		config.RedisAddr = "localhost:6379"
	}

	// 如果启用缓存，测试 Redis 连接
	if config.EnableCache {
		if err := InitRedis(config.RedisAddr); err != nil {
			return nil, fmt.Errorf("Redis 连接失败: %w", err)
		}
	}

	// 异步持久化默认配置
	if config.EnableAsyncPersist {
		if !config.EnableCache {
			return nil, errors.New("异步持久化模式必须启用 Redis 缓存")
		}
		if config.PersistBatchSize <= 0 {
			config.PersistBatchSize = 100
		}
		if config.PersistInterval <= 0 {
			config.PersistInterval = 5 * time.Second
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	cb := &TileCacheBin{
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}

	// 启动异步持久化 worker
	if config.EnableAsyncPersist {
		cb.persistQueue = make(chan *persistTask, config.PersistBatchSize*10) // 队列容量是批次的10倍
		cb.startPersistWorker()
	}

	return cb, nil
}

// frameValue 在负载前加 8 字节大端 UnixNano 写入时间
func frameValue(value []byte, mtime time.Time) []byte {
	framed := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(framed[:8], uint64(mtime.UnixNano()))
	copy(framed[8:], value)
	return framed
}

// unframeValue 拆出写入时间与原始负载；帧不完整视为无效
func unframeValue(framed []byte) ([]byte, time.Time, bool) {
	if len(framed) < 8 {
		return nil, time.Time{}, false
	}
	nanos := int64(binary.BigEndian.Uint64(framed[:8]))
	return framed[8:], time.Unix(0, nanos), true
}

// startPersistWorker 启动异步持久化 worker
func (cb *TileCacheBin) startPersistWorker() {
	cb.persistWg.Add(1)
	go func() {
		defer cb.persistWg.Done()

		ticker := time.NewTicker(cb.config.PersistInterval)
		defer ticker.Stop()

		batch := make(map[string][]byte)

		flushBatch := func() {
			if len(batch) == 0 {
				return
			}
			cb.persistBatch(batch)
			// 清空批次
			batch = make(map[string][]byte)
		}

		for {
			select {
			case task, ok := <-cb.persistQueue:
				if !ok {
					// 队列已关闭，刷新剩余数据后退出
					flushBatch()
					return
				}

				// 收集任务到批次
				batch[task.cacheKey] = task.value

				// 达到批次大小，立即刷新
				if len(batch) >= cb.config.PersistBatchSize {
					flushBatch()
				}

			case <-ticker.C:
				// 定时刷新
				flushBatch()
			}
		}
	}()
}

// persistBatch 将一批数据刷入持久化后端。
// 失败只告警不重试，数据仍在 Redis 缓存层。
func (cb *TileCacheBin) persistBatch(batch map[string][]byte) {
	var persistErr error
	switch cb.config.Backend {
	case BackendBBolt:
		persistErr = PutBlobsBBoltBatch(cb.config.DBDir, cb.config.Bin, batch)
	case BackendSQLite:
		persistErr = PutBlobsSQLiteBatch(cb.config.DBDir, cb.config.Bin, batch)
	}
	if persistErr != nil {
		logger.Warn("缓存槽 %s 异步落盘失败 (%d 条): %v", cb.config.Bin, len(batch), persistErr)
	}
}

// Write 写入瓦片数据；负载带写入时间帧入库
func (cb *TileCacheBin) Write(key string, value []byte) error {
	framed := frameValue(value, time.Now())

	if cb.config.EnableAsyncPersist {
		// 异步模式：先写 Redis，再异步持久化
		if err := PutBlobRedis(cb.config.RedisAddr, cb.config.Bin, key, framed, cb.config.CacheExpiration); err != nil {
			return fmt.Errorf("Redis 写入失败: %w", err)
		}

		// 异步提交持久化任务（非阻塞）
		select {
		case cb.persistQueue <- &persistTask{cacheKey: key, value: framed}:
			// 任务提交成功
		default:
			// 队列满，不阻塞（Redis 已写入）
		}

		return nil
	}

	// 同步模式：先持久化，再缓存
	var persistErr error
	switch cb.config.Backend {
	case BackendBBolt:
		persistErr = PutBlobBBolt(cb.config.DBDir, cb.config.Bin, key, framed)
	case BackendSQLite:
		persistErr = PutBlobSQLite(cb.config.DBDir, cb.config.Bin, key, framed)
	}

	if persistErr != nil {
		return fmt.Errorf("持久化写入失败: %w", persistErr)
	}

	// 写入 Redis 缓存（失败不影响整体）
	if cb.config.EnableCache {
		_ = PutBlobRedis(cb.config.RedisAddr, cb.config.Bin, key, framed, cb.config.CacheExpiration)
	}

	return nil
}

// Read 读取瓦片数据（先查 Redis，未命中则查持久化并异步回填缓存）
func (cb *TileCacheBin) Read(key string) ReadResult {
	// 1. 先查 Redis 缓存
	if cb.config.EnableCache {
		if framed, err := GetBlobRedis(cb.config.RedisAddr, cb.config.Bin, key); err == nil {
			if value, mtime, ok := unframeValue(framed); ok {
				return ReadResult{Value: value, LastModified: mtime, OK: true}
			}
		}
		// 缓存未命中，继续查持久化
	}

	// 2. 查询持久化存储
	var framed []byte
	var persistErr error

	switch cb.config.Backend {
	case BackendBBolt:
		framed, persistErr = GetBlobBBolt(cb.config.DBDir, cb.config.Bin, key)
	case BackendSQLite:
		framed, persistErr = GetBlobSQLite(cb.config.DBDir, cb.config.Bin, key)
	}

	if persistErr != nil {
		return ReadResult{}
	}

	value, mtime, ok := unframeValue(framed)
	if !ok {
		return ReadResult{}
	}

	// 3. 回填缓存（异步，失败不影响返回）
	if cb.config.EnableCache {
		backfill := framed
		go func() {
			_ = PutBlobRedis(cb.config.RedisAddr, cb.config.Bin, key, backfill, cb.config.CacheExpiration)
		}()
	}

	return ReadResult{Value: value, LastModified: mtime, OK: true}
}

// Delete 删除瓦片数据（同时删除缓存和持久化）
func (cb *TileCacheBin) Delete(key string) error {
	// 1. 删除缓存
	if cb.config.EnableCache {
		_ = DeleteBlobRedis(cb.config.RedisAddr, cb.config.Bin, key)
	}

	// 2. 删除持久化数据
	var persistErr error
	switch cb.config.Backend {
	case BackendBBolt:
		persistErr = DeleteBlobBBolt(cb.config.DBDir, cb.config.Bin, key)
	case BackendSQLite:
		persistErr = DeleteBlobSQLite(cb.config.DBDir, cb.config.Bin, key)
	}

	if persistErr != nil {
		return fmt.Errorf("持久化删除失败: %w", persistErr)
	}

	return nil
}

// Close 停止异步持久化并关闭所有连接
func (cb *TileCacheBin) Close() error {
	// 停止异步持久化 worker
	if cb.config.EnableAsyncPersist && cb.persistQueue != nil {
		close(cb.persistQueue) // 关闭队列，触发 worker 退出
		cb.persistWg.Wait()    // 等待 worker 完成剩余任务
	}
	cb.cancel()

	var errs []error

	// 关闭 Redis 连接
	if cb.config.EnableCache {
		if err := CloseRedis(); err != nil {
			errs = append(errs, err)
		}
	}

	// 关闭持久化连接
	switch cb.config.Backend {
	case BackendBBolt:
		if err := CloseAllBBolt(); err != nil {
			errs = append(errs, err)
		}
	case BackendSQLite:
		if err := CloseAllSQLite(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("关闭连接时出现错误: %v", errs)
	}

	return nil
}

// GetBackend 获取当前持久化后端类型
func (cb *TileCacheBin) GetBackend() StorageBackend {
	return cb.config.Backend
}

// IsCacheEnabled 检查 Redis 缓存层是否启用
func (cb *TileCacheBin) IsCacheEnabled() bool {
	return cb.config.EnableCache
}

// GetPendingPersistCount 获取待持久化任务数量
func (cb *TileCacheBin) GetPendingPersistCount() int {
	if !cb.config.EnableAsyncPersist || cb.persistQueue == nil {
		return 0
	}
	return len(cb.persistQueue)
}
