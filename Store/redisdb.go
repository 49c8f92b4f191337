package Store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisManager 管理 Redis 连接（按地址复用单个客户端，缓存槽以前缀区分）
type RedisManager struct {
	mu     sync.Mutex
	client *redis.Client
	addr   string
}

// 全局默认 Redis 管理器
var defaultRedisManager = &RedisManager{}

// InitRedis 初始化全局 Redis 连接并测试连通性
// addr 格式: "localhost:6379"
func InitRedis(addr string) error {
	_, err := defaultRedisManager.getOrInitClient(addr)
	return err
}

// getOrInitClient 获取或初始化 Redis 客户端
func (rm *RedisManager) getOrInitClient(addr string) (*redis.Client, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	// 地址为空，使用默认地址
	if addr == "" {
		addr = "localhost:6379"
	}

	if rm.client != nil && rm.addr == addr {
		return rm.client, nil
	}

	// 地址变更，关闭旧连接
	if rm.client != nil {
		_ = rm.client.Close()
		rm.client = nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis 连接失败: %w", err)
	}

	rm.addr = addr
	rm.client = client
	return client, nil
}

// buildRedisKey 构建 Redis key：缓存槽名作为前缀，避免多槽互相覆盖
func buildRedisKey(bin, cacheKey string) string {
	return bin + ":" + cacheKey
}

// PutBlobRedis 写入单条数据到 Redis
// addr: Redis 地址（如 "localhost:6379"），为空则使用默认
// bin: 缓存槽名；cacheKey: 唯一标识；value: 负载数据
// expiration: 过期时间，0 表示永不过期
func PutBlobRedis(addr, bin, cacheKey string, value []byte, expiration time.Duration) error {
	client, err := defaultRedisManager.getOrInitClient(addr)
	if err != nil {
		return err
	}

	key := buildRedisKey(bin, cacheKey)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	return client.Set(ctx, key, value, expiration).Err()
}

// GetBlobRedis 读取数据；键不存在返回 ErrNotFound
func GetBlobRedis(addr, bin, cacheKey string) ([]byte, error) {
	client, err := defaultRedisManager.getOrInitClient(addr)
	if err != nil {
		return nil, err
	}

	key := buildRedisKey(bin, cacheKey)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	val, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return val, nil
}

// DeleteBlobRedis 删除数据
func DeleteBlobRedis(addr, bin, cacheKey string) error {
	client, err := defaultRedisManager.getOrInitClient(addr)
	if err != nil {
		return err
	}

	key := buildRedisKey(bin, cacheKey)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	return client.Del(ctx, key).Err()
}

// ExistsBlobRedis 检查 key 是否存在
func ExistsBlobRedis(addr, bin, cacheKey string) (bool, error) {
	client, err := defaultRedisManager.getOrInitClient(addr)
	if err != nil {
		return false, err
	}

	key := buildRedisKey(bin, cacheKey)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	count, err := client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// CloseRedis 关闭 Redis 连接
func CloseRedis() error {
	defaultRedisManager.mu.Lock()
	defer defaultRedisManager.mu.Unlock()

	var err error
	if defaultRedisManager.client != nil {
		err = defaultRedisManager.client.Close()
		defaultRedisManager.client = nil
		defaultRedisManager.addr = ""
	}
	return err
}
