package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// 默认查找路径
const (
	RootConfigPath   = "config.toml"
	FolderConfigPath = "config/config.toml"
)

// CacheConfig 持久化缓存槽配置
type CacheConfig struct {
	// 后端类型："bbolt" 或 "sqlite"
	Backend string `toml:"backend"`
	// 数据库根目录
	DBDir string `toml:"db_dir"`
	// 缓存槽名
	Bin string `toml:"bin"`
	// Redis 地址（空则用 localhost:6379）
	RedisAddr string `toml:"redis_addr"`
	// 是否启用 Redis 缓存层
	EnableCache bool `toml:"enable_cache"`
	// Redis 条目过期秒数（0 永不过期）
	CacheExpirationSec int `toml:"cache_expiration_sec"`
	// 是否启用异步持久化
	EnableAsyncPersist bool `toml:"enable_async_persist"`
	// 异步持久化批次大小
	PersistBatchSize int `toml:"persist_batch_size"`
	// 异步持久化间隔秒数
	PersistIntervalSec int `toml:"persist_interval_sec"`
}

// CacheExpiration 过期时长
func (c CacheConfig) CacheExpiration() time.Duration {
	return time.Duration(c.CacheExpirationSec) * time.Second
}

// PersistInterval 持久化间隔
func (c CacheConfig) PersistInterval() time.Duration {
	return time.Duration(c.PersistIntervalSec) * time.Second
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	// 级别：debug/info/warn/error
	Level string `toml:"level"`
	// 日志文件路径（空则仅控制台）
	File string `toml:"file"`
	// 是否同时输出到控制台
	Console bool `toml:"console"`
	// 轮转：单文件上限（MB）、保留个数、保留天数
	MaxSizeMB  int `toml:"max_size_mb"`
	MaxBackups int `toml:"max_backups"`
	MaxAgeDays int `toml:"max_age_days"`
}

// Config 项目配置结构
type Config struct {
	Cache   CacheConfig   `toml:"Cache"`
	Logging LoggingConfig `toml:"Logging"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			Backend: "bbolt",
			DBDir:   "data",
			Bin:     "elevation",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

var (
	loadOnce sync.Once
	loadErr  error
)

// LoadMergedInto 将项目根目录下的 config.toml 与 config/config.toml 合并后，解码到 out 指针。
// 合并策略：先加载 config/config.toml（作为默认值），再加载根目录 config.toml（作为覆盖）。
// 如果文件不存在则跳过。
func LoadMergedInto(out interface{}) error {
	// 先加载 config/config.toml（默认）
	if fileExists(FolderConfigPath) {
		if _, err := toml.DecodeFile(FolderConfigPath, out); err != nil {
			return fmt.Errorf("解析 %s 失败: %w", FolderConfigPath, err)
		}
	}
	// 根目录 config.toml 覆盖
	if fileExists(RootConfigPath) {
		if _, err := toml.DecodeFile(RootConfigPath, out); err != nil {
			return fmt.Errorf("解析 %s 失败: %w", RootConfigPath, err)
		}
	}
	return nil
}

// LoadFileInto 解码指定 toml 文件到 out 指针
func LoadFileInto(path string, out interface{}) error {
	if _, err := toml.DecodeFile(path, out); err != nil {
		return fmt.Errorf("解析 %s 失败: %w", path, err)
	}
	return nil
}

// MustLoadMergedInto 与 LoadMergedInto 相同，但发生错误时 panic。
func MustLoadMergedInto(out interface{}) {
	loadOnce.Do(func() {
		loadErr = LoadMergedInto(out)
	})
	if loadErr != nil {
		panic(loadErr)
	}
}

// ResolvePath 如果传入相对路径，基于项目根目录返回绝对路径；若已是绝对路径则原样返回。
func ResolvePath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
