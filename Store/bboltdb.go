package Store

import (
	"errors"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrNotFound 缓存键不存在
var ErrNotFound = errors.New("key not found")

// BBoltManager 管理 bbolt 连接的池，避免重复打开同一数据库文件
type BBoltManager struct {
	mu   sync.Mutex          // 保护连接池
	pool map[string]*bolt.DB // dbPath -> *bolt.DB
	opts *bolt.Options       // 打开参数
}

var defaultBoltManager = NewBBoltManager()

// NewBBoltManager 创建管理器
func NewBBoltManager() *BBoltManager {
	return &BBoltManager{
		pool: make(map[string]*bolt.DB),
		opts: &bolt.Options{Timeout: 2 * time.Second}, // 独占锁等待超时
	}
}

// getOrOpenDB 获取或打开指定路径的 bbolt 数据库
func (m *BBoltManager) getOrOpenDB(dbPath string) (*bolt.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.pool[dbPath]; ok && db != nil {
		return db, nil
	}

	// 确保目录存在
	if err := os.MkdirAll(path.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := bboltRecoverIfNeeded(dbPath, m.opts)
	if err != nil {
		return nil, err
	}
	m.pool[dbPath] = db
	return db, nil
}

// CloseAll 关闭所有已打开的数据库连接
func (m *BBoltManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for p, db := range m.pool {
		if db != nil {
			if err := db.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		delete(m.pool, p)
	}
	return firstErr
}

// bboltRecoverIfNeeded 检测并在必要时尝试修复(或重新创建)损坏的 bbolt 数据库
func bboltRecoverIfNeeded(dbPath string, opts *bolt.Options) (*bolt.DB, error) {
	// 如果文件不存在,直接正常创建
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return bolt.Open(dbPath, 0o600, opts)
	}

	// 第一次尝试正常打开
	db, err := bolt.Open(dbPath, 0o600, opts)
	if err == nil {
		return db, nil
	}

	// 若打开失败,认为可能损坏: 先备份原文件,再新建
	backupPath := dbPath + ".corrupt." + time.Now().Format("20060102_150405")
	_ = os.Rename(dbPath, backupPath)
	return bolt.Open(dbPath, 0o600, opts)
}

// PutBlobBBolt 写入单条数据：以缓存键原文作为 bbolt 的 key
// dbdir: 数据库根目录；bin: 缓存槽名；cacheKey: 唯一标识；value: 负载数据
func PutBlobBBolt(dbdir, bin, cacheKey string, value []byte) error {
	// 生成数据库文件路径（分层策略在 getDBPath 内实现）
	dbPath := getDBPath(dbdir, bin, keyLevel(cacheKey), "bbolt")

	// 打开连接（复用连接池）
	db, err := defaultBoltManager.getOrOpenDB(dbPath)
	if err != nil {
		return err
	}

	// 使用 bin 作为桶名，便于分类管理
	bucketName := []byte(strings.ToLower(bin))

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put([]byte(cacheKey), value)
	})
}

// PutBlobsBBoltBatch 批量写入多条数据：在单个事务中写入同一数据库文件的所有数据
// 适用于异步落盘工作器的批量刷写场景
func PutBlobsBBoltBatch(dbdir, bin string, records map[string][]byte) error {
	if len(records) == 0 {
		return nil
	}

	// 按数据库路径分组（不同层级可能在不同数据库文件）
	grouped := make(map[string]map[string][]byte)
	for cacheKey, value := range records {
		dbPath := getDBPath(dbdir, bin, keyLevel(cacheKey), "bbolt")
		if grouped[dbPath] == nil {
			grouped[dbPath] = make(map[string][]byte)
		}
		grouped[dbPath][cacheKey] = value
	}

	bucketName := []byte(strings.ToLower(bin))

	// 对每个数据库文件执行批量写入
	for dbPath, group := range grouped {
		db, err := defaultBoltManager.getOrOpenDB(dbPath)
		if err != nil {
			return err
		}

		// 单个事务批量写入
		err = db.Update(func(tx *bolt.Tx) error {
			b, err := tx.CreateBucketIfNotExists(bucketName)
			if err != nil {
				return err
			}
			for cacheKey, value := range group {
				if err := b.Put([]byte(cacheKey), value); err != nil {
					return err
				}
			}
			return nil
		})

		if err != nil {
			return err
		}
	}

	return nil
}

// GetBlobBBolt 读取单条数据；键不存在返回 ErrNotFound
func GetBlobBBolt(dbdir, bin, cacheKey string) ([]byte, error) {
	dbPath := getDBPath(dbdir, bin, keyLevel(cacheKey), "bbolt")
	db, err := defaultBoltManager.getOrOpenDB(dbPath)
	if err != nil {
		return nil, err
	}

	bucketName := []byte(strings.ToLower(bin))

	var val []byte
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return ErrNotFound
		}
		raw := b.Get([]byte(cacheKey))
		if raw == nil {
			return ErrNotFound
		}
		// View 事务结束后 raw 失效，拷贝返回
		val = make([]byte, len(raw))
		copy(val, raw)
		return nil
	})

	if err != nil {
		return nil, err
	}
	return val, nil
}

// DeleteBlobBBolt 删除单条数据
func DeleteBlobBBolt(dbdir, bin, cacheKey string) error {
	dbPath := getDBPath(dbdir, bin, keyLevel(cacheKey), "bbolt")
	db, err := defaultBoltManager.getOrOpenDB(dbPath)
	if err != nil {
		return err
	}

	bucketName := []byte(strings.ToLower(bin))

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil // bucket不存在，视为删除成功
		}
		return b.Delete([]byte(cacheKey))
	})
}

// CloseAllBBolt 关闭所有 BBolt 连接
func CloseAllBBolt() error {
	return defaultBoltManager.CloseAll()
}
