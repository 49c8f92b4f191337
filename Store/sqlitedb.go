package Store

import (
	"database/sql"
	"errors"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteManager 管理 sqlite 连接的池，兼容独占打开的模式但对外共享连接
type SQLiteManager struct {
	mu        sync.Mutex         // 保护连接池
	pool      map[string]*sql.DB // dbPath -> *sql.DB
	dsnExtras string             // 额外DSN参数
}

var defaultSQLiteManager = NewSQLiteManager()

// NewSQLiteManager 创建管理器
func NewSQLiteManager() *SQLiteManager {
	return &SQLiteManager{
		pool:      make(map[string]*sql.DB),
		dsnExtras: "?_busy_timeout=2000&cache=shared&mode=rwc",
	}
}

// initSchema 初始化指定缓存槽的表
func initSchema(db *sql.DB, bin string) error {
	// 启用 WAL 模式以提升并发读写性能
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		// WAL 模式在某些环境可能不支持，记录但不阻塞
	}

	// 缓存槽名来自系统内部配置，sanitizeTableName 再做一次白名单过滤
	tableName := sanitizeTableName(bin)
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ` + tableName + ` (
			cache_key TEXT PRIMARY KEY,
			value BLOB NOT NULL
		);
	`)
	return err
}

// sanitizeTableName 清理表名，确保符合SQLite标识符规范
func sanitizeTableName(name string) string {
	// 移除非法字符，只保留字母、数字和下划线
	// 并确保不以数字开头
	result := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return -1 // 移除非法字符
	}, name)

	// 如果以数字开头，添加前缀
	if len(result) > 0 && result[0] >= '0' && result[0] <= '9' {
		result = "_" + result
	}

	// 如果结果为空或太长，返回默认值
	if len(result) == 0 {
		return "default_table"
	}
	if len(result) > 64 {
		return result[:64]
	}

	return result
}

// getOrOpenDB 获取或打开指定路径的 sqlite 数据库，并初始化缓存槽的表
func (m *SQLiteManager) getOrOpenDB(dbPath string, bin string) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.pool[dbPath]; ok && db != nil {
		return db, nil
	}

	if err := os.MkdirAll(path.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sqliteRecoverIfNeeded(dbPath, m.dsnExtras)
	if err != nil {
		return nil, err
	}

	db.SetConnMaxLifetime(0)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_ = waitPing(db, 2*time.Second)

	if err := initSchema(db, bin); err != nil {
		_ = db.Close()
		return nil, err
	}

	m.pool[dbPath] = db
	return db, nil
}

// CloseAll 关闭所有连接
func (m *SQLiteManager) CloseAll() error {
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

// sqliteRecoverIfNeeded 检测并在必要时尝试修复(或重新创建)损坏的 sqlite 数据库
func sqliteRecoverIfNeeded(dbPath, dsnExtras string) (*sql.DB, error) {
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		dsn := "file:" + dbPath + dsnExtras
		return sql.Open("sqlite3", dsn)
	}

	dsn := "file:" + dbPath + dsnExtras
	db, err := sql.Open("sqlite3", dsn)
	if err == nil {
		if errPing := db.Ping(); errPing == nil {
			return db, nil
		}
		_ = db.Close()
	}

	backupPath := dbPath + ".corrupt." + time.Now().Format("20060102_150405")
	_ = os.Rename(dbPath, backupPath)
	return sql.Open("sqlite3", dsn)
}

// waitPing 在给定超时内轮询 Ping
func waitPing(db *sql.DB, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := db.Ping(); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("sqlite ping 超时")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// PutBlobSQLite 写入单条数据
func PutBlobSQLite(dbdir, bin, cacheKey string, value []byte) error {
	dbPath := getDBPath(dbdir, bin, keyLevel(cacheKey), "sqlite")
	db, err := defaultSQLiteManager.getOrOpenDB(dbPath, bin)
	if err != nil {
		return err
	}

	tableName := sanitizeTableName(bin)
	_, err = db.Exec(`
		INSERT INTO `+tableName+`(cache_key, value) VALUES(?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET value=excluded.value;
	`, cacheKey, value)
	return err
}

// PutBlobsSQLiteBatch 批量写入多条数据：在单个事务中写入同一数据库文件的所有数据
func PutBlobsSQLiteBatch(dbdir, bin string, records map[string][]byte) error {
	if len(records) == 0 {
		return nil
	}

	// 按数据库路径分组（不同层级可能在不同数据库文件）
	grouped := make(map[string]map[string][]byte)
	for cacheKey, value := range records {
		dbPath := getDBPath(dbdir, bin, keyLevel(cacheKey), "sqlite")
		if grouped[dbPath] == nil {
			grouped[dbPath] = make(map[string][]byte)
		}
		grouped[dbPath][cacheKey] = value
	}

	tableName := sanitizeTableName(bin)

	// 对每个数据库文件执行批量写入
	for dbPath, group := range grouped {
		db, err := defaultSQLiteManager.getOrOpenDB(dbPath, bin)
		if err != nil {
			return err
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO ` + tableName + `(cache_key, value) VALUES(?, ?)
			ON CONFLICT(cache_key) DO UPDATE SET value=excluded.value;
		`)
		if err != nil {
			tx.Rollback()
			return err
		}

		for cacheKey, value := range group {
			if _, err := stmt.Exec(cacheKey, value); err != nil {
				stmt.Close()
				tx.Rollback()
				return err
			}
		}

		stmt.Close()
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

// GetBlobSQLite 读取；键不存在返回 ErrNotFound
func GetBlobSQLite(dbdir, bin, cacheKey string) ([]byte, error) {
	dbPath := getDBPath(dbdir, bin, keyLevel(cacheKey), "sqlite")
	db, err := defaultSQLiteManager.getOrOpenDB(dbPath, bin)
	if err != nil {
		return nil, err
	}

	tableName := sanitizeTableName(bin)
	row := db.QueryRow(`SELECT value FROM `+tableName+` WHERE cache_key=?;`, cacheKey)
	var val []byte
	if err := row.Scan(&val); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return val, nil
}

// DeleteBlobSQLite 删除
func DeleteBlobSQLite(dbdir, bin, cacheKey string) error {
	dbPath := getDBPath(dbdir, bin, keyLevel(cacheKey), "sqlite")
	db, err := defaultSQLiteManager.getOrOpenDB(dbPath, bin)
	if err != nil {
		return err
	}

	tableName := sanitizeTableName(bin)
	_, err = db.Exec(`DELETE FROM `+tableName+` WHERE cache_key=?;`, cacheKey)
	return err
}

// CloseAllSQLite 关闭所有 SQLite 连接
func CloseAllSQLite() error {
	return defaultSQLiteManager.CloseAll()
}
