package Store

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
)

// getDBPath 根据缓存槽名与瓦片层级生成数据库文件路径
// 参数:
//
//	dbdir: 数据库根目录
//	bin: 缓存槽名（如 elevation）
//	level: 瓦片层级(用于确定存储分片)
//	storageType: 存储类型("sqlite" 或 "bbolt")
//
// 返回:
//
//	string: 完整的数据库文件路径
func getDBPath(dbdir string, bin string, level int, storageType string) string {
	var subDir string
	switch storageType {
	case "sqlite":
		subDir = "sqlite"
	case "bbolt":
		subDir = "bbolt"
	default:
		subDir = storageType
	}

	// 按层级分片: 0-8层数据量小,统一存放在基础文件;
	// 9-12层与13-16层各归入一个分组目录; 17+层每层独立目录
	switch {
	case level <= 8:
		pathDir := path.Join(dbdir, subDir, bin)
		_ = os.MkdirAll(pathDir, 0o755)
		return path.Join(pathDir, "base.g3db")
	case level <= 12:
		pathDir := path.Join(dbdir, subDir, bin, "8")
		_ = os.MkdirAll(pathDir, 0o755)
		return path.Join(pathDir, levelFileName(level))
	case level <= 16:
		pathDir := path.Join(dbdir, subDir, bin, "12")
		_ = os.MkdirAll(pathDir, 0o755)
		return path.Join(pathDir, levelFileName(level))
	default:
		pathDir := path.Join(dbdir, subDir, bin, strconv.Itoa(level))
		_ = os.MkdirAll(pathDir, 0o755)
		return path.Join(pathDir, levelFileName(level))
	}
}

func levelFileName(level int) string {
	return fmt.Sprintf("L%02d.g3db", level)
}

// keyLevel 从缓存键（"level/x/y_签名" 格式）解析瓦片层级；
// 解析失败返回 0，落入基础分片。
func keyLevel(key string) int {
	i := strings.IndexByte(key, '/')
	if i <= 0 {
		return 0
	}
	lvl, err := strconv.Atoi(key[:i])
	if err != nil || lvl < 0 {
		return 0
	}
	return lvl
}

// GetDBPath 暴露 getDBPath 供外部使用
func GetDBPath(dbdir string, bin string, level int, storageType string) string {
	return getDBPath(dbdir, bin, level, storageType)
}
