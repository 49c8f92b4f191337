package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// Logger 定义日志记录器的接口
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Level 日志级别
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel 解析级别名称，未知名称按 info 处理
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var (
	globalLogger Logger
	loggerOnce   sync.Once
	loggerMu     sync.RWMutex
)

// SetGlobalLogger 设置全局日志记录器；传 nil 退回默认实现
func SetGlobalLogger(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if l == nil {
		globalLogger = &ConsoleLogger{level: LevelInfo}
	} else {
		globalLogger = l
	}
}

// GetGlobalLogger 获取全局日志记录器（未设置时惰性创建默认实现）
func GetGlobalLogger() Logger {
	loggerOnce.Do(func() {
		if globalLogger == nil {
			globalLogger = &ConsoleLogger{level: LevelInfo}
		}
	})
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return globalLogger
}

func Debug(format string, args ...interface{}) { GetGlobalLogger().Debug(format, args...) }
func Info(format string, args ...interface{})  { GetGlobalLogger().Info(format, args...) }
func Warn(format string, args ...interface{})  { GetGlobalLogger().Warn(format, args...) }
func Error(format string, args ...interface{}) { GetGlobalLogger().Error(format, args...) }

// NopLogger 空日志记录器
type NopLogger struct{}

func (l *NopLogger) Debug(format string, args ...interface{}) {}
func (l *NopLogger) Info(format string, args ...interface{})  {}
func (l *NopLogger) Warn(format string, args ...interface{})  {}
func (l *NopLogger) Error(format string, args ...interface{}) {}

// ConsoleLogger 控制台日志记录器，按级别过滤
type ConsoleLogger struct {
	level Level
}

// NewConsoleLogger 创建控制台日志记录器
func NewConsoleLogger(level Level) *ConsoleLogger {
	return &ConsoleLogger{level: level}
}

func (l *ConsoleLogger) Debug(format string, args ...interface{}) {
	if l.level <= LevelDebug {
		log.Printf("[DEBUG] "+format, args...)
	}
}
func (l *ConsoleLogger) Info(format string, args ...interface{}) {
	if l.level <= LevelInfo {
		log.Printf("[INFO] "+format, args...)
	}
}
func (l *ConsoleLogger) Warn(format string, args ...interface{}) {
	if l.level <= LevelWarn {
		log.Printf("[WARN] "+format, args...)
	}
}
func (l *ConsoleLogger) Error(format string, args ...interface{}) {
	if l.level <= LevelError {
		log.Printf("[ERROR] "+format, args...)
	}
}

// FileLogger 文件日志记录器
type FileLogger struct {
	file   *os.File
	logger *log.Logger
	level  Level
}

// NewFileLogger 创建文件日志记录器（追加写入）
func NewFileLogger(filename string, level Level) (*FileLogger, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("无法打开日志文件 %s: %w", filename, err)
	}
	return &FileLogger{
		file:   file,
		logger: log.New(file, "", log.LstdFlags),
		level:  level,
	}, nil
}

func (l *FileLogger) Debug(format string, args ...interface{}) {
	if l.level <= LevelDebug {
		l.logger.Printf("[DEBUG] "+format, args...)
	}
}
func (l *FileLogger) Info(format string, args ...interface{}) {
	if l.level <= LevelInfo {
		l.logger.Printf("[INFO] "+format, args...)
	}
}
func (l *FileLogger) Warn(format string, args ...interface{}) {
	if l.level <= LevelWarn {
		l.logger.Printf("[WARN] "+format, args...)
	}
}
func (l *FileLogger) Error(format string, args ...interface{}) {
	if l.level <= LevelError {
		l.logger.Printf("[ERROR] "+format, args...)
	}
}

// Close 关闭底层文件
func (l *FileLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// MultiLogger 将日志同时分发到多个记录器
type MultiLogger struct{ loggers []Logger }

// NewMultiLogger 创建多路日志记录器
func NewMultiLogger(loggers ...Logger) *MultiLogger { return &MultiLogger{loggers: loggers} }

func (l *MultiLogger) Debug(format string, args ...interface{}) {
	for _, lg := range l.loggers {
		lg.Debug(format, args...)
	}
}
func (l *MultiLogger) Info(format string, args ...interface{}) {
	for _, lg := range l.loggers {
		lg.Info(format, args...)
	}
}
func (l *MultiLogger) Warn(format string, args ...interface{}) {
	for _, lg := range l.loggers {
		lg.Warn(format, args...)
	}
}
func (l *MultiLogger) Error(format string, args ...interface{}) {
	for _, lg := range l.loggers {
		lg.Error(format, args...)
	}
}
