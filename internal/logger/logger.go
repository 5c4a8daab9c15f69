// 包 logger：进程级日志器，按环境变量控制级别与格式；求值核心、服务与命令行工具共用
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// parseLevel 解析 LOG_LEVEL，未知值回退到 info
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Setup：以标准错误为输出初始化默认日志器
// 背景：命令行工具的标准输出承载变换结果，日志必须走标准错误以免污染数据流
func Setup() *slog.Logger { return SetupWriter(os.Stderr) }

// SetupWriter：指定输出目标初始化默认日志器（测试中可传入缓冲区）
// 约束：LOG_FORMAT=json 时输出 JSON，否则为文本；所有记录附带 app=tinshift
func SetupWriter(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}
	var h slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	l := slog.New(h).With("app", "tinshift")
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	return l
}

// L：获取默认日志器，未初始化时回退到 Setup
func L() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		return Setup()
	}
	return l
}
