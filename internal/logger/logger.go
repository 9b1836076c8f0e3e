// 包 logger：统一初始化与获取日志器；各组件可显式注入 *slog.Logger，未注入时回退到进程级日志器
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
)

// 文档注释：按环境变量构建处理器
// 背景：LOG_LEVEL 取 debug/info/warn/error，LOG_FORMAT 取 text/json，LOG_SOURCE=true 时附带源码位置。
// 约束：输出目标固定为标准错误
func handlerFromEnv(w io.Writer) slog.Handler {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl, AddSource: os.Getenv("LOG_SOURCE") == "true"}
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Setup：初始化默认日志器并设为 slog 全局默认
func Setup() *slog.Logger {
	l := slog.New(handlerFromEnv(os.Stderr))
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l)
	return l
}

// L：获取默认日志器，未初始化时回退到 Setup
func L() *slog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if l == nil {
		return Setup()
	}
	return l
}

// Or 返回 l，l 为空时返回默认日志器
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return L()
}

// Discard 返回丢弃全部输出的日志器，供测试注入
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
