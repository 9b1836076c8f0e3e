package utils

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString 返回环境变量，未设置或为空时返回 def
func EnvString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// EnvInt：解析失败或非正数时回退到 def
func EnvInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 {
			return n
		}
	}
	return def
}

// EnvFloat：解析失败或非正数时回退到 def
func EnvFloat(name string, def float64) float64 {
	if v := os.Getenv(name); v != "" {
		if f, e := strconv.ParseFloat(v, 64); e == nil && f > 0 {
			return f
		}
	}
	return def
}

// EnvNonNegFloat：允许 0，解析失败或负数时回退到 def
func EnvNonNegFloat(name string, def float64) float64 {
	if v := os.Getenv(name); v != "" {
		if f, e := strconv.ParseFloat(v, 64); e == nil && f >= 0 {
			return f
		}
	}
	return def
}

func EnvBool(name string, def bool) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return def
}

// EnvMillis 将毫秒数环境变量转为时长
func EnvMillis(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}

// EnvInts 解析逗号分隔的整数列表，任一项非法时返回 def
func EnvInts(name string, def []int) []int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	var out []int
	for _, s := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return def
		}
		out = append(out, n)
	}
	return out
}
