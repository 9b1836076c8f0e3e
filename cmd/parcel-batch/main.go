package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"parcel-api/internal/catalog"
	"parcel-api/internal/geom"
	"parcel-api/internal/logger"
	"parcel-api/internal/parcel"
	"parcel-api/internal/pkk"
	"parcel-api/internal/tiles"
	"parcel-api/internal/utils"
)

// 文档注释：每分钟配额限流
// 背景：元数据服务对单一出口有频率限制；配额按自然分钟计算，用尽后休眠到下一分钟开始。
// 约束：capacity <= 0 表示不限流；now 为空时使用 time.Now。
type minuteLimiter struct {
	capacity int
	now      func() time.Time

	mu     sync.Mutex
	window time.Time
	used   int
}

// reserve 占用一个配额；配额用尽时返回距下一分钟的等待时长
func (ml *minuteLimiter) reserve() time.Duration {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if ml.capacity <= 0 {
		return 0
	}
	now := time.Now()
	if ml.now != nil {
		now = ml.now()
	}
	if w := now.Truncate(time.Minute); !w.Equal(ml.window) {
		ml.window = w
		ml.used = 0
	}
	if ml.used < ml.capacity {
		ml.used++
		return 0
	}
	return ml.window.Add(time.Minute).Sub(now)
}

func (ml *minuteLimiter) wait(ctx context.Context) error {
	for {
		d := ml.reserve()
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// limitedResolver 仅对元数据请求限流，快照命中不消耗配额
type limitedResolver struct {
	inner   parcel.Resolver
	limiter *minuteLimiter
}

func (r *limitedResolver) Resolve(ctx context.Context, at pkk.AreaType, code string, target geom.CRS) (*pkk.Result, error) {
	if err := r.limiter.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Resolve(ctx, at, code, target)
}

// readCodes 逐行读取编号，跳过空行与 # 注释
func readCodes(rd io.Reader) ([]string, error) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 1024), 1024*1024)
	var out []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

type outputs struct {
	dir        string
	withAttrs  bool
	withCenter bool
	mu         sync.Mutex
}

func writeJSONFile(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// write 输出 {file_name}.geojson，可选 {file_name}_center.geojson；几何为空时报告失败
func (o *outputs) write(rec *parcel.Record) (bool, error) {
	fc := rec.FeatureCollection(o.withAttrs)
	if fc == nil {
		return false, nil
	}
	if err := writeJSONFile(filepath.Join(o.dir, rec.FileName()+".geojson"), fc); err != nil {
		return false, err
	}
	if o.withCenter {
		if c := rec.CenterFeatureCollection(o.withAttrs); c != nil {
			if err := writeJSONFile(filepath.Join(o.dir, rec.FileName()+"_center.geojson"), c); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

func (o *outputs) fail(code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(o.dir, "failed.txt"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(code + "\n")
	return err
}

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Info("parcel_batch_start")

	at, err := pkk.ParseAreaType(os.Getenv("PARCEL_TYPE"))
	if err != nil {
		l.Error("config_type_error", "err", err)
		os.Exit(1)
	}
	target, err := geom.ParseCRS(os.Getenv("PARCEL_CRS"))
	if err != nil {
		l.Error("config_crs_error", "err", err)
		os.Exit(1)
	}
	mode := parcel.ModePolygon
	if utils.EnvBool("PARCEL_CENTER_ONLY", false) {
		mode = parcel.ModePoint
	}
	workers := utils.EnvInt("PARCEL_WORKERS", 4)
	ratePerMin := utils.EnvInt("PARCEL_RATE_LIMIT_PER_MIN", 60)
	attempts := utils.EnvInt("PARCEL_REPEAT", 3)
	delay := utils.EnvMillis("PARCEL_DELAY_MS", time.Second)
	out := &outputs{
		dir:        utils.EnvString("OUTPUT_DIR", "output"),
		withAttrs:  utils.EnvBool("PARCEL_WITH_ATTRS", false),
		withCenter: utils.EnvBool("PARCEL_WITH_CENTER", false),
	}
	if err := os.MkdirAll(out.dir, 0o755); err != nil {
		l.Error("output_dir_error", "err", err)
		os.Exit(1)
	}

	// 输入源：文件或标准输入
	var codes []string
	if inPath := os.Getenv("PARCEL_INPUT_FILE"); inPath != "" {
		f, e := os.Open(inPath)
		if e != nil {
			l.Error("input_open_error", "err", e)
			os.Exit(1)
		}
		codes, err = readCodes(f)
		f.Close()
	} else {
		codes, err = readCodes(os.Stdin)
	}
	if err != nil {
		l.Error("input_read_error", "err", err)
	}

	ctx := context.Background()
	cat, err := catalog.OpenFromEnv(ctx, l)
	if err != nil {
		l.Error("catalog_open_error", "err", err)
		os.Exit(1)
	}
	meta := pkk.NewClientFromEnv(l)
	fetcher := tiles.NewFetcherFromEnv(utils.EnvString("TILE_BASE_URL", meta.BaseURL), pkk.TransportFromEnv(), l)
	p := parcel.NewPipeline(&limitedResolver{inner: meta, limiter: &minuteLimiter{capacity: ratePerMin}}, fetcher, cat, l)
	p.Tolerance = utils.EnvNonNegFloat("PARCEL_EPSILON", parcel.DefaultTolerance)
	p.Buffer = utils.EnvNonNegFloat("PARCEL_BUFFER", parcel.DefaultBuffer)
	p.WorkDir = utils.EnvString("WORK_DIR", "data")

	// 任务派发
	jobs := make(chan string, workers*4)
	var wg sync.WaitGroup
	var mu sync.Mutex
	okCount, failCount := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for code := range jobs {
				rec, err := p.RunWithRetry(ctx, parcel.Request{Code: code, AreaType: at, Target: target, Mode: mode}, attempts, delay)
				ok := false
				switch {
				case errors.Is(err, pkk.ErrTimeout):
					l.Warn("parcel_batch_timeout", "code", code, "worker", id)
				case err != nil:
					l.Warn("parcel_batch_error", "code", code, "worker", id, "err", err)
				default:
					ok, err = out.write(rec)
					if err != nil {
						l.Error("parcel_batch_write_error", "code", code, "err", err)
					} else if !ok {
						l.Info("parcel_batch_empty", "code", code)
					}
				}
				mu.Lock()
				if ok {
					okCount++
				} else {
					failCount++
				}
				mu.Unlock()
				if !ok {
					if err := out.fail(code); err != nil {
						l.Error("failed_list_write_error", "err", err)
					}
				} else {
					l.Debug("parcel_batch_ok", "code", code, "worker", id)
				}
			}
		}(i)
	}
	for _, c := range codes {
		jobs <- c
	}
	close(jobs)
	wg.Wait()
	if cat != nil {
		_ = cat.Close()
	}
	l.Info("parcel_batch_done", "total", len(codes), "ok", okCount, "failed", failCount)
}
