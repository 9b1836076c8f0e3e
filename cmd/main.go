// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"parcel-api/internal/api"
	"parcel-api/internal/catalog"
	"parcel-api/internal/geom"
	"parcel-api/internal/logger"
	"parcel-api/internal/metrics"
	"parcel-api/internal/middleware"
	"parcel-api/internal/parcel"
	"parcel-api/internal/pkk"
	"parcel-api/internal/tiles"
	"parcel-api/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")
	apiBase := utils.EnvString("API_BASE", "/api")
	l.Debug("config_api_base", "base", apiBase)

	target, err := geom.ParseCRS(os.Getenv("PARCEL_CRS"))
	if err != nil {
		l.Error("config_crs_error", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.OpenFromEnv(ctx, l)
	if err != nil {
		l.Error("catalog_open_error", "err", err)
		os.Exit(1)
	}
	if cat != nil {
		defer cat.Close()
	}

	meta := pkk.NewClientFromEnv(l)
	fetcher := tiles.NewFetcherFromEnv(utils.EnvString("TILE_BASE_URL", meta.BaseURL), pkk.TransportFromEnv(), l)
	p := parcel.NewPipeline(meta, fetcher, cat, l)
	p.Tolerance = utils.EnvNonNegFloat("PARCEL_EPSILON", parcel.DefaultTolerance)
	p.Buffer = utils.EnvNonNegFloat("PARCEL_BUFFER", parcel.DefaultBuffer)
	p.WorkDir = utils.EnvString("WORK_DIR", "data")
	l.Info("pipeline_ready", "pkk", meta.BaseURL, "crs", target, "epsilon", p.Tolerance, "buffer", p.Buffer, "work_dir", p.WorkDir)

	apiMux := api.BuildRoutes(p, api.Options{
		Target:   target,
		Attempts: utils.EnvInt("PARCEL_REPEAT", 1),
		Delay:    utils.EnvMillis("PARCEL_DELAY_MS", time.Second),
		Timeout:  utils.EnvMillis("PARCEL_REQUEST_TIMEOUT_MS", 2*time.Minute),
		Logger:   l,
	})
	mux := http.NewServeMux()
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())

	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	addr := utils.EnvString("ADDR", ":8080")
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()
	l.Info("listening", "addr", addr)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("listen_error", "err", err)
		os.Exit(1)
	}
	l.Info("shutdown_ok")
}
