// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"tinshift/internal/api"
	"tinshift/internal/cache"
	"tinshift/internal/logger"
	"tinshift/internal/metrics"
	"tinshift/internal/middleware"
	"tinshift/internal/migrate"
	"tinshift/internal/quadtree"
	"tinshift/internal/registry"
	"tinshift/internal/store"
	"tinshift/internal/utils"

	"github.com/joho/godotenv"
)

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			return n
		}
	}
	return def
}

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")
	apiBase := os.Getenv("API_BASE")
	if apiBase == "" {
		apiBase = "/api"
	}
	l.Debug("config_api_base", "base", apiBase)
	source := os.Getenv("TINSHIFT_SOURCE")
	if source == "" {
		source = "dir"
	}
	dataDir := os.Getenv("TINSHIFT_DATA_DIR")
	if dataDir == "" {
		dataDir = filepath.Join("data", "tinshift")
	}
	manifest := os.Getenv("TINSHIFT_MANIFEST")
	opt := registry.Options{Warm: os.Getenv("TINSHIFT_WARM") == "true"}
	if s := os.Getenv("TINSHIFT_SPLIT_RATIO"); s != "" {
		if f, e := strconv.ParseFloat(s, 64); e == nil {
			opt.Tree.SplitRatio = f
		}
	}
	opt.Tree.BucketCapacity = envInt("TINSHIFT_BUCKET_CAPACITY", quadtree.DefaultBucketCapacity)
	l.Debug("config_source", "source", source, "dir", dataDir, "manifest", manifest, "warm", opt.Warm)

	// 数据库：从库加载数据集或 PG_ENABLED=true 时启用（统计持久化）
	var (
		db *sql.DB
		st *store.Store
	)
	if source == "db" || os.Getenv("PG_ENABLED") == "true" {
		var err error
		db, err = utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			l.Error("db_ping_error", "err", err)
		} else {
			l.Info("db_ping_ok")
		}
		if err := migrate.EnsureSchema(db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		st = store.AttachDB(db)
	} else {
		l.Info("db_disabled")
	}

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		if err := rc.Ping(context.Background()).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
	}

	lru := cache.NewLRU(envInt("TINSHIFT_LRU_SIZE", 4096), envInt("TINSHIFT_CACHE_TTL_S", 3600))
	reg := registry.New()
	load := func(ctx context.Context) (map[string]*registry.Entry, error) {
		switch source {
		case "db":
			return registry.LoadStore(ctx, st, opt)
		case "manifest":
			if manifest == "" {
				return nil, errors.New("TINSHIFT_MANIFEST not set")
			}
			return registry.LoadManifest(manifest, opt)
		case "dir":
			return registry.LoadDir(dataDir, opt)
		}
		return nil, fmt.Errorf("unknown TINSHIFT_SOURCE %q", source)
	}
	reload := func(ctx context.Context) (int, error) {
		t0 := time.Now()
		m, err := load(ctx)
		if err != nil {
			metrics.ReloadsTotal.WithLabelValues("error").Inc()
			return 0, err
		}
		reg.Replace(m)
		lru.Purge()
		metrics.ReloadsTotal.WithLabelValues("ok").Inc()
		l.Info("registry_loaded", "datasets", len(m), "names", reg.Names(), "ms", time.Since(t0).Milliseconds())
		return len(m), nil
	}
	if _, err := reload(context.Background()); err != nil {
		l.Error("registry_load_error", "err", err)
	}

	var stats api.StatsStore
	if st != nil {
		stats = st
	}
	mux := http.NewServeMux()
	apiMux := api.BuildRoutes(reg, stats, rc, lru)
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())
	mux.Handle(apiBase+"/reload", api.ReloadHandler(os.Getenv("ADMIN_TOKEN"), reload))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if reg.Len() == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		l.Info("shutdown")
		_ = s.Shutdown(sctx)
	}()

	var err error
	if os.Getenv("TLS_ENABLE") == "true" {
		certPath := os.Getenv("TLS_CERT_PATH")
		keyPath := os.Getenv("TLS_KEY_PATH")
		if certPath == "" {
			certPath = filepath.Join("data", "certs", "server.crt")
		}
		if keyPath == "" {
			keyPath = filepath.Join("data", "certs", "server.key")
		}
		if err := utils.EnsureSelfSignedCert(certPath, keyPath, "tinshift.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		err = s.ListenAndServeTLS(certPath, keyPath)
	} else {
		l.Info("listening", "addr", addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("listen_error", "err", err)
		os.Exit(1)
	}
}
