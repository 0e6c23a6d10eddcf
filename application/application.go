package application

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-live-session/internal/httpapi"
	"github.com/lk2023060901/danmu-live-session/internal/livesession"
	"github.com/lk2023060901/danmu-live-session/internal/notify"
	"github.com/lk2023060901/danmu-live-session/internal/storage/sqlite"
	zlog "github.com/lk2023060901/danmu-live-session/pkg/log"
	"github.com/lk2023060901/danmu-live-session/pkg/metrics"
	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
	zviper "github.com/lk2023060901/danmu-live-session/pkg/util/viper"
)

// Application 为直播会话服务的运行时容器，负责加载配置并组装各组件。
type Application struct {
	args    []string
	raw     *zviper.Config
	cfg     Config
	loggers map[string]*zlog.MLogger

	registry *prometheus.Registry
	store    *sqlite.Store
	hub      *notify.Hub
	engine   *livesession.Engine

	listener net.Listener
	server   *http.Server
}

// New 创建 Application，命令行参数取自 os.Args。
func New() *Application {
	return &Application{args: os.Args[1:]}
}

// Run 启动服务并阻塞到 ctx 结束，随后执行优雅关闭。
func (a *Application) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Start 加载配置、初始化日志并启动引擎与 HTTP 服务。
//
// 配置文件路径优先级（后者覆盖前者）：
//  1. 默认：./config.yaml
//  2. 环境变量：LIVESESSION_CONFIG_FILE_PATH
//  3. 命令行：--config <path> 或 --config=<path>
func (a *Application) Start(ctx context.Context) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := a.initLogging(); err != nil {
		return err
	}

	a.registry = prometheus.NewRegistry()
	metrics.Register(a.registry)

	store, err := sqlite.Open(ctx, a.cfg.Storage.SQLite)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	a.store = store

	a.hub = notify.NewHub(a.cfg.Notify.PoolSize)
	a.hub.SetLogger(a.Logger("notify"))
	a.hub.BindComponent("notify-hub")

	engine, err := livesession.New(a.cfg.LiveSession, a.store, a.hub,
		livesession.WithLogger(a.Logger("livesession")))
	if err != nil {
		a.closeStorage()
		return fmt.Errorf("create live session engine: %w", err)
	}
	a.engine = engine
	a.engine.Start(ctx)

	if err := a.serveHTTP(); err != nil {
		a.engine.Release()
		a.closeStorage()
		return err
	}
	return nil
}

func (a *Application) serveHTTP() error {
	if a.cfg.HTTP.Addr == "" {
		return nil
	}
	lis, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.HTTP.Addr, err)
	}
	a.listener = lis
	a.server = &http.Server{Handler: httpapi.NewRouter(a.engine, a.hub, a.registry, a.Logger("httpapi"))}

	go func() {
		if err := a.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("http server exited", zap.Error(err))
		}
	}()
	zlog.Info("http server listening", zap.String("addr", lis.Addr().String()))
	return nil
}

// Shutdown 依次关闭 HTTP 服务、引擎、推送中心与存储。
func (a *Application) Shutdown(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.engine != nil {
		a.engine.Release()
	}
	if err := a.closeStorage(); err != nil {
		errs = append(errs, err)
	}
	_ = zlog.Sync()
	return merr.Combine(errs...)
}

func (a *Application) closeStorage() error {
	if a.hub != nil {
		a.hub.Release()
		a.hub = nil
	}
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// Config 返回加载后的配置。
func (a *Application) Config() Config {
	return a.cfg
}

func (a *Application) Engine() *livesession.Engine {
	return a.engine
}

func (a *Application) Store() *sqlite.Store {
	return a.store
}

func (a *Application) Hub() *notify.Hub {
	return a.hub
}

// Addr 返回 HTTP 服务实际监听的地址，未启动时为空。
func (a *Application) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Logger 返回配置中声明的模块日志；未声明时回退到带模块名的全局日志。
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return zlog.With(zlog.FieldModule(name))
}

func (a *Application) loadConfig() error {
	configPath := zlog.GetenvDefault("LIVESESSION_CONFIG_FILE_PATH", "./config.yaml")

	args := a.args
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return fmt.Errorf("missing value after --config")
			}
			configPath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			if val := strings.TrimPrefix(arg, "--config="); val != "" {
				configPath = val
			}
		}
	}

	raw := zviper.New()
	for key, value := range defaults {
		raw.SetDefault(key, value)
	}
	if err := raw.LoadFile(configPath); err != nil {
		return fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}
	raw.BindEnvPrefix(envPrefix)

	var cfg Config
	if err := raw.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config file %q: %w", configPath, err)
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	a.raw = raw
	a.cfg = cfg
	return nil
}

func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	return a.initModuleLoggersFromConfig()
}

// initGlobalLoggerFromEnv 根据 LIVESESSION_LOG_* 环境变量配置全局日志。
//
//   - LIVESESSION_LOG_ENABLE：为 "1"/"true" 时启用输出，否则丢弃；
//   - LIVESESSION_LOG_LEVEL：日志级别，默认 info；
//   - LIVESESSION_LOG_STDOUT：是否输出到标准输出，默认 false；
//   - LIVESESSION_LOG_FILE_DIR：日志目录；
//   - LIVESESSION_LOG_FILE：日志文件名，留空表示不写文件；
//   - LIVESESSION_LOG_FORMAT：text 或 json，默认 text。
func (a *Application) initGlobalLoggerFromEnv() error {
	enabled := zlog.GetenvBool("LIVESESSION_LOG_ENABLE", false)

	cfg := &zlog.Config{
		Level:               zlog.GetenvDefault("LIVESESSION_LOG_LEVEL", "info"),
		Format:              zlog.GetenvDefault("LIVESESSION_LOG_FORMAT", "text"),
		Stdout:              zlog.GetenvBool("LIVESESSION_LOG_STDOUT", false),
		DisableErrorVerbose: true,
		File: zlog.FileLogConfig{
			RootPath: zlog.GetenvDefault("LIVESESSION_LOG_FILE_DIR", ""),
			Filename: zlog.GetenvDefault("LIVESESSION_LOG_FILE", ""),
		},
	}
	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger from env: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig 按配置文件 logging 节创建模块日志。
// 配置文件中出现过的项可用 LIVESESSION_LOGGING_<模块>_<项> 覆盖，例如 LIVESESSION_LOGGING_HTTPAPI_LEVEL。
//
// 示例：
//
//	logging:
//	  livesession:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: livesession.log
func (a *Application) initModuleLoggersFromConfig() error {
	var section struct {
		Logging map[string]zlog.Config `mapstructure:"logging"`
	}
	if err := a.raw.Unmarshal(&section); err != nil {
		return err
	}
	raw := section.Logging
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.WithOptions(zap.AddCallerSkip(-1)).With(zlog.FieldModule(name))}
	}
	return nil
}
