package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/static-hub/static-hub/internal/config"
	"github.com/static-hub/static-hub/internal/edgerules"
	"github.com/static-hub/static-hub/internal/invalidation"
	"github.com/static-hub/static-hub/internal/logging"
	"github.com/static-hub/static-hub/internal/proxy"
	"github.com/static-hub/static-hub/internal/server"
	"github.com/static-hub/static-hub/internal/server/routes"
	"github.com/static-hub/static-hub/internal/version"
)

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	switch opts.command {
	case cmdHelp:
		return 0
	case cmdVersion:
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.command == cmdCheckConfig {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["origin"] = cfg.Global.Origin
		fields["cache_root"] = cfg.CacheRoot()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	if opts.command == cmdEdgeRules && !opts.writeRules {
		return printEdgeRules(cfg, opts.dialect)
	}

	eng, err := newEngine(cfg, logger)
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		return 1
	}

	switch opts.command {
	case cmdSweep:
		return runSweep(eng)
	case cmdPurge:
		return runPurge(eng, opts.purgeURL)
	case cmdEdgeRules:
		if err := writeEdgeRules(cfg, eng.settings.Load(), logger); err != nil {
			fmt.Fprintf(stdErr, "写入边缘规则失败: %v\n", err)
			return 1
		}
		return 0
	}

	fields := logging.BaseFields("startup", opts.configPath)
	for k, v := range cfg.Summary() {
		fields[k] = v
	}
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := serve(opts.configPath, eng); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

func runSweep(eng *engine) int {
	result := eng.sweeper.Tick()
	fmt.Fprintf(stdOut, "scanned=%d removed=%d failures=%d\n", result.Scanned, result.Removed, len(result.Failures))
	if len(result.Failures) > 0 {
		return 1
	}
	return 0
}

func runPurge(eng *engine, target string) int {
	if target == "" {
		result := eng.invalidator.ClearAll()
		fmt.Fprintf(stdOut, "files_removed=%d dirs_removed=%d failures=%d\n", result.FilesRemoved, result.DirsRemoved, len(result.Failures))
		if len(result.Failures) > 0 {
			return 1
		}
		return 0
	}

	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		fmt.Fprintf(stdErr, "无效的 URL: %q\n", target)
		return 2
	}
	uri := u.EscapedPath()
	if uri == "" {
		uri = "/"
	}
	if err := eng.invalidator.InvalidateURL(context.Background(), u.Host, uri); err != nil {
		fmt.Fprintf(stdErr, "删除缓存失败: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdOut, "purged %s\n", target)
	return 0
}

// printEdgeRules 把规则渲染到标准输出；dialect 为空时输出全部方言。
func printEdgeRules(cfg *config.Config, dialect string) int {
	keys := edgerules.Keys()
	if dialect != "" {
		keys = []string{dialect}
	}
	in := edgerules.Input{
		Settings:    cfg.Settings(),
		CachePrefix: cfg.Global.EdgeCachePrefix,
		Origin:      cfg.Global.Origin,
	}
	for _, key := range keys {
		out, err := edgerules.Render(key, in)
		if err != nil {
			fmt.Fprintf(stdErr, "渲染边缘规则失败: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdOut, out)
	}
	return 0
}

// serve 启动后台任务（事件总线、过期清理、配置监听）并阻塞在 HTTP 监听上，收到退出信号后优雅关闭。
func serve(configPath string, eng *engine) error {
	cfg, logger := eng.cfg, eng.logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := invalidation.NewBus(eng.dispatcher, eventQueueSize)
	go bus.Run(ctx)
	go eng.sweeper.Run(ctx)

	_ = writeEdgeRules(cfg, eng.settings.Load(), logger)

	watcher := config.NewWatcher(configPath, cfg, eng.settings, logger)
	watcher.OnReload(eng.applyReload)
	watcher.Start()

	site, err := server.NewSite(cfg)
	if err != nil {
		return err
	}
	handler := proxy.NewHandler(proxy.Options{
		Client:        server.NewOriginClient(cfg),
		Logger:        logger,
		Store:         eng.store,
		Policy:        eng.policy,
		MarkersHolder: eng.markers,
		Pipeline:      eng.pipeline,
		Settings:      eng.settings,
	})

	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Site:       site,
		Proxy:      handler,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterAdminRoutes(app, routes.AdminOptions{
		Token:       cfg.Global.AdminToken,
		Logger:      logger,
		Bus:         bus,
		Invalidator: eng.invalidator,
		Site:        site,
		EdgeInput: func() edgerules.Input {
			return edgeRules(eng.running(watcher.Current()), logger).Input(eng.settings.Load())
		},
		Summary: func() map[string]any {
			return eng.summary(watcher.Current())
		},
	})

	go func() {
		<-ctx.Done()
		logger.WithField("action", "shutdown").Info("收到退出信号，停止 HTTP 服务")
		if err := app.Shutdown(); err != nil {
			logger.WithError(err).WithField("action", "shutdown").Warn("HTTP 服务关闭失败")
		}
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
