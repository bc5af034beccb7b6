package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// HeaderRequestID 携带请求 ID；访客或上游负载均衡器传入合法 UUID 时沿用。
const HeaderRequestID = "X-Request-ID"

// DiagnosticsPrefix 下的路径不参与站点路由，由 routes 包注册的管理接口处理。
const DiagnosticsPrefix = "/-/"

// ProxyHandler serves a page for the resolved site, from cache or origin.
type ProxyHandler interface {
	Handle(fiber.Ctx, *SiteRoute) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx, *SiteRoute) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx, route *SiteRoute) error {
	return f(c, route)
}

// AppOptions 汇总 NewApp 的依赖。
type AppOptions struct {
	Logger     *logrus.Logger
	Site       *Site
	Proxy      ProxyHandler
	ListenPort int
}

type localsKey int

const (
	localsRoute localsKey = iota
	localsRequestID
)

// NewApp 构建 Fiber 应用：recover → 请求 ID + 站点解析 → 页面处理器。
// /-/ 前缀的请求跳过站点解析，交给后注册的管理路由。
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Site == nil {
		return nil, errors.New("site is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		ErrorHandler:  jsonErrorHandler(opts.Logger),
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())
	app.Use(siteMiddleware(opts))

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(c.Path()) {
			return c.Next()
		}
		route := routeFromContext(c)
		if route == nil {
			return renderHostInvalid(c, opts.Logger, HostHeader(c), opts.ListenPort)
		}
		return opts.Proxy.Handle(c, route)
	})

	return app, nil
}

func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := strings.TrimSpace(c.Get(HeaderRequestID))
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		c.Locals(localsRequestID, reqID)
		c.Set(HeaderRequestID, reqID)
		return c.Next()
	}
}

// siteMiddleware 基于 HostOverride 或 Host 头计算站点路由，非法 Host 直接返回 400。
func siteMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		if isDiagnosticsPath(c.Path()) {
			return c.Next()
		}
		rawHost := HostHeader(c)
		route, ok := opts.Site.Lookup(rawHost)
		if !ok {
			return renderHostInvalid(c, opts.Logger, rawHost, opts.ListenPort)
		}
		c.Locals(localsRoute, route)
		return c.Next()
	}
}

func renderHostInvalid(c fiber.Ctx, logger *logrus.Logger, host string, port int) error {
	logger.WithFields(logrus.Fields{
		"action":     "host_lookup",
		"host":       host,
		"port":       port,
		"request_id": RequestID(c),
	}).Warn("host invalid")

	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "host_invalid",
	})
}

// jsonErrorHandler 把未处理的错误统一渲染为 {"error": ...}，5xx 记录日志。
func jsonErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		message := "internal_error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			message = fe.Message
		}
		if status >= fiber.StatusInternalServerError {
			logger.WithError(err).WithFields(logrus.Fields{
				"action":     "request_error",
				"uri":        c.OriginalURL(),
				"request_id": RequestID(c),
			}).Error("request failed")
		}
		return c.Status(status).JSON(fiber.Map{"error": message})
	}
}

func routeFromContext(c fiber.Ctx) *SiteRoute {
	route, _ := c.Locals(localsRoute).(*SiteRoute)
	return route
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	reqID, _ := c.Locals(localsRequestID).(string)
	return reqID
}

// HostHeader returns the raw Host header of the request.
func HostHeader(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return strings.TrimSpace(string(raw))
	}
	return strings.TrimSpace(c.Hostname())
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, DiagnosticsPrefix)
}
