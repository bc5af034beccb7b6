package routes

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/static-hub/static-hub/internal/cache"
	"github.com/static-hub/static-hub/internal/edgerules"
	"github.com/static-hub/static-hub/internal/invalidation"
	"github.com/static-hub/static-hub/internal/server"
	"github.com/static-hub/static-hub/internal/version"
)

// TokenHeader 携带管理接口令牌。
const TokenHeader = "X-Static-Hub-Token"

// AdminOptions 汇总管理接口依赖。Token 为空时管理接口不注册。
type AdminOptions struct {
	Token       string
	Logger      *logrus.Logger
	Bus         *invalidation.Bus
	Invalidator *invalidation.Invalidator
	Site        *server.Site
	// EdgeInput 返回基于当前设置快照的渲染输入。
	EdgeInput func() edgerules.Input
	// Summary 返回 /-/status 展示的配置摘要。
	Summary func() map[string]any
}

// RegisterAdminRoutes 暴露 /-/status 诊断接口，以及受令牌保护的事件、清理与边缘规则接口。
func RegisterAdminRoutes(app *fiber.App, opts AdminOptions) {
	if app == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"name":    version.Name,
			"version": version.Full(),
			"admin":   opts.Token != "",
		}
		if opts.Summary != nil {
			payload["config"] = opts.Summary()
		}
		if opts.Invalidator != nil {
			payload["cache_root"] = opts.Invalidator.Root()
		}
		return c.JSON(payload)
	})

	if strings.TrimSpace(opts.Token) == "" {
		return
	}

	guard := requireToken(opts.Token)
	app.Post("/-/events", guard, func(c fiber.Ctx) error {
		return handleEvent(c, opts)
	})
	app.Post("/-/purge", guard, func(c fiber.Ctx) error {
		return handlePurge(c, opts)
	})
	app.Get("/-/edge-rules/:dialect", guard, func(c fiber.Ctx) error {
		return handleEdgeRules(c, opts)
	})
}

func requireToken(token string) fiber.Handler {
	expected := []byte(token)
	return func(c fiber.Ctx) error {
		provided := []byte(c.Get(TokenHeader))
		if subtle.ConstantTimeCompare(provided, expected) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "admin_token_invalid"})
		}
		return c.Next()
	}
}

func handleEvent(c fiber.Ctx, opts AdminOptions) error {
	var event invalidation.Event
	if err := json.Unmarshal(c.Body(), &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "event_malformed"})
	}
	if err := event.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "event_unknown", "type": event.Kind})
	}

	if opts.Bus != nil {
		if err := opts.Bus.Publish(event); err != nil {
			if errors.Is(err, invalidation.ErrBusFull) {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "event_queue_full"})
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": true, "type": event.Kind})
	}

	flushed := false
	if opts.Invalidator != nil {
		flushed = opts.Invalidator.OnContentChange(event)
	}
	return c.JSON(fiber.Map{"queued": false, "flushed": flushed, "type": event.Kind})
}

func handlePurge(c fiber.Ctx, opts AdminOptions) error {
	if opts.Invalidator == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "invalidator_unavailable"})
	}

	target := strings.TrimSpace(c.Query("url"))
	if target == "" {
		result := opts.Invalidator.ClearAll()
		return c.JSON(fiber.Map{
			"scope":         "all",
			"files_removed": result.FilesRemoved,
			"dirs_removed":  result.DirsRemoved,
			"failures":      len(result.Failures),
		})
	}

	host, uri, err := splitPurgeTarget(target, server.HostHeader(c), opts.Site)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "purge_url_invalid"})
	}
	if err := opts.Invalidator.InvalidateURL(c.Context(), host, uri); err != nil {
		status := fiber.StatusInternalServerError
		code := "purge_failed"
		if errors.Is(err, cache.ErrInvalidKey) {
			status, code = fiber.StatusBadRequest, "purge_url_invalid"
		}
		if opts.Logger != nil {
			opts.Logger.WithError(err).WithFields(logrus.Fields{
				"action": "purge",
				"host":   host,
				"uri":    uri,
			}).Warn("purge_url_failed")
		}
		return c.Status(status).JSON(fiber.Map{"error": code})
	}
	return c.JSON(fiber.Map{"scope": "url", "host": host, "uri": uri})
}

// splitPurgeTarget 接受绝对 URL 或以 / 开头的路径；路径形式使用请求所在站点的 Host。
func splitPurgeTarget(target, hostHeader string, site *server.Site) (string, string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", "", err
	}
	uri := parsed.EscapedPath()
	if uri == "" {
		uri = "/"
	}

	hostSource := parsed.Host
	if hostSource == "" {
		if !strings.HasPrefix(target, "/") {
			return "", "", cache.ErrInvalidKey
		}
		hostSource = hostHeader
	}
	if site != nil {
		route, ok := site.Lookup(hostSource)
		if !ok {
			return "", "", cache.ErrInvalidKey
		}
		return route.Host, uri, nil
	}
	host, err := cache.ResolveHost("", hostSource)
	if err != nil {
		return "", "", err
	}
	return host, uri, nil
}

func handleEdgeRules(c fiber.Ctx, opts AdminOptions) error {
	var in edgerules.Input
	if opts.EdgeInput != nil {
		in = opts.EdgeInput()
	}
	text, err := edgerules.Render(c.Params("dialect"), in)
	if err != nil {
		if errors.Is(err, edgerules.ErrUnknownDialect) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":    "dialect_not_found",
				"dialects": edgerules.Keys(),
			})
		}
		return err
	}
	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	return c.SendString(text)
}
