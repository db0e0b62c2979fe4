package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"
)

// HeatProxyHandler forwards any request under the route's wildcard to target,
// keeping the method, path and query, and allows every origin to read the
// response. The Host header is the target's.
func HeatProxyHandler(target string) fiber.Handler {
	target = strings.TrimRight(target, "/")

	return func(c *fiber.Ctx) error {
		url := target + "/" + strings.TrimLeft(c.Params("*"), "/")
		if q := c.Request().URI().QueryString(); len(q) > 0 {
			url += "?" + string(q)
		}

		if err := proxy.Do(c, url); err != nil {
			LoggerFromCtx(c.UserContext()).Warn("heat tile proxy failed", "url", url, "error", err)
			return errBadGateway(c, "density origin unreachable")
		}

		c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
		return nil
	}
}
