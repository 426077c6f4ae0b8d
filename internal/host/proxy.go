package host

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
)

// ParseUpstreams parses a comma separated list of upstream base URLs.
func ParseUpstreams(raw string) ([]*url.URL, error) {
	var out []*url.URL
	for part := range strings.SplitSeq(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		u, err := url.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream %q: %w", part, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("invalid upstream %q: scheme must be http or https", part)
		}
		out = append(out, u)
	}
	return out, nil
}

// NewProxyMiddleware forwards requests round robin to upstreams. Response
// headers pass through the request's exchange before they reach the client.
func NewProxyMiddleware(upstreams []*url.URL) echo.MiddlewareFunc {
	targets := make([]*emw.ProxyTarget, 0, len(upstreams))
	for _, u := range upstreams {
		targets = append(targets, &emw.ProxyTarget{Name: u.Host, URL: u})
	}
	return emw.ProxyWithConfig(emw.ProxyConfig{
		Balancer:       emw.NewRoundRobinBalancer(targets),
		ModifyResponse: annotateResponse,
	})
}

func annotateResponse(res *http.Response) error {
	if res.Request == nil {
		return nil
	}
	if h, ok := hostFrom(res.Request.Context()); ok {
		h.responseHeaders(res.Header)
	}
	return nil
}

// LocalResponder answers every request with an empty 200 carrying the
// annotation headers. It stands in for an upstream when none is configured.
func LocalResponder(c echo.Context) error {
	if h, ok := hostFrom(c.Request().Context()); ok {
		h.responseHeaders(c.Response().Header())
	}
	return c.NoContent(http.StatusOK)
}
