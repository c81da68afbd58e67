// Package availability probes whether a URL is served by a JupyterHub.
package availability

import (
	"context"
	"net/http"

	"github.com/mind-engage/mindengage-jupyter/internal/httpx"
	"github.com/mind-engage/mindengage-jupyter/internal/logger"
)

type Verdict string

const (
	Reachable   Verdict = "reachable"
	Unreachable Verdict = "unreachable"
)

// VersionHeader is set by every JupyterHub response.
const VersionHeader = "X-JupyterHub-Version"

type Checker struct {
	Transport httpx.Transport // must accept absolute URLs and send no auth
	Log       *logger.Logger
}

func New(t httpx.Transport, log *logger.Logger) *Checker {
	if log == nil {
		log = logger.Nop()
	}
	return &Checker{Transport: t, Log: log}
}

// CheckURL GETs url without credentials and returns the status with the hub
// version header. A transport failure yields (0, "").
func (c *Checker) CheckURL(ctx context.Context, url string) (int, string) {
	res, err := httpx.Get(ctx, c.Transport, url, nil, nil)
	if err != nil {
		c.Log.Debug("hub probe failed", "url", url, "error", err)
		return 0, ""
	}
	return res.StatusCode, res.Header.Get(VersionHeader)
}

// CheckReachable treats baseURL as a hub only if it answers 401 (no token was
// sent) with a non-empty version header. A loopback URL that does not answer
// 401 is probed once more through the docker host alias, and that second
// answer decides.
func (c *Checker) CheckReachable(ctx context.Context, baseURL string) Verdict {
	status, version := c.CheckURL(ctx, baseURL)
	if status != http.StatusUnauthorized && httpx.IsLoopback(baseURL) {
		alt := httpx.RewriteLoopback(baseURL)
		c.Log.Debug("retrying hub probe via docker host", "url", alt, "status", status)
		status, version = c.CheckURL(ctx, alt)
	}
	if status == http.StatusUnauthorized && version != "" {
		return Reachable
	}
	return Unreachable
}
