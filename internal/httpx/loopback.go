package httpx

import (
	"net"
	"net/url"
	"strings"
)

// DockerHost is the name a container uses to reach services on its host machine.
const DockerHost = "host.docker.internal"

// IsLoopback reports whether raw points at 127.0.0.1, localhost or ::1.
func IsLoopback(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return isLoopbackHost(u.Hostname())
}

func isLoopbackHost(h string) bool {
	switch strings.ToLower(h) {
	case "127.0.0.1", "localhost", "::1":
		return true
	}
	return false
}

// RewriteLoopback swaps a loopback host for DockerHost, keeping scheme, port
// and path. Anything else comes back unchanged.
func RewriteLoopback(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !isLoopbackHost(u.Hostname()) {
		return raw
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(DockerHost, port)
	} else {
		u.Host = DockerHost
	}
	return u.String()
}
