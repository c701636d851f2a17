package config

import (
	"net/url"
	"os"
	"sync"
)

const dockerHostGateway = "host.docker.internal"

var inDocker = sync.OnceValue(func() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
})

// IsRunningInDocker reports whether /.dockerenv exists. Cached after the first call.
func IsRunningInDocker() bool {
	return inDocker()
}

// ResolveHostForDocker rewrites loopback hosts to the Docker host gateway when
// running inside a container, so a database or model server on the host
// machine stays reachable.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

// ResolveURLForDocker applies ResolveHostForDocker to the host part of rawURL.
// Unparsable URLs are returned unchanged.
func ResolveURLForDocker(rawURL string) string {
	return resolveURL(rawURL, IsRunningInDocker())
}

func resolveHost(host string, docker bool) string {
	if docker && (host == "localhost" || host == "127.0.0.1") {
		return dockerHostGateway
	}
	return host
}

func resolveURL(rawURL string, docker bool) string {
	if !docker || rawURL == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	host := u.Hostname()
	resolved := resolveHost(host, docker)
	if resolved == host {
		return rawURL
	}
	if port := u.Port(); port != "" {
		u.Host = resolved + ":" + port
	} else {
		u.Host = resolved
	}
	return u.String()
}
