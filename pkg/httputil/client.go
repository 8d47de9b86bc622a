// Package httputil provides HTTP client utilities with standard configurations.
package httputil

import (
	"net"
	"net/http"
	"time"
)

const (
	// Default timeout for HTTP requests
	defaultTimeout = 30 * time.Second

	// Transport configuration constants
	maxIdleConns        = 64
	maxIdleConnsPerHost = 16
	maxConnsPerHost     = 32
	idleConnTimeout     = 90 * time.Second

	// Streaming clients never time out a whole response, only its headers.
	streamResponseHeaderTimeout = 30 * time.Second
	dialTimeout                 = 10 * time.Second
)

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		MaxConnsPerHost:     maxConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		ForceAttemptHTTP2:   true,
	}
}

// NewHTTPClient creates a new HTTP client with the specified timeout.
// The client is configured with connection pooling and idle connection management.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(),
	}
}

// NewDefaultHTTPClient creates a new HTTP client with default 30 second timeout.
// This is suitable for most API calls and web requests.
func NewDefaultHTTPClient() *http.Client {
	return NewHTTPClient(defaultTimeout)
}

// NewStreamingClient creates a client for long-lived media transfers.
// There is no overall timeout; cancellation comes from the request context.
func NewStreamingClient() *http.Client {
	transport := newTransport()
	transport.ResponseHeaderTimeout = streamResponseHeaderTimeout
	// Media bodies are already compressed; asking for gzip would break ranges.
	transport.DisableCompression = true
	return &http.Client{Transport: transport}
}
