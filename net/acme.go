// Package net provides the HTTPS transport the ACME protocol engine sends
// every directory, nonce, and resource request over: scheme enforcement,
// a fixed User-Agent, and ambient-environment proxying.
package net

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"runtime"
	"strings"
	"time"
)

const (
	version       = "0.1.0"
	userAgentBase = "acmecore"
	locale        = "en-us"

	// DefaultTimeout bounds a single round trip (connect + TLS + body read).
	DefaultTimeout = 30 * time.Second
)

// Config controls how a Client is constructed.
type Config struct {
	// AllowInsecureHTTP permits http:// directory and resource URLs. It
	// exists only for local testing against Pebble-style ACME servers
	// that don't terminate TLS; production engines must leave this false.
	AllowInsecureHTTP bool
	// Timeout bounds a single request. Zero uses DefaultTimeout.
	Timeout time.Duration
	// Transport overrides the underlying http.RoundTripper, primarily for
	// tests that need to trust a self-signed httptest.Server certificate.
	Transport http.RoundTripper
}

// Client is the HTTPS client the protocol engine issues every ACME request
// through.
type Client struct {
	httpClient        *http.Client
	allowInsecureHTTP bool
}

// New constructs a Client from conf.
func New(conf Config) *Client {
	timeout := conf.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	transport := conf.Transport
	if transport == nil {
		transport = &http.Transport{Proxy: http.ProxyFromEnvironment}
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		allowInsecureHTTP: conf.AllowInsecureHTTP,
	}
}

// Response is the captured result of a single round trip.
type Response struct {
	Response *http.Response
	Body     []byte
	ReqDump  []byte
	RespDump []byte
}

func (c *Client) checkScheme(rawURL string) error {
	if strings.HasPrefix(rawURL, "https://") {
		return nil
	}
	if c.allowInsecureHTTP && strings.HasPrefix(rawURL, "http://") {
		return nil
	}
	return fmt.Errorf("net: refusing non-HTTPS URL %q (set Config.AllowInsecureHTTP for local testing)", rawURL)
}

// Do sends req, enforcing the scheme policy and stamping the fixed
// User-Agent and Accept-Language headers, then captures the request/response
// dumps and reads the full body.
func (c *Client) Do(req *http.Request) (*Response, error) {
	if err := c.checkScheme(req.URL.String()); err != nil {
		return nil, err
	}

	ua := fmt.Sprintf("%s/%s (%s; %s)", userAgentBase, version, runtime.GOOS, runtime.GOARCH)
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept-Language", locale)

	reqDump, err := httputil.DumpRequestOut(cloneForDump(req), true)
	if err != nil {
		return nil, fmt.Errorf("net: dump request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respDump, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return nil, fmt.Errorf("net: dump response: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("net: read response body: %w", err)
	}

	return &Response{
		Response: resp,
		Body:     body,
		ReqDump:  reqDump,
		RespDump: respDump,
	}, nil
}

// cloneForDump avoids DumpRequestOut mutating the caller's request state
// (it replaces req.Body with a fresh reader internally). Clone only copies
// the Body reference, so the clone gets its own body from GetBody; without
// that the dump would drain the body the real request is about to send.
func cloneForDump(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			clone.Body = body
		}
	}
	return clone
}

// Head sends a HEAD request.
func (c *Client) Head(url string) (*Response, error) {
	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Get sends a GET request.
func (c *Client) Get(url string) (*Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// PostJOSE sends a POST request with the given JWS serialization as the
// body, using the ACME "application/jose+json" content type (RFC 8555
// §6.2).
func (c *Client) PostJOSE(url string, body []byte) (*Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/jose+json")
	return c.Do(req)
}
