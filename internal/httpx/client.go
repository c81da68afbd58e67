// Package httpx is the small HTTP layer shared by the hub and gradeservice handlers.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/mind-engage/mindengage-jupyter/internal/apierr"
)

const (
	DefaultTimeout = 30 * time.Second
	maxBody        = 64 << 20
)

type Request struct {
	Method string
	Path   string // relative to the base URL, or absolute
	Query  url.Values
	Header http.Header
	Body   []byte
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode/100 == 2 }

// Err returns nil for 2xx, otherwise an *apierr.Error carrying status and body.
func (r *Response) Err(op string) error {
	if r.OK() {
		return nil
	}
	return apierr.FromStatus(op, r.StatusCode, r.Body)
}

// Reject is like Err but never reports NotFound.
func (r *Response) Reject(op string) error {
	if r.OK() {
		return nil
	}
	return apierr.Reject(op, r.StatusCode, r.Body)
}

func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Transport sends one request. Any HTTP status comes back as a Response;
// only failures to get a response at all are errors.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

type Config struct {
	BaseURL string
	Header  http.Header
	Timeout time.Duration
	// Container rewrites loopback hosts in BaseURL to the docker host alias.
	Container bool
	// Token, when set, is sent as "Authorization: token <Token>".
	Token string
}

type Client struct {
	base   string
	header http.Header
	http   *http.Client
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base != "" {
		if cfg.Container {
			base = RewriteLoopback(base)
		}
		if _, err := url.Parse(base); err != nil {
			return nil, fmt.Errorf("httpx: base url: %w", err)
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := &http.Client{Timeout: timeout}
	if cfg.Token != "" {
		hc.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "token"}),
			Base:   http.DefaultTransport,
		}
	}
	return &Client{base: strings.TrimRight(base, "/"), header: cfg.Header, http: hc}, nil
}

// BaseURL is the effective base URL after any loopback rewrite.
func (c *Client) BaseURL() string { return c.base }

func (c *Client) Do(ctx context.Context, r *Request) (*Response, error) {
	op := r.Method + " " + r.Path
	target, err := c.resolve(r.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(r.Query) > 0 {
		target.RawQuery = r.Query.Encode()
	}
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range r.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.Unreach(op, err)
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, apierr.Unreach(op, err)
	}
	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: b}, nil
}

func (c *Client) resolve(p string) (*url.URL, error) {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return url.Parse(p)
	}
	if c.base == "" {
		return nil, errors.New("relative path without base url")
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return url.Parse(c.base + p)
}

func Get(ctx context.Context, t Transport, path string, q url.Values, h http.Header) (*Response, error) {
	return t.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: q, Header: h})
}

func Post(ctx context.Context, t Transport, path string, body []byte, h http.Header) (*Response, error) {
	return t.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body, Header: h})
}

func Put(ctx context.Context, t Transport, path string, body []byte, h http.Header) (*Response, error) {
	return t.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body, Header: h})
}

// PutJSON marshals v and PUTs it with a JSON content type.
func PutJSON(ctx context.Context, t Transport, path string, v any) (*Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Put(ctx, t, path, b, http.Header{"Content-Type": {"application/json"}})
}
