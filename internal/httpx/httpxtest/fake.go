// Package httpxtest provides a scripted httpx.Transport for tests.
package httpxtest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/mind-engage/mindengage-jupyter/internal/httpx"
)

type Call struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// Fake records every request and answers through Handle.
type Fake struct {
	mu     sync.Mutex
	Calls  []Call
	Handle func(r *httpx.Request) (*httpx.Response, error)
}

func (f *Fake) Do(_ context.Context, r *httpx.Request) (*httpx.Response, error) {
	f.mu.Lock()
	c := Call{Method: r.Method, Path: r.Path, Header: r.Header, Body: r.Body}
	if r.Query != nil {
		c.Query = r.Query.Encode()
	}
	f.Calls = append(f.Calls, c)
	f.mu.Unlock()
	if f.Handle == nil {
		return Status(http.StatusOK), nil
	}
	return f.Handle(r)
}

// Count returns how many calls matched method and path.
func (f *Fake) Count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// Methods returns the calls made with method, in order.
func (f *Fake) Methods(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func Status(code int) *httpx.Response {
	return &httpx.Response{StatusCode: code, Header: http.Header{}}
}

func JSON(code int, v any) *httpx.Response {
	b, _ := json.Marshal(v)
	return &httpx.Response{StatusCode: code, Header: http.Header{"Content-Type": {"application/json"}}, Body: b}
}
