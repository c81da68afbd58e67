package availability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mind-engage/mindengage-jupyter/internal/apierr"
	"github.com/mind-engage/mindengage-jupyter/internal/httpx"
	"github.com/mind-engage/mindengage-jupyter/internal/httpx/httpxtest"
)

func answer(status int, version string) func(*httpx.Request) (*httpx.Response, error) {
	return func(*httpx.Request) (*httpx.Response, error) {
		res := httpxtest.Status(status)
		if version != "" {
			res.Header.Set(VersionHeader, version)
		}
		return res, nil
	}
}

func TestCheckReachable_StatusHeaderMatrix(t *testing.T) {
	cases := []struct {
		status  int
		version string
		want    Verdict
	}{
		{401, "4.1.5", Reachable},
		{401, "", Unreachable},
		{200, "4.1.5", Unreachable},
		{403, "4.1.5", Unreachable},
		{404, "", Unreachable},
		{500, "4.1.5", Unreachable},
	}
	for _, tc := range cases {
		f := &httpxtest.Fake{Handle: answer(tc.status, tc.version)}
		got := New(f, nil).CheckReachable(context.Background(), "https://hub.example.org")
		if got != tc.want {
			t.Errorf("status=%d version=%q: got %s, want %s", tc.status, tc.version, got, tc.want)
		}
		if len(f.Calls) != 1 {
			t.Errorf("status=%d: expected 1 probe for non-loopback url, got %d", tc.status, len(f.Calls))
		}
	}
}

func TestCheckReachable_ConnectFailureIsUnreachable(t *testing.T) {
	f := &httpxtest.Fake{Handle: func(r *httpx.Request) (*httpx.Response, error) {
		return nil, apierr.Unreach("GET", context.DeadlineExceeded)
	}}
	if got := New(f, nil).CheckReachable(context.Background(), "https://hub.example.org"); got != Unreachable {
		t.Fatalf("expected unreachable, got %s", got)
	}
	if len(f.Calls) != 1 {
		t.Fatalf("expected no retry, got %d calls", len(f.Calls))
	}
}

func TestCheckReachable_LoopbackRetriesOnceViaDockerHost(t *testing.T) {
	f := &httpxtest.Fake{Handle: func(r *httpx.Request) (*httpx.Response, error) {
		if r.Path == "http://host.docker.internal:8000/" {
			return answer(401, "4.0.0")(r)
		}
		return nil, apierr.Unreach("GET", context.Canceled)
	}}
	got := New(f, nil).CheckReachable(context.Background(), "http://127.0.0.1:8000/")
	if got != Reachable {
		t.Fatalf("expected second probe to decide reachable, got %s", got)
	}
	if len(f.Calls) != 2 {
		t.Fatalf("expected exactly 2 probes, got %d", len(f.Calls))
	}
	if f.Calls[1].Path != "http://host.docker.internal:8000/" {
		t.Fatalf("unexpected retry url %q", f.Calls[1].Path)
	}
}

func TestCheckReachable_LoopbackSecondProbeDecidesUnreachable(t *testing.T) {
	f := &httpxtest.Fake{Handle: func(r *httpx.Request) (*httpx.Response, error) {
		if r.Path == "http://host.docker.internal/" {
			return answer(200, "")(r)
		}
		return answer(502, "")(r)
	}}
	if got := New(f, nil).CheckReachable(context.Background(), "http://localhost/"); got != Unreachable {
		t.Fatalf("expected unreachable, got %s", got)
	}
	if len(f.Calls) != 2 {
		t.Fatalf("expected exactly 2 probes, got %d", len(f.Calls))
	}
}

func TestCheckReachable_LoopbackAnswering401DoesNotRetry(t *testing.T) {
	f := &httpxtest.Fake{Handle: answer(401, "4.0.0")}
	if got := New(f, nil).CheckReachable(context.Background(), "http://127.0.0.1:8000/"); got != Reachable {
		t.Fatalf("expected reachable, got %s", got)
	}
	if len(f.Calls) != 1 {
		t.Fatalf("expected 1 probe, got %d", len(f.Calls))
	}
}

func TestCheckReachable_AgainstHTTPServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Fatalf("probe must be unauthenticated")
		}
		w.Header().Set(VersionHeader, "5.2.1")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c, _ := httpx.New(httpx.Config{})
	if got := New(c, nil).CheckReachable(context.Background(), ts.URL+"/hub/api"); got != Reachable {
		t.Fatalf("expected reachable, got %s", got)
	}
}
