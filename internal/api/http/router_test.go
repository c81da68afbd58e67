package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mind-engage/mindengage-jupyter/internal/activity"
	"github.com/mind-engage/mindengage-jupyter/internal/availability"
	auth "github.com/mind-engage/mindengage-jupyter/internal/auth/middleware"
	"github.com/mind-engage/mindengage-jupyter/internal/db"
	"github.com/mind-engage/mindengage-jupyter/internal/gradeservice"
	"github.com/mind-engage/mindengage-jupyter/internal/httpx"
	"github.com/mind-engage/mindengage-jupyter/internal/jupyterhub"
	"github.com/mind-engage/mindengage-jupyter/internal/storage"
	"github.com/mind-engage/mindengage-jupyter/internal/submission"
)

// fakeHub serves the hub users API and a per-user contents API.
type fakeHub struct {
	mu    sync.Mutex
	users map[string]bool // name -> server running
	files map[string]string
}

func (h *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w.Header().Set("X-JupyterHub-Version", "4.1.0")
	if r.Header.Get("Authorization") != "token api-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) >= 4 && parts[0] == "hub" && parts[2] == "users":
		name := parts[3]
		running, ok := h.users[name]
		switch {
		case len(parts) == 5 && r.Method == http.MethodPost:
			h.users[name] = true
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodPost:
			h.users[name] = false
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"name": name, "server": nil})
		case !ok:
			w.WriteHeader(http.StatusNotFound)
		default:
			var server any
			if running {
				server = "/user/" + name + "/"
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"name": name, "server": server})
		}
	case len(parts) >= 4 && parts[0] == "user" && parts[2] == "api":
		p := strings.Join(parts[4:], "/")
		key := parts[1] + ":" + p
		switch r.Method {
		case http.MethodGet:
			b64, ok := h.files[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"type": "file", "format": "base64", "content": b64})
		case http.MethodPut:
			var m map[string]string
			_ = json.NewDecoder(r.Body).Decode(&m)
			if m["type"] == "file" {
				h.files[key] = m["content"]
			}
			w.WriteHeader(http.StatusCreated)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type env struct {
	router  http.Handler
	auth    *auth.AuthService
	tokens  *auth.HubTokens
	hub     *fakeHub
	hubSrv  *httptest.Server
	hubURL  string
	graded  int
	uploads []string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	e := &env{
		auth:   auth.NewAuthService("session-secret"),
		tokens: auth.NewHubTokens("hub-secret"),
		hub:    &fakeHub{users: map[string]bool{}, files: map[string]string{}},
	}

	hubSrv := httptest.NewServer(e.hub)
	t.Cleanup(hubSrv.Close)
	e.hubSrv, e.hubURL = hubSrv, hubSrv.URL

	grader := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(f)
		e.uploads = append(e.uploads, string(b))
		if strings.Count(strings.Trim(r.URL.Path, "/"), "/") == 1 {
			_ = json.NewEncoder(w).Encode(map[string]string{hdr.Filename: base64.StdEncoding.EncodeToString([]byte("student:" + string(b)))})
			return
		}
		e.graded++
		_, _ = w.Write([]byte(`{"points":[{"question":1,"points":3},{"question":2,"points":0}]}`))
	}))
	t.Cleanup(grader.Close)

	dbh, err := db.Open(ctx, db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dbh.Close() })
	bs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	files := storage.NewFileStore(dbh, bs)
	store := activity.NewSQLStore(dbh, "sqlite")

	hubClient, _ := httpx.New(httpx.Config{BaseURL: hubSrv.URL, Token: "api-token"})
	gradeClient, _ := httpx.New(httpx.Config{BaseURL: grader.URL})
	probe, _ := httpx.New(httpx.Config{})
	hh := jupyterhub.New(hubClient, nil)
	gh := gradeservice.New(gradeClient, files, store, hh, nil)

	e.router = NewRouter(Deps{
		Store:      store,
		Files:      files,
		Activities: activity.NewService(store, gh, hh, files, e.tokens, hubSrv.URL, nil),
		Reconciler: submission.New(gh, store, nil),
		Checker:    availability.New(probe, nil),
		HubURL:     hubSrv.URL,
		Auth:       e.auth,
		HubTokens:  e.tokens,
		AdminUser:  "admin",
	})
	return e
}

func (e *env) do(t *testing.T, method, path, role, sub string, body io.Reader, ctype string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	if role != "" {
		tok, err := e.auth.IssueJWT(sub, role)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *env) setupActivity(t *testing.T, autograded bool) activity.Instance {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"course": 2, "context_id": 10, "name": "Lab", "autograded": autograded})
	rr := e.do(t, http.MethodPost, "/activities", "teacher", "t1", bytes.NewReader(body), "application/json")
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body)
	}
	var in activity.Instance
	_ = json.Unmarshal(rr.Body.Bytes(), &in)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "lab.ipynb")
	_, _ = fw.Write([]byte(`{"cells":[]}`))
	_ = mw.Close()
	rr = e.do(t, http.MethodPost, "/activities/"+itoa(in.ID)+"/package", "teacher", "t1", &buf, mw.FormDataContentType())
	if rr.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rr.Code, rr.Body)
	}

	rr = e.do(t, http.MethodPut, "/activities/"+itoa(in.ID)+"/questions", "teacher", "t1",
		strings.NewReader(`[{"questionnr":1,"maxpoints":5},{"questionnr":2,"maxpoints":2}]`), "application/json")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("questions: %d %s", rr.Code, rr.Body)
	}
	return in
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestAutogradedFlow_ViewThenSubmit(t *testing.T) {
	e := newEnv(t)
	in := e.setupActivity(t, true)

	rr := e.do(t, http.MethodGet, "/view?id="+itoa(in.ID), "student", "Alice", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("view: %d %s", rr.Code, rr.Body)
	}
	page := rr.Body.String()
	link := e.hubURL + "/hub/user-redirect/lab/tree/2/" + itoa(in.ID) + "/lab.ipynb?auth_token="
	if !strings.Contains(page, link) {
		t.Fatalf("login link missing from page:\n%s", page)
	}
	if !strings.Contains(page, "data-submit=") {
		t.Fatalf("submit hook missing:\n%s", page)
	}
	key := "alice:2/" + itoa(in.ID) + "/lab.ipynb"
	if got, _ := base64.StdEncoding.DecodeString(e.hub.files[key]); string(got) != `student:{"cells":[]}` {
		t.Fatalf("generated notebook not provisioned: %q", got)
	}

	// a second view neither regenerates nor re-uploads
	_ = e.do(t, http.MethodGet, "/view?id="+itoa(in.ID), "student", "alice", nil, "")
	if len(e.uploads) != 1 {
		t.Fatalf("assignment should be created once, uploads=%d", len(e.uploads))
	}

	tok, _ := e.tokens.Sign("alice")
	body, _ := json.Marshal(submission.Request{User: "alice", CourseID: 2, InstanceID: in.ID, Filename: "lab.ipynb", Token: tok})
	rr = e.do(t, http.MethodPost, "/webservice/submit_notebook", "", "", bytes.NewReader(body), "application/json")
	if rr.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", rr.Code, rr.Body)
	}
	var res []submission.QuestionResult
	_ = json.Unmarshal(rr.Body.Bytes(), &res)
	want := []submission.QuestionResult{{Question: 1, Reached: 3, Max: 5}, {Question: 2, Reached: 0, Max: 2}}
	if len(res) != 2 || res[0] != want[0] || res[1] != want[1] {
		t.Fatalf("unexpected results %+v", res)
	}
	if e.uploads[len(e.uploads)-1] != `student:{"cells":[]}` {
		t.Fatalf("submitted notebook must come from the hub workspace")
	}
}

func TestSubmit_TokenMustMatchUser(t *testing.T) {
	e := newEnv(t)
	tok, _ := e.tokens.Sign("bob")
	body, _ := json.Marshal(submission.Request{User: "alice", CourseID: 2, InstanceID: 1, Filename: "x.ipynb", Token: tok})
	rr := e.do(t, http.MethodPost, "/webservice/submit_notebook", "", "", bytes.NewReader(body), "application/json")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if e.graded != 0 {
		t.Fatalf("gradeservice must not be called")
	}
}

func TestSubmit_UnknownInstanceCollapses(t *testing.T) {
	e := newEnv(t)
	tok, _ := e.tokens.Sign("alice")
	body, _ := json.Marshal(submission.Request{User: "alice", CourseID: 2, InstanceID: 42, Filename: "x.ipynb", Token: tok})
	rr := e.do(t, http.MethodPost, "/webservice/submit_notebook", "", "", bytes.NewReader(body), "application/json")
	if rr.Code != http.StatusOK {
		t.Fatalf("submit: %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `[{"question":0,"reached":0,"max":0,"error":true,"errortype":"test"}]` {
		t.Fatalf("unexpected body %s", rr.Body)
	}
}

func TestPlainActivity_ViewAndReset(t *testing.T) {
	e := newEnv(t)
	in := e.setupActivity(t, false)

	rr := e.do(t, http.MethodGet, "/view?id="+itoa(in.ID), "student", "carol", nil, "")
	if rr.Code != http.StatusOK || strings.Contains(rr.Body.String(), "data-submit=") {
		t.Fatalf("view: %d %s", rr.Code, rr.Body)
	}
	if len(e.uploads) != 0 {
		t.Fatalf("plain activity must not call the gradeservice")
	}
	key := "carol:2/" + itoa(in.ID) + "/lab.ipynb"
	e.hub.files[key] = base64.StdEncoding.EncodeToString([]byte("edited"))

	tok, _ := e.tokens.Sign("carol")
	body, _ := json.Marshal(map[string]any{"user": "carol", "instanceid": in.ID, "token": tok})
	rr = e.do(t, http.MethodPost, "/webservice/reset_notebook", "", "", bytes.NewReader(body), "application/json")
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: %d %s", rr.Code, rr.Body)
	}
	if got, _ := base64.StdEncoding.DecodeString(e.hub.files[key]); string(got) != `{"cells":[]}` {
		t.Fatalf("reset did not restore the package: %q", got)
	}
}

func TestRBAC(t *testing.T) {
	e := newEnv(t)
	if rr := e.do(t, http.MethodPost, "/activities", "student", "s", strings.NewReader(`{}`), "application/json"); rr.Code != http.StatusForbidden {
		t.Fatalf("student create: %d", rr.Code)
	}
	if rr := e.do(t, http.MethodGet, "/view?id=1", "", "", nil, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous view: %d", rr.Code)
	}
	if rr := e.do(t, http.MethodGet, "/activities/99", "teacher", "t", nil, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("missing activity: %d", rr.Code)
	}
}

func TestHubStatus(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodGet, "/hub/status", "teacher", "t", nil, "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"reachable"`) {
		t.Fatalf("hub status: %d %s", rr.Code, rr.Body)
	}
}

func TestView_HubDownRendersConnectError(t *testing.T) {
	e := newEnv(t)
	in := e.setupActivity(t, false)
	e.hubSrv.Close()

	rr := e.do(t, http.MethodGet, "/view?id="+itoa(in.ID), "student", "dave", nil, "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "jupyterhub connection error") {
		t.Fatalf("unexpected page:\n%s", rr.Body)
	}
	if rr := e.do(t, http.MethodGet, "/view?id="+itoa(in.ID+100), "student", "dave", nil, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown instance: %d", rr.Code)
	}
}
