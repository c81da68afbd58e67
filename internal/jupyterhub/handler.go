// Package jupyterhub provisions a user's notebook server and notebook files
// through the JupyterHub and Jupyter Server REST APIs.
//
// https://jupyterhub.readthedocs.io/en/stable/reference/rest-api.html
// https://jupyter-server.readthedocs.io/en/latest/developers/rest-api.html
package jupyterhub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/mind-engage/mindengage-jupyter/internal/apierr"
	"github.com/mind-engage/mindengage-jupyter/internal/httpx"
	"github.com/mind-engage/mindengage-jupyter/internal/logger"
)

type Outcome int

const (
	AlreadyExists Outcome = iota
	Created
)

func (o Outcome) String() string {
	if o == Created {
		return "created"
	}
	return "already_exists"
}

type Step string

const (
	StepUser   Step = "ensure_user"
	StepServer Step = "ensure_server"
	StepFile   Step = "ensure_file"
)

type StepResult struct {
	Step    Step
	Outcome Outcome
}

// User is the part of the hub user model we read.
type User struct {
	Name   string          `json:"name"`
	Admin  bool            `json:"admin"`
	Server json.RawMessage `json:"server"` // URL string, or null when not running
}

func (u User) ServerRunning() bool {
	s := string(bytes.TrimSpace(u.Server))
	return s != "" && s != "null"
}

// Source loads the canonical content of a notebook; it is only called when
// the file has to be created.
type Source func(ctx context.Context) ([]byte, error)

// Handler talks to one hub. Its transport must carry the hub API token.
type Handler struct {
	T   httpx.Transport
	Log *logger.Logger
}

func New(t httpx.Transport, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{T: t, Log: log}
}

func userRoute(user string) string {
	return "/hub/api/users/" + url.PathEscape(user)
}

// EnsureUser looks the user up and creates the account on a 404.
func (h *Handler) EnsureUser(ctx context.Context, user string) (User, Outcome, error) {
	route := userRoute(user)
	res, err := httpx.Get(ctx, h.T, route, nil, nil)
	if err != nil {
		return User{}, AlreadyExists, err
	}
	outcome := AlreadyExists
	if err := res.Err("get hub user"); err != nil {
		if !apierr.IsNotFound(err) {
			return User{}, AlreadyExists, err
		}
		res, err = httpx.Post(ctx, h.T, route, nil, nil)
		if err != nil {
			return User{}, AlreadyExists, err
		}
		if err := res.Reject("create hub user"); err != nil {
			return User{}, AlreadyExists, err
		}
		outcome = Created
		h.Log.Info("created hub user", "user", user)
	}

	u := User{Name: user}
	if len(bytes.TrimSpace(res.Body)) > 0 {
		if err := res.DecodeJSON(&u); err != nil {
			return User{}, outcome, fmt.Errorf("hub user %s: %w", user, err)
		}
	}
	return u, outcome, nil
}

// EnsureServerRunning requests a spawn when the user record shows no server.
// It does not wait for the spawn to finish; the hub queues the redirect.
func (h *Handler) EnsureServerRunning(ctx context.Context, user string, u User) (Outcome, error) {
	if u.ServerRunning() {
		return AlreadyExists, nil
	}
	res, err := httpx.Post(ctx, h.T, userRoute(user)+"/server", nil, nil)
	if err != nil {
		return AlreadyExists, err
	}
	if err := res.Reject("spawn server"); err != nil {
		return AlreadyExists, err
	}
	h.Log.Info("requested server spawn", "user", user, "status", res.StatusCode)
	return Created, nil
}

// EnsureFile creates the notebook file on a 404 metadata probe. Parent
// directories are created first, parent before child, since the contents API
// does not create them recursively. The directory PUTs are unconditional.
func (h *Handler) EnsureFile(ctx context.Context, user string, f NotebookFile, src Source) (Outcome, error) {
	res, err := httpx.Get(ctx, h.T, contentsRoute(user, f.Path()), url.Values{"content": {"0"}}, nil)
	if err != nil {
		return AlreadyExists, err
	}
	if err := res.Err("probe notebook"); err != nil {
		if !apierr.IsNotFound(err) {
			return AlreadyExists, err
		}
		content, err := src(ctx)
		if err != nil {
			return AlreadyExists, fmt.Errorf("load notebook source: %w", err)
		}
		if err := h.writeFile(ctx, user, f, content); err != nil {
			return AlreadyExists, err
		}
		h.Log.Info("uploaded notebook", "user", user, "path", f.Path(), "bytes", len(content))
		return Created, nil
	}
	return AlreadyExists, nil
}

func (h *Handler) writeFile(ctx context.Context, user string, f NotebookFile, content []byte) error {
	for _, dir := range f.Dirs() {
		res, err := httpx.PutJSON(ctx, h.T, contentsRoute(user, dir), directoryModel())
		if err != nil {
			return err
		}
		if err := res.Reject("create directory " + dir); err != nil {
			return err
		}
	}
	res, err := httpx.PutJSON(ctx, h.T, contentsRoute(user, f.Path()), fileModel(content))
	if err != nil {
		return err
	}
	return res.Reject("upload notebook")
}

// Provision runs the three steps in order and stops at the first failure.
func (h *Handler) Provision(ctx context.Context, user string, f NotebookFile, src Source) ([]StepResult, error) {
	var steps []StepResult
	u, o, err := h.EnsureUser(ctx, user)
	if err != nil {
		return steps, err
	}
	steps = append(steps, StepResult{StepUser, o})

	if o, err = h.EnsureServerRunning(ctx, user, u); err != nil {
		return steps, err
	}
	steps = append(steps, StepResult{StepServer, o})

	if o, err = h.EnsureFile(ctx, user, f, src); err != nil {
		return steps, err
	}
	steps = append(steps, StepResult{StepFile, o})
	return steps, nil
}

// NotebookPath provisions everything and returns the deep link path. The
// caller prefixes the hub URL and appends the auth token.
func (h *Handler) NotebookPath(ctx context.Context, user string, f NotebookFile, src Source) (string, error) {
	steps, err := h.Provision(ctx, user, f, src)
	if err != nil {
		h.Log.Warn("notebook provisioning failed", "user", user, "path", f.Path(), "steps", len(steps), "error", err)
		return "", err
	}
	h.Log.Debug("notebook provisioned", "user", user, "path", f.Path(), "steps", steps)
	return DeepLink(f), nil
}

// FetchNotebook downloads the file from the user's workspace.
func (h *Handler) FetchNotebook(ctx context.Context, user string, f NotebookFile) ([]byte, error) {
	q := url.Values{"content": {"1"}, "format": {"base64"}, "type": {"file"}}
	res, err := httpx.Get(ctx, h.T, contentsRoute(user, f.Path()), q, nil)
	if err != nil {
		return nil, err
	}
	if err := res.Reject("fetch notebook"); err != nil {
		return nil, err
	}
	var m contentModel
	if err := res.DecodeJSON(&m); err != nil {
		return nil, err
	}
	return m.bytes()
}

// ResetNotebook overwrites the user's copy with the source content.
func (h *Handler) ResetNotebook(ctx context.Context, user string, f NotebookFile, src Source) error {
	u, _, err := h.EnsureUser(ctx, user)
	if err != nil {
		return err
	}
	if _, err := h.EnsureServerRunning(ctx, user, u); err != nil {
		return err
	}
	content, err := src(ctx)
	if err != nil {
		return fmt.Errorf("load notebook source: %w", err)
	}
	if err := h.writeFile(ctx, user, f, content); err != nil {
		return err
	}
	h.Log.Info("notebook reset", "user", user, "path", f.Path())
	return nil
}

