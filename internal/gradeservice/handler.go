// Package gradeservice uploads assignment packages to the grading service and
// submits student notebooks to it.
package gradeservice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/mind-engage/mindengage-jupyter/internal/apierr"
	"github.com/mind-engage/mindengage-jupyter/internal/httpx"
	"github.com/mind-engage/mindengage-jupyter/internal/jupyterhub"
	"github.com/mind-engage/mindengage-jupyter/internal/logger"
	"github.com/mind-engage/mindengage-jupyter/internal/storage"
)

type FileStorage interface {
	First(ctx context.Context, contextID int64, component, area string, itemID int64) (storage.File, error)
	Content(ctx context.Context, f storage.File) ([]byte, error)
	Store(ctx context.Context, ref storage.FileRef, content []byte) (storage.File, error)
	DeleteArea(ctx context.Context, contextID int64, component, area string) error
}

type AssignmentStore interface {
	SetAssignment(ctx context.Context, instanceID, courseID int64, filename *string) error
}

type NotebookFetcher interface {
	FetchNotebook(ctx context.Context, user string, f jupyterhub.NotebookFile) ([]byte, error)
}

type AssignmentRef struct {
	CourseID   int64
	InstanceID int64
	ContextID  int64
}

type Submission struct {
	User       string
	CourseID   int64
	InstanceID int64
	Filename   string
}

// GradedQuestion is one entry of the grading response.
type GradedQuestion struct {
	Question int     `json:"question"`
	Points   float64 `json:"points"`
}

type gradeResponse struct {
	Points []GradedQuestion `json:"points"`
}

type Handler struct {
	T         httpx.Transport
	Files     FileStorage
	Instances AssignmentStore
	Notebooks NotebookFetcher
	Log       *logger.Logger
}

func New(t httpx.Transport, files FileStorage, instances AssignmentStore, notebooks NotebookFetcher, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{T: t, Files: files, Instances: instances, Notebooks: notebooks, Log: log}
}

func route(courseID, instanceID int64) string {
	return "/" + strconv.FormatInt(courseID, 10) + "/" + strconv.FormatInt(instanceID, 10)
}

// CreateAssignment uploads the activity's package, stores the generated
// student notebook in the assignment area and records its filename on the
// instance. The service side is idempotent, so a repeat simply replaces the
// stored notebook.
func (h *Handler) CreateAssignment(ctx context.Context, ref AssignmentRef, token string) (string, error) {
	pkg, err := h.Files.First(ctx, ref.ContextID, storage.Component, storage.AreaPackage, 0)
	if err != nil {
		return "", fmt.Errorf("create assignment: %w", err)
	}
	content, err := h.Files.Content(ctx, pkg)
	if err != nil {
		return "", fmt.Errorf("create assignment: %w", err)
	}

	body, ctype, err := httpx.Multipart("file", pkg.Filename, content)
	if err != nil {
		return "", err
	}
	res, err := httpx.Post(ctx, h.T, route(ref.CourseID, ref.InstanceID), body, http.Header{
		"Authorization": {token},
		"Content-Type":  {ctype},
	})
	if err != nil {
		return "", err
	}
	if err := res.Reject("create assignment"); err != nil {
		return "", err
	}

	var files map[string]string
	if err := res.DecodeJSON(&files); err != nil {
		return "", apierr.Grading("create assignment", err)
	}
	name, b64, err := pickFile(files, pkg.Filename)
	if err != nil {
		return "", apierr.Grading("create assignment", err)
	}
	generated, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", apierr.Grading("create assignment", fmt.Errorf("decode %s: %w", name, err))
	}

	if err := h.Files.DeleteArea(ctx, ref.ContextID, storage.Component, storage.AreaAssignment); err != nil {
		return "", fmt.Errorf("create assignment: clear area: %w", err)
	}
	fref := storage.FileRef{ContextID: ref.ContextID, Component: storage.Component, Area: storage.AreaAssignment, Filename: name}
	if _, err := h.Files.Store(ctx, fref, generated); err != nil {
		return "", fmt.Errorf("create assignment: %w", err)
	}
	if err := h.Instances.SetAssignment(ctx, ref.InstanceID, ref.CourseID, &name); err != nil {
		return "", fmt.Errorf("create assignment: %w", err)
	}
	h.Log.Info("assignment created", "course", ref.CourseID, "instance", ref.InstanceID, "file", name, "bytes", len(generated))
	return name, nil
}

// pickFile prefers the entry named like the uploaded package, then falls back
// to the first name in sorted order.
func pickFile(files map[string]string, want string) (string, string, error) {
	if b64, ok := files[want]; ok {
		return want, b64, nil
	}
	if len(files) == 0 {
		return "", "", errors.New("response contains no files")
	}
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names[0], files[names[0]], nil
}

// SubmitAssignment pulls the student's notebook from the hub and posts it for
// grading. Every failure is returned to the caller.
func (h *Handler) SubmitAssignment(ctx context.Context, s Submission, token string) ([]GradedQuestion, error) {
	nb := jupyterhub.NotebookFile{CourseID: s.CourseID, InstanceID: s.InstanceID, Filename: s.Filename}
	content, err := h.Notebooks.FetchNotebook(ctx, s.User, nb)
	if err != nil {
		return nil, fmt.Errorf("submit assignment: %w", err)
	}

	body, ctype, err := httpx.Multipart("file", s.Filename, content)
	if err != nil {
		return nil, err
	}
	res, err := httpx.Post(ctx, h.T, route(s.CourseID, s.InstanceID)+"/"+url.PathEscape(s.User), body, http.Header{
		"Authorization": {token},
		"Content-Type":  {ctype},
	})
	if err != nil {
		return nil, err
	}
	if err := res.Reject("submit assignment"); err != nil {
		return nil, err
	}
	var gr gradeResponse
	if err := res.DecodeJSON(&gr); err != nil {
		return nil, apierr.Grading("submit assignment", err)
	}
	h.Log.Info("notebook graded", "user", s.User, "instance", s.InstanceID, "questions", len(gr.Points))
	return gr.Points, nil
}
