package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-jupyter/internal/apierr"
	"github.com/mind-engage/mindengage-jupyter/internal/gradeservice"
	"github.com/mind-engage/mindengage-jupyter/internal/jupyterhub"
	"github.com/mind-engage/mindengage-jupyter/internal/logger"
	"github.com/mind-engage/mindengage-jupyter/internal/storage"
)

type AssignmentCreator interface {
	CreateAssignment(ctx context.Context, ref gradeservice.AssignmentRef, token string) (string, error)
}

type Notebooks interface {
	NotebookPath(ctx context.Context, user string, f jupyterhub.NotebookFile, src jupyterhub.Source) (string, error)
	ResetNotebook(ctx context.Context, user string, f jupyterhub.NotebookFile, src jupyterhub.Source) error
}

type FileReader interface {
	First(ctx context.Context, contextID int64, component, area string, itemID int64) (storage.File, error)
	Content(ctx context.Context, f storage.File) ([]byte, error)
}

type TokenSigner interface {
	Sign(user string) (string, error)
}

// Viewer is the LMS user opening the activity.
type Viewer struct {
	Username string
}

// SubmitParams feed the client's submit hook.
type SubmitParams struct {
	User       string `json:"user"`
	CourseID   int64  `json:"courseid"`
	InstanceID int64  `json:"instanceid"`
	Filename   string `json:"filename"`
	Token      string `json:"token"`
}

// ResetParams feed the client's reset hook.
type ResetParams struct {
	User       string `json:"user"`
	ContextID  int64  `json:"contextid"`
	CourseID   int64  `json:"courseid"`
	InstanceID int64  `json:"instanceid"`
	Autograded bool   `json:"autograded"`
}

type View struct {
	Name       string
	LoginURL   string
	Autograded bool
	Submit     *SubmitParams // nil unless autograded
	Reset      ResetParams
}

// PageError is what the view renders instead of the notebook. Service names
// the remote that failed; Kind separates connect failures from answers.
type PageError struct {
	Service string // "gradeservice" or "jupyterhub"
	Kind    apierr.Kind
	Msg     string
	Err     error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Service, e.Kind, e.Msg)
}

func (e *PageError) Unwrap() error { return e.Err }

// Connect reports whether the remote could not be reached at all.
func (e *PageError) Connect() bool { return e.Kind == apierr.Unreachable }

func pageError(service string, err error) error {
	pe := &PageError{Service: service, Kind: apierr.KindOf(err), Msg: err.Error(), Err: err}
	var ae *apierr.Error
	if errors.As(err, &ae) && ae.Body != "" {
		pe.Msg = fmt.Sprintf("%d: %s", ae.Status, ae.Body)
	}
	if pe.Kind == "" {
		pe.Kind = apierr.Rejected
	}
	return pe
}

type Service struct {
	Store       Store
	Assignments AssignmentCreator
	Notebooks   Notebooks
	Files       FileReader
	Tokens      TokenSigner
	HubURL      string
	Log         *logger.Logger
}

func NewService(st Store, assignments AssignmentCreator, notebooks Notebooks, files FileReader, tokens TokenSigner, hubURL string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		Store:       st,
		Assignments: assignments,
		Notebooks:   notebooks,
		Files:       files,
		Tokens:      tokens,
		HubURL:      strings.TrimRight(hubURL, "/"),
		Log:         log,
	}
}

// Open prepares everything the activity page needs: the generated assignment
// (autograded activities only, created once), the user's hub server and
// notebook copy, and the login link with the signed hub token.
func (s *Service) Open(ctx context.Context, v Viewer, instanceID int64) (View, error) {
	user := strings.ToLower(v.Username)
	in, err := s.Store.GetInstance(ctx, instanceID)
	if err != nil {
		return View{}, err
	}
	token, err := s.Tokens.Sign(user)
	if err != nil {
		return View{}, err
	}

	if in.Autograded && in.Assignment == nil {
		name, err := s.Assignments.CreateAssignment(ctx, gradeservice.AssignmentRef{
			CourseID: in.CourseID, InstanceID: in.ID, ContextID: in.ContextID,
		}, token)
		if err != nil {
			s.Log.Warn("create assignment failed", "instance", in.ID, "error", err)
			return View{}, pageError("gradeservice", err)
		}
		in.Assignment = &name
	}

	nb, src, err := s.notebook(ctx, in)
	if err != nil {
		return View{}, err
	}
	path, err := s.Notebooks.NotebookPath(ctx, user, nb, src)
	if err != nil {
		return View{}, pageError("jupyterhub", err)
	}

	view := View{
		Name:       in.Name,
		LoginURL:   s.HubURL + path + "?auth_token=" + token,
		Autograded: in.Autograded,
		Reset: ResetParams{
			User: user, ContextID: in.ContextID, CourseID: in.CourseID, InstanceID: in.ID, Autograded: in.Autograded,
		},
	}
	if in.Autograded {
		view.Submit = &SubmitParams{User: user, CourseID: in.CourseID, InstanceID: in.ID, Filename: nb.Filename, Token: token}
	}
	return view, nil
}

// Reset replaces the user's notebook copy with the stored source.
func (s *Service) Reset(ctx context.Context, user string, instanceID int64) error {
	user = strings.ToLower(user)
	in, err := s.Store.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if in.Autograded && in.Assignment == nil {
		return fmt.Errorf("reset: instance %d has no assignment yet: %w", in.ID, storage.ErrNoFile)
	}
	nb, src, err := s.notebook(ctx, in)
	if err != nil {
		return err
	}
	if err := s.Notebooks.ResetNotebook(ctx, user, nb, src); err != nil {
		return pageError("jupyterhub", err)
	}
	return nil
}

// notebook resolves the hub file of an instance and the source of its
// content: the generated assignment for autograded activities, otherwise the
// uploaded package.
func (s *Service) notebook(ctx context.Context, in Instance) (jupyterhub.NotebookFile, jupyterhub.Source, error) {
	area := storage.AreaPackage
	if in.Autograded {
		area = storage.AreaAssignment
	}
	f, err := s.Files.First(ctx, in.ContextID, storage.Component, area, 0)
	if err != nil {
		return jupyterhub.NotebookFile{}, nil, fmt.Errorf("instance %d: %s file: %w", in.ID, area, err)
	}
	name := f.Filename
	if in.Autograded && in.Assignment != nil {
		name = *in.Assignment
	}
	nb := jupyterhub.NotebookFile{CourseID: in.CourseID, InstanceID: in.ID, Filename: name}
	src := func(ctx context.Context) ([]byte, error) { return s.Files.Content(ctx, f) }
	return nb, src, nil
}
