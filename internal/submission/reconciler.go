// Package submission turns a gradeservice answer into the per-question result
// list returned to the notebook client.
package submission

import (
	"context"
	"fmt"

	"github.com/mind-engage/mindengage-jupyter/internal/activity"
	"github.com/mind-engage/mindengage-jupyter/internal/gradeservice"
	"github.com/mind-engage/mindengage-jupyter/internal/logger"
)

// ErrorTypeTest is the only error type the client knows how to display.
const ErrorTypeTest = "test"

type Grader interface {
	SubmitAssignment(ctx context.Context, s gradeservice.Submission, token string) ([]gradeservice.GradedQuestion, error)
}

type PointsStore interface {
	UpsertPoints(ctx context.Context, instanceID int64, user string, pts []activity.Points) error
	ListPoints(ctx context.Context, instanceID int64, user string) ([]activity.Points, error)
	GetQuestion(ctx context.Context, instanceID int64, nr int) (activity.Question, error)
}

type Request struct {
	User       string `json:"user"`
	CourseID   int64  `json:"courseid"`
	InstanceID int64  `json:"instanceid"`
	Filename   string `json:"filename"`
	Token      string `json:"token"`
}

type QuestionResult struct {
	Question  int     `json:"question"`
	Reached   float64 `json:"reached"`
	Max       float64 `json:"max"`
	Error     bool    `json:"error,omitempty"`
	ErrorType string  `json:"errortype,omitempty"`
}

// Failed is the single-entry result returned for every failure.
func Failed() []QuestionResult {
	return []QuestionResult{{Error: true, ErrorType: ErrorTypeTest}}
}

type Reconciler struct {
	Grader Grader
	Store  PointsStore
	Log    *logger.Logger
}

func New(g Grader, st PointsStore, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{Grader: g, Store: st, Log: log}
}

// Reconcile submits the notebook, stores the returned totals and reports
// reached/max per stored question in insertion order. Any failure collapses
// into Failed(); the cause only reaches the log.
func (r *Reconciler) Reconcile(ctx context.Context, req Request) []QuestionResult {
	res, err := r.reconcile(ctx, req)
	if err != nil {
		r.Log.Warn("submission failed", "user", req.User, "instance", req.InstanceID, "error", err)
		return Failed()
	}
	return res
}

func (r *Reconciler) reconcile(ctx context.Context, req Request) ([]QuestionResult, error) {
	graded, err := r.Grader.SubmitAssignment(ctx, gradeservice.Submission{
		User:       req.User,
		CourseID:   req.CourseID,
		InstanceID: req.InstanceID,
		Filename:   req.Filename,
	}, req.Token)
	if err != nil {
		return nil, err
	}

	pts := make([]activity.Points, 0, len(graded))
	for _, g := range graded {
		pts = append(pts, activity.Points{InstanceID: req.InstanceID, User: req.User, QuestionNr: g.Question, Points: g.Points})
	}
	if err := r.Store.UpsertPoints(ctx, req.InstanceID, req.User, pts); err != nil {
		return nil, fmt.Errorf("store points: %w", err)
	}

	rows, err := r.Store.ListPoints(ctx, req.InstanceID, req.User)
	if err != nil {
		return nil, fmt.Errorf("list points: %w", err)
	}
	out := make([]QuestionResult, 0, len(rows))
	for _, row := range rows {
		q, err := r.Store.GetQuestion(ctx, req.InstanceID, row.QuestionNr)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", row.QuestionNr, err)
		}
		out = append(out, QuestionResult{Question: row.QuestionNr, Reached: row.Points, Max: q.MaxPoints})
	}
	return out, nil
}
