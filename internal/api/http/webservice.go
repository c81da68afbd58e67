package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-jupyter/internal/activity"
	auth "github.com/mind-engage/mindengage-jupyter/internal/auth/middleware"
	"github.com/mind-engage/mindengage-jupyter/internal/logger"
	"github.com/mind-engage/mindengage-jupyter/internal/submission"
)

// tokenFor checks that tok is a hub login token issued for user.
func tokenFor(tokens *auth.HubTokens, tok, user string) error {
	name, err := tokens.Verify(tok)
	if err != nil {
		return err
	}
	if name != strings.ToLower(user) {
		return errors.New("token issued for another user")
	}
	return nil
}

// POST /webservice/submit_notebook  {user, courseid, instanceid, filename, token}
// Always answers 200 with the result list once the request is authenticated;
// grading failures are reported inside the list.
func SubmitNotebookHandler(rec *submission.Reconciler, tokens *auth.HubTokens, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submission.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.User == "" || req.Filename == "" || req.CourseID <= 0 || req.InstanceID <= 0 {
			http.Error(w, "user, courseid, instanceid and filename required", http.StatusBadRequest)
			return
		}
		if err := tokenFor(tokens, req.Token, req.User); err != nil {
			log.Warn("submit rejected", "user", req.User, "error", err)
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		req.User = strings.ToLower(req.User)
		res := rec.Reconcile(r.Context(), req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	}
}

// POST /webservice/reset_notebook  {user, instanceid, token}
func ResetNotebookHandler(svc *activity.Service, tokens *auth.HubTokens, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			User       string `json:"user"`
			InstanceID int64  `json:"instanceid"`
			Token      string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.User == "" || req.InstanceID <= 0 {
			http.Error(w, "user and instanceid required", http.StatusBadRequest)
			return
		}
		if err := tokenFor(tokens, req.Token, req.User); err != nil {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		err := svc.Reset(r.Context(), req.User, req.InstanceID)
		var pe *activity.PageError
		switch {
		case err == nil:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]bool{"reset": true})
		case errors.Is(err, activity.ErrNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.As(err, &pe):
			log.Warn("reset failed", "user", req.User, "instance", req.InstanceID, "error", err)
			http.Error(w, pe.Error(), http.StatusBadGateway)
		default:
			log.Error("reset failed", "user", req.User, "instance", req.InstanceID, "error", err)
			http.Error(w, "reset failed", http.StatusInternalServerError)
		}
	}
}
