package http

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/mind-engage/mindengage-jupyter/internal/activity"
	auth "github.com/mind-engage/mindengage-jupyter/internal/auth/middleware"
	"github.com/mind-engage/mindengage-jupyter/internal/logger"
)

var viewTmpl = template.Must(template.New("view").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
{{if .Error}}
<div class="alert alert-danger" data-service="{{.Error.Service}}" data-kind="{{.Error.Kind}}">
  <strong>{{.Error.Service}} {{if .Error.Connect}}connection error{{else}}response error{{end}}</strong>
  <p>{{.Error.Msg}}</p>
</div>
{{else}}
<div id="mod-jupyter-loading"
     data-login="{{.View.LoginURL}}"
     data-autograded="{{.View.Autograded}}"
     {{with .Submit}}data-submit="{{.}}"{{end}}
     data-reset="{{.Reset}}">
  <p>Loading notebook&hellip;</p>
</div>
{{end}}
</body>
</html>
`))

type viewPage struct {
	Title  string
	View   activity.View
	Submit string
	Reset  string
	Error  *activity.PageError
}

// GET /view?id={instance}
// The session subject is the LMS username.
func ViewHandler(svc *activity.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
		if err != nil {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}
		user := auth.SubjectFromContext(r.Context())
		if user == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		v, err := svc.Open(r.Context(), activity.Viewer{Username: user}, id)
		page := viewPage{Title: v.Name}
		status := http.StatusOK
		var pe *activity.PageError
		switch {
		case err == nil:
			page.View = v
			if v.Submit != nil {
				b, _ := json.Marshal(v.Submit)
				page.Submit = string(b)
			}
			b, _ := json.Marshal(v.Reset)
			page.Reset = string(b)
		case errors.Is(err, activity.ErrNotFound):
			http.Error(w, "not found", http.StatusNotFound)
			return
		case errors.As(err, &pe):
			log.Warn("view failed", "instance", id, "service", pe.Service, "kind", pe.Kind, "error", pe.Err)
			page.Error = pe
			status = http.StatusBadGateway
		default:
			log.Error("view failed", "instance", id, "error", err)
			http.Error(w, "could not open activity", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := viewTmpl.Execute(w, page); err != nil {
			log.Error("render view", "error", err)
		}
	}
}
