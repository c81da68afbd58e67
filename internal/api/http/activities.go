package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-jupyter/internal/activity"
	"github.com/mind-engage/mindengage-jupyter/internal/logger"
	"github.com/mind-engage/mindengage-jupyter/internal/storage"
)

const maxPackageSize = 32 << 20

type Files interface {
	Store(ctx context.Context, ref storage.FileRef, content []byte) (storage.File, error)
	List(ctx context.Context, contextID int64, component, area string, itemID int64) ([]storage.File, error)
	First(ctx context.Context, contextID int64, component, area string, itemID int64) (storage.File, error)
	Content(ctx context.Context, f storage.File) ([]byte, error)
	DeleteArea(ctx context.Context, contextID int64, component, area string) error
}

type fileOut struct {
	Area     string `json:"area"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Hash     string `json:"contenthash"`
}

type activityOut struct {
	activity.Instance
	Questions []activity.Question `json:"questions"`
	Files     []fileOut           `json:"files"`
}

func instanceParam(w http.ResponseWriter, r *http.Request, st activity.Store) (activity.Instance, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return activity.Instance{}, false
	}
	in, err := st.GetInstance(r.Context(), id)
	if errors.Is(err, activity.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return activity.Instance{}, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return activity.Instance{}, false
	}
	return in, true
}

// POST /activities  {"course":..,"context_id":..,"name":..,"autograded":..}
func CreateActivityHandler(st activity.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in activity.Instance
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if in.CourseID <= 0 || in.ContextID <= 0 {
			http.Error(w, "course and context_id required", http.StatusBadRequest)
			return
		}
		in.ID, in.Assignment = 0, nil
		out, err := st.CreateInstance(r.Context(), in)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(out)
	}
}

// GET /activities/{id}
func GetActivityHandler(st activity.Store, files Files) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := instanceParam(w, r, st)
		if !ok {
			return
		}
		qs, err := st.ListQuestions(r.Context(), in.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out := activityOut{Instance: in, Questions: qs, Files: []fileOut{}}
		for _, area := range []string{storage.AreaPackage, storage.AreaAssignment} {
			fs, err := files.List(r.Context(), in.ContextID, storage.Component, area, 0)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			for _, f := range fs {
				out.Files = append(out.Files, fileOut{Area: area, Filename: f.Filename, Size: f.Size, Hash: f.ContentHash})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

// POST /activities/{id}/package  (multipart field "file")
// Replaces the package and drops the generated assignment so the next view
// regenerates it.
func UploadPackageHandler(st activity.Store, files Files, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := instanceParam(w, r, st)
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxPackageSize)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, "read upload", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		for _, area := range []string{storage.AreaPackage, storage.AreaAssignment} {
			if err := files.DeleteArea(ctx, in.ContextID, storage.Component, area); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		stored, err := files.Store(ctx, storage.FileRef{ContextID: in.ContextID, Area: storage.AreaPackage, Filename: hdr.Filename}, content)
		if err != nil {
			http.Error(w, "store error: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if err := st.SetAssignment(ctx, in.ID, in.CourseID, nil); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		log.Info("package uploaded", "instance", in.ID, "file", stored.Filename, "bytes", stored.Size)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fileOut{Area: storage.AreaPackage, Filename: stored.Filename, Size: stored.Size, Hash: stored.ContentHash})
	}
}

// GET /activities/{id}/package
func DownloadPackageHandler(st activity.Store, files Files) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := instanceParam(w, r, st)
		if !ok {
			return
		}
		f, err := files.First(r.Context(), in.ContextID, storage.Component, storage.AreaPackage, 0)
		if errors.Is(err, storage.ErrNoFile) {
			http.Error(w, "no package", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		b, err := files.Content(r.Context(), f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-ipynb+json")
		w.Header().Set("Content-Disposition", `attachment; filename="`+f.Filename+`"`)
		_, _ = w.Write(b)
	}
}

// PUT /activities/{id}/questions  [{"questionnr":1,"maxpoints":5}, ...]
func SetQuestionsHandler(st activity.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := instanceParam(w, r, st)
		if !ok {
			return
		}
		var qs []activity.Question
		if err := json.NewDecoder(r.Body).Decode(&qs); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		seen := map[int]bool{}
		for _, q := range qs {
			if q.QuestionNr <= 0 || q.MaxPoints < 0 || seen[q.QuestionNr] {
				http.Error(w, "invalid question list", http.StatusBadRequest)
				return
			}
			seen[q.QuestionNr] = true
		}
		if err := st.SetQuestions(r.Context(), in.ID, qs); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
