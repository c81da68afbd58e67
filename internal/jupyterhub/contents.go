package jupyterhub

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
)

// NotebookFile lives at {course}/{instance}/{filename} in a user's workspace.
type NotebookFile struct {
	CourseID   int64
	InstanceID int64
	Filename   string
}

func (f NotebookFile) Path() string {
	return fmt.Sprintf("%d/%d/%s", f.CourseID, f.InstanceID, url.PathEscape(f.Filename))
}

// Dirs lists the parent directories, outermost first.
func (f NotebookFile) Dirs() []string {
	course := strconv.FormatInt(f.CourseID, 10)
	return []string{course, course + "/" + strconv.FormatInt(f.InstanceID, 10)}
}

func DeepLink(f NotebookFile) string {
	return "/hub/user-redirect/lab/tree/" + f.Path()
}

func contentsRoute(user, p string) string {
	return "/user/" + url.PathEscape(user) + "/api/contents/" + p
}

type contentModel struct {
	Type    string `json:"type"`
	Format  string `json:"format,omitempty"`
	Content any    `json:"content,omitempty"`
}

func directoryModel() contentModel { return contentModel{Type: "directory"} }

func fileModel(b []byte) contentModel {
	return contentModel{Type: "file", Format: "base64", Content: base64.StdEncoding.EncodeToString(b)}
}

func (m contentModel) bytes() ([]byte, error) {
	s, ok := m.Content.(string)
	if !ok {
		return nil, fmt.Errorf("notebook content: unexpected %T", m.Content)
	}
	switch m.Format {
	case "base64":
		return base64.StdEncoding.DecodeString(s)
	case "text", "":
		return []byte(s), nil
	default:
		return nil, fmt.Errorf("notebook content: unsupported format %q", m.Format)
	}
}
