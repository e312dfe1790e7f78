package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"media-forge/internal/apperrors"
	"media-forge/internal/logging"
	"media-forge/internal/mediatype"
	"media-forge/internal/middleware"
	"media-forge/internal/process"
	"media-forge/internal/tempfile"
)

// Response headers set on file results.
const (
	headerMediaKind = "X-Media-Kind"
	headerNotice    = "X-Forge-Notice"
)

// sendTimeout bounds how long a client may take to receive a result. The
// server itself has no write timeout since jobs can run for minutes.
const sendTimeout = 5 * time.Minute

// ProcessRequest is the body of POST /api/process/{name}.
type ProcessRequest struct {
	Inputs []string          `json:"inputs"`
	Args   map[string]string `json:"args,omitempty"`
}

// TextResponse is returned by transforms that produce text.
type TextResponse struct {
	Text    string   `json:"text"`
	Notices []string `json:"notices,omitempty"`
}

// TransformInfo describes one catalog entry.
type TransformInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Inputs      [][]string `json:"inputs"`
	Mode        string     `json:"mode"`
	Output      string     `json:"output"`
}

// ListTransforms returns the transform catalog.
func (h *Handlers) ListTransforms(w http.ResponseWriter, _ *http.Request) {
	list := h.catalog.List()
	infos := make([]TransformInfo, 0, len(list))
	for _, t := range list {
		info := TransformInfo{
			Name:        t.Name,
			Description: t.Description,
			Inputs:      make([][]string, len(t.Inputs)),
			Mode:        t.Mode.String(),
			Output:      "text",
		}
		if t.ExpectFile {
			info.Output = "file"
		}
		for i, kinds := range t.Inputs {
			info.Inputs[i] = make([]string, len(kinds))
			for j, k := range kinds {
				info.Inputs[i][j] = string(k)
			}
		}
		infos = append(infos, info)
	}
	writeJSONStatus(w, http.StatusOK, infos)
}

// GetQueue returns the admission queue state.
func (h *Handlers) GetQueue(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, h.queue.Stats())
}

// Process downloads the listed inputs, runs the named transform and
// streams back the resulting file, or a JSON body for text results.
func (h *Handlers) Process(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	t, ok := h.catalog.Get(name)
	if !ok {
		writeJSONError(w, fmt.Sprintf("Unknown transform %q.", name), http.StatusNotFound, nil)
		return
	}

	var body ProcessRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest, nil)
		return
	}

	ctx := r.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	id := middleware.RequestIDFromContext(ctx)
	rec := &process.Recorder{}
	res, err := tempfile.Scope(ctx, h.tempDir, func(ctx context.Context, _ *tempfile.Session) (*process.Result, error) {
		return h.proc.Process(ctx, process.Request{
			ID:        id,
			Transform: t,
			Args:      process.Args(body.Args),
			Inputs:    process.URLs(body.Inputs),
			Reporter:  rec,
		})
	})
	if err != nil {
		code, msg := errorStatus(err)
		if code >= http.StatusInternalServerError {
			logging.ForRequest(id).Error("%s failed: %v", t.Name, err)
		}
		writeJSONError(w, msg, code, rec.Notices())
		return
	}

	if res.File == nil {
		writeJSONStatus(w, http.StatusOK, TextResponse{Text: res.Text, Notices: rec.Notices()})
		return
	}
	h.sendFile(w, r, t.Name, res, rec.Notices())
}

func (h *Handlers) sendFile(w http.ResponseWriter, r *http.Request, name string, res *process.Result, notices []string) {
	path := res.File.Path
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("failed to remove result %s: %v", path, err)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		logging.Error("failed to open result %s: %v", path, err)
		writeJSONError(w, "Internal server error.", http.StatusInternalServerError, notices)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		logging.Error("failed to stat result %s: %v", path, err)
		writeJSONError(w, "Internal server error.", http.StatusInternalServerError, notices)
		return
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	w.Header().Set("Content-Type", mediatype.MimeType(ext))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"."+ext))
	w.Header().Set(headerMediaKind, string(res.Kind))
	for _, n := range notices {
		w.Header().Add(headerNotice, n)
	}
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(sendTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logging.Debug("could not set write deadline: %v", err)
	}
	http.ServeContent(w, r, "", info.ModTime(), f)
}

// errorStatus maps a pipeline error to an HTTP status and a message safe
// to return. Only user errors carry their own text.
func errorStatus(err error) (int, string) {
	var invalid *mediatype.InvalidError
	switch {
	case apperrors.IsUser(err):
		msg, _ := apperrors.UserMessage(err)
		return http.StatusBadRequest, msg
	case errors.As(err, &invalid):
		return http.StatusUnsupportedMediaType, "Unsupported or unreadable media file."
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Request timed out."
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "Request was canceled."
	default:
		return http.StatusInternalServerError, "Internal server error."
	}
}
