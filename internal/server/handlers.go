package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"imagecompressor/internal/batch"
	"imagecompressor/internal/compress"
	"imagecompressor/internal/contact"
	"imagecompressor/internal/mail"
	"imagecompressor/internal/models"
)

var errShuttingDown = errors.New("server is shutting down")

var allowedMIMETypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/webp",
	"image/gif",
	"image/bmp",
	"image/tiff",
}

// extensions accepted for each MIME type
var allowedExtensions = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/jpg":  {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/webp": {".webp"},
	"image/gif":  {".gif"},
	"image/bmp":  {".bmp"},
	"image/tiff": {".tiff", ".tif"},
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON body, answering 413/400 itself on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"message": "Request body too large"})
		return false
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid JSON body"})
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"timestamp":   timestamp(time.Now()),
		"version":     s.cfg.Version,
		"environment": s.cfg.Env,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error":     "Not found",
		"path":      r.URL.RequestURI(),
		"timestamp": timestamp(time.Now()),
	})
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var sub contact.Submission
	if !decodeJSON(w, r, &sub) {
		return
	}

	if missing := sub.Missing(); len(missing) > 0 {
		received := sub.Present()
		if received == nil {
			received = []string{}
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message":  "Missing required fields",
			"required": contact.RequiredFields,
			"received": received,
		})
		return
	}
	if err := sub.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	composed := contact.Compose(sub)
	id, err := s.mailer.Send(r.Context(), mail.Message{
		From:    s.cfg.FromEmail,
		To:      s.cfg.ToEmail,
		ReplyTo: composed.ReplyTo,
		Subject: composed.Subject,
		Text:    composed.Text,
		HTML:    composed.HTML,
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	if s.storage != nil {
		msg := &models.ContactMessage{
			MessageID: id,
			Name:      sub.Name,
			Email:     sub.Email,
			Subject:   sub.Subject,
			Body:      sub.Message,
		}
		if err := s.storage.SaveContact(msg); err != nil {
			s.logger.Warn("failed to store contact message", "id", id, "err", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "Message sent successfully",
		"id":        id,
		"timestamp": timestamp(time.Now()),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Upload endpoint configured",
		"maxFileSize":  fmt.Sprintf("%dMB", maxUploadSize>>20),
		"allowedTypes": allowedMIMETypes,
		"timestamp":    timestamp(time.Now()),
	})
}

// imageView is a record as the gallery sees it
type imageView struct {
	models.ImageRecord
	PreviewURL  string `json:"preview_url"`
	DownloadURL string `json:"download_url,omitempty"`
}

func newImageView(rec models.ImageRecord) imageView {
	v := imageView{ImageRecord: rec, PreviewURL: "/previews/" + rec.Preview}
	if rec.IsCompressed() {
		v.DownloadURL = "/api/images/" + rec.ID + "/download"
	}
	return v
}

func imageViews(recs []models.ImageRecord) []imageView {
	out := make([]imageView, len(recs))
	for i, rec := range recs {
		out[i] = newImageView(rec)
	}
	return out
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"images":   imageViews(s.registry.List()),
		"state":    s.batch.State(),
		"progress": s.batch.Progress(),
		"quality":  s.batch.Quality(),
	})
}

// validateUpload checks size, declared MIME type and extension
func validateUpload(fh *multipart.FileHeader) error {
	if fh.Size > maxUploadSize {
		return fmt.Errorf("File size exceeds %dMB limit", maxUploadSize>>20)
	}
	mimeType := strings.ToLower(fh.Header.Get("Content-Type"))
	if !slices.Contains(allowedMIMETypes, mimeType) {
		return fmt.Errorf("File type %s not allowed. Only images are permitted.", mimeType)
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !slices.Contains(allowedExtensions[mimeType], ext) {
		return fmt.Errorf("File extension %s not allowed", ext)
	}
	return nil
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleAddImages(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Expected multipart form with files")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "No files uploaded")
		return
	}

	sources := make([]compress.Source, 0, len(files))
	for _, fh := range files {
		if err := validateUpload(fh); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		data, err := readUpload(fh)
		if err != nil {
			s.internalError(w, r, fmt.Errorf("reading %s: %w", fh.Filename, err))
			return
		}
		sources = append(sources, compress.Source{
			Name: filepath.Base(fh.Filename),
			Type: strings.ToLower(fh.Header.Get("Content-Type")),
			Data: data,
		})
	}

	added, err := s.registry.Append(sources...)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"images": imageViews(added)})
}

func (s *Server) handleClearImages(w http.ResponseWriter, r *http.Request) {
	n, err := s.batch.ClearAll()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	removed, err := s.registry.RemoveByID(r.PathValue("id"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Image not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompressImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	out, err := s.batch.CompressOne(r.Context(), id)
	switch {
	case errors.Is(err, batch.ErrNotFound):
		writeError(w, http.StatusNotFound, "Image not found")
		return
	case errors.Is(err, batch.ErrAlreadyCompressed):
		writeError(w, http.StatusConflict, "Image is already compressed")
		return
	case errors.Is(err, compress.ErrDecode), errors.Is(err, compress.ErrEncode):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.internalError(w, r, err)
		return
	}

	rec, ok := s.registry.Get(id)
	if !ok {
		// removed while compressing
		writeError(w, http.StatusNotFound, "Image not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"image": newImageView(rec),
		"saved": out.Saved(),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Image not found")
		return
	}
	if !rec.IsCompressed() {
		writeError(w, http.StatusConflict, "Image is not compressed yet")
		return
	}

	format := models.FormatForType(rec.Type)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.CompressedData)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", models.OutputName(rec.Name, format)))
	w.Write(rec.CompressedData)
}

type reportView struct {
	Quality   int           `json:"quality"`
	Started   time.Time     `json:"started"`
	Finished  time.Time     `json:"finished"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Saved     int64         `json:"saved"`
	Failures  []failureView `json:"failures,omitempty"`
}

type failureView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

func newReportView(r batch.Report) reportView {
	v := reportView{
		Quality:   r.Quality,
		Started:   r.Started,
		Finished:  r.Finished,
		Total:     r.Total(),
		Succeeded: r.Succeeded(),
		Failed:    r.Failed(),
		Saved:     r.Saved(),
	}
	for _, o := range r.Failures() {
		v.Failures = append(v.Failures, failureView{ID: o.ID, Name: o.Name, Error: o.Err.Error()})
	}
	return v
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"state":    s.batch.State(),
		"progress": s.batch.Progress(),
		"quality":  s.batch.Quality(),
	}
	if last, ok := s.batch.LastReport(); ok {
		resp["last"] = newReportView(last)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.startBackground()
	switch {
	case errors.Is(err, batch.ErrBatchRunning):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case b.Total() == 0:
		writeJSON(w, http.StatusOK, map[string]any{"state": batch.Idle, "total": 0})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"state": batch.Running, "total": b.Total()})
}

// startBackground claims the batch and runs it on baseCtx. Close waits for it.
func (s *Server) startBackground() (*batch.Batch, error) {
	s.bgMu.Lock()
	defer s.bgMu.Unlock()

	if s.baseCtx.Err() != nil {
		return nil, errShuttingDown
	}
	b, err := s.batch.Begin()
	if err != nil {
		return nil, err
	}
	if b.Total() == 0 {
		return b, nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := b.Run(s.baseCtx); err != nil {
			s.logger.Warn("batch ended early", "err", err)
		}
	}()
	return b, nil
}

func (s *Server) handleSetQuality(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quality *int `json:"quality"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quality == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "quality is required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"quality": s.batch.SetQuality(*req.Quality)})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := s.previews.Open(r.PathValue("handle"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
