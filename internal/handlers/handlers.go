package handlers

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Brownie44l1/deepfake-detector/internal/dataset"
	"github.com/Brownie44l1/deepfake-detector/internal/metrics"
	"github.com/Brownie44l1/deepfake-detector/internal/model"
)

// AllowedExtensions are the upload types accepted by /predict.
var AllowedExtensions = []string{"png", "jpg", "jpeg", "gif", "bmp", "webp"}

// Classifier is what the handlers need from the model service.
type Classifier interface {
	Predict(ctx context.Context, img image.Image) (*model.Prediction, error)
	Status() model.Status
	Info() (*model.Info, error)
}

// Options configure upload handling.
type Options struct {
	UploadDir      string
	MaxUploadBytes int64
}

type Handler struct {
	classifier Classifier
	opts       Options
	metrics    *metrics.Metrics
	log        *zap.Logger
}

func NewHandler(classifier Classifier, opts Options, m *metrics.Metrics, log *zap.Logger) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	if opts.UploadDir == "" {
		opts.UploadDir = os.TempDir()
	}
	if m == nil {
		m = metrics.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{classifier: classifier, opts: opts, metrics: m, log: log}
}

type predictResponse struct {
	model.Prediction
	Filename string `json:"filename"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelPath   string `json:"model_path"`
	ModelExists bool   `json:"model_exists"`
	ModelLoaded bool   `json:"model_loaded"`
}

// Health reports liveness and whether the model file is present and loaded.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := h.classifier.Status()
	respondJSON(w, healthResponse{
		Status:      "ok",
		ModelPath:   st.ModelPath,
		ModelExists: st.ModelExists,
		ModelLoaded: st.ModelLoaded,
	}, http.StatusOK)
}

// Info returns the static model description.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info, err := h.classifier.Info()
	if errors.Is(err, model.ErrNotLoaded) {
		respondError(w, "Model not loaded", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		h.log.Error("info failed", zap.Error(err))
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, info, http.StatusOK)
}

// Predict classifies one uploaded image sent as multipart field "file". The
// upload is stored under the upload directory for the duration of the
// request and removed afterwards whatever the outcome.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.ContentLength > h.opts.MaxUploadBytes {
		h.tooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		if isTooLarge(err) {
			h.tooLarge(w)
			return
		}
		respondError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		respondError(w, "No file selected", http.StatusBadRequest)
		return
	}
	if !allowedFile(header.Filename) {
		respondError(w, "File type not allowed. Allowed: "+strings.Join(AllowedExtensions, ", "), http.StatusBadRequest)
		return
	}

	path, err := h.saveUpload(file, header.Filename)
	if err != nil {
		h.log.Error("failed to save upload", zap.Error(err))
		respondError(w, "Failed to save upload", http.StatusInternalServerError)
		return
	}
	defer h.removeUpload(path)

	h.log.Debug("received file", zap.String("filename", header.Filename), zap.Int64("size", header.Size))

	img, err := dataset.DecodeFile(path)
	if err != nil {
		respondError(w, "Invalid image format", http.StatusBadRequest)
		return
	}

	result, err := h.classifier.Predict(r.Context(), img)
	switch {
	case errors.Is(err, model.ErrNotLoaded):
		respondError(w, "Model not loaded", http.StatusServiceUnavailable)
		return
	case err != nil:
		h.log.Error("prediction failed", zap.String("filename", header.Filename), zap.Error(err))
		respondError(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	h.metrics.ObservePrediction(result.Label)
	h.log.Info("prediction",
		zap.String("filename", header.Filename),
		zap.String("label", result.Label),
		zap.Float64("confidence", result.Confidence))

	respondJSON(w, predictResponse{Prediction: *result, Filename: header.Filename}, http.StatusOK)
}

// NotFound answers every unknown path.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, "Endpoint not found", http.StatusNotFound)
}

func (h *Handler) tooLarge(w http.ResponseWriter) {
	respondError(w, fmt.Sprintf("File too large (max %dMB)", h.opts.MaxUploadBytes>>20), http.StatusRequestEntityTooLarge)
}

func (h *Handler) saveUpload(src multipart.File, filename string) (string, error) {
	if err := os.MkdirAll(h.opts.UploadDir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(h.opts.UploadDir, uuid.NewString()+"_"+secureFilename(filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (h *Handler) removeUpload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		h.log.Warn("failed to remove upload", zap.String("path", path), zap.Error(err))
	}
}

func allowedFile(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// secureFilename keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with an underscore.
func secureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "upload"
	}
	return out
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
