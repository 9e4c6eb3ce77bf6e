package http

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	domain "hls2mp4/internal/domain/conversion"
)

//go:embed templates/progress.html
var templateFS embed.FS

var progressPage = template.Must(template.ParseFS(templateFS, "templates/progress.html"))

type conversionUseCases interface {
	StartConversion(rawURL string) (domain.Job, error)
	Job(id string) (domain.Job, error)
	OpenArtifact(id string) (domain.Job, *os.File, error)
}

// PageSettings are the client-side subscription parameters embedded in the progress page.
type PageSettings struct {
	PusherKey     string
	PusherCluster string
}

type Handler struct {
	conversions conversionUseCases
	page        PageSettings
	logger      *slog.Logger
}

// NewHandler wires HTTP handlers with application use cases.
func NewHandler(conversions conversionUseCases, page PageSettings, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{conversions: conversions, page: page, logger: logger}
}

type progressPageData struct {
	JobID         string
	Channel       string
	Event         string
	DownloadURL   string
	StatusURL     string
	PusherKey     string
	PusherCluster string
}

// StartConversion handles GET /?url=<playlist>. It responds before the conversion finishes.
func (h *Handler) StartConversion(w http.ResponseWriter, r *http.Request) {
	source := strings.TrimSpace(r.URL.Query().Get("url"))
	if source == "" {
		http.Error(w, "m3u8 URL is required", http.StatusBadRequest)
		return
	}

	job, err := h.conversions.StartConversion(source)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSource) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("start conversion", "error", err)
		http.Error(w, "could not start conversion", http.StatusInternalServerError)
		return
	}

	data := progressPageData{
		JobID:         job.ID,
		Channel:       domain.ChannelName(job.ID),
		Event:         domain.ProgressEventName,
		DownloadURL:   "/download?fileId=" + url.QueryEscape(job.ID),
		StatusURL:     "/status?fileId=" + url.QueryEscape(job.ID),
		PusherKey:     h.page.PusherKey,
		PusherCluster: h.page.PusherCluster,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := progressPage.Execute(w, data); err != nil {
		h.logger.Error("render progress page", "job_id", job.ID, "error", err)
	}
}

// Download handles GET /download?fileId=<id>.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.URL.Query().Get("fileId"))
	if jobID == "" {
		http.Error(w, "Invalid file ID.", http.StatusBadRequest)
		return
	}

	job, file, err := h.conversions.OpenArtifact(jobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotReady):
			http.Error(w, "Conversion still in progress.", http.StatusConflict)
		case errors.Is(err, domain.ErrJobNotFound),
			errors.Is(err, domain.ErrArtifactNotFound),
			errors.Is(err, domain.ErrConversionFailed):
			http.Error(w, "Invalid file ID.", http.StatusBadRequest)
		default:
			h.logger.Error("open artifact", "job_id", jobID, "error", err)
			http.Error(w, "could not open file", http.StatusInternalServerError)
		}
		return
	}
	defer file.Close()

	if err := streamAttachment(w, file, job.ID+domain.ArtifactExt, "video/mp4"); err != nil {
		h.logger.Error("error sending file", "job_id", job.ID, "error", err)
	}
}

// Status handles GET /status?fileId=<id> for clients that subscribed late.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.URL.Query().Get("fileId"))
	if jobID == "" {
		http.Error(w, "Invalid file ID.", http.StatusBadRequest)
		return
	}

	job, err := h.conversions.Job(jobID)
	if err != nil {
		http.Error(w, "Invalid file ID.", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":       job.ID,
		"status":   job.Status,
		"progress": job.Progress,
		"error":    job.Error,
	})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
