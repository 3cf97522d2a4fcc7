package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/kirillkom/claim-intake/internal/config"
	"github.com/kirillkom/claim-intake/internal/core/domain"
	"github.com/kirillkom/claim-intake/internal/core/ports"
	"github.com/kirillkom/claim-intake/internal/infrastructure/imagefile"
	"github.com/kirillkom/claim-intake/internal/observability/metrics"
)

const (
	serviceName = "claim-intake-api"

	multipartOverheadBytes = 1 << 20
)

type Router struct {
	cfg     config.Config
	intake  ports.ClaimIntakeService
	samples ports.SampleCatalog
	metrics *metrics.HTTPServerMetrics
	logger  *slog.Logger
	limiter *rate.Limiter
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(
	cfg config.Config,
	intake ports.ClaimIntakeService,
	samples ports.SampleCatalog,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		cfg:     cfg,
		intake:  intake,
		samples: samples,
		logger:  slog.Default(),
	}
	if cfg.APIRateLimitRPS > 0 {
		burst := cfg.APIRateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		rt.limiter = rate.NewLimiter(rate.Limit(cfg.APIRateLimitRPS), burst)
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	limited := func(h http.HandlerFunc) http.Handler {
		return rateLimitMiddleware(rt.limiter, rt.recordRateLimited, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("POST /v1/intake/image", limited(rt.uploadImage))
	mux.Handle("POST /v1/intake/sample", limited(rt.selectSample))
	mux.Handle("POST /v1/intake/submit", limited(rt.submit))
	mux.HandleFunc("GET /v1/intake", rt.getIntake)
	mux.HandleFunc("GET /v1/samples", rt.listSamples)

	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(rt.logger, handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadImage(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.MaxImageBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxImageBytes+multipartOverheadBytes)
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	mimeType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		if byExt := imagefile.MIMEType(fileHeader.Filename); byExt != "" {
			mimeType = byExt
		}
	}
	img, err := imagefile.Read(file, fileHeader.Filename, mimeType, rt.cfg.MaxImageBytes)
	if err != nil {
		writeError(w, err)
		return
	}
	img.Origin = domain.OriginUpload

	view, err := rt.intake.SelectImage(img)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) selectSample(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	img, err := rt.samples.FetchSample(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := rt.intake.SelectImage(img)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// submit starts a submission. With ?wait=description or ?wait=triage the
// response is delayed until that stage resolves.
func (rt *Router) submit(w http.ResponseWriter, r *http.Request) {
	wait := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("wait")))
	if wait != "" && wait != "description" && wait != "triage" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "wait must be description or triage"})
		return
	}

	handle, err := rt.intake.Submit(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	switch wait {
	case "description":
		err = handle.WaitDescription(r.Context())
	case "triage":
		err = handle.WaitTriage(r.Context())
	default:
		writeJSON(w, http.StatusAccepted, rt.intake.View())
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.intake.View())
}

func (rt *Router) getIntake(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.intake.View())
}

func (rt *Router) listSamples(w http.ResponseWriter, r *http.Request) {
	names, err := rt.samples.ListSamples(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"images": names})
}

func (rt *Router) recordRateLimited(r *http.Request) {
	if rt.metrics != nil {
		rt.metrics.RecordRateLimited(serviceName, r.URL.Path)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
