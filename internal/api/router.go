package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/tinywideclouds/go-push-relay/internal/metrics"
	"github.com/tinywideclouds/go-push-relay/pkg/push"
)

const unmatchedEndpoint = "unmatched"

// allowedRequestHeaders are the request headers a cross-origin caller may send.
const allowedRequestHeaders = "Content-Type, Authorization, " + EncryptedHeader

type route struct {
	methods []string
	handler http.HandlerFunc
}

// Router maps (method, path) to exactly one handler. Paths are resolved
// before methods, so an unknown path is always a 404 whatever the method.
// It is mounted as the catch-all on the server mux.
type Router struct {
	basePath string
	routes   map[string]route
	cors     func(http.Handler) http.Handler
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewRouter registers the send endpoints and, when uploads is non-nil, the
// encrypted upload endpoints under basePath.
func NewRouter(basePath string, pushAPI *PushAPI, uploads *UploadAPI, m *metrics.Metrics, logger *slog.Logger) *Router {
	rt := &Router{
		basePath: strings.TrimSuffix(basePath, "/"),
		routes:   make(map[string]route),
		metrics:  m,
		logger:   logger.With("component", "Router"),
	}

	rt.handle("/send-single", pushAPI.SendSingle, http.MethodPost)
	rt.handle("/send-batch", pushAPI.SendBatch, http.MethodPost)
	rt.handle("/send-gzip", pushAPI.SendGzip, http.MethodPost)
	rt.handle("/send-headless", pushAPI.SendHeadless, http.MethodPost)

	if uploads != nil {
		rt.handle("/decrypt-file", uploads.DecryptFile, http.MethodPost)
		rt.handle("/upload-encrypted", uploads.UploadEncrypted, http.MethodPatch, http.MethodPost)
	}
	return rt
}

func (rt *Router) handle(path string, h http.HandlerFunc, methods ...string) {
	rt.routes[rt.basePath+path] = route{methods: methods, handler: h}
}

// WithCORS wraps every matched route in mw. Preflight requests still resolve
// the path here first and are answered with 204.
func (rt *Router) WithCORS(mw func(http.Handler) http.Handler) *Router {
	rt.cors = mw
	return rt
}

// Paths lists the registered endpoint paths.
func (rt *Router) Paths() []string {
	paths := make([]string, 0, len(rt.routes))
	for p := range rt.routes {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}

	rte, ok := rt.routes[r.URL.Path]
	endpoint := r.URL.Path
	if !ok {
		endpoint = unmatchedEndpoint
	}
	defer func() {
		rt.metrics.ObserveRequest(endpoint, rec.status(), time.Since(start))
	}()

	if !ok {
		rt.logger.Debug("Unknown endpoint", "method", r.Method, "path", r.URL.Path)
		writeError(rec, &push.RoutingError{Status: http.StatusNotFound, Reason: "Endpoint not found."})
		return
	}

	allow := strings.Join(append(slices.Clone(rte.methods), http.MethodOptions), ", ")
	if r.Method == http.MethodOptions {
		rt.preflight(rec, r, allow)
		return
	}

	var h http.Handler = rte.handler
	if !slices.Contains(rte.methods, r.Method) {
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Allow", allow)
			reason := fmt.Sprintf("Only %s requests are allowed.", strings.Join(rte.methods, " and "))
			writeError(w, &push.RoutingError{Status: http.StatusMethodNotAllowed, Reason: reason})
		})
	}
	if rt.cors != nil {
		h = rt.cors(h)
	}
	h.ServeHTTP(rec, r)
}

// preflight lets the CORS middleware set its origin headers, then commits a
// 204 itself so the middleware cannot short-circuit the status.
func (rt *Router) preflight(w http.ResponseWriter, r *http.Request, allow string) {
	if rt.cors != nil {
		noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		rt.cors(noop).ServeHTTP(headerWriter{header: w.Header()}, r)
	}
	h := w.Header()
	h.Set("Allow", allow)
	if r.Header.Get("Origin") != "" {
		h.Set("Access-Control-Allow-Methods", allow)
		h.Set("Access-Control-Allow-Headers", allowedRequestHeaders)
	}
	w.WriteHeader(http.StatusNoContent)
}

// headerWriter shares the real header map but discards status and body.
type headerWriter struct {
	header http.Header
}

func (h headerWriter) Header() http.Header { return h.header }
func (headerWriter) Write(b []byte) (int, error) { return len(b), nil }
func (headerWriter) WriteHeader(int) {}

// statusRecorder captures the status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.code == 0 {
		s.code = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.code == 0 {
		s.code = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) status() int {
	if s.code == 0 {
		return http.StatusOK
	}
	return s.code
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
