package server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/rs/cors"
)

// recoverPanics turns a handler panic into a 500 JSON response
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.internalError(w, r, fmt.Errorf("panic: %v", v))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// internalError logs err and writes a 500. The detail is hidden in production.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)

	msg := "Internal server error"
	if !s.cfg.IsProduction() {
		msg = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":     msg,
		"timestamp": timestamp(time.Now()),
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("X-XSS-Protection", "0")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Resource-Policy", "cross-origin")
		h.Set("X-DNS-Prefetch-Control", "off")
		next.ServeHTTP(w, r)
	})
}

// cors allows every origin in development and the CORS_ORIGIN list otherwise.
// Requests without an Origin header are never blocked.
func (s *Server) cors() *cors.Cors {
	allowed := s.cfg.CORSOrigins
	dev := !s.cfg.IsProduction()
	return cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			return dev || slices.Contains(allowed, origin)
		},
		AllowCredentials:     true,
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:       []string{"Content-Type", "Authorization", "X-Requested-With"},
		OptionsSuccessStatus: http.StatusOK,
	})
}

// limitBody caps request bodies; image uploads get a larger allowance
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := int64(maxBodySize)
		if r.Method == http.MethodPost && r.URL.Path == "/api/images" {
			limit = maxUploadSize
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

const maxLoggedBody = 4 << 10

// statusRecorder keeps the status code and the head of the response body
type statusRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(p []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	if room := maxLoggedBody - rec.body.Len(); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		rec.body.Write(p[:room])
	}
	return rec.ResponseWriter.Write(p)
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	rec.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		ua := r.UserAgent()
		if len(ua) > 100 {
			ua = ua[:100]
		}
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.RequestURI(),
			"status", rec.status,
			"duration", time.Since(start).Round(time.Microsecond),
			"user_agent", ua,
			"ip", clientIP(r),
		)
		if rec.body.Len() > 0 && rec.Header().Get("Content-Encoding") == "" && isJSON(rec.Header().Get("Content-Type")) {
			s.logger.Debug("response", "path", r.URL.Path, "body", redact(rec.body.String()))
		}
	})
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json")
}

var (
	emailRedact = regexp.MustCompile(`[^\s@"<>]+@[^\s@"<>]+\.[^\s@"<>]+`)
	fieldRedact = regexp.MustCompile(`"(name|email|message)"\s*:\s*"(?:[^"\\]|\\.)*"`)
)

// redact masks personal data in a logged body
func redact(body string) string {
	body = fieldRedact.ReplaceAllString(body, `"$1":"[redacted]"`)
	return emailRedact.ReplaceAllString(body, "[email]")
}

// clientIP is the remote host without port
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
