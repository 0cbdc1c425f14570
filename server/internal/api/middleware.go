package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"periph.io/x/conn/v3/gpio"
)

// RequestIDHeader carries the per-request id in both directions.
const RequestIDHeader = "X-Request-Id"

const streamPath = "/ws/stream"

// chain wraps next, outermost first: request id, recording, status LED, auth.
func (h *Handler) chain(next http.Handler) http.Handler {
	if h.Auth != nil {
		next = h.Auth.Middleware(next)
	}
	next = h.statusLED(next)
	next = h.record(next)
	return requestID(next)
}

// requestID reuses an incoming id or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// record writes "<url> - <status>" to the event log and counts the request
// once the handler has returned.
func (h *Handler) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)

		slog.Debug("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.code,
			"duration", time.Since(start),
			"request_id", r.Header.Get(RequestIDHeader),
		)
		if h.Metrics != nil {
			h.Metrics.Request(sw.code)
		}
		if h.Log == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
		defer cancel()
		if err := h.Log.Record(ctx, fmt.Sprintf("%s - %d", r.URL.RequestURI(), sw.code)); err != nil {
			slog.Warn("api: event log write failed", "err", err)
			if h.Metrics != nil {
				h.Metrics.EventLogError()
			}
		}
	})
}

// statusLED lights the LED while a request is being handled. Streams are
// long-lived and left out.
func (h *Handler) statusLED(next http.Handler) http.Handler {
	if h.StatusLED == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == streamPath {
			next.ServeHTTP(w, r)
			return
		}
		if err := h.StatusLED.Out(gpio.High); err != nil {
			slog.Debug("api: status led", "err", err)
		}
		defer h.StatusLED.Out(gpio.Low) //nolint:errcheck
		next.ServeHTTP(w, r)
	})
}

// statusWriter captures the response code. It forwards Flush and Hijack so
// the stop routes and the WebSocket upgrade keep working behind it.
type statusWriter struct {
	http.ResponseWriter
	code  int
	wrote bool
}

func (s *statusWriter) WriteHeader(code int) {
	if !s.wrote {
		s.code, s.wrote = code, true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	s.wrote = true
	return s.ResponseWriter.Write(b)
}

func (s *statusWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("api: response writer cannot hijack")
	}
	s.code, s.wrote = http.StatusSwitchingProtocols, true
	return hj.Hijack()
}
