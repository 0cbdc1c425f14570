package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/railyard/railyard/pkg/types"
	"github.com/railyard/railyard/server/internal/auth"
	"github.com/railyard/railyard/server/internal/credentials"
	"github.com/railyard/railyard/server/internal/device"
	"github.com/railyard/railyard/server/internal/eventlog"
	"github.com/railyard/railyard/server/internal/gpio"
	"github.com/railyard/railyard/server/internal/lifecycle"
	"github.com/railyard/railyard/server/internal/metrics"
	"github.com/railyard/railyard/server/internal/profile"
	"github.com/railyard/railyard/server/internal/yard"
)

// Scanner returns nearby access points. *netinfo.Cache satisfies it.
type Scanner interface {
	Scan(ctx context.Context) ([]types.ScanResult, error)
}

// Network reports the state of the network interface. *netinfo.Reporter
// satisfies it.
type Network interface {
	Info() (types.NetworkInfo, error)
}

// Deps are the components the API serves. Metrics, Log, Stream and
// StatusLED may be nil.
type Deps struct {
	Yard        *yard.Yard
	Scanner     Scanner
	Network     Network
	Credentials *credentials.Store
	Lifecycle   *lifecycle.Controller
	Auth        *auth.Guard
	Log         *eventlog.Log
	Metrics     *metrics.Registry
	Stream      http.Handler
	StatusLED   gpio.Pin
}

// Handler is the HTTP handler for the whole REST surface.
type Handler struct {
	Deps
	mux *http.ServeMux
}

// New creates a Handler wired to deps, registers all routes and wraps them in
// the middleware chain.
func New(deps Deps) http.Handler {
	h := &Handler{Deps: deps, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /{$}", h.index)
	h.mux.HandleFunc("GET /scan", h.scan)
	h.mux.HandleFunc("GET /network", h.network)
	h.mux.HandleFunc("GET /shutdown", h.stop(lifecycle.Shutdown))
	h.mux.HandleFunc("GET /reset", h.stop(lifecycle.Reset))
	h.mux.HandleFunc("GET /update", h.stop(lifecycle.Update))

	h.mux.HandleFunc("GET /devices", h.devices)
	h.mux.HandleFunc("GET /devices/types", h.deviceTypes)
	h.mux.HandleFunc("POST /devices/{pins}/{type}", h.addDevice)
	h.mux.HandleFunc("DELETE /devices/{pins}", h.removeDevice)
	h.mux.HandleFunc("PUT /devices/toggle/{pins}", h.act(h.Yard.Toggle))
	h.mux.HandleFunc("PUT /devices/on/{pins}", h.act(h.Yard.On))
	h.mux.HandleFunc("PUT /devices/off/{pins}", h.act(h.Yard.Off))
	h.mux.HandleFunc("PUT /devices/reset/{pins}", h.act(h.Yard.Reset))
	h.mux.HandleFunc("PUT /devices/change/{pins}/{type}", h.changeDevice)
	h.mux.HandleFunc("GET /devices/steps/{pins}", h.steps)
	h.mux.HandleFunc("PUT /devices/steps/{pins}/{steps}", h.setSteps)

	h.mux.HandleFunc("GET /profiles", h.profiles)
	h.mux.HandleFunc("PUT /profiles", h.loadProfile)
	h.mux.HandleFunc("POST /profiles", h.saveProfile)
	h.mux.HandleFunc("DELETE /profiles", h.deleteProfile)
	h.mux.HandleFunc("POST /profiles/favorite", h.setFavorite)
	h.mux.HandleFunc("DELETE /profiles/favorite", h.clearFavorite)

	h.mux.HandleFunc("POST /credentials", h.saveCredentials)
	h.mux.HandleFunc("DELETE /credentials", h.resetCredentials)

	h.mux.HandleFunc("GET /log", h.dumpLog)
	h.mux.HandleFunc("DELETE /log", h.flushLog)

	if h.Metrics != nil {
		h.mux.Handle("GET /metrics", h.Metrics)
	}
	if h.Stream != nil {
		h.mux.Handle("GET /ws/stream", h.Stream)
	}

	return h.chain(h.mux)
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) index(w http.ResponseWriter, _ *http.Request) {
	textResp(w, http.StatusOK, types.StatusSuccess)
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	res, err := h.Scanner.Scan(r.Context())
	if err != nil {
		errResp(w, err)
		return
	}
	if res == nil {
		res = []types.ScanResult{}
	}
	jsonResp(w, http.StatusOK, res)
}

func (h *Handler) network(w http.ResponseWriter, _ *http.Request) {
	info, err := h.Network.Info()
	if err != nil {
		errResp(w, err)
		return
	}
	jsonResp(w, http.StatusOK, info)
}

// stop answers first and asks the lifecycle controller to stop afterwards,
// so the client always sees the reply.
func (h *Handler) stop(reason lifecycle.Reason) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		textResp(w, http.StatusOK, types.StatusSuccess)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		slog.Info("api: stop requested", "reason", string(reason))
		switch reason {
		case lifecycle.Reset:
			h.Lifecycle.Reset()
		case lifecycle.Update:
			h.Lifecycle.Update()
		default:
			h.Lifecycle.Shutdown()
		}
	}
}

func (h *Handler) devices(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.Yard.Devices())
}

func (h *Handler) deviceTypes(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.Yard.Types())
}

func (h *Handler) addDevice(w http.ResponseWriter, r *http.Request) {
	h.devicesResult(w)(h.Yard.Add(r.PathValue("pins"), r.PathValue("type")))
}

func (h *Handler) removeDevice(w http.ResponseWriter, r *http.Request) {
	h.devicesResult(w)(h.Yard.Remove(r.PathValue("pins")))
}

func (h *Handler) act(fn func(pins string) (types.DevicesResponse, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.devicesResult(w)(fn(r.PathValue("pins")))
	}
}

func (h *Handler) changeDevice(w http.ResponseWriter, r *http.Request) {
	h.devicesResult(w)(h.Yard.Change(r.PathValue("pins"), r.PathValue("type")))
}

func (h *Handler) steps(w http.ResponseWriter, r *http.Request) {
	n, err := h.Yard.Steps(r.PathValue("pins"))
	if err != nil {
		errResp(w, err)
		return
	}
	jsonResp(w, http.StatusOK, types.StepsResponse{Steps: n})
}

func (h *Handler) setSteps(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("steps"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "steps must be an integer")
		return
	}
	h.devicesResult(w)(h.Yard.SetSteps(r.PathValue("pins"), n))
}

func (h *Handler) profiles(w http.ResponseWriter, _ *http.Request) {
	h.profilesResult(w)(h.Yard.Profiles())
}

func (h *Handler) loadProfile(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeProfile(w, r)
	if !ok {
		return
	}
	h.devicesResult(w)(h.Yard.LoadProfile(req.Name))
}

func (h *Handler) saveProfile(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeProfile(w, r)
	if !ok {
		return
	}
	h.profilesResult(w)(h.Yard.SaveProfile(req.Name))
}

func (h *Handler) deleteProfile(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeProfile(w, r)
	if !ok {
		return
	}
	h.profilesResult(w)(h.Yard.DeleteProfile(req.Name))
}

func (h *Handler) setFavorite(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeProfile(w, r)
	if !ok {
		return
	}
	h.profilesResult(w)(h.Yard.SetFavorite(req.Favorite))
}

func (h *Handler) clearFavorite(w http.ResponseWriter, _ *http.Request) {
	h.profilesResult(w)(h.Yard.ClearFavorite())
}

// saveCredentials answers with the plain-text status the companion apps
// expect rather than a JSON error.
func (h *Handler) saveCredentials(w http.ResponseWriter, r *http.Request) {
	var creds map[string]string
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		textResp(w, http.StatusBadRequest, types.StatusFailure)
		return
	}
	if err := h.Credentials.Save(creds); err != nil {
		slog.Warn("api: credentials rejected", "err", err)
		code := http.StatusInternalServerError
		if errors.Is(err, credentials.ErrBadKeys) {
			code = http.StatusBadRequest
		}
		textResp(w, code, types.StatusFailure)
		return
	}
	textResp(w, http.StatusOK, types.StatusSuccess)
}

func (h *Handler) resetCredentials(w http.ResponseWriter, _ *http.Request) {
	if err := h.Credentials.Reset(); err != nil {
		errResp(w, err)
		return
	}
	textResp(w, http.StatusOK, types.StatusSuccess)
}

func (h *Handler) dumpLog(w http.ResponseWriter, r *http.Request) {
	if h.Log == nil {
		textResp(w, http.StatusOK, "")
		return
	}
	lines, err := h.Log.Dump(r.Context())
	if err != nil {
		errResp(w, err)
		return
	}
	textResp(w, http.StatusOK, strings.Join(lines, ""))
}

func (h *Handler) flushLog(w http.ResponseWriter, r *http.Request) {
	if h.Log != nil {
		if err := h.Log.Flush(r.Context()); err != nil {
			errResp(w, err)
			return
		}
	}
	textResp(w, http.StatusOK, types.StatusSuccess)
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) devicesResult(w http.ResponseWriter) func(types.DevicesResponse, error) {
	return func(resp types.DevicesResponse, err error) {
		if err != nil {
			errResp(w, err)
			return
		}
		jsonResp(w, http.StatusOK, resp)
	}
}

func (h *Handler) profilesResult(w http.ResponseWriter) func(types.ProfilesResponse, error) {
	return func(resp types.ProfilesResponse, err error) {
		if err != nil {
			errResp(w, err)
			return
		}
		jsonResp(w, http.StatusOK, resp)
	}
}

func decodeProfile(w http.ResponseWriter, r *http.Request) (types.ProfileRequest, bool) {
	var req types.ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	return req, true
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, types.ErrorResponse{Error: msg})
}

func textResp(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	w.Write([]byte(body)) //nolint:errcheck
}

// errResp maps domain errors onto status codes.
func errResp(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("api: request failed", "err", err)
	}
	jsonErr(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, yard.ErrNoDevice), errors.Is(err, profile.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, yard.ErrInvalidPins),
		errors.Is(err, yard.ErrPinsUnavailable),
		errors.Is(err, device.ErrInvalidAction),
		errors.Is(err, device.ErrUnknownType),
		errors.Is(err, device.ErrPinCount),
		errors.Is(err, device.ErrInvalidParams),
		errors.Is(err, device.ErrNoSteps),
		errors.Is(err, profile.ErrInvalidName),
		errors.Is(err, credentials.ErrBadKeys):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
