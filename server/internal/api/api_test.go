package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	periph "periph.io/x/conn/v3/gpio"

	"github.com/railyard/railyard/pkg/types"
	"github.com/railyard/railyard/server/internal/api"
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

// --- test helpers -----------------------------------------------------------

type fakeScanner struct {
	res []types.ScanResult
	err error
}

func (f fakeScanner) Scan(context.Context) ([]types.ScanResult, error) { return f.res, f.err }

type fakeNetwork struct{ info types.NetworkInfo }

func (f fakeNetwork) Info() (types.NetworkInfo, error) { return f.info, nil }

type fixture struct {
	h     http.Handler
	yard  *yard.Yard
	life  *lifecycle.Controller
	ctx   context.Context
	log   *eventlog.Log
	guard *auth.Guard
	sim   *gpio.Sim
	led   gpio.Pin
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := profile.NewStore(filepath.Join(dir, "profiles"))
	require.NoError(t, err)
	sim := gpio.NewSim()
	y := yard.New(yard.Config{Pins: []int{0, 1, 2, 3, 4, 5, 6, 7}, Defaults: []yard.Placement{}},
		device.Env{Backend: sim, Sleep: func(time.Duration) {}}, store)

	lg, err := eventlog.Open(filepath.Join(dir, "log.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { lg.Close() })

	led, err := sim.Pin(25)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f := &fixture{
		yard:  y,
		life:  lifecycle.New(cancel),
		ctx:   ctx,
		log:   lg,
		guard: auth.NewGuard(auth.Settings{Mode: "none"}),
		sim:   sim,
		led:   led,
	}
	reg := metrics.New(metrics.Gauges{Devices: y.Len})
	y.Observe(reg.ObserveYard)

	f.h = api.New(api.Deps{
		Yard: y,
		Scanner: fakeScanner{res: []types.ScanResult{
			{SSID: "yard", BSSID: "aabbccddeeff", Channel: "6", RSSI: "-60", Security: "3", Hidden: "0"},
		}},
		Network:     fakeNetwork{info: types.NetworkInfo{Hostname: "RailyardDDEEFF", Connected: "True", Status: "3"}},
		Credentials: credentials.NewStore(dir),
		Lifecycle:   f.life,
		Auth:        f.guard,
		Log:         lg,
		Metrics:     reg,
		StatusLED:   led,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, httptest.NewRequest(method, path, rd))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func expectCode(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status: got %d, want %d (body: %s)", rr.Code, want, rr.Body.String())
	}
}

func deviceNames(r types.DevicesResponse) []string {
	out := []string{}
	for _, d := range r.Devices {
		out = append(out, d.Name+"@"+device.PinString(d.Pins))
	}
	return out
}

// --- tests ------------------------------------------------------------------

func TestIndex(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/", "")
	expectCode(t, rr, http.StatusOK)
	if rr.Body.String() != "success" {
		t.Errorf("body: got %q, want success", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type: got %q, want text/plain", ct)
	}
	if rr.Header().Get(api.RequestIDHeader) == "" {
		t.Error("request id header missing")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/devices", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

func TestDeviceLifecycle(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/devices/1,0/RelayTrainSwitch", "")
	expectCode(t, rr, http.StatusOK)
	var all types.DevicesResponse
	decode(t, rr, &all)
	if diff := cmp.Diff([]string{"RelayTrainSwitch@0,1"}, deviceNames(all)); diff != "" {
		t.Errorf("devices after add (-want +got):\n%s", diff)
	}

	rr = f.do(t, http.MethodPost, "/devices/4/OnOff", "")
	expectCode(t, rr, http.StatusOK)

	rr = f.do(t, http.MethodPut, "/devices/toggle/0,1", "")
	expectCode(t, rr, http.StatusOK)
	var touched types.DevicesResponse
	decode(t, rr, &touched)
	if len(touched.Devices) != 1 || touched.Devices[0].State == nil {
		t.Fatalf("toggle: got %+v, want one device with a state", touched.Devices)
	}

	rr = f.do(t, http.MethodPut, "/devices/on/4", "")
	expectCode(t, rr, http.StatusOK)
	decode(t, rr, &touched)
	if got := *touched.Devices[0].State; got != "on" {
		t.Errorf("on: got %q, want on", got)
	}

	rr = f.do(t, http.MethodPut, "/devices/off/4", "")
	expectCode(t, rr, http.StatusOK)
	rr = f.do(t, http.MethodPut, "/devices/reset/0,1", "")
	expectCode(t, rr, http.StatusOK)
	decode(t, rr, &touched)
	if touched.Devices[0].State != nil {
		t.Errorf("reset: got state %q, want null", *touched.Devices[0].State)
	}

	rr = f.do(t, http.MethodPut, "/devices/change/0,1/DCMotor", "")
	expectCode(t, rr, http.StatusOK)

	rr = f.do(t, http.MethodDelete, "/devices/0,1", "")
	expectCode(t, rr, http.StatusOK)
	decode(t, rr, &all)
	if diff := cmp.Diff([]string{"OnOff@4"}, deviceNames(all)); diff != "" {
		t.Errorf("devices after delete (-want +got):\n%s", diff)
	}

	rr = f.do(t, http.MethodGet, "/devices", "")
	expectCode(t, rr, http.StatusOK)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/devices/0,1/RelayTrainSwitch", "")

	cases := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"unknown device", http.MethodPut, "/devices/toggle/5,6", http.StatusNotFound},
		{"remove unknown", http.MethodDelete, "/devices/7", http.StatusNotFound},
		{"pins in use", http.MethodPost, "/devices/1,2/RelayTrainSwitch", http.StatusBadRequest},
		{"bad pins", http.MethodPost, "/devices/a,b/RelayTrainSwitch", http.StatusBadRequest},
		{"unknown type", http.MethodPost, "/devices/2,3/Nope", http.StatusBadRequest},
		{"pin count", http.MethodPost, "/devices/2/RelayTrainSwitch", http.StatusBadRequest},
		{"no steps", http.MethodGet, "/devices/steps/0,1", http.StatusBadRequest},
		{"steps not int", http.MethodPut, "/devices/steps/0,1/x", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := f.do(t, tc.method, tc.path, "")
			expectCode(t, rr, tc.want)
			var e types.ErrorResponse
			decode(t, rr, &e)
			if e.Error == "" {
				t.Error("error message: got empty")
			}
		})
	}
}

func TestTypes(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/devices/0,1/RelayTrainSwitch", "")

	rr := f.do(t, http.MethodGet, "/devices/types", "")
	expectCode(t, rr, http.StatusOK)
	var resp types.TypesResponse
	decode(t, rr, &resp)
	if diff := cmp.Diff([]int{2, 3, 4, 5, 6, 7}, resp.PinPool); diff != "" {
		t.Errorf("pin pool (-want +got):\n%s", diff)
	}
	found := false
	for _, typ := range resp.Types {
		if typ.Name == "RelayTrainSwitch" {
			found = true
			if typ.RequiredPins != 2 {
				t.Errorf("RelayTrainSwitch required_pins: got %d, want 2", typ.RequiredPins)
			}
		}
	}
	if !found {
		t.Error("RelayTrainSwitch missing from catalogue")
	}
}

func TestSteps(t *testing.T) {
	f := newFixture(t)
	expectCode(t, f.do(t, http.MethodPost, "/devices/2,3/StepperMotor", ""), http.StatusOK)

	rr := f.do(t, http.MethodPut, "/devices/steps/2,3/12", "")
	expectCode(t, rr, http.StatusOK)

	rr = f.do(t, http.MethodGet, "/devices/steps/3,2", "")
	expectCode(t, rr, http.StatusOK)
	var resp types.StepsResponse
	decode(t, rr, &resp)
	if resp.Steps != 12 {
		t.Errorf("steps: got %d, want 12", resp.Steps)
	}
}

func TestProfiles(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/devices/0,1/RelayTrainSwitch", "")

	rr := f.do(t, http.MethodPost, "/profiles", `{"NAME":" main "}`)
	expectCode(t, rr, http.StatusOK)
	var profiles types.ProfilesResponse
	decode(t, rr, &profiles)
	if diff := cmp.Diff([]string{"main"}, profiles.Profiles); diff != "" {
		t.Errorf("profiles (-want +got):\n%s", diff)
	}

	rr = f.do(t, http.MethodPost, "/profiles/favorite", `{"FAVORITE":"main"}`)
	expectCode(t, rr, http.StatusOK)
	decode(t, rr, &profiles)
	if diff := cmp.Diff([]string{"main"}, profiles.FavoriteProfile); diff != "" {
		t.Errorf("favorite (-want +got):\n%s", diff)
	}

	f.do(t, http.MethodDelete, "/devices/0,1", "")
	rr = f.do(t, http.MethodPut, "/profiles", `{"NAME":"main"}`)
	expectCode(t, rr, http.StatusOK)
	var devs types.DevicesResponse
	decode(t, rr, &devs)
	if diff := cmp.Diff([]string{"RelayTrainSwitch@0,1"}, deviceNames(devs)); diff != "" {
		t.Errorf("loaded devices (-want +got):\n%s", diff)
	}

	rr = f.do(t, http.MethodDelete, "/profiles/favorite", "")
	expectCode(t, rr, http.StatusOK)
	decode(t, rr, &profiles)
	if len(profiles.FavoriteProfile) != 0 {
		t.Errorf("favorite after clear: got %v, want none", profiles.FavoriteProfile)
	}

	expectCode(t, f.do(t, http.MethodPut, "/profiles", `{"NAME":"missing"}`), http.StatusNotFound)
	expectCode(t, f.do(t, http.MethodPost, "/profiles", `{"NAME":"../x"}`), http.StatusBadRequest)
	expectCode(t, f.do(t, http.MethodPost, "/profiles", `not json`), http.StatusBadRequest)

	rr = f.do(t, http.MethodDelete, "/profiles", `{"NAME":"main"}`)
	expectCode(t, rr, http.StatusOK)
	decode(t, rr, &profiles)
	if len(profiles.Profiles) != 0 {
		t.Errorf("profiles after delete: got %v, want none", profiles.Profiles)
	}
}

func TestProfiles_LightBeamParams(t *testing.T) {
	f := newFixture(t)
	expectCode(t, f.do(t, http.MethodPost, "/devices/0,1/RelayTrainSwitch", ""), http.StatusOK)
	expectCode(t, f.do(t, http.MethodPost, "/devices/6/LightBeam(n=10,g=255)", ""), http.StatusOK)
	expectCode(t, f.do(t, http.MethodPost, "/profiles", `{"NAME":"beams"}`), http.StatusOK)

	expectCode(t, f.do(t, http.MethodDelete, "/devices/6", ""), http.StatusOK)
	expectCode(t, f.do(t, http.MethodPost, "/devices/6/OnOff", ""), http.StatusOK)

	rr := f.do(t, http.MethodPut, "/profiles", `{"NAME":"beams"}`)
	expectCode(t, rr, http.StatusOK)
	var devs types.DevicesResponse
	decode(t, rr, &devs)
	if diff := cmp.Diff([]string{"RelayTrainSwitch@0,1", "LightBeam@6"}, deviceNames(devs)); diff != "" {
		t.Fatalf("loaded devices (-want +got):\n%s", diff)
	}
	want := map[string]int{"n": 10, "r": 10, "g": 255, "b": 0, "delay": 10, "beam_length": 3, "reverse_at_end": 0}
	if diff := cmp.Diff(want, devs.Devices[1].Params); diff != "" {
		t.Errorf("beam params (-want +got):\n%s", diff)
	}

	rr = f.do(t, http.MethodGet, "/devices", "")
	expectCode(t, rr, http.StatusOK)
	devs = types.DevicesResponse{}
	decode(t, rr, &devs)
	if diff := cmp.Diff(want, devs.Devices[1].Params); diff != "" {
		t.Errorf("listed beam params (-want +got):\n%s", diff)
	}
}

func TestCredentials(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/credentials", `{"SSID":"home","PASSWORD":"pw"}`)
	expectCode(t, rr, http.StatusOK)
	if rr.Body.String() != "success" {
		t.Errorf("body: got %q, want success", rr.Body.String())
	}

	for _, body := range []string{`{"SSID":"home"}`, `{"SSID":"a","PASSWORD":"b","X":"c"}`, `nope`} {
		rr = f.do(t, http.MethodPost, "/credentials", body)
		expectCode(t, rr, http.StatusBadRequest)
		if rr.Body.String() != "failure" {
			t.Errorf("body for %s: got %q, want failure", body, rr.Body.String())
		}
	}

	rr = f.do(t, http.MethodDelete, "/credentials", "")
	expectCode(t, rr, http.StatusOK)
}

func TestScanAndNetwork(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/scan", "")
	expectCode(t, rr, http.StatusOK)
	var scan []types.ScanResult
	decode(t, rr, &scan)
	if len(scan) != 1 || scan[0].SSID != "yard" {
		t.Errorf("scan: got %+v", scan)
	}

	rr = f.do(t, http.MethodGet, "/network", "")
	expectCode(t, rr, http.StatusOK)
	var info types.NetworkInfo
	decode(t, rr, &info)
	if info.Status != "3" || info.Connected != "True" {
		t.Errorf("network: got %+v", info)
	}
}

func TestScanError(t *testing.T) {
	dir := t.TempDir()
	store, err := profile.NewStore(dir)
	require.NoError(t, err)
	y := yard.New(yard.Config{Defaults: []yard.Placement{}}, device.Env{Backend: gpio.NewSim()}, store)
	h := api.New(api.Deps{Yard: y, Scanner: fakeScanner{err: errors.New("radio busy")}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/scan", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rr.Code)
	}
}

func TestEventLog(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/devices", "")
	f.do(t, http.MethodPut, "/devices/toggle/9", "")

	rr := f.do(t, http.MethodGet, "/log", "")
	expectCode(t, rr, http.StatusOK)
	body := rr.Body.String()
	for _, want := range []string{"/devices - 200\n", "/devices/toggle/9 - 404\n"} {
		if !strings.Contains(body, want) {
			t.Errorf("log: missing %q in %q", want, body)
		}
	}

	expectCode(t, f.do(t, http.MethodDelete, "/log", ""), http.StatusOK)
	n, err := f.log.Count(context.Background())
	require.NoError(t, err)
	// Only the DELETE itself is recorded after the flush.
	if n != 1 {
		t.Errorf("records after flush: got %d, want 1", n)
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/devices/0,1/RelayTrainSwitch", "")
	f.do(t, http.MethodGet, "/devices", "")

	rr := f.do(t, http.MethodGet, "/metrics", "")
	expectCode(t, rr, http.StatusOK)
	body := rr.Body.String()
	for _, want := range []string{"railyard_devices 1", `railyard_http_requests_total{code="200"}`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics: missing %q", want)
		}
	}
}

func TestAuth(t *testing.T) {
	f := newFixture(t)
	f.guard.Set(auth.Settings{Mode: auth.ModeAPIKey, Key: "secret"})

	expectCode(t, f.do(t, http.MethodGet, "/devices", ""), http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	req.Header.Set("x-api-key", "secret")
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)
	expectCode(t, rr, http.StatusOK)
}

func TestStatusLED(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/devices", "")

	hist := f.sim.HistoryFor(f.led.Number())
	if len(hist) != 2 {
		t.Fatalf("led writes: got %d, want 2", len(hist))
	}
	if hist[0].Level != periph.High || hist[1].Level != periph.Low {
		t.Errorf("led sequence: got %v then %v, want High then Low", hist[0].Level, hist[1].Level)
	}
}

func TestStopRoutes(t *testing.T) {
	cases := []struct {
		path string
		want lifecycle.Reason
	}{
		{"/shutdown", lifecycle.Shutdown},
		{"/reset", lifecycle.Reset},
		{"/update", lifecycle.Update},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			f := newFixture(t)
			rr := f.do(t, http.MethodGet, tc.path, "")
			expectCode(t, rr, http.StatusOK)
			if rr.Body.String() != "success" {
				t.Errorf("body: got %q, want success", rr.Body.String())
			}
			if got := f.life.Reason(); got != tc.want {
				t.Errorf("reason: got %q, want %q", got, tc.want)
			}
			select {
			case <-f.ctx.Done():
			default:
				t.Error("server context not cancelled")
			}
		})
	}
}
