package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railyard/railyard/ctl/internal/config"
	"github.com/railyard/railyard/pkg/types"
)

// request is what the fake server saw.
type request struct {
	Method string
	Path   string
	Key    string
	Body   string
}

// recorder collects requests from the server goroutine.
type recorder struct {
	mu   sync.Mutex
	reqs []request
}

func (r *recorder) add(req request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
}

func (r *recorder) all() []request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]request(nil), r.reqs...)
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *recorder) {
	t.Helper()
	seen := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen.add(request{Method: r.Method, Path: r.URL.EscapedPath(), Key: r.Header.Get("x-api-key"), Body: string(b)})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("RAILYARDCTL_CLIENT_KEY", "k1")
	c, err := New(config.Target{
		Name:     "test",
		Endpoint: srv.URL + "/",
		Auth:     config.AuthConfig{Mode: "apikey", KeyEnv: "RAILYARDCTL_CLIENT_KEY"},
	}, 2*time.Second)
	require.NoError(t, err)
	return c, seen
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func strp(s string) *string { return &s }

func TestNew_RejectsBadEndpoint(t *testing.T) {
	_, err := New(config.Target{Name: "x", Endpoint: "ftp://host"}, time.Second)
	assert.Error(t, err)
}

func TestRoutes(t *testing.T) {
	devs := types.DevicesResponse{Devices: []types.Device{{Pins: []int{0, 1}, Name: "RelayTrainSwitch", State: strp("turn")}}}
	c, seen := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/profiles"):
			writeJSON(w, types.ProfilesResponse{Profiles: []string{"main"}, FavoriteProfile: []string{}})
		case r.URL.Path == "/devices/steps/0,1" && r.Method == http.MethodGet:
			writeJSON(w, types.StepsResponse{Steps: 30})
		case r.URL.Path == "/devices/types":
			writeJSON(w, types.TypesResponse{PinPool: []int{2, 3}})
		default:
			writeJSON(w, devs)
		}
	})
	ctx := context.Background()

	got, err := c.Devices(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(devs, got); diff != "" {
		t.Errorf("devices (-want +got):\n%s", diff)
	}
	_, err = c.Add(ctx, "0,1", "RelayTrainSwitch")
	require.NoError(t, err)
	_, err = c.Action(ctx, "toggle", "0,1")
	require.NoError(t, err)
	_, err = c.Change(ctx, "0,1", "LightBeam(n=5)")
	require.NoError(t, err)
	n, err := c.Steps(ctx, "0,1")
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	_, err = c.SetSteps(ctx, "0,1", 12)
	require.NoError(t, err)
	_, err = c.Remove(ctx, "0,1")
	require.NoError(t, err)
	tr, err := c.Types(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, tr.PinPool)
	_, err = c.SaveProfile(ctx, "main")
	require.NoError(t, err)
	_, err = c.SetFavorite(ctx, "main")
	require.NoError(t, err)

	want := []request{
		{Method: "GET", Path: "/devices", Key: "k1"},
		{Method: "POST", Path: "/devices/0,1/RelayTrainSwitch", Key: "k1"},
		{Method: "PUT", Path: "/devices/toggle/0,1", Key: "k1"},
		{Method: "PUT", Path: "/devices/change/0,1/LightBeam%28n=5%29", Key: "k1"},
		{Method: "GET", Path: "/devices/steps/0,1", Key: "k1"},
		{Method: "PUT", Path: "/devices/steps/0,1/12", Key: "k1"},
		{Method: "DELETE", Path: "/devices/0,1", Key: "k1"},
		{Method: "GET", Path: "/devices/types", Key: "k1"},
		{Method: "POST", Path: "/profiles", Key: "k1", Body: `{"NAME":"main"}`},
		{Method: "POST", Path: "/profiles/favorite", Key: "k1", Body: `{"FAVORITE":"main"}`},
	}
	if diff := cmp.Diff(want, seen.all()); diff != "" {
		t.Errorf("requests (-want +got):\n%s", diff)
	}
}

func TestUnknownActionAndServerOp(t *testing.T) {
	c, seen := newServer(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.Action(context.Background(), "explode", "0,1")
	assert.Error(t, err)
	assert.Error(t, c.Server(context.Background(), "reboot"))
	assert.Empty(t, seen.all(), "nothing should reach the server")
}

func TestAPIError(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/credentials" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, "failure") //nolint:errcheck
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"yard: no device on pins 5,6"}`) //nolint:errcheck
	})

	_, err := c.Action(context.Background(), "on", "5,6")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "yard: no device on pins 5,6", apiErr.Message)

	err = c.SetCredentials(context.Background(), "ssid", "")
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, "failure", apiErr.Message)
}

func TestTextRoutes(t *testing.T) {
	c, seen := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/log" && r.Method == http.MethodGet {
			io.WriteString(w, "2026:1:2::3:4:5@ /devices - 200\n") //nolint:errcheck
			return
		}
		io.WriteString(w, "success") //nolint:errcheck
	})
	ctx := context.Background()

	text, err := c.Log(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026:1:2::3:4:5@ /devices - 200\n", text)
	require.NoError(t, c.FlushLog(ctx))
	require.NoError(t, c.SetCredentials(ctx, "home", "pw"))
	require.NoError(t, c.ClearCredentials(ctx))
	require.NoError(t, c.Server(ctx, "reset"))

	reqs := seen.all()
	last := reqs[len(reqs)-1]
	assert.Equal(t, request{Method: "GET", Path: "/reset", Key: "k1"}, last)

	var creds map[string]string
	require.NoError(t, json.Unmarshal([]byte(reqs[2].Body), &creds))
	assert.Equal(t, map[string]string{"SSID": "home", "PASSWORD": "pw"}, creds)
}

const metricsPage = `# HELP railyard_devices Devices in the yard.
# TYPE railyard_devices gauge
railyard_devices 4
# HELP railyard_pins_available Free pins.
# TYPE railyard_pins_available gauge
railyard_pins_available 21
# HELP railyard_device_actions_total Actions.
# TYPE railyard_device_actions_total counter
railyard_device_actions_total{action="toggle",type="RelayTrainSwitch"} 7
railyard_device_actions_total{action="on",type="OnOff"} 2
# HELP railyard_http_requests_total Requests.
# TYPE railyard_http_requests_total counter
railyard_http_requests_total{code="200"} 30
railyard_http_requests_total{code="404"} 3
railyard_http_requests_total{code="500"} 1
railyard_http_requests_total{code="503"} 2
# HELP railyard_boot_fallbacks_total Fallbacks.
# TYPE railyard_boot_fallbacks_total counter
railyard_boot_fallbacks_total 1
`

func TestStatus(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, metricsPage) //nolint:errcheck
	})
	got, err := c.Status(context.Background())
	require.NoError(t, err)
	want := Summary{
		Devices:       4,
		PinsAvailable: 21,
		Actions:       9,
		Requests:      36,
		ServerErrors:  3,
		BootFallbacks: 1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary (-want +got):\n%s", diff)
	}
}

func TestStatus_BadStatus(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := c.Status(context.Background())
	assert.Error(t, err)
}

func TestParseMetrics_Garbage(t *testing.T) {
	_, err := parseMetrics(strings.NewReader("{not prometheus"))
	assert.Error(t, err)
}

func TestWatch(t *testing.T) {
	upgrader := websocket.Upgrader{}
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/stream" || r.Header.Get("x-api-key") != "k1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 1; i <= 2; i++ {
			devs := make([]types.Device, i)
			conn.WriteJSON(types.StreamMessage{Event: "devices", Data: types.DevicesResponse{Devices: devs}}) //nolint:errcheck
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")) //nolint:errcheck
	})

	var sizes []int
	err := c.Watch(context.Background(), func(m types.StreamMessage) {
		sizes = append(sizes, len(m.Data.Devices))
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, sizes)
}
