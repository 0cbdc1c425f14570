package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/railyard/railyard/ctl/internal/config"
	"github.com/railyard/railyard/pkg/types"
)

// APIError is a non-2xx answer.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to one railyard-server.
type Client struct {
	target config.Target
	base   *url.URL
	http   *http.Client
}

// New returns a Client for target.
func New(target config.Target, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(target.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("client %q: endpoint: %w", target.Name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client %q: endpoint %q must be http(s)", target.Name, target.Endpoint)
	}
	return &Client{
		target: target,
		base:   u,
		http: &http.Client{
			Transport: &authRoundTripper{base: http.DefaultTransport, auth: target.Auth},
			Timeout:   timeout,
		},
	}, nil
}

// Target is the server this client talks to.
func (c *Client) Target() config.Target { return c.target }

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.auth.Mode == "apikey" {
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	}
	return t.base.RoundTrip(req)
}

// --- devices ----------------------------------------------------------------

func (c *Client) Devices(ctx context.Context) (types.DevicesResponse, error) {
	var out types.DevicesResponse
	return out, c.doJSON(ctx, http.MethodGet, "/devices", nil, &out)
}

func (c *Client) Types(ctx context.Context) (types.TypesResponse, error) {
	var out types.TypesResponse
	return out, c.doJSON(ctx, http.MethodGet, "/devices/types", nil, &out)
}

func (c *Client) Add(ctx context.Context, pins, typ string) (types.DevicesResponse, error) {
	var out types.DevicesResponse
	return out, c.doJSON(ctx, http.MethodPost, "/devices/"+seg(pins)+"/"+seg(typ), nil, &out)
}

func (c *Client) Remove(ctx context.Context, pins string) (types.DevicesResponse, error) {
	var out types.DevicesResponse
	return out, c.doJSON(ctx, http.MethodDelete, "/devices/"+seg(pins), nil, &out)
}

// Action runs toggle, on, off or reset on the device at pins.
func (c *Client) Action(ctx context.Context, action, pins string) (types.DevicesResponse, error) {
	switch action {
	case "toggle", "on", "off", "reset":
	default:
		return types.DevicesResponse{}, fmt.Errorf("client: unknown action %q", action)
	}
	var out types.DevicesResponse
	return out, c.doJSON(ctx, http.MethodPut, "/devices/"+action+"/"+seg(pins), nil, &out)
}

func (c *Client) Change(ctx context.Context, pins, typ string) (types.DevicesResponse, error) {
	var out types.DevicesResponse
	return out, c.doJSON(ctx, http.MethodPut, "/devices/change/"+seg(pins)+"/"+seg(typ), nil, &out)
}

func (c *Client) Steps(ctx context.Context, pins string) (int, error) {
	var out types.StepsResponse
	err := c.doJSON(ctx, http.MethodGet, "/devices/steps/"+seg(pins), nil, &out)
	return out.Steps, err
}

func (c *Client) SetSteps(ctx context.Context, pins string, n int) (types.DevicesResponse, error) {
	var out types.DevicesResponse
	return out, c.doJSON(ctx, http.MethodPut, "/devices/steps/"+seg(pins)+"/"+strconv.Itoa(n), nil, &out)
}

// --- profiles ---------------------------------------------------------------

func (c *Client) Profiles(ctx context.Context) (types.ProfilesResponse, error) {
	var out types.ProfilesResponse
	return out, c.doJSON(ctx, http.MethodGet, "/profiles", nil, &out)
}

func (c *Client) LoadProfile(ctx context.Context, name string) (types.DevicesResponse, error) {
	var out types.DevicesResponse
	return out, c.doJSON(ctx, http.MethodPut, "/profiles", types.ProfileRequest{Name: name}, &out)
}

func (c *Client) SaveProfile(ctx context.Context, name string) (types.ProfilesResponse, error) {
	var out types.ProfilesResponse
	return out, c.doJSON(ctx, http.MethodPost, "/profiles", types.ProfileRequest{Name: name}, &out)
}

func (c *Client) DeleteProfile(ctx context.Context, name string) (types.ProfilesResponse, error) {
	var out types.ProfilesResponse
	return out, c.doJSON(ctx, http.MethodDelete, "/profiles", types.ProfileRequest{Name: name}, &out)
}

func (c *Client) SetFavorite(ctx context.Context, name string) (types.ProfilesResponse, error) {
	var out types.ProfilesResponse
	return out, c.doJSON(ctx, http.MethodPost, "/profiles/favorite", types.ProfileRequest{Favorite: name}, &out)
}

func (c *Client) ClearFavorite(ctx context.Context) (types.ProfilesResponse, error) {
	var out types.ProfilesResponse
	return out, c.doJSON(ctx, http.MethodDelete, "/profiles/favorite", nil, &out)
}

// --- system -----------------------------------------------------------------

func (c *Client) Network(ctx context.Context) (types.NetworkInfo, error) {
	var out types.NetworkInfo
	return out, c.doJSON(ctx, http.MethodGet, "/network", nil, &out)
}

func (c *Client) Scan(ctx context.Context) ([]types.ScanResult, error) {
	var out []types.ScanResult
	return out, c.doJSON(ctx, http.MethodGet, "/scan", nil, &out)
}

// Log returns the event log text.
func (c *Client) Log(ctx context.Context) (string, error) {
	return c.doText(ctx, http.MethodGet, "/log", nil)
}

func (c *Client) FlushLog(ctx context.Context) error {
	_, err := c.doText(ctx, http.MethodDelete, "/log", nil)
	return err
}

func (c *Client) SetCredentials(ctx context.Context, ssid, password string) error {
	_, err := c.doText(ctx, http.MethodPost, "/credentials", map[string]string{"SSID": ssid, "PASSWORD": password})
	return err
}

func (c *Client) ClearCredentials(ctx context.Context) error {
	_, err := c.doText(ctx, http.MethodDelete, "/credentials", nil)
	return err
}

// Server asks the server to shutdown, reset or update.
func (c *Client) Server(ctx context.Context, op string) error {
	switch op {
	case "shutdown", "reset", "update":
	default:
		return fmt.Errorf("client: unknown server operation %q", op)
	}
	_, err := c.doText(ctx, http.MethodGet, "/"+op, nil)
	return err
}

// --- transport --------------------------------------------------------------

// seg escapes one path segment. Commas separate pins and stay readable.
func seg(s string) string { return strings.ReplaceAll(url.PathEscape(s), "%2C", ",") }

func (c *Client) url(path string) string {
	return c.base.String() + path
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readError(resp)
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) doText(ctx context.Context, method, path string, body interface{}) (string, error) {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), nil
}

// readError turns an error response into *APIError. JSON bodies carry the
// message in "error"; text bodies are used as they are.
func readError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(b))
	var e types.ErrorResponse
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
