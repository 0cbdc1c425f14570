package netinfo

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/railyard/railyard/pkg/types"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestInfo_Connected(t *testing.T) {
	mac, _ := net.ParseMAC("28:CD:C1:0A:BB:CC")
	r := NewReporter("wlan0", "1.0")
	r.lookup = func(name string) (iface, error) {
		if name != "wlan0" {
			t.Errorf("lookup: got %q, want wlan0", name)
		}
		return iface{
			mac: mac,
			up:  true,
			addrs: []net.Addr{
				&net.IPNet{IP: net.ParseIP("fe80::1")},
				&net.IPNet{IP: net.ParseIP("192.168.1.40"), Mask: net.CIDRMask(24, 32)},
			},
		}, nil
	}

	got, err := r.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	want := types.NetworkInfo{
		Hostname:  "Railyard0abbcc",
		IP:        "192.168.1.40",
		MAC:       "28:cd:c1:0a:bb:cc",
		Connected: "True",
		Status:    "3",
		Version:   "1.0",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Info mismatch (-want +got):\n%s", diff)
	}
}

func TestInfo_Down(t *testing.T) {
	r := NewReporter("wlan0", "dev")
	r.lookup = func(string) (iface, error) { return iface{up: true}, nil }
	got, err := r.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if got.Connected != "False" || got.Status != "0" || got.IP != "0.0.0.0" {
		t.Errorf("got %+v, want disconnected with status 0", got)
	}
}

func TestInfo_LookupError(t *testing.T) {
	r := NewReporter("wlan9", "dev")
	r.lookup = func(string) (iface, error) { return iface{}, errors.New("no such interface") }
	if _, err := r.Info(); err == nil {
		t.Fatal("Info: expected error")
	}
}

func TestParseNMCLI(t *testing.T) {
	out := []byte(`Yard Net:AA\:BB\:CC\:DD\:EE\:FF:6:80:WPA2
:11\:22\:33\:44\:55\:66:11:20:
Old\:Router:01\:02\:03\:04\:05\:06:1:100:WPA1 WPA2

`)
	got, err := ParseNMCLI(out)
	if err != nil {
		t.Fatalf("ParseNMCLI: %v", err)
	}
	want := []types.ScanResult{
		{SSID: "Yard Net", BSSID: "aabbccddeeff", Channel: "6", RSSI: "-60", Security: "3", Hidden: "0"},
		{SSID: "", BSSID: "112233445566", Channel: "11", RSSI: "-90", Security: "0", Hidden: "1"},
		{SSID: "Old:Router", BSSID: "010203040506", Channel: "1", RSSI: "-50", Security: "4", Hidden: "0"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("scan mismatch (-want +got):\n%s", diff)
	}
}

func TestParseNMCLI_Malformed(t *testing.T) {
	for _, in := range []string{"only:three:fields", "a:b:1:loud:WPA2"} {
		if _, err := ParseNMCLI([]byte(in)); err == nil {
			t.Errorf("ParseNMCLI(%q): expected error", in)
		}
	}
}

func TestNMCLI_Args(t *testing.T) {
	var gotName string
	var gotArgs []string
	n := NewNMCLI("wlan1")
	n.Run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte("x:00\\:00\\:00\\:00\\:00\\:00:3:50:WEP\n"), nil
	}
	res, err := n.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if gotName != "nmcli" {
		t.Errorf("command: got %q, want nmcli", gotName)
	}
	if last := gotArgs[len(gotArgs)-1]; last != "wlan1" {
		t.Errorf("last arg: got %q, want wlan1", last)
	}
	if len(res) != 1 || res[0].Security != "1" {
		t.Errorf("results: got %+v", res)
	}
}

type countingScanner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *countingScanner) Scan(context.Context) ([]types.ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []types.ScanResult{{SSID: "net"}}, nil
}

func TestCache_ReusesWithinTTL(t *testing.T) {
	base := time.Now()
	sc := &countingScanner{}
	c := NewCache(sc, 30*time.Second)
	c.now = fixedClock(base)

	for i := 0; i < 3; i++ {
		if _, err := c.Scan(context.Background()); err != nil {
			t.Fatalf("Scan: %v", err)
		}
	}
	if sc.calls != 1 {
		t.Errorf("scanner calls: got %d, want 1", sc.calls)
	}

	c.now = fixedClock(base.Add(31 * time.Second))
	if _, err := c.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if sc.calls != 2 {
		t.Errorf("scanner calls after TTL: got %d, want 2", sc.calls)
	}
}

func TestCache_ErrorNotCached(t *testing.T) {
	sc := &countingScanner{err: errors.New("radio busy")}
	c := NewCache(sc, time.Minute)
	if _, err := c.Scan(context.Background()); err == nil {
		t.Fatal("Scan: expected error")
	}
	if _, ok := c.Get(); ok {
		t.Error("Get: failed scan must not be cached")
	}
}

func TestCache_Evict(t *testing.T) {
	base := time.Now()
	c := NewCache(&countingScanner{}, time.Minute)
	c.now = fixedClock(base)
	if _, err := c.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if c.Evict(base.Add(30 * time.Second)) {
		t.Error("Evict within TTL: got true, want false")
	}
	if !c.Evict(base.Add(2 * time.Minute)) {
		t.Error("Evict after TTL: got false, want true")
	}
	if _, ok := c.Get(); ok {
		t.Error("Get after Evict: expected no entry")
	}
}

func TestCache_RunStopsOnCancel(t *testing.T) {
	c := NewCache(&countingScanner{}, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
