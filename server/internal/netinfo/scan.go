package netinfo

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/railyard/railyard/pkg/types"
)

// Scanner lists visible access points.
type Scanner interface {
	Scan(ctx context.Context) ([]types.ScanResult, error)
}

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// NMCLI scans through NetworkManager's command line client.
type NMCLI struct {
	Interface string
	Run       Runner
}

// NewNMCLI scans on the named interface.
func NewNMCLI(name string) *NMCLI {
	return &NMCLI{Interface: name, Run: execRunner}
}

func (n *NMCLI) Scan(ctx context.Context) ([]types.ScanResult, error) {
	args := []string{"-t", "-f", "SSID,BSSID,CHAN,SIGNAL,SECURITY", "device", "wifi", "list", "--rescan", "auto"}
	if n.Interface != "" {
		args = append(args, "ifname", n.Interface)
	}
	out, err := n.Run(ctx, "nmcli", args...)
	if err != nil {
		return nil, fmt.Errorf("netinfo: nmcli scan: %w", err)
	}
	return ParseNMCLI(out)
}

// ParseNMCLI parses terse nmcli output with the fields
// SSID:BSSID:CHAN:SIGNAL:SECURITY. Colons inside fields are escaped as "\:".
func ParseNMCLI(out []byte) ([]types.ScanResult, error) {
	results := []types.ScanResult{}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for line := 1; sc.Scan(); line++ {
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		f := splitTerse(text)
		if len(f) != 5 {
			return nil, fmt.Errorf("netinfo: nmcli line %d: want 5 fields, got %d", line, len(f))
		}
		signal, err := strconv.Atoi(f[3])
		if err != nil {
			return nil, fmt.Errorf("netinfo: nmcli line %d: signal %q: %w", line, f[3], err)
		}
		hidden := "0"
		if f[0] == "" {
			hidden = "1"
		}
		results = append(results, types.ScanResult{
			SSID:     f[0],
			BSSID:    strings.ToLower(strings.ReplaceAll(f[1], ":", "")),
			Channel:  f[2],
			RSSI:     strconv.Itoa(signalToDBm(signal)),
			Security: securityCode(f[4]),
			Hidden:   hidden,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("netinfo: read nmcli output: %w", err)
	}
	return results, nil
}

func splitTerse(line string) []string {
	var fields []string
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case c == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, cur.String())
}

// signalToDBm converts NetworkManager's 0-100 quality to dBm.
func signalToDBm(pct int) int {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct/2 - 100
}

// securityCode maps NetworkManager security names to CYW43 codes:
// 0 open, 1 WEP, 2 WPA, 3 WPA2 or newer, 4 mixed WPA/WPA2.
func securityCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	wpa1 := strings.Contains(s, "WPA1") || (strings.Contains(s, "WPA") && !strings.Contains(s, "WPA2") && !strings.Contains(s, "WPA3"))
	wpa2 := strings.Contains(s, "WPA2") || strings.Contains(s, "WPA3")
	switch {
	case wpa1 && wpa2:
		return "4"
	case wpa2:
		return "3"
	case wpa1:
		return "2"
	case strings.Contains(s, "WEP"):
		return "1"
	default:
		return "0"
	}
}
