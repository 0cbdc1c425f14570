package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/railyard/railyard/pkg/types"
)

// printJSON writes v indented when -o json is set and reports whether it
// did so.
func (a *app) printJSON(v interface{}) (bool, error) {
	if a.output != "json" {
		return false, nil
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}

func (a *app) printValue(v interface{}, text string) error {
	if ok, err := a.printJSON(v); ok {
		return err
	}
	_, err := fmt.Fprintln(a.out, text)
	return err
}

func (a *app) printDevices(resp types.DevicesResponse) error {
	if ok, err := a.printJSON(resp); ok {
		return err
	}
	if len(resp.Devices) == 0 {
		_, err := fmt.Fprintln(a.out, "no devices")
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PINS\tTYPE\tSTATE\tPARAMS")
	for _, d := range resp.Devices {
		state := "-"
		if d.State != nil {
			state = *d.State
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", joinPins(d.Pins), d.Name, state, formatParams(d.Params))
	}
	return tw.Flush()
}

func (a *app) printTypes(resp types.TypesResponse) error {
	if ok, err := a.printJSON(resp); ok {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tPINS\tON\tOFF")
	for _, t := range resp.Types {
		on, off := t.OnState, t.OffState
		if t.Stateless {
			on, off = "-", "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", t.Name, t.RequiredPins, on, off)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(a.out, "\nfree pins: %s\n", joinPins(resp.PinPool))
	return err
}

func (a *app) printProfiles(resp types.ProfilesResponse) error {
	if ok, err := a.printJSON(resp); ok {
		return err
	}
	if len(resp.Profiles) == 0 {
		_, err := fmt.Fprintln(a.out, "no profiles")
		return err
	}
	fav := ""
	if len(resp.FavoriteProfile) > 0 {
		fav = resp.FavoriteProfile[0]
	}
	for _, p := range resp.Profiles {
		mark := " "
		if p == fav {
			mark = "*"
		}
		fmt.Fprintf(a.out, "%s %s\n", mark, p)
	}
	return nil
}

func (a *app) printNetwork(info types.NetworkInfo) error {
	if ok, err := a.printJSON(info); ok {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "hostname\t%s\n", info.Hostname)
	fmt.Fprintf(tw, "ip\t%s\n", info.IP)
	fmt.Fprintf(tw, "mac\t%s\n", info.MAC)
	fmt.Fprintf(tw, "connected\t%s\n", info.Connected)
	fmt.Fprintf(tw, "status\t%s\n", info.Status)
	fmt.Fprintf(tw, "version\t%s\n", info.Version)
	return tw.Flush()
}

func (a *app) printScan(res []types.ScanResult) error {
	if ok, err := a.printJSON(res); ok {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SSID\tBSSID\tCHANNEL\tRSSI\tSECURITY\tHIDDEN")
	for _, r := range res {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.SSID, r.BSSID, r.Channel, r.RSSI, r.Security, r.Hidden)
	}
	return tw.Flush()
}

func joinPins(pins []int) string {
	s := make([]string, len(pins))
	for i, p := range pins {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ",")
}

func formatParams(params map[string]int) string {
	if len(params) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.Itoa(params[k])
	}
	return strings.Join(parts, ",")
}
