package yard_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railyard/railyard/pkg/types"
	"github.com/railyard/railyard/server/internal/device"
	"github.com/railyard/railyard/server/internal/gpio"
	"github.com/railyard/railyard/server/internal/profile"
	"github.com/railyard/railyard/server/internal/yard"
)

type recorder struct {
	mu     sync.Mutex
	events []yard.Event
}

func (r *recorder) observe(e yard.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func newYard(t *testing.T, cfg yard.Config) (*yard.Yard, string, *recorder) {
	t.Helper()
	dir := t.TempDir()
	store, err := profile.NewStore(dir)
	require.NoError(t, err)
	env := device.Env{
		Backend: gpio.NewSim(),
		Sleep:   func(time.Duration) {},
	}
	y := yard.New(cfg, env, store)
	rec := &recorder{}
	y.Observe(rec.observe)
	return y, dir, rec
}

func names(r types.DevicesResponse) []string {
	var out []string
	for _, d := range r.Devices {
		out = append(out, d.Name+"@"+device.PinString(d.Pins))
	}
	return out
}

func TestParsePins(t *testing.T) {
	got, err := yard.ParsePins(" 3, 1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, got)

	for _, bad := range []string{"", "a", "1,,2", "-1", "1;2"} {
		_, err := yard.ParsePins(bad)
		assert.ErrorIs(t, err, yard.ErrInvalidPins, bad)
	}
}

func TestAddRemove(t *testing.T) {
	y, _, rec := newYard(t, yard.Config{Pins: []int{0, 1, 2, 3}, Defaults: []yard.Placement{}})

	out, err := y.Add("1,0", "RelayTrainSwitch")
	require.NoError(t, err)
	assert.Equal(t, []string{"RelayTrainSwitch@0,1"}, names(out))
	assert.Equal(t, []int{2, 3}, y.PinPool())

	_, err = y.Add("1,2", "RelayTrainSwitch")
	assert.ErrorIs(t, err, yard.ErrPinsUnavailable)
	_, err = y.Add("2,2", "RelayTrainSwitch")
	assert.ErrorIs(t, err, yard.ErrPinsUnavailable)
	_, err = y.Add("7", "OnOff")
	assert.ErrorIs(t, err, yard.ErrPinsUnavailable, "pin not configured")
	_, err = y.Add("2", "RelayTrainSwitch")
	assert.ErrorIs(t, err, device.ErrPinCount)
	_, err = y.Add("2,3", "Nope")
	assert.ErrorIs(t, err, device.ErrUnknownType)

	out, err = y.Add("3", "OnOff")
	require.NoError(t, err)
	assert.Equal(t, []string{"RelayTrainSwitch@0,1", "OnOff@3"}, names(out))

	out, err = y.Remove("0,1")
	require.NoError(t, err)
	assert.Equal(t, []string{"OnOff@3"}, names(out))
	assert.Equal(t, []int{0, 1, 2}, y.PinPool())

	_, err = y.Remove("0,1")
	assert.ErrorIs(t, err, yard.ErrNoDevice)

	assert.Equal(t, []string{yard.EventAdded, yard.EventAdded, yard.EventRemoved}, rec.kinds())
}

func TestToggleOnOffReset(t *testing.T) {
	y, _, _ := newYard(t, yard.Config{Defaults: []yard.Placement{}})
	_, err := y.Add("4,5", "SpurTrainSwitch")
	require.NoError(t, err)
	_, err = y.Add("6", "OnOff")
	require.NoError(t, err)

	out, err := y.Toggle("5,4")
	require.NoError(t, err)
	require.Len(t, out.Devices, 1, "only the touched device is returned")
	assert.Equal(t, "straight", *out.Devices[0].State)

	out, err = y.Toggle("4,5")
	require.NoError(t, err)
	assert.Equal(t, "turn", *out.Devices[0].State)

	out, err = y.On("4,5")
	require.NoError(t, err)
	assert.Equal(t, "straight", *out.Devices[0].State)

	out, err = y.Off("6")
	require.NoError(t, err)
	assert.Equal(t, "off", *out.Devices[0].State)

	out, err = y.Reset("4,5")
	require.NoError(t, err)
	assert.Nil(t, out.Devices[0].State)

	_, err = y.Toggle("9")
	assert.ErrorIs(t, err, yard.ErrNoDevice)
}

func TestChange(t *testing.T) {
	y, _, _ := newYard(t, yard.Config{Defaults: []yard.Placement{}})
	_, err := y.Add("0,1", "RelayTrainSwitch")
	require.NoError(t, err)
	_, err = y.Add("2,3", "RelayTrainSwitch")
	require.NoError(t, err)

	out, err := y.Change("0,1", "DCMotor")
	require.NoError(t, err)
	assert.Equal(t, []string{"DCMotor@0,1"}, names(out))
	assert.Equal(t, []string{"DCMotor@0,1", "RelayTrainSwitch@2,3"}, names(y.Devices()), "position is kept")

	_, err = y.Change("0,1", "OnOff")
	assert.ErrorIs(t, err, device.ErrPinCount)
	_, err = y.Change("8,9", "DCMotor")
	assert.ErrorIs(t, err, yard.ErrNoDevice)
}

func TestSteps(t *testing.T) {
	y, _, rec := newYard(t, yard.Config{Defaults: []yard.Placement{}})
	_, err := y.Add("10,11", "StepperMotor")
	require.NoError(t, err)
	_, err = y.Add("12,13", "RelayTrainSwitch")
	require.NoError(t, err)

	n, err := y.Steps("10,11")
	require.NoError(t, err)
	assert.Equal(t, device.DefaultStepperSteps, n)

	before := len(rec.kinds())
	_, err = y.SetSteps("10,11", 12)
	require.NoError(t, err)
	n, _ = y.Steps("10,11")
	assert.Equal(t, 12, n)
	assert.Equal(t, []string{yard.EventChanged}, rec.kinds()[before:], "observers see the new step count")

	_, err = y.Steps("12,13")
	assert.ErrorIs(t, err, device.ErrNoSteps)
}

func TestProfiles(t *testing.T) {
	y, _, rec := newYard(t, yard.Config{Defaults: []yard.Placement{}})
	_, err := y.Add("2,3", "RelayTrainSwitch")
	require.NoError(t, err)
	_, err = y.Add("0,1", "SpurTrainSwitch")
	require.NoError(t, err)
	_, err = y.Add("8", "LightBeam(n=10)")
	require.NoError(t, err)
	_, err = y.Off("0,1")
	require.NoError(t, err)

	ps, err := y.SaveProfile("evening")
	require.NoError(t, err)
	assert.Equal(t, []string{"evening"}, ps.Profiles)
	assert.Equal(t, []string{}, ps.FavoriteProfile)

	_, err = y.Remove("2,3")
	require.NoError(t, err)
	_, err = y.On("0,1")
	require.NoError(t, err)

	out, err := y.LoadProfile("evening")
	require.NoError(t, err)
	assert.Equal(t, []string{"RelayTrainSwitch@2,3", "SpurTrainSwitch@0,1", "LightBeam@8"}, names(out))
	assert.Equal(t, "turn", *out.Devices[1].State)
	assert.Equal(t, 10, out.Devices[2].Params["n"])
	assert.NotContains(t, y.PinPool(), 8)
	assert.Contains(t, rec.kinds(), yard.EventProfileLoaded)

	ps, err = y.SetFavorite("evening")
	require.NoError(t, err)
	assert.Equal(t, []string{"evening"}, ps.FavoriteProfile)

	ps, err = y.DeleteProfile("evening")
	require.NoError(t, err)
	assert.Empty(t, ps.Profiles)
	assert.Equal(t, []string{}, ps.FavoriteProfile)

	_, err = y.LoadProfile("evening")
	assert.ErrorIs(t, err, profile.ErrNotFound)
}

func TestLoadProfileRejectsConflicts(t *testing.T) {
	y, dir, _ := newYard(t, yard.Config{Defaults: []yard.Placement{}})
	_, err := y.Add("0,1", "RelayTrainSwitch")
	require.NoError(t, err)

	body := map[string]any{
		"0,1":   types.Device{Pins: []int{0, 1}, Name: "RelayTrainSwitch"},
		"1,2":   types.Device{Pins: []int{1, 2}, Name: "RelayTrainSwitch"},
		"order": []string{"0,1", "1,2"},
	}
	b, err := json.Marshal(body)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), b, 0o644))

	_, err = y.LoadProfile("bad")
	assert.ErrorIs(t, err, yard.ErrPinsUnavailable)
	assert.Equal(t, []string{"RelayTrainSwitch@0,1"}, names(y.Devices()), "current layout untouched")
}

func TestBootDefaults(t *testing.T) {
	y, _, _ := newYard(t, yard.Config{})
	out := y.Boot()
	require.Len(t, out.Devices, 13)
	assert.Equal(t, "RelayTrainSwitch@22,26", names(out)[11])
	assert.Equal(t, []int{23, 24, 25}, y.PinPool())
}

func TestBootFavoriteFallback(t *testing.T) {
	y, dir, rec := newYard(t, yard.Config{Defaults: []yard.Placement{{Pins: "0", Type: "OnOff"}}})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	_, err := y.SetFavorite("broken")
	require.NoError(t, err)

	out := y.Boot()
	assert.Equal(t, []string{"OnOff@0"}, names(out))
	assert.Contains(t, rec.kinds(), yard.EventBootFallback)
}

func TestBootFavorite(t *testing.T) {
	y, _, _ := newYard(t, yard.Config{Defaults: []yard.Placement{}})
	_, err := y.Add("5", "Unloader")
	require.NoError(t, err)
	_, err = y.SaveProfile("fav")
	require.NoError(t, err)
	_, err = y.SetFavorite("fav")
	require.NoError(t, err)
	require.NoError(t, y.Shutdown())
	assert.Equal(t, 0, y.Len())

	out := y.Boot()
	assert.Equal(t, []string{"Unloader@5"}, names(out))
}

func TestBootFavoriteWithLightBeam(t *testing.T) {
	y, _, rec := newYard(t, yard.Config{})
	y.LoadDefaults()
	_, err := y.Remove("8,9")
	require.NoError(t, err)
	_, err = y.Add("8", "LightBeam(n=10,g=255)")
	require.NoError(t, err)
	_, err = y.SaveProfile("beams")
	require.NoError(t, err)
	_, err = y.SetFavorite("beams")
	require.NoError(t, err)
	require.NoError(t, y.Shutdown())

	out := y.Boot()
	require.Len(t, out.Devices, 13)
	beam := out.Devices[12]
	assert.Equal(t, "LightBeam@8", beam.Name+"@"+device.PinString(beam.Pins))
	assert.Equal(t, 10, beam.Params["n"])
	assert.Equal(t, 255, beam.Params["g"])
	assert.Contains(t, y.PinPool(), 9)
	assert.NotContains(t, rec.kinds(), yard.EventBootFallback)
}

func TestBootMissingFavoriteIsQuiet(t *testing.T) {
	y, _, rec := newYard(t, yard.Config{Defaults: []yard.Placement{{Pins: "0", Type: "OnOff"}}})
	_, err := y.SetFavorite("gone")
	require.NoError(t, err)

	out := y.Boot()
	assert.Equal(t, []string{"OnOff@0"}, names(out))
	assert.NotContains(t, rec.kinds(), yard.EventBootFallback)
}
