// Package metrics keeps the controller's counters and gauges and renders
// them in the Prometheus text exposition format.
package metrics

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/railyard/railyard/server/internal/yard"
)

// Metric names.
const (
	Devices         = "railyard_devices"
	PinsAvailable   = "railyard_pins_available"
	DeviceActions   = "railyard_device_actions_total"
	DeviceErrors    = "railyard_device_action_errors_total"
	HTTPRequests    = "railyard_http_requests_total"
	SchedulerJobs   = "railyard_scheduler_jobs"
	DeviceAutoOffs  = "railyard_device_auto_off_total"
	ProfileLoads    = "railyard_profile_loads_total"
	BootFallbacks   = "railyard_boot_fallbacks_total"
	EventLogDropped = "railyard_eventlog_errors_total"
)

// Gauges are sampled on every Gather.
type Gauges struct {
	Devices       func() int
	PinsAvailable func() int
	SchedulerJobs func() int
}

type actionKey struct{ typ, action string }

// Registry is safe for concurrent use.
type Registry struct {
	gauges Gauges

	mu        sync.Mutex
	actions   map[actionKey]float64
	errors    map[string]float64
	requests  map[int]float64
	autoOffs  float64
	loads     float64
	fallbacks float64
	logErrors float64
}

// New returns an empty registry. Nil gauge funcs are reported as zero.
func New(g Gauges) *Registry {
	return &Registry{
		gauges:   g,
		actions:  make(map[actionKey]float64),
		errors:   make(map[string]float64),
		requests: make(map[int]float64),
	}
}

// ObserveYard counts yard events. It is meant to be passed to yard.Observe.
func (r *Registry) ObserveYard(e yard.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch e.Kind {
	case yard.EventAction:
		r.actions[actionKey{e.Type, actionLabel(e.Action)}]++
		if e.Err != nil {
			r.errors[e.Type]++
		}
	case yard.EventAutoOff:
		r.autoOffs++
	case yard.EventBeamError:
		r.errors[e.Type]++
	case yard.EventProfileLoaded:
		r.loads++
	case yard.EventBootFallback:
		r.fallbacks++
	}
}

func actionLabel(a string) string {
	if a == "" {
		return "reset"
	}
	return a
}

// Request counts one served HTTP request.
func (r *Registry) Request(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[code]++
}

// EventLogError counts a failed write to the event log.
func (r *Registry) EventLogError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logErrors++
}

// Gather returns all families sorted by name.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.Lock()
	defer r.mu.Unlock()

	fams := []*dto.MetricFamily{
		gauge(Devices, "Devices currently configured.", sample(r.gauges.Devices)),
		gauge(PinsAvailable, "GPIO pins not used by any device.", sample(r.gauges.PinsAvailable)),
		gauge(SchedulerJobs, "Jobs on the background light queue.", sample(r.gauges.SchedulerJobs)),
		counter(DeviceAutoOffs, "Disconnects switched off by the safe shutdown timer.", r.autoOffs),
		counter(ProfileLoads, "Profiles loaded.", r.loads),
		counter(BootFallbacks, "Boots that fell back to the default layout.", r.fallbacks),
		counter(EventLogDropped, "Event log writes that failed.", r.logErrors),
	}

	actions := family(DeviceActions, "Device actions by device type and action.", dto.MetricType_COUNTER)
	keys := make([]actionKey, 0, len(r.actions))
	for k := range r.actions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].typ != keys[j].typ {
			return keys[i].typ < keys[j].typ
		}
		return keys[i].action < keys[j].action
	})
	for _, k := range keys {
		actions.Metric = append(actions.Metric, counterMetric(r.actions[k], "type", k.typ, "action", k.action))
	}
	fams = appendNonEmpty(fams, actions)

	errs := family(DeviceErrors, "Failed device actions by device type.", dto.MetricType_COUNTER)
	for _, typ := range sortedKeys(r.errors) {
		errs.Metric = append(errs.Metric, counterMetric(r.errors[typ], "type", typ))
	}
	fams = appendNonEmpty(fams, errs)

	reqs := family(HTTPRequests, "HTTP requests by status code.", dto.MetricType_COUNTER)
	codes := make([]int, 0, len(r.requests))
	for c := range r.requests {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	for _, c := range codes {
		reqs.Metric = append(reqs.Metric, counterMetric(r.requests[c], "code", strconv.Itoa(c)))
	}
	fams = appendNonEmpty(fams, reqs)

	sort.Slice(fams, func(i, j int) bool { return fams[i].GetName() < fams[j].GetName() })
	return fams
}

// Write renders every family in the text format.
func (r *Registry) Write(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range r.Gather() {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// ServeHTTP serves the text exposition.
func (r *Registry) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	_ = r.Write(w)
}

func sample(f func() int) float64 {
	if f == nil {
		return 0
	}
	return float64(f())
}

func family(name, help string, t dto.MetricType) *dto.MetricFamily {
	return &dto.MetricFamily{Name: proto.String(name), Help: proto.String(help), Type: t.Enum()}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	mf := family(name, help, dto.MetricType_GAUGE)
	mf.Metric = []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}}
	return mf
}

func counter(name, help string, v float64) *dto.MetricFamily {
	mf := family(name, help, dto.MetricType_COUNTER)
	mf.Metric = []*dto.Metric{counterMetric(v)}
	return mf
}

func counterMetric(v float64, labels ...string) *dto.Metric {
	m := &dto.Metric{Counter: &dto.Counter{Value: proto.Float64(v)}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{Name: proto.String(labels[i]), Value: proto.String(labels[i+1])})
	}
	return m
}

// appendNonEmpty skips families without samples; the text format rejects them.
func appendNonEmpty(fams []*dto.MetricFamily, mf *dto.MetricFamily) []*dto.MetricFamily {
	if len(mf.Metric) == 0 {
		return fams
	}
	return append(fams, mf)
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
