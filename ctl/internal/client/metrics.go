package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metric names exported by railyard-server.
const (
	metricDevices       = "railyard_devices"
	metricPinsAvailable = "railyard_pins_available"
	metricSchedulerJobs = "railyard_scheduler_jobs"
	metricActions       = "railyard_device_actions_total"
	metricActionErrors  = "railyard_device_action_errors_total"
	metricRequests      = "railyard_http_requests_total"
	metricAutoOffs      = "railyard_device_auto_off_total"
	metricProfileLoads  = "railyard_profile_loads_total"
	metricFallbacks     = "railyard_boot_fallbacks_total"
	metricLogErrors     = "railyard_eventlog_errors_total"
)

// Summary is the health of one server reduced from its /metrics page.
type Summary struct {
	Devices        float64
	PinsAvailable  float64
	SchedulerJobs  float64
	Actions        float64
	ActionErrors   float64
	Requests       float64
	ServerErrors   float64 // requests answered with 5xx
	AutoOffs       float64
	ProfileLoads   float64
	BootFallbacks  float64
	EventLogErrors float64
}

// Status scrapes /metrics.
func (c *Client) Status(ctx context.Context) (Summary, error) {
	mfs, err := fetchMetrics(ctx, c.http, c.url("/metrics"))
	if err != nil {
		return Summary{}, fmt.Errorf("status %q: %w", c.target.Name, err)
	}
	return summarize(mfs), nil
}

func summarize(mfs map[string]*dto.MetricFamily) Summary {
	return Summary{
		Devices:        sumFamily(mfs[metricDevices]),
		PinsAvailable:  sumFamily(mfs[metricPinsAvailable]),
		SchedulerJobs:  sumFamily(mfs[metricSchedulerJobs]),
		Actions:        sumFamily(mfs[metricActions]),
		ActionErrors:   sumFamily(mfs[metricActionErrors]),
		Requests:       sumFamily(mfs[metricRequests]),
		ServerErrors:   sumWhere(mfs[metricRequests], "code", func(v string) bool { n, err := strconv.Atoi(v); return err == nil && n >= 500 }),
		AutoOffs:       sumFamily(mfs[metricAutoOffs]),
		ProfileLoads:   sumFamily(mfs[metricProfileLoads]),
		BootFallbacks:  sumFamily(mfs[metricFallbacks]),
		EventLogErrors: sumFamily(mfs[metricLogErrors]),
	}
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil (metric not present in the scrape).
func sumFamily(mf *dto.MetricFamily) float64 {
	return sumWhere(mf, "", nil)
}

// sumWhere is sumFamily restricted to metrics whose label matches keep.
func sumWhere(mf *dto.MetricFamily, label string, keep func(string) bool) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		if keep != nil && !keep(labelValue(m, label)) {
			continue
		}
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
