package client

// Weights for the health score. They must sum to 1.0.
const (
	weightActions  = 0.50
	weightRequests = 0.30
	weightBoot     = 0.10
	weightEventLog = 0.10
)

// Health states.
const (
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateCritical = "critical"
)

// Thresholds that map a score to a state.
const (
	ThresholdHealthy  = 85.0
	ThresholdDegraded = 60.0
)

// Health is the composite score of one server in the range 0-100.
type Health struct {
	Score float64 `json:"score"`
	State string  `json:"state"`
}

// Health scores a summary:
//
//	score = (
//	    (1 - action_errors/actions)  * 0.50 +
//	    (1 - 5xx/requests)           * 0.30 +
//	    (no boot fallback ? 1 : 0)   * 0.10 +
//	    (no event log errors ? 1 : 0) * 0.10
//	) * 100
//
// A server that has not served anything yet scores full marks on the
// ratio factors.
func (s Summary) Health() Health {
	score := (ratioFactor(s.ActionErrors, s.Actions)*weightActions +
		ratioFactor(s.ServerErrors, s.Requests)*weightRequests +
		zeroFactor(s.BootFallbacks)*weightBoot +
		zeroFactor(s.EventLogErrors)*weightEventLog) * 100

	state := StateCritical
	switch {
	case score >= ThresholdHealthy:
		state = StateHealthy
	case score >= ThresholdDegraded:
		state = StateDegraded
	}
	return Health{Score: score, State: state}
}

// ratioFactor returns 1 - bad/total clamped to [0, 1].
func ratioFactor(bad, total float64) float64 {
	if total <= 0 {
		return 1
	}
	f := 1 - bad/total
	if f < 0 {
		return 0
	}
	return f
}

func zeroFactor(v float64) float64 {
	if v > 0 {
		return 0
	}
	return 1
}
