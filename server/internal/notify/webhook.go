package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/railyard/railyard/server/internal/device"
)

// sender posts one notice to one webhook URL.
type sender func(n *Notifier, ctx context.Context, url string, notice Notice) error

var senders = map[string]sender{
	"slack": (*Notifier).sendSlack,
	"teams": (*Notifier).sendTeams,
	"http":  (*Notifier).sendHTTP,
}

// deliver posts notice to every webhook with a resolvable URL. Failures are
// logged per target.
func (n *Notifier) deliver(ctx context.Context, notice Notice) {
	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		send, ok := senders[wh.Type]
		if !ok {
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}
		if err := send(n, ctx, url, notice); err != nil {
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"kind", notice.Kind,
				"device", notice.Device,
				"pins", device.PinString(notice.Pins),
				"err", err,
			)
			continue
		}
		slog.Debug("notify: webhook delivered", "type", wh.Type, "kind", notice.Kind)
	}
}

// fact is one labelled value shown under the message in chat cards.
type fact struct {
	Name  string
	Value string
}

// facts lists the yard context of a notice, skipping empty fields.
func facts(notice Notice) []fact {
	var out []fact
	if notice.Device != "" {
		out = append(out, fact{"Device", notice.Device})
	}
	if len(notice.Pins) > 0 {
		out = append(out, fact{"Pins", device.PinString(notice.Pins)})
	}
	if notice.Action != "" {
		out = append(out, fact{"Action", notice.Action})
	}
	if notice.Profile != "" {
		out = append(out, fact{"Profile", notice.Profile})
	}
	out = append(out, fact{"Devices in yard", strconv.Itoa(len(notice.Layout))})
	return out
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	TS     int64        `json:"ts"`
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

func (n *Notifier) sendSlack(ctx context.Context, url string, notice Notice) error {
	att := slackAttachment{
		Color:  "#" + severityColor(notice.Severity),
		Footer: "railyard " + notice.Kind,
		TS:     notice.Time.Unix(),
	}
	for _, f := range facts(notice) {
		att.Fields = append(att.Fields, slackField{Title: f.Name, Value: f.Value, Short: true})
	}
	return n.postJSON(ctx, url, slackMessage{
		Text:        fmt.Sprintf("*%s* %s", severityLabel(notice.Severity), notice.Message),
		Attachments: []slackAttachment{att},
	})
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	ActivityTitle string      `json:"activityTitle"`
	Facts         []teamsFact `json:"facts"`
}

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []teamsSection `json:"sections"`
}

func (n *Notifier) sendTeams(ctx context.Context, url string, notice Notice) error {
	sec := teamsSection{ActivityTitle: severityLabel(notice.Severity)}
	for _, f := range facts(notice) {
		sec.Facts = append(sec.Facts, teamsFact(f))
	}
	return n.postJSON(ctx, url, teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: severityColor(notice.Severity),
		Summary:    notice.Kind,
		Title:      "Rail yard: " + notice.Kind,
		Text:       notice.Message,
		Sections:   []teamsSection{sec},
	})
}

// sendHTTP posts the notice with the full device layout, the same list
// GET /devices returns.
func (n *Notifier) sendHTTP(ctx context.Context, url string, notice Notice) error {
	return n.postJSON(ctx, url, map[string]Notice{"event": notice})
}

func (n *Notifier) postJSON(ctx context.Context, url string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case SeverityCritical:
		return "[CRITICAL]"
	case SeverityWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

// severityColor follows the track signal aspects: red, amber, green.
func severityColor(s string) string {
	switch s {
	case SeverityCritical:
		return "D32F2F"
	case SeverityWarning:
		return "FFA000"
	default:
		return "388E3C"
	}
}
