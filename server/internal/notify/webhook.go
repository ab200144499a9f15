package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// deliver sends webhook notifications for n to all configured targets.
// Errors are logged but do not affect the caller.
func (e *Engine) deliver(n *Notification) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = e.sendSlack(url, n)
		case "teams":
			err = e.sendTeams(url, n)
		case "http":
			err = e.sendHTTP(url, n)
		default:
			slog.Warn("notify: unknown webhook type — skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"rule", n.RuleName,
				"err", err,
			)
		} else {
			slog.Debug("notify: webhook delivered",
				"type", wh.Type,
				"rule", n.RuleName,
				"state", n.State,
			)
		}
	}
}

func (e *Engine) sendSlack(url string, n *Notification) error {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s", severityLabel(n.Severity), n.Message),
	})
	return e.post(url, body)
}

func (e *Engine) sendTeams(url string, n *Notification) error {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": statusColor(n.NewStatus),
		"summary":    n.RuleName,
		"title":      fmt.Sprintf("Qualtrack: %s", n.RuleName),
		"text":       n.Message,
	}
	body, _ := json.Marshal(payload)
	return e.post(url, body)
}

func (e *Engine) sendHTTP(url string, n *Notification) error {
	body, _ := json.Marshal(map[string]interface{}{"notification": n})
	return e.post(url, body)
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
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
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

// statusColor maps an evaluated metric status to the traffic light colors the
// dashboard uses.
func statusColor(status string) string {
	switch status {
	case "target_not_met":
		return "FF4040"
	case "near_target_met":
		return "FFD700"
	case "debt_target_met":
		return "B0B0B0"
	default:
		return "40C040"
	}
}
