package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// deliver sends ev to all configured webhook targets.
// Errors are logged but do not affect the caller.
func (n *Notifier) deliver(ev Event) {
	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = n.sendSlack(url, ev)
		case "discord":
			err = n.sendDiscord(url, ev)
		case "http":
			err = n.sendHTTP(url, ev)
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"area", ev.AreaID,
				"err", err,
			)
		}
	}
}

func levelLabel(level int) string {
	switch level {
	case 2:
		return "SEVERE"
	case 1:
		return "HIGH"
	default:
		return "NONE"
	}
}

func (n *Notifier) sendSlack(url string, ev Event) error {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*[%s]* dread rising in %s (level %d -> %d)",
			levelLabel(ev.DreadLevel), ev.AreaID, ev.PreviousLevel, ev.DreadLevel),
	})
	return n.post(url, body)
}

func (n *Notifier) sendDiscord(url string, ev Event) error {
	body, _ := json.Marshal(map[string]string{
		"content": fmt.Sprintf("[%s] dread rising in %s (level %d -> %d)",
			levelLabel(ev.DreadLevel), ev.AreaID, ev.PreviousLevel, ev.DreadLevel),
	})
	return n.post(url, body)
}

func (n *Notifier) sendHTTP(url string, ev Event) error {
	body, _ := json.Marshal(map[string]interface{}{"event": ev})
	return n.post(url, body)
}

func (n *Notifier) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
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
