package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

type WebhookMessage struct {
	Content string  `json:"content"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

type Embed struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Color       int       `json:"color"`
	Timestamp   time.Time `json:"timestamp"`
	Fields      []Field   `json:"fields,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Client posts operator alerts to a webhook. A client with an empty URL
// silently drops every message.
type Client struct {
	webhookURL string
	httpClient *http.Client
	service    string
}

func NewClient(webhookURL, service string) *Client {
	return &Client{
		webhookURL: webhookURL,
		service:    service,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether a webhook URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.webhookURL != ""
}

func (c *Client) SendMessage(ctx context.Context, msg WebhookMessage) error {
	if !c.Enabled() {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status: %d", resp.StatusCode)
	}

	return nil
}

// SendLogMessage satisfies logger.Alerter.
func (c *Client) SendLogMessage(level, message string, fields map[string]interface{}) error {
	embed := Embed{
		Title:       fmt.Sprintf("%s %s", c.service, level),
		Description: message,
		Color:       getColorForLevel(level),
		Timestamp:   time.Now().UTC(),
		Fields:      sortedFields(fields),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.SendMessage(ctx, WebhookMessage{Embeds: []Embed{embed}})
}

// SendSyncFailure reports a static file that was skipped during sync.
func (c *Client) SendSyncFailure(ctx context.Context, cityID, fileName string, cause error) error {
	embed := Embed{
		Title:       fmt.Sprintf("%s static sync", c.service),
		Description: fmt.Sprintf("Skipped %s", fileName),
		Color:       getColorForLevel("WARN"),
		Timestamp:   time.Now().UTC(),
		Fields: []Field{
			{Name: "city", Value: cityID, Inline: true},
			{Name: "file", Value: fileName, Inline: true},
			{Name: "error", Value: cause.Error()},
		},
	}
	return c.SendMessage(ctx, WebhookMessage{Embeds: []Embed{embed}})
}

func sortedFields(fields map[string]interface{}) []Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, Field{Name: k, Value: fmt.Sprintf("%v", fields[k]), Inline: true})
	}
	return out
}

func getColorForLevel(level string) int {
	switch level {
	case "ERROR":
		return 0xFF0000
	case "FATAL":
		return 0x8B0000
	case "WARN":
		return 0xFFA500
	default:
		return 0x808080
	}
}
