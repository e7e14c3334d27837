package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const defaultTelegramAPI = "https://api.telegram.org"

// Telegram delivers candidates to a channel via the Bot API sendPhoto call.
// The send window and the HTTP session are fields of the instance, scoped to
// the orchestrator's lifetime.
type Telegram struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	baseURL string
	token   string
	channel string
	window  *Window
	log     *slog.Logger
}

// TelegramOption configures a Telegram delivery.
type TelegramOption func(*Telegram)

// WithAPIBase overrides the Bot API base URL.
func WithAPIBase(base string) TelegramOption {
	return func(t *Telegram) { t.baseURL = base }
}

// WithClient overrides the HTTP client.
func WithClient(c *http.Client) TelegramOption {
	return func(t *Telegram) { t.client = c }
}

// NewTelegram creates a Telegram delivery with the given send window.
func NewTelegram(token, channel string, window *Window, log *slog.Logger, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		client:  &http.Client{Timeout: 20 * time.Second},
		baseURL: defaultTelegramAPI,
		token:   token,
		channel: channel,
		window:  window,
		log:     log.With("component", "publish.telegram"),
	}
	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "telegram",
		Timeout: 2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type sendPhotoRequest struct {
	ChatID      string          `json:"chat_id"`
	Photo       string          `json:"photo"`
	Caption     string          `json:"caption"`
	ParseMode   string          `json:"parse_mode"`
	ReplyMarkup json.RawMessage `json:"reply_markup,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, cand Candidate) (bool, error) {
	if t.channel == "" {
		return false, fmt.Errorf("publish channel is not configured")
	}
	if !t.window.Allow() {
		return false, nil
	}

	if cand.Snapshot.ImageURL == "" {
		return false, &UnavailableError{
			ExternalID: cand.Item.ExternalID,
			Reason:     "no image url",
		}
	}

	body := sendPhotoRequest{
		ChatID:    t.channel,
		Photo:     cand.Snapshot.ImageURL,
		Caption:   buildCaption(cand),
		ParseMode: "HTML",
	}
	if cand.Snapshot.URL != "" {
		markup, _ := json.Marshal(map[string]any{
			"inline_keyboard": [][]map[string]string{
				{{"text": "Open", "url": cand.Snapshot.URL}},
			},
		})
		body.ReplyMarkup = markup
	}

	_, err := t.breaker.Execute(func() (any, error) {
		return nil, t.sendPhoto(ctx, body)
	})
	if err != nil {
		if unavailable, ok := errAsUnavailable(err, cand.Item.ExternalID); ok {
			return false, unavailable
		}
		return false, err
	}

	t.window.MarkSent()
	return true, nil
}

func (t *Telegram) sendPhoto(ctx context.Context, body sendPhotoRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal sendPhoto: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendPhoto", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sendPhoto request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sendPhoto request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("read sendPhoto response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return fmt.Errorf("sendPhoto: status %d, unparseable response", resp.StatusCode)
	}
	if !apiResp.OK {
		return fmt.Errorf("sendPhoto: %s", apiResp.Description)
	}
	return nil
}

// errAsUnavailable maps Bot API photo-fetch failures onto the unavailable
// signal so the lifecycle manager can remove the dead item.
func errAsUnavailable(err error, externalID string) (*UnavailableError, bool) {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"failed to get http url content",
		"wrong file identifier",
		"photo_invalid_dimensions",
		"wrong type of the web page content",
	} {
		if strings.Contains(msg, marker) {
			return &UnavailableError{ExternalID: externalID, Reason: err.Error()}, true
		}
	}
	return nil, false
}

func buildCaption(cand Candidate) string {
	snap := cand.Snapshot

	title := snap.Title
	if title == "" {
		title = cand.Item.Title
	}

	var parts []string
	parts = append(parts, "<b>"+html.EscapeString(title)+"</b>")

	switch {
	case snap.OldPrice.Valid && snap.Price.Valid:
		parts = append(parts, fmt.Sprintf("<s>%s</s> → <b>%s</b>",
			html.EscapeString(snap.OldPrice.Decimal.StringFixed(0)),
			html.EscapeString(snap.Price.Decimal.StringFixed(0)),
		))
	case snap.Price.Valid:
		parts = append(parts, "<b>"+html.EscapeString(snap.Price.Decimal.StringFixed(0))+"</b>")
	}

	if snap.DiscountPercent != nil {
		parts = append(parts, fmt.Sprintf("Discount: <b>%.0f%%</b>", *snap.DiscountPercent))
	}

	if cand.Reason != "" {
		parts = append(parts, html.EscapeString(cand.Reason))
	}

	return strings.Join(parts, "\n")
}
