package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/catalog"
	"pricewatch/internal/source"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCandidate() Candidate {
	return Candidate{
		Item: &catalog.Item{ExternalID: "100", Title: "Test item"},
		Snapshot: source.Snapshot{
			ExternalID: "100",
			Title:      "Test item",
			Price:      dec("950"),
			OldPrice:   dec("1000"),
			ImageURL:   "https://img.example.com/100.webp",
			URL:        "https://example.com/100",
		},
		Reason: "Price drop: 1000 → 950 (-5.0%)",
	}
}

func telegramStub(t *testing.T, respond func(sendPhotoRequest) apiResponse) (*httptest.Server, *[]sendPhotoRequest) {
	t.Helper()
	var calls []sendPhotoRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body sendPhotoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls = append(calls, body)
		json.NewEncoder(w).Encode(respond(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestTelegramSendSuccess(t *testing.T) {
	srv, calls := telegramStub(t, func(sendPhotoRequest) apiResponse {
		return apiResponse{OK: true}
	})

	window := NewWindow(1, time.Hour)
	tg := NewTelegram("token", "@deals", window, testLogger(), WithAPIBase(srv.URL))

	sent, err := tg.Send(context.Background(), testCandidate())
	require.NoError(t, err)
	assert.True(t, sent)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "@deals", call.ChatID)
	assert.Equal(t, "https://img.example.com/100.webp", call.Photo)
	assert.Equal(t, "HTML", call.ParseMode)
	assert.Contains(t, call.Caption, "<b>Test item</b>")
	assert.Contains(t, call.Caption, "<s>1000</s> → <b>950</b>")
	assert.Contains(t, call.Caption, "Price drop")
	assert.NotEmpty(t, call.ReplyMarkup)

	// The successful send consumed the whole budget.
	sent, err = tg.Send(context.Background(), testCandidate())
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Len(t, *calls, 1)
}

func TestTelegramBudgetExhaustedBeforeCall(t *testing.T) {
	srv, calls := telegramStub(t, func(sendPhotoRequest) apiResponse {
		return apiResponse{OK: true}
	})

	window := NewWindow(1, time.Hour)
	window.MarkSent()
	tg := NewTelegram("token", "@deals", window, testLogger(), WithAPIBase(srv.URL))

	sent, err := tg.Send(context.Background(), testCandidate())
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, *calls, "no API call when the window is closed")
}

func TestTelegramMissingImageIsUnavailable(t *testing.T) {
	tg := NewTelegram("token", "@deals", NewWindow(0, time.Hour), testLogger())

	cand := testCandidate()
	cand.Snapshot.ImageURL = ""

	sent, err := tg.Send(context.Background(), cand)
	assert.False(t, sent)

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "100", unavailable.ExternalID)
}

func TestTelegramDeadPhotoIsUnavailable(t *testing.T) {
	srv, _ := telegramStub(t, func(sendPhotoRequest) apiResponse {
		return apiResponse{OK: false, Description: "Bad Request: failed to get HTTP URL content"}
	})

	window := NewWindow(0, time.Hour)
	tg := NewTelegram("token", "@deals", window, testLogger(), WithAPIBase(srv.URL))

	sent, err := tg.Send(context.Background(), testCandidate())
	assert.False(t, sent)

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "100", unavailable.ExternalID)
	assert.Contains(t, unavailable.Reason, "failed to get HTTP URL content")
}

func TestTelegramTransientFailureIsPlainError(t *testing.T) {
	srv, _ := telegramStub(t, func(sendPhotoRequest) apiResponse {
		return apiResponse{OK: false, Description: "Too Many Requests: retry after 30"}
	})

	tg := NewTelegram("token", "@deals", NewWindow(0, time.Hour), testLogger(), WithAPIBase(srv.URL))

	sent, err := tg.Send(context.Background(), testCandidate())
	assert.False(t, sent)
	require.Error(t, err)

	var unavailable *UnavailableError
	assert.False(t, errors.As(err, &unavailable))
}

func TestTelegramRequiresChannel(t *testing.T) {
	tg := NewTelegram("token", "", NewWindow(0, time.Hour), testLogger())

	sent, err := tg.Send(context.Background(), testCandidate())
	assert.False(t, sent)
	assert.Error(t, err)
}

func TestBuildCaptionWithoutOldPrice(t *testing.T) {
	cand := testCandidate()
	cand.Snapshot.OldPrice.Valid = false
	cand.Snapshot.DiscountPercent = fptr(15)

	caption := buildCaption(cand)
	assert.Contains(t, caption, "<b>950</b>")
	assert.NotContains(t, caption, "<s>")
	assert.Contains(t, caption, "Discount: <b>15%</b>")
}
