package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound reports an id the source response did not contain.
var ErrNotFound = errors.New("item not present in source response")

const (
	defaultCardURL   = "https://card.wb.ru/cards/detail"
	defaultSearchURL = "https://search.wb.ru/exactmatch/ru/common/v4/search"
)

// Wildberries fetches item snapshots from the Wildberries card API. One
// instance owns its HTTP session for the lifetime of the orchestrator.
type Wildberries struct {
	client    *http.Client
	cardURL   string
	searchURL string
	log       *slog.Logger
}

// WildberriesOption configures a Wildberries source.
type WildberriesOption func(*Wildberries)

// WithBaseURLs overrides the card and search API endpoints.
func WithBaseURLs(card, search string) WildberriesOption {
	return func(w *Wildberries) {
		w.cardURL = card
		w.searchURL = search
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) WildberriesOption {
	return func(w *Wildberries) { w.client = c }
}

// NewWildberries creates a Wildberries source.
func NewWildberries(log *slog.Logger, opts ...WildberriesOption) *Wildberries {
	w := &Wildberries{
		client:    &http.Client{Timeout: 15 * time.Second},
		cardURL:   defaultCardURL,
		searchURL: defaultSearchURL,
		log:       log.With("component", "source.wb"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Wildberries) Platform() string { return "wb" }

// ListCandidateIDs returns nothing: the Wildberries source has no feed of its
// own, the monitored set comes from the stored catalog.
func (w *Wildberries) ListCandidateIDs(ctx context.Context) ([]string, error) {
	return nil, nil
}

// cardResponse is the raw card API payload. Prices are in kopecks.
type cardResponse struct {
	Data struct {
		Products []cardProduct `json:"products"`
	} `json:"data"`
}

type cardProduct struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Brand         string  `json:"brand"`
	PriceU        int64   `json:"priceU"`
	SalePriceU    int64   `json:"salePriceU"`
	Sale          float64 `json:"sale"`
	ReviewRating  float64 `json:"reviewRating"`
	TotalQuantity int     `json:"totalQuantity"`
}

func (w *Wildberries) ParseBatch(ctx context.Context, ids []string) []ParseResult {
	results := make([]ParseResult, 0, len(ids))
	if len(ids) == 0 {
		return results
	}

	products, err := w.fetchCards(ctx, ids)
	if err != nil {
		// The whole HTTP call failed; every id in the batch reports the
		// same fetch error rather than aborting the cycle.
		for _, id := range ids {
			results = append(results, ParseResult{ExternalID: id, Err: err})
		}
		return results
	}

	for _, id := range ids {
		p, ok := products[id]
		if !ok {
			results = append(results, ParseResult{ExternalID: id, Err: ErrNotFound})
			continue
		}
		snap := normalizeCard(p)
		results = append(results, ParseResult{ExternalID: id, Snapshot: &snap})
	}
	return results
}

func (w *Wildberries) fetchCards(ctx context.Context, ids []string) (map[string]cardProduct, error) {
	q := url.Values{}
	q.Set("appType", "1")
	q.Set("curr", "rub")
	q.Set("dest", "-1257786")
	q.Set("nm", strings.Join(ids, ";"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cardURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build card request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("card request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("card request: unexpected status %d", resp.StatusCode)
	}

	var payload cardResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode card response: %w", err)
	}

	products := make(map[string]cardProduct, len(payload.Data.Products))
	for _, p := range payload.Data.Products {
		products[strconv.FormatInt(p.ID, 10)] = p
	}
	return products, nil
}

// normalizeCard converts a raw card product into the canonical snapshot.
func normalizeCard(p cardProduct) Snapshot {
	id := strconv.FormatInt(p.ID, 10)

	title := strings.TrimSpace(p.Name)
	if brand := strings.TrimSpace(p.Brand); brand != "" && title != "" {
		title = brand + " / " + title
	}
	if title == "" {
		title = id
	}

	snap := Snapshot{
		ExternalID: id,
		Title:      title,
		URL:        "https://www.wildberries.ru/catalog/" + id + "/detail.aspx",
		ImageURL:   wbImageURL(p.ID),
		Stock:      intOf(p.TotalQuantity),
	}

	if p.SalePriceU > 0 {
		snap.Price = decimal.NullDecimal{
			Decimal: decimal.New(p.SalePriceU, -2),
			Valid:   true,
		}
	}
	if p.PriceU > 0 {
		snap.OldPrice = decimal.NullDecimal{
			Decimal: decimal.New(p.PriceU, -2),
			Valid:   true,
		}
	}

	if p.Sale > 0 {
		snap.DiscountPercent = floatOf(p.Sale)
	} else if p.PriceU > 0 && p.SalePriceU > 0 && p.SalePriceU < p.PriceU {
		// The API omits the sale field for some categories; derive it.
		snap.DiscountPercent = floatOf(float64(p.PriceU-p.SalePriceU) / float64(p.PriceU) * 100)
	}

	if p.ReviewRating > 0 {
		snap.Rating = floatOf(p.ReviewRating)
	}

	return snap
}

// wbImageURL builds the CDN image URL from the article number.
func wbImageURL(id int64) string {
	vol := id / 100000
	part := id / 1000

	var host int64
	switch {
	case vol <= 143:
		host = 1
	case vol <= 287:
		host = 2
	case vol <= 431:
		host = 3
	case vol <= 719:
		host = 4
	case vol <= 1007:
		host = 5
	case vol <= 1061:
		host = 6
	case vol <= 1115:
		host = 7
	case vol <= 1169:
		host = 8
	case vol <= 1313:
		host = 9
	case vol <= 1601:
		host = 10
	case vol <= 1655:
		host = 11
	case vol <= 1919:
		host = 12
	default:
		host = 13
	}

	return fmt.Sprintf("https://basket-%02d.wbbasket.ru/vol%d/part%d/%d/images/big/1.webp",
		host, vol, part, id)
}

// searchResponse is the raw search API payload used for discovery.
type searchResponse struct {
	Data struct {
		Products []struct {
			ID int64 `json:"id"`
		} `json:"products"`
	} `json:"data"`
}

// DiscoverCandidates searches the given query hints and collects candidate
// ids round-robin until target is reached.
func (w *Wildberries) DiscoverCandidates(ctx context.Context, hints []string, target int) ([]string, error) {
	if target <= 0 || len(hints) == 0 {
		return nil, nil
	}

	perHint := target/len(hints) + 1
	seen := make(map[string]struct{}, target)
	var out []string

	for _, hint := range hints {
		ids, err := w.search(ctx, hint)
		if err != nil {
			w.log.Warn("discovery query failed", "query", hint, "error", err)
			continue
		}
		taken := 0
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
			taken++
			if taken >= perHint || len(out) >= target {
				break
			}
		}
		if len(out) >= target {
			break
		}
	}
	return out, nil
}

func (w *Wildberries) search(ctx context.Context, query string) ([]string, error) {
	q := url.Values{}
	q.Set("appType", "1")
	q.Set("curr", "rub")
	q.Set("dest", "-1257786")
	q.Set("resultset", "catalog")
	q.Set("query", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.searchURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("search request: unexpected status %d", resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	ids := make([]string, 0, len(payload.Data.Products))
	for _, p := range payload.Data.Products {
		ids = append(ids, strconv.FormatInt(p.ID, 10))
	}
	return ids, nil
}
