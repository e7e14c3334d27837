package detect

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pricewatch/internal/catalog"
	"pricewatch/internal/source"
)

// engine implements Engine on Postgres.
type engine struct {
	db     *sql.DB
	tracer trace.Tracer
	now    func() time.Time
}

// NewEngine creates a change detection engine backed by the given database.
func NewEngine(db *sql.DB) Engine {
	return &engine{
		db:     db,
		tracer: otel.Tracer("pricewatch/detect"),
		now:    time.Now,
	}
}

func (e *engine) DetectAndSave(ctx context.Context, platform string, snaps []source.Snapshot, stabilityThreshold int) ([]ChangeResult, error) {
	ctx, span := e.tracer.Start(ctx, "detect.save",
		trace.WithAttributes(
			attribute.String("platform", platform),
			attribute.Int("batch.size", len(snaps)),
		),
	)
	defer span.End()

	batch := dedupe(snaps)
	if len(batch) == 0 {
		return nil, nil
	}

	classifier := Classifier{StabilityThreshold: stabilityThreshold}
	now := e.now().UTC()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := loadItems(ctx, tx, platform, externalIDs(batch))
	if err != nil {
		return nil, err
	}

	results := make([]ChangeResult, 0, len(batch))
	historyWrites := 0

	for _, snap := range batch {
		item, ok := existing[snap.ExternalID]
		if !ok {
			created, res := classifier.NewItem(platform, snap, now)
			if err := insertItem(ctx, tx, created); err != nil {
				return nil, err
			}
			if err := insertHistory(ctx, tx, created, now); err != nil {
				return nil, err
			}
			historyWrites++
			results = append(results, res)
			continue
		}

		res := classifier.ClassifyExisting(item, snap, now)
		if err := updateItem(ctx, tx, item); err != nil {
			return nil, err
		}
		if res.HasChanges {
			if err := insertHistory(ctx, tx, item, now); err != nil {
				return nil, err
			}
			historyWrites++
		}
		results = append(results, res)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	span.SetAttributes(
		attribute.Int("results.count", len(results)),
		attribute.Int("history.writes", historyWrites),
	)
	return results, nil
}

func externalIDs(snaps []source.Snapshot) []string {
	ids := make([]string, 0, len(snaps))
	for _, s := range snaps {
		ids = append(ids, s.ExternalID)
	}
	return ids
}

func loadItems(ctx context.Context, tx *sql.Tx, platform string, ids []string) (map[string]*catalog.Item, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, external_id, title, COALESCE(url, ''),
		       current_price, old_price, discount, stock, rating,
		       stable_parse_count, baseline_set_at, last_checked_at, created_at
		FROM items
		WHERE platform = $1 AND external_id = ANY($2)
	`, platform, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	items := make(map[string]*catalog.Item)
	for rows.Next() {
		item := &catalog.Item{Platform: platform}
		var (
			discount sql.NullFloat64
			stock    sql.NullInt64
			rating   sql.NullFloat64
			baseline sql.NullTime
			checked  sql.NullTime
		)
		err := rows.Scan(
			&item.ID, &item.ExternalID, &item.Title, &item.URL,
			&item.CurrentPrice, &item.OldPrice, &discount, &stock, &rating,
			&item.StableParseCount, &baseline, &checked, &item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Discount = fromNullFloat(discount)
		item.Stock = fromNullInt(stock)
		item.Rating = fromNullFloat(rating)
		item.BaselineSetAt = fromNullTime(baseline)
		item.LastCheckedAt = fromNullTime(checked)
		items[item.ExternalID] = item
	}
	return items, rows.Err()
}

func insertItem(ctx context.Context, tx *sql.Tx, item *catalog.Item) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO items (platform, external_id, title, url,
		                   current_price, old_price, discount, stock, rating,
		                   stable_parse_count, baseline_set_at, last_checked_at, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (platform, external_id) DO UPDATE SET
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			current_price = EXCLUDED.current_price,
			old_price = EXCLUDED.old_price,
			discount = EXCLUDED.discount,
			stock = EXCLUDED.stock,
			rating = EXCLUDED.rating,
			baseline_set_at = EXCLUDED.baseline_set_at,
			last_checked_at = EXCLUDED.last_checked_at
		RETURNING id
	`,
		item.Platform, item.ExternalID, item.Title, item.URL,
		item.CurrentPrice, item.OldPrice,
		toNullFloat(item.Discount), toNullInt(item.Stock), toNullFloat(item.Rating),
		item.StableParseCount, toNullTime(item.BaselineSetAt), toNullTime(item.LastCheckedAt),
		item.CreatedAt,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("insert item %s: %w", item.ExternalID, err)
	}
	return nil
}

func updateItem(ctx context.Context, tx *sql.Tx, item *catalog.Item) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE items SET
			title = $1,
			url = NULLIF($2, ''),
			current_price = $3,
			old_price = $4,
			discount = $5,
			stock = $6,
			rating = $7,
			stable_parse_count = $8,
			baseline_set_at = $9,
			last_checked_at = $10
		WHERE id = $11
	`,
		item.Title, item.URL,
		item.CurrentPrice, item.OldPrice,
		toNullFloat(item.Discount), toNullInt(item.Stock), toNullFloat(item.Rating),
		item.StableParseCount, toNullTime(item.BaselineSetAt), toNullTime(item.LastCheckedAt),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item %s: %w", item.ExternalID, err)
	}
	return nil
}

// insertHistory appends one immutable record with the item's post-update
// values.
func insertHistory(ctx context.Context, tx *sql.Tx, item *catalog.Item, checkedAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO history (item_id, price, old_price, discount, stock, rating, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		item.ID, item.CurrentPrice, item.OldPrice,
		toNullFloat(item.Discount), toNullInt(item.Stock), toNullFloat(item.Rating),
		checkedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history for %s: %w", item.ExternalID, err)
	}
	return nil
}

func fromNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func fromNullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func toNullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func toNullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func toNullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}
