// Package analytics implements the optional, best-effort ClickHouse export
// of settled ledger records (§4.7 "[NEW] Analytics export"). It satisfies
// ledgerfsm.Exporter and is wired in purely as an observability supplement:
// a failed or slow export never blocks or fails an FSM transition, mirroring
// the reference corpus's standalone analytics service that ingests
// impression/click events for offline reporting out of band from the
// serving path.
package analytics

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"

	"github.com/rivalapexmediation/auction/internal/ledgerfsm"
)

// DefaultExportTimeout bounds how long a single record export may take
// before it is abandoned. Export never blocks the FSM transition it is
// called from; this timeout only bounds the background goroutine's own
// lifetime.
const DefaultExportTimeout = 2 * time.Second

// Sink exports settled ledger records to ClickHouse for offline reporting.
type Sink struct {
	conn    driver.Conn
	timeout time.Duration
}

// NewSink dials addr and ensures the settled_auctions table exists.
// Schema initialization failures are logged and non-fatal, matching the
// reference client's tolerance for a database that isn't fully migrated
// yet — the sink degrades to failed exports rather than refusing to start.
func NewSink(addr string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "aip_analytics",
			Username: "default",
			Password: "",
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	s := &Sink{conn: conn, timeout: DefaultExportTimeout}

	if err := s.initSchema(context.Background()); err != nil {
		log.WithError(err).Warn("analytics: schema initialization skipped")
	}

	return s, nil
}

// Close closes the underlying ClickHouse connection.
func (s *Sink) Close() error {
	return s.conn.Close()
}

func (s *Sink) initSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS settled_auctions (
		auction_id String,
		state String,
		winner_bidder String,
		winner_pricing_model String,
		winner_price Float64,
		no_bid UInt8,
		serve_token String,
		event_type String,
		created_at DateTime,
		updated_at DateTime,
		date Date MATERIALIZED toDate(updated_at)
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(date)
	ORDER BY (auction_id, date)
	TTL date + INTERVAL 90 DAY
	`
	return s.conn.Exec(ctx, ddl)
}

// Export implements ledgerfsm.Exporter. It is invoked synchronously by the
// FSM on every terminal transition and returns at once: the insert runs on
// its own goroutine, bounded by the sink's timeout, and every error is
// swallowed after logging it.
func (s *Sink) Export(ctx context.Context, record ledgerfsm.Record) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		if err := s.insert(ctx, record); err != nil {
			log.WithError(err).WithField("auction_id", record.AuctionID).
				Warn("analytics: export failed, dropping record")
		}
	}()
}

// row is the flattened, ClickHouse-column-ordered projection of a settled
// ledgerfsm.Record. Split out from insert so the projection logic is
// testable without a live ClickHouse connection.
type row struct {
	auctionID    string
	state        string
	winnerBidder string
	winnerModel  string
	winnerPrice  float64
	noBid        uint8
	serveToken   string
	eventType    string
	createdAt    time.Time
	updatedAt    time.Time
}

func rowFromRecord(record ledgerfsm.Record) row {
	r := row{
		auctionID:  record.AuctionID,
		state:      string(record.State),
		serveToken: record.ServeToken,
		createdAt:  record.CreatedAt,
		updatedAt:  record.UpdatedAt,
	}

	if record.Winner != nil {
		r.winnerBidder = record.Winner.Bidder
		r.winnerModel = string(record.Winner.PricingModel)
		r.winnerPrice, _ = record.Winner.Price.Float64()
	}

	if record.NoBid {
		r.noBid = 1
	}

	if n := len(record.History); n > 0 {
		r.eventType = string(record.History[n-1].Type)
	}

	return r
}

func (s *Sink) insert(ctx context.Context, record ledgerfsm.Record) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO settled_auctions")
	if err != nil {
		return err
	}

	r := rowFromRecord(record)

	if err := batch.Append(
		r.auctionID,
		r.state,
		r.winnerBidder,
		r.winnerModel,
		r.winnerPrice,
		r.noBid,
		r.serveToken,
		r.eventType,
		r.createdAt,
		r.updatedAt,
	); err != nil {
		return err
	}

	return batch.Send()
}
