package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradewatch/cryptobot/internal/coordinator"
	"github.com/tradewatch/cryptobot/internal/domain"
	"github.com/tradewatch/cryptobot/internal/exchange"
	"github.com/tradewatch/cryptobot/internal/store"
	"github.com/tradewatch/cryptobot/pkg/logger"
	"github.com/tradewatch/cryptobot/pkg/retry"
)

// Scanner enumerates tradable assets and keeps the registry fresh.
// Registry upserts are last-writer-wins per field (volume and
// timestamps are commutative), so the scanner needs no per-asset
// leases; the single scan:global lease only stops two full scans from
// overlapping.
type Scanner struct {
	store    *store.Store
	coord    *coordinator.Coordinator
	exchange exchange.Exchange
	cfg      Config
	workerID string
}

// Config is the scanner's slice of the configuration surface.
type Config struct {
	ScanInterval     time.Duration
	MaxAssetsPerScan int
	MinVolume24h     decimal.Decimal
	ExcludedSymbols  map[string]bool
	InstrumentType   string
	Retry            retry.Config
}

// New builds a scanner.
func New(st *store.Store, coord *coordinator.Coordinator, ex exchange.Exchange, cfg Config, workerID string) *Scanner {
	if cfg.ExcludedSymbols == nil {
		cfg.ExcludedSymbols = map[string]bool{}
	}
	return &Scanner{store: st, coord: coord, exchange: ex, cfg: cfg, workerID: workerID}
}

// Scan runs one discovery cycle. A busy scan lease (a previous cycle
// still running somewhere) returns domain.ErrSkipped.
func (s *Scanner) Scan(ctx context.Context) (domain.ScanReport, error) {
	// The lease TTL covers a slow full scan; it expires on its own if
	// this worker dies mid-cycle.
	lease, err := s.coord.Acquire(domain.ScanLeaseKey, s.workerID, 2*s.cfg.ScanInterval)
	if err != nil {
		if errors.Is(err, domain.ErrBusy) {
			return domain.ScanReport{}, fmt.Errorf("scan already running: %w", domain.ErrSkipped)
		}
		return domain.ScanReport{}, fmt.Errorf("acquire scan lease: %w", err)
	}
	defer func() {
		if err := s.coord.Release(lease); err != nil {
			logger.Warnf("release scan lease: %v", err)
		}
	}()

	scanStart := time.Now()

	var markets []domain.Market
	err = retry.Do(ctx, s.cfg.Retry, exchange.Retryable, func() error {
		var ferr error
		markets, ferr = s.exchange.ListMarkets(ctx)
		return ferr
	})
	if err != nil {
		return domain.ScanReport{}, fmt.Errorf("list markets: %w", err)
	}

	report := domain.ScanReport{Discovered: len(markets)}

	survivors := markets[:0]
	for _, m := range markets {
		if s.cfg.ExcludedSymbols[m.Symbol] {
			continue
		}
		if s.cfg.InstrumentType != "" && m.InstrumentType != s.cfg.InstrumentType {
			continue
		}
		if m.QuoteVolume24h.LessThan(s.cfg.MinVolume24h) {
			continue
		}
		survivors = append(survivors, m)
	}
	// Highest volume first; cap the registry churn per cycle.
	sort.Slice(survivors, func(i, j int) bool {
		return survivors[i].QuoteVolume24h.GreaterThan(survivors[j].QuoteVolume24h)
	})
	if len(survivors) > s.cfg.MaxAssetsPerScan {
		survivors = survivors[:s.cfg.MaxAssetsPerScan]
	}
	report.Filtered = report.Discovered - len(survivors)

	now := time.Now()
	for _, m := range survivors {
		if ctx.Err() != nil {
			break
		}
		err := s.store.UpsertAsset(ctx, domain.Asset{
			Symbol:      m.Symbol,
			Volume24h:   m.QuoteVolume24h,
			LastScanned: now,
			Active:      true,
		})
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", m.Symbol, err))
			continue
		}
		report.Upserted++
	}

	// Anything the full listing no longer confirms drops out of the
	// active set; positions on it are untouched and close out normally.
	deactivated, err := s.store.DeactivateAssetsNotScannedSince(ctx, scanStart)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("deactivate: %v", err))
	}
	report.Deactivated = int(deactivated)

	logger.WithFields(map[string]interface{}{
		"discovered":  report.Discovered,
		"filtered":    report.Filtered,
		"upserted":    report.Upserted,
		"deactivated": report.Deactivated,
	}).Infof("scan cycle complete")
	return report, nil
}
