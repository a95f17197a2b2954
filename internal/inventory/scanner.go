package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"interview-analyzer/internal/jobs"
	"interview-analyzer/internal/shared/metrics"
	"interview-analyzer/internal/shared/storage/object"
	"interview-analyzer/internal/shared/telemetry"
)

// ErrDiscovery wraps content store listing failures. A scan that hits it
// returns no units.
var ErrDiscovery = errors.New("inventory discovery failed")

// UnitKey identifies one discoverable unit.
type UnitKey = jobs.UnitRef

// HistoryReader reports units that already have job history.
type HistoryReader interface {
	HandledUnits(ctx context.Context, maxAttempts int) ([]jobs.UnitRef, error)
}

// Scanner diffs the content store against job history.
type Scanner struct {
	Lister      Lister
	History     HistoryReader
	MaxAttempts int
}

// Scan returns units present in bucket that have not been handled, ordered by
// owner then unit. Units whose error records are below MaxAttempts are
// returned again.
func (s *Scanner) Scan(ctx context.Context, bucket string) ([]UnitKey, error) {
	out, err := s.pending(ctx, bucket, s.maxAttempts())
	metrics.IncScans(err != nil)
	return out, err
}

// Unattempted returns units in bucket that have no job record at all. Units
// waiting for a retry do not count; the next Scan picks them up.
func (s *Scanner) Unattempted(ctx context.Context, bucket string) ([]UnitKey, error) {
	return s.pending(ctx, bucket, 1)
}

func (s *Scanner) pending(ctx context.Context, bucket string, maxAttempts int) ([]UnitKey, error) {
	available, err := s.Lister.ListUnits(ctx, bucket)
	if err != nil {
		telemetry.Error("inventory.scan_failed", map[string]any{"bucket": bucket, "error": err})
		return nil, fmt.Errorf("%w: list %s: %w", ErrDiscovery, bucket, err)
	}

	handled, err := s.History.HandledUnits(ctx, maxAttempts)
	if err != nil {
		telemetry.Error("inventory.history_failed", map[string]any{"bucket": bucket, "error": err})
		return nil, fmt.Errorf("load job history: %w", err)
	}
	skip := make(map[UnitKey]struct{}, len(handled))
	for _, ref := range handled {
		skip[ref] = struct{}{}
	}

	total := 0
	out := []UnitKey{}
	for owner, units := range available {
		for _, unit := range units {
			total++
			key := UnitKey{OwnerID: owner, UnitID: unit}
			if _, done := skip[key]; done {
				continue
			}
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OwnerID != out[j].OwnerID {
			return out[i].OwnerID < out[j].OwnerID
		}
		return out[i].UnitID < out[j].UnitID
	})

	telemetry.Info("inventory.scan_completed", map[string]any{
		"bucket":       bucket,
		"owners":       len(available),
		"available":    total,
		"pending":      len(out),
		"max_attempts": maxAttempts,
	})
	return out, nil
}

// ListUnits exposes the raw inventory.
func (s *Scanner) ListUnits(ctx context.Context, bucket string) (map[string][]string, error) {
	units, err := s.Lister.ListUnits(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrDiscovery, bucket, err)
	}
	return units, nil
}

// Locate finds the media object for one unit.
func (s *Scanner) Locate(ctx context.Context, bucket, ownerID, unitID string) (object.Object, error) {
	obj, err := s.Lister.Locate(ctx, bucket, ownerID, unitID)
	if err != nil {
		if errors.Is(err, ErrUnitNotFound) {
			return object.Object{}, err
		}
		return object.Object{}, fmt.Errorf("%w: locate %s/%s: %w", ErrDiscovery, ownerID, unitID, err)
	}
	return obj, nil
}

func (s *Scanner) maxAttempts() int {
	if s.MaxAttempts < 1 {
		return 1
	}
	return s.MaxAttempts
}
