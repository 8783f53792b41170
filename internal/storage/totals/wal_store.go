// Package totals persists deposit totals pushes for history and replay.
package totals

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/walletboard/internal/domain"
	"github.com/vadiminshakov/walletboard/pkg/retrier"
)

const (
	defaultTotalsDir   = "./wal/totals"
	totalsSegmentLimit = 1000
	totalsMaxSegments  = 100
	totalsKey          = "deposit_totals"
)

var (
	errNotInitialized   = errors.New("deposit totals store is not initialized")
	errMissingTimestamp = errors.New("deposit totals timestamp is required")
)

// WALStore persists deposit totals in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed totals store under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultTotalsDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "totals_",
		SegmentThreshold: totalsSegmentLimit,
		MaxSegments:      totalsMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init deposit totals WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends the totals to the WAL. Errors a retry cannot fix are marked
// with retrier.Permanent.
func (s *WALStore) Save(totals domain.DepositTotals) error {
	if s == nil || s.wal == nil {
		return retrier.Permanent(errNotInitialized)
	}
	if totals.Timestamp.IsZero() {
		return retrier.Permanent(errMissingTimestamp)
	}

	payload, err := json.Marshal(totals)
	if err != nil {
		return retrier.Permanent(errors.Wrap(err, "marshal deposit totals"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, totalsKey, payload)
}

// TotalsAfter returns all totals written after the provided WAL index.
func (s *WALStore) TotalsAfter(index uint64) ([]domain.DepositTotalsRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.readRange(index+1, s.wal.CurrentIndex())
}

// Recent returns up to n most recent totals, oldest first.
func (s *WALStore) Recent(n int) ([]domain.DepositTotals, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}
	if n <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	from := uint64(1)
	if current > uint64(n) {
		from = current - uint64(n) + 1
	}
	records, err := s.readRange(from, current)
	if err != nil {
		return nil, err
	}

	out := make([]domain.DepositTotals, len(records))
	for i, r := range records {
		out[i] = r.Totals
	}
	return out, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

// readRange must be called with s.mu held.
func (s *WALStore) readRange(from, to uint64) ([]domain.DepositTotalsRecord, error) {
	if from == 0 {
		from = 1
	}
	if to < from {
		return nil, nil
	}

	records := make([]domain.DepositTotalsRecord, 0, to-from+1)
	for idx := from; idx <= to; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "read deposit totals at index %d", idx)
		}
		if !strings.HasPrefix(key, totalsKey) {
			continue
		}
		var totals domain.DepositTotals
		if err := json.Unmarshal(payload, &totals); err != nil {
			return nil, errors.Wrap(err, "decode deposit totals")
		}
		records = append(records, domain.DepositTotalsRecord{
			Index:  idx,
			Totals: totals,
		})
	}

	return records, nil
}
