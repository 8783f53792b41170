package totals

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/walletboard/internal/domain"
	"github.com/vadiminshakov/walletboard/pkg/retrier"
)

func pushAt(i int) domain.DepositTotals {
	return domain.DepositTotals{
		Timestamp: time.Unix(1_700_000_000+int64(i), 0).UTC(),
		Totals: []domain.TotalDeposited{
			domain.NewTotalDeposited("EUR", decimal.NewFromInt(int64(i*10))),
			domain.NewTotalDeposited("USD", decimal.NewFromInt(int64(i))),
		},
	}
}

func TestWALStore_SaveAndRead(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err, "Failed to create WALStore")
	defer func() {
		assert.NoError(t, store.Close(), "Failed to close WAL")
	}()

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Save(pushAt(i)))
	}
	assert.Equal(t, uint64(5), store.CurrentIndex())

	t.Run("totals after index", func(t *testing.T) {
		records, err := store.TotalsAfter(3)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, uint64(4), records[0].Index)
		assert.Equal(t, uint64(5), records[1].Index)
		assert.True(t, records[1].Totals.Totals[0].Amount.Equal(decimal.NewFromInt(50)))
		assert.True(t, records[1].Totals.Timestamp.Equal(pushAt(5).Timestamp))
	})

	t.Run("nothing after current index", func(t *testing.T) {
		records, err := store.TotalsAfter(5)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("recent returns the tail oldest first", func(t *testing.T) {
		recent, err := store.Recent(3)
		require.NoError(t, err)
		require.Len(t, recent, 3)
		assert.True(t, recent[0].Timestamp.Equal(pushAt(3).Timestamp))
		assert.True(t, recent[2].Timestamp.Equal(pushAt(5).Timestamp))
	})

	t.Run("recent larger than log", func(t *testing.T) {
		recent, err := store.Recent(100)
		require.NoError(t, err)
		assert.Len(t, recent, 5)
	})
}

func TestWALStore_RejectsZeroTimestamp(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	assert.ErrorIs(t, store.Save(domain.DepositTotals{}), errMissingTimestamp)
	assert.Equal(t, uint64(0), store.CurrentIndex())
}

func TestWALStore_NonRetryableSaveStopsRetrier(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	r := retrier.New(retrier.WithMaxRetries(3), retrier.WithInitialInterval(time.Millisecond))
	attempts := 0
	err = r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return store.Save(domain.DepositTotals{})
	})

	assert.ErrorIs(t, err, errMissingTimestamp)
	assert.Equal(t, 1, attempts)
}

func TestWALStore_Nil(t *testing.T) {
	var store *WALStore
	_, err := store.TotalsAfter(0)
	assert.ErrorIs(t, err, errNotInitialized)
	assert.Equal(t, uint64(0), store.CurrentIndex())
}
