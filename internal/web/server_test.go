package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletboard/internal/dashboard"
	"github.com/vadiminshakov/walletboard/internal/domain"
	"github.com/vadiminshakov/walletboard/internal/events"
	"github.com/vadiminshakov/walletboard/internal/projection"
	"github.com/vadiminshakov/walletboard/internal/query"
)

type fakeHistory struct {
	records []domain.DepositTotalsRecord
	err     error
	after   uint64
}

func (f *fakeHistory) TotalsAfter(index uint64) ([]domain.DepositTotalsRecord, error) {
	f.after = index
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.DepositTotalsRecord
	for _, r := range f.records {
		if r.Index > index {
			out = append(out, r)
		}
	}
	return out, nil
}

type sseEvent struct {
	kind string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.kind != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func newBackend(t *testing.T) (*events.TotalsBroadcaster, *projection.TopWallets, *dashboard.Factory) {
	t.Helper()
	logger := zap.NewNop()
	gateway := query.NewGateway(logger, nil, 0)
	rates := map[string]decimal.Decimal{"EUR": decimal.NewFromInt(1), "USD": decimal.RequireFromString("0.9")}
	top := projection.NewTopWallets(logger, 5, rates, gateway)
	gateway.SetSource(top)
	t.Cleanup(gateway.Close)

	feed := events.NewTotalsBroadcaster(0)
	factory := dashboard.NewFactory(logger, feed, gateway, nil, dashboard.Options{TopSize: 5})
	return feed, top, factory
}

func TestServer_Index(t *testing.T) {
	srv := NewServer(zap.NewNop(), ":0", nil, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ManagementPath, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/management/stream")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, ManagementPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_RootRedirectsAndHealth(t *testing.T) {
	srv := NewServer(zap.NewNop(), ":0", nil, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, ManagementPath, rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Totals(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_000).UTC()
	history := &fakeHistory{records: []domain.DepositTotalsRecord{
		{Index: 1, Totals: domain.DepositTotals{Timestamp: ts, Totals: []domain.TotalDeposited{domain.NewTotalDeposited("EUR", decimal.NewFromInt(10))}}},
		{Index: 2, Totals: domain.DepositTotals{Timestamp: ts.Add(time.Second), Totals: []domain.TotalDeposited{domain.NewTotalDeposited("EUR", decimal.NewFromInt(12))}}},
	}}
	srv := NewServer(zap.NewNop(), ":0", nil, history, nil)

	tests := []struct {
		name    string
		target  string
		after   uint64
		indexes []uint64
	}{
		{name: "all", target: "/management/totals", after: 0, indexes: []uint64{1, 2}},
		{name: "after", target: "/management/totals?after=1", after: 1, indexes: []uint64{2}},
		{name: "invalid after", target: "/management/totals?after=abc", after: 0, indexes: []uint64{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.after, history.after)

			var got []totalsRecord
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			indexes := make([]uint64, len(got))
			for i, r := range got {
				indexes[i] = r.Index
			}
			assert.Equal(t, tt.indexes, indexes)
		})
	}
}

func TestServer_TotalsErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer(zap.NewNop(), ":0", nil, nil, nil).Handler().
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/management/totals", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	NewServer(zap.NewNop(), ":0", nil, &fakeHistory{err: errors.New("disk")}, nil).Handler().
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/management/totals", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_StreamUnavailableWithoutScreens(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer(zap.NewNop(), ":0", nil, nil, nil).Handler().
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/management/stream", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "walletboard_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	rec := httptest.NewRecorder()
	NewServer(zap.NewNop(), ":0", nil, nil, reg).Handler().
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "walletboard_test_total 1")
}

func TestServer_StreamFrames(t *testing.T) {
	feed, top, factory := newBackend(t)
	require.NoError(t, top.OnWalletSummary(domain.WalletSummary{
		WalletID: "w1", Currency: "EUR", Available: decimal.NewFromInt(100),
	}))

	httpSrv := httptest.NewServer(NewServer(zap.NewNop(), ":0", factory, nil, nil).Handler())
	defer httpSrv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpSrv.URL+"/management/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)

	ev := readEvent(t, r)
	require.Equal(t, string(dashboard.FrameLayout), ev.kind)
	var layout dashboard.LayoutPayload
	require.NoError(t, json.Unmarshal([]byte(ev.data), &layout))
	assert.Equal(t, 50.0, layout.SplitPosition)
	assert.Len(t, layout.Totals, 2)

	ev = readEvent(t, r)
	require.Equal(t, string(dashboard.FrameTopMembers), ev.kind)
	var members dashboard.TopMembersPayload
	require.NoError(t, json.Unmarshal([]byte(ev.data), &members))
	assert.Equal(t, []string{"w1"}, members.Categories)

	feed.Publish(domain.DepositTotals{
		Timestamp: time.Now(),
		Totals:    []domain.TotalDeposited{domain.NewTotalDeposited("EUR", decimal.NewFromInt(42))},
	})
	ev = readEvent(t, r)
	require.Equal(t, string(dashboard.FrameTotalsPoint), ev.kind)
	var point dashboard.TotalsPointPayload
	require.NoError(t, json.Unmarshal([]byte(ev.data), &point))
	assert.Equal(t, "EUR", point.Currency)
	assert.True(t, point.Point.Y.Equal(decimal.NewFromInt(42)))

	require.NoError(t, top.OnWalletSummary(domain.WalletSummary{
		WalletID: "w1", Currency: "EUR", Available: decimal.NewFromInt(150),
	}))
	ev = readEvent(t, r)
	require.Equal(t, string(dashboard.FrameTopValue), ev.kind)
	var value dashboard.TopValuePayload
	require.NoError(t, json.Unmarshal([]byte(ev.data), &value))
	assert.Equal(t, 0, value.Position)
	assert.True(t, value.Available.Equal(decimal.NewFromInt(150)))

	cancel()
	assert.Eventually(t, func() bool { return feed.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
