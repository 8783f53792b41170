package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg), "second registration is a no-op")

	TopWalletChanges.WithLabelValues(ChangeMembers).Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(TopWalletChanges.WithLabelValues(ChangeMembers)), 1.0)
}
