package main

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadFrames(t *testing.T) {
	body := strings.Join([]string{
		"event: layout",
		"data: {}",
		"",
		": ping",
		"",
		"event: totals_point",
		"data: {\"currency\":\"EUR\"}",
		"",
		"event: totals_point\r",
		"data: {\"currency\":\"USD\"}\r",
		"\r",
		"event: top_members",
		"data: {}",
		"",
	}, "\n") + "\n"

	st := newStats()
	err := readFrames(strings.NewReader(body), st)

	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int64(4), st.total())
	assert.Equal(t, int64(1), st.heartbeats.Load())
	assert.Equal(t, "layout=1 top_members=1 totals_point=2", st.byKind())
}
