package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/conversations", "POST", 201, time.Millisecond)
	m.RecordRequest("/conversations", "POST", 201, time.Millisecond)
	m.RecordError("/conversations", "POST", "FORBIDDEN")
	m.RecordEvent("conversation", "message", "delivered")
	m.ConnectionOpened("conversation")
	m.ConnectionOpened("conversation")
	m.ConnectionClosed("conversation")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap["requests"]["/conversations|POST|201"])
	assert.Equal(t, int64(1), snap["errors"]["/conversations|POST|FORBIDDEN"])
	assert.Equal(t, int64(1), snap["events"]["conversation|message|delivered"])
	assert.Equal(t, int64(1), snap["connections"]["conversation"])
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordEvent("supervisor", "snapshot", "sent")
	m.ConnectionOpened("supervisor")
	assert.Nil(t, m.Snapshot())
}
