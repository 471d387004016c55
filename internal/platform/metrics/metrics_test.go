package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorCounts(t *testing.T) {
	c := New()
	c.RecordTick(2 * time.Millisecond)
	c.RecordTransaction(nil)
	c.RecordTransaction(errors.New("rejected"))
	c.RecordBankRun(true)
	c.RecordBankRun(false)

	snap := c.Snapshot()
	core := snap["core"].(map[string]interface{})
	assert.Equal(t, int64(1), core["transactions_applied"])
	assert.Equal(t, int64(1), core["transactions_rejected"])
	assert.Equal(t, int64(2), core["bank_runs"])
	assert.Equal(t, int64(1), core["bankruptcies"])

	tick := snap["tick"].(map[string]interface{})
	assert.Equal(t, int64(1), tick["count"])
}

func TestPrometheusHandler(t *testing.T) {
	c := New()
	c.RecordTransaction(nil)

	rec := httptest.NewRecorder()
	c.PrometheusHandler()(rec, httptest.NewRequest("GET", "/metrics/prometheus", nil))

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "banksim_transactions_applied 1"))
	assert.True(t, strings.Contains(body, "# TYPE banksim_ws_connections gauge"))
}

func TestEventDropsReported(t *testing.T) {
	c := New()
	assert.Equal(t, int64(0), c.EventsDropped())

	c.TrackEventDrops(func() int64 { return 3 })

	core := c.Snapshot()["core"].(map[string]interface{})
	assert.Equal(t, int64(3), core["events_dropped"])

	rec := httptest.NewRecorder()
	c.PrometheusHandler()(rec, httptest.NewRequest("GET", "/metrics/prometheus", nil))
	assert.Contains(t, rec.Body.String(), "banksim_events_dropped 3")
}
