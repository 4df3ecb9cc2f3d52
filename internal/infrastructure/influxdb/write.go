package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementAuthEvents is the measurement holding one point per auth event.
const MeasurementAuthEvents = "auth_events"

// WriteAuthEvent records one authentication event. Empty tag values are
// omitted. The write is non-blocking.
func (c *Client) WriteAuthEvent(event, outcome, role string, at time.Time) {
	tags := map[string]string{"event": event}
	if outcome != "" {
		tags["outcome"] = outcome
	}
	if role != "" {
		tags["role"] = role
	}
	c.WritePoint(MeasurementAuthEvents, tags, map[string]any{"count": 1}, at)
}

// WritePoint writes a point with explicit tags, fields and timestamp. A zero
// timestamp means now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
