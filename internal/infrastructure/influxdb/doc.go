// Package influxdb writes rxcore time series to InfluxDB 2.x.
//
// The only series today is auth_events: one point per authentication event,
// tagged by event type, outcome and role, with an integer count field of 1.
// Dashboards sum the count over time windows to chart logins, failures and
// refresh rejections.
//
// Writes go through the client library's non-blocking WriteAPI and are
// batched by BatchSize and FlushInterval from config. Write failures arrive
// asynchronously on the callback set with SetOnError.
package influxdb
