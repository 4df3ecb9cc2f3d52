// Package authevents fans auth lifecycle events out to the systems that
// follow them: MQTT subscribers, InfluxDB dashboards, Prometheus and the
// audit log.
//
// Every sink implements auth.EventSink. None of them can fail the request
// that produced the event; errors are logged and the event is dropped. Sinks
// that can block on the network are wrapped in an Async queue.
package authevents
