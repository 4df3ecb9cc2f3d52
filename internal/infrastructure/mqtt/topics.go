package mqtt

import "strings"

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "rxcore"

// Topics builds rxcore topic names under a common prefix.
//
//	topics := mqtt.NewTopics("rxcore")
//	topics.AuthEvent("logged_out") // rxcore/events/auth/logged_out
type Topics struct {
	prefix string
}

// NewTopics returns a topic builder rooted at prefix. Leading and trailing
// slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of every topic.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// SystemStatus is the retained online/offline topic.
func (t Topics) SystemStatus() string {
	return t.Prefix() + "/system/status"
}

// AuthEvent is the topic for one auth event type.
func (t Topics) AuthEvent(eventType string) string {
	return t.Prefix() + "/events/auth/" + eventType
}

// AllAuthEvents matches every auth event topic.
func (t Topics) AllAuthEvents() string {
	return t.Prefix() + "/events/auth/#"
}
