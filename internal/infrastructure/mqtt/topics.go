package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "propctl"

// Topics builds propctl topic names under a common prefix.
type Topics struct {
	prefix string
}

// NewTopics trims trailing slashes from prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of every topic.
func (t Topics) Prefix() string {
	return t.root()
}

func (t Topics) root() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// State is the retained device state snapshot topic.
func (t Topics) State() string {
	return t.root() + "/state"
}

// ZoneStatus carries run events for one zone.
func (t Topics) ZoneStatus(zone int) string {
	return fmt.Sprintf("%s/zone/%d/status", t.root(), zone)
}

// ZoneCommand is the topic that triggers one zone.
func (t Topics) ZoneCommand(zone int) string {
	return fmt.Sprintf("%s/command/zone/%d", t.root(), zone)
}

// AllZoneCommands matches every zone command topic.
func (t Topics) AllZoneCommands() string {
	return t.root() + "/command/zone/+"
}

// SystemStatus is the online/offline topic, also used as the LWT.
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// ParseZoneCommand extracts the zone ID from a zone command topic.
func (t Topics) ParseZoneCommand(topic string) (int, bool) {
	rest, ok := strings.CutPrefix(topic, t.root()+"/command/zone/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// ZoneCommandHandler returns a MessageHandler for AllZoneCommands that
// calls trigger with the zone ID from the topic. The payload is ignored.
func (t Topics) ZoneCommandHandler(trigger func(zone int) error) MessageHandler {
	return func(topic string, _ []byte) error {
		zone, ok := t.ParseZoneCommand(topic)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnexpectedTopic, topic)
		}
		return trigger(zone)
	}
}
