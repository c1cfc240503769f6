package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the format the API uses for event timestamps. Values are
// always UTC and carry no zone designator.
const TimestampLayout = "2006-01-02T15:04:05"

// Timestamp is a time.Time that round-trips through the API's zone-less
// timestamp format.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to whole seconds in UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Second)}
}

// ParseTimestamp parses s in TimestampLayout, falling back to RFC 3339.
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return Timestamp{}, fmt.Errorf("parse timestamp %q: %w", s, err)
		}
	}
	return Timestamp{t.UTC()}, nil
}

func (t Timestamp) String() string {
	return t.UTC().Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	StatusScheduled    EventStatus = "scheduled"
	StatusStarted      EventStatus = "started"
	StatusFinished     EventStatus = "finished"
	StatusFailed       EventStatus = "failed"
	StatusNotification EventStatus = "notification"
)

var validStatuses = map[EventStatus]bool{
	StatusScheduled:    true,
	StatusStarted:      true,
	StatusFinished:     true,
	StatusFailed:       true,
	StatusNotification: true,
}

// IsValid reports whether s is a known status.
func (s EventStatus) IsValid() bool { return validStatuses[s] }

func (s EventStatus) String() string { return string(s) }

// EventAction tags the operation an event describes, e.g. "linode_create".
// The set is open-ended; the API adds actions without notice.
type EventAction string

const (
	ActionLinodeCreate   EventAction = "linode_create"
	ActionLinodeDelete   EventAction = "linode_delete"
	ActionLinodeBoot     EventAction = "linode_boot"
	ActionLinodeReboot   EventAction = "linode_reboot"
	ActionLinodeShutdown EventAction = "linode_shutdown"
	ActionLinodeClone    EventAction = "linode_clone"
	ActionLinodeResize   EventAction = "linode_resize"
	ActionVolumeCreate   EventAction = "volume_create"
	ActionVolumeDelete   EventAction = "volume_delete"
	ActionVolumeResize   EventAction = "volume_resize"
	ActionDatabaseCreate EventAction = "database_create"
	ActionDatabaseDelete EventAction = "database_delete"
	ActionFirewallCreate EventAction = "firewall_create"
	ActionFirewallDelete EventAction = "firewall_delete"

	ActionNodeBalancerCreate EventAction = "nodebalancer_create"
	ActionNodeBalancerDelete EventAction = "nodebalancer_delete"
)

func (a EventAction) String() string { return string(a) }

// IsDelete reports whether the action removes its primary entity.
func (a EventAction) IsDelete() bool {
	return strings.HasSuffix(string(a), "_delete")
}

// Entity references the resource an event concerns.
type Entity struct {
	ID    int64   `json:"id"`
	Label *string `json:"label"`
	Type  string  `json:"type"`
	URL   string  `json:"url"`
}

// Event is a server-emitted record describing a change to a cloud resource.
// Clients treat it as read-only; helpers that "modify" events return copies.
type Event struct {
	ID              int64       `json:"id"`
	Action          EventAction `json:"action"`
	Status          EventStatus `json:"status"`
	Entity          *Entity     `json:"entity"`
	SecondaryEntity *Entity     `json:"secondary_entity"`
	Seen            bool        `json:"seen"`
	Read            bool        `json:"read"`
	Created         Timestamp   `json:"created"`
	Duration        *float64    `json:"duration"`
	PercentComplete *int        `json:"percent_complete"`
	Rate            *string     `json:"rate"`
	TimeRemaining   *string     `json:"time_remaining"`
	Username        *string     `json:"username"`
	Message         *string     `json:"message"`

	// Deleted is set locally (never by the API) to the creation time of the
	// event that deleted this event's entity.
	Deleted *Timestamp `json:"_deleted,omitempty"`
}

// EventPage is one page of the events collection as returned by the API.
type EventPage struct {
	Data    []Event `json:"data"`
	Page    int     `json:"page"`
	Pages   int     `json:"pages"`
	Results int     `json:"results"`
}
