package events

import "github.com/weaveworld/goweave/pkg/worlddb"

// EventType classifies events for transport-specific encoding.
type EventType int

const (
	EvEvent   EventType = iota // Narrative event line ("You pick up the bottle.")
	EvMessage                  // Out-of-band message to the player
	EvError                    // Error report for a failed command
	EvUpdate                   // Re-rendered view facets
	EvPortList                 // Portal collection changed
	EvClose                    // Connection should be closed
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvEvent:
		return "event"
	case EvMessage:
		return "message"
	case EvError:
		return "error"
	case EvUpdate:
		return "update"
	case EvPortList:
		return "updateplist"
	case EvClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is a structured message that flows through the event bus.
// Transports decide how to encode each event: the websocket layer sends
// the full structured data, the journal records Text.
type Event struct {
	Type   EventType
	Player worlddb.PlayerID // Recipient ("" for broadcast)
	Text   string           // Event/message/error text
	Data   map[string]any   // Facet payloads for EvUpdate
}
