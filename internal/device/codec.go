package device

// CorrelationMode describes how a protocol pairs responses with the
// commands that caused them.
type CorrelationMode int

const (
	// CorrelateFIFO pairs responses to commands strictly in send order.
	// Used by protocols without message identifiers (AMCP).
	CorrelateFIFO CorrelationMode = iota

	// CorrelateKeyed pairs responses by an explicit key extracted from
	// the message by the codec.
	CorrelateKeyed
)

// MessageClass partitions inbound device messages.
type MessageClass int

const (
	// ClassResponse is a reply to a previously sent command.
	ClassResponse MessageClass = iota

	// ClassStateUpdate is an unsolicited device state notification.
	ClassStateUpdate

	// ClassUnknown is a message the codec cannot interpret. Sessions
	// count these as protocol anomalies and drop them.
	ClassUnknown
)

// Message is one classified inbound protocol unit.
type Message struct {
	Class MessageClass

	// Key correlates a ClassResponse to its command under CorrelateKeyed.
	// Empty under CorrelateFIFO.
	Key string

	// Success and Data describe a ClassResponse.
	Success bool
	Data    any

	// State carries the parsed payload of a ClassStateUpdate.
	State map[string]any

	// Raw is the original wire text, retained for diagnostics.
	Raw string
}

// Command is a protocol-independent command request. Name selects an entry
// in the codec's command table; Params are validated and serialized by the
// codec.
type Command struct {
	Name   string
	Params map[string]any
}

// Codec translates between Command values and a device's wire protocol.
// Implementations are pure with respect to I/O: they hold framing state
// only (partial frame buffers) and never touch the network. One codec
// instance serves one session. Feed and Reset are invoked from a single
// goroutine; Encode must be safe to call concurrently with them.
type Codec interface {
	// Feed consumes a raw chunk from the transport and returns the
	// complete messages it yields. Partial frames are buffered across
	// calls; a chunk may complete zero, one, or many frames.
	Feed(data []byte) []Message

	// Encode serializes a command into wire bytes. Under CorrelateKeyed
	// the returned key identifies the eventual response; under
	// CorrelateFIFO it is empty. Unknown command names or invalid
	// parameters produce an error without any side effect.
	Encode(cmd Command) (payload []byte, key string, err error)

	// Correlation reports how this protocol pairs responses to commands.
	Correlation() CorrelationMode

	// Reset clears buffered framing state. Called when the underlying
	// connection is replaced so stale partial frames cannot bleed into
	// the new connection.
	Reset()

	// Commands lists the command names the codec can encode.
	Commands() []string
}
