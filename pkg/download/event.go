package download

// EventID identifies what happened in a download.
type EventID int

const (
	// EventStart is emitted once, before the first connection attempt.
	EventStart EventID = iota
	// EventConnected is emitted after every successful connect, reconnects included.
	EventConnected
	// EventFileSize is emitted at most once, when the total size is known.
	EventFileSize
	// EventData carries a window of the resource.
	EventData
	// EventFinish is the last event of a successful download.
	EventFinish
	// EventFault is the last event of a failed download.
	EventFault
)

func (id EventID) String() string {
	switch id {
	case EventStart:
		return "START"
	case EventConnected:
		return "CONNECTED"
	case EventFileSize:
		return "ON_FILESIZE"
	case EventData:
		return "ON_DATA"
	case EventFinish:
		return "FINISH"
	case EventFault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// Event is rebuilt for every callback and must not be retained.
type Event struct {
	// Data is the current window: Carried bytes kept from the previous
	// EventData followed by fresh bytes. It aliases the engine's buffer and
	// is only valid during the callback.
	Data []byte
	// Offset is the position of Data[0] in the resource.
	Offset int64
	// Carried is how many bytes at the head of Data were already seen.
	Carried  int
	FileSize int64
	UserData any
	// Err is set on EventFault.
	Err error
}

// Fresh returns the bytes of Data not delivered before.
func (e *Event) Fresh() []byte {
	return e.Data[e.Carried:]
}

// EventHandler receives every event synchronously on the downloading
// goroutine. For EventData it returns how many bytes at the tail of Data it
// could not consume yet; those bytes are handed back at the head of the next
// EventData. The return value is ignored for every other event.
type EventHandler func(id EventID, ev *Event) (retain int)
