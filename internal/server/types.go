package server

// MessageType names a websocket message.
type MessageType string

const (
	// Incoming message types (client to server)
	MessageTypeInput   MessageType = "input"
	MessageTypeKeyDown MessageType = "keydown"
	MessageTypeChange  MessageType = "change"
	MessageTypeInsert  MessageType = "insert"
	MessageTypeRemove  MessageType = "remove"

	// Outgoing message types (server to client)
	MessageTypeReady    MessageType = "ready"
	MessageTypeResult   MessageType = "result"
	MessageTypeInserted MessageType = "inserted"
	MessageTypeRemoved  MessageType = "removed"
	MessageTypeError    MessageType = "error"
)

// Message is the single envelope for both directions. Fields that do not
// apply to a type are left empty.
type Message struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"` // For correlating responses
	Widget    string      `json:"widget,omitempty"`

	// input, insert
	Source string `json:"source,omitempty"`
	// keydown
	Key  string `json:"key,omitempty"`
	Ctrl bool   `json:"ctrl,omitempty"`
	// insert: thing kind, "javascript" when empty
	Kind string `json:"kind,omitempty"`

	// result, inserted
	Result *WidgetState `json:"result,omitempty"`
	// inserted
	HTML string `json:"html,omitempty"`
	// ready
	Session string        `json:"session,omitempty"`
	Widgets []WidgetState `json:"widgets,omitempty"`

	Error string `json:"error,omitempty"`
}

// WidgetState is what the client needs to redraw one widget.
type WidgetState struct {
	ID       string `json:"id"`
	Thing    string `json:"thing,omitempty"`
	Output   string `json:"output"`
	Failed   bool   `json:"failed"`
	Kind     string `json:"kind,omitempty"`
	Snapshot string `json:"snapshot,omitempty"`
}

// Health is the /healthz body.
type Health struct {
	Status     string  `json:"status"`
	Uptime     string  `json:"uptime"`
	Sessions   int     `json:"sessions"`
	Namespace  string  `json:"namespace"`
	RSSBytes   uint64  `json:"rss_bytes"`
	MemoryUsed float64 `json:"system_memory_used_percent"`
}
