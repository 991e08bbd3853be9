package cosmopolite

// Message is a delivered object, decoded for consumption by user code.
// id is server-assigned and monotone per subject. The wire-level message
// field is a JSON-encoded string; by the time a Message reaches a callback
// or a Messages() snapshot, it has already been decoded into a JsonValue
// (represented here as any, the result of unmarshaling into interface{}).
type Message struct {
	Subject         Subject `json:"subject"`
	ID              int64   `json:"id"`
	Message         any     `json:"message"`
	EventID         string  `json:"event_id,omitempty"`
	SenderMessageID string  `json:"sender_message_id,omitempty"`
}
