package message

import "time"

// MaxSerializedSize bounds a single stored entry. Anything larger is
// rejected before it reaches the log.
const MaxSerializedSize = 50 * 1024

// AISenderID marks system-generated messages whose body is a JSON
// envelope rather than plain chat text.
const AISenderID = "ai"

// Sender identifies the author of a message.
type Sender struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AISender is the synthetic sender used for assistant output.
var AISender = Sender{ID: AISenderID, Email: "AI Assistant"}

// Message is a single chat entry in a project room.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Sender    Sender    `json:"sender"`
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
