package wire

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderVisitor SenderType = "visitor"
	SenderAgent   SenderType = "agent"
	SenderBot     SenderType = "bot"
)

// ContentType identifies the payload kind carried by a message.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentFile  ContentType = "file"
)

// Content is the message payload. Which fields are set depends on ContentType.
type Content struct {
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// Message is a single conversation entry as exchanged with the backend.
// Field names follow the backend's snake_case wire schema.
type Message struct {
	ID          string      `json:"id"`
	SenderType  SenderType  `json:"sender_type"`
	ContentType ContentType `json:"content_type"`
	Content     Content     `json:"content"`
	CreatedAt   time.Time   `json:"created_at"`
}

// TempIDPrefix marks client-generated message ids that are still awaiting
// server confirmation.
const TempIDPrefix = "tmp-"

// NewTempID returns a locally-unique id for an optimistic message.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// Pending reports whether the message carries a client-generated id, i.e. it
// has not been confirmed by the server yet.
func (m Message) Pending() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// NewVisitorText builds an optimistic text message authored by the visitor.
func NewVisitorText(text string, at time.Time) Message {
	return Message{
		ID:          NewTempID(),
		SenderType:  SenderVisitor,
		ContentType: ContentText,
		Content:     Content{Text: text},
		CreatedAt:   at,
	}
}

// Visitor is the anonymous actor identity created on first widget load.
type Visitor struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Email     string         `json:"email,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewVisitor creates a fresh visitor identity.
func NewVisitor(now time.Time) Visitor {
	return Visitor{ID: uuid.NewString(), CreatedAt: now}
}

// Conversation is the handle of one support interaction. Immutable after
// creation; a new conversation requires a new id.
type Conversation struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// WidgetConfig is the remote per-tenant configuration fetched at init.
type WidgetConfig struct {
	TenantID        string `json:"tenant_id"`
	TenantName      string `json:"tenant_name"`
	PrimaryColor    string `json:"primary_color"`
	TextColor       string `json:"text_color"`
	BackgroundColor string `json:"background_color"`
	Position        string `json:"position"`
	WelcomeMessage  string `json:"welcome_message,omitempty"`
	PlaceholderText string `json:"placeholder_text"`
	OfflineMessage  string `json:"offline_message,omitempty"`
	RequireEmail    bool   `json:"require_email"`
	RequireName     bool   `json:"require_name"`
	ShowBranding    bool   `json:"show_branding"`
	IsOnline        bool   `json:"is_online"`
}
