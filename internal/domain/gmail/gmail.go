package gmail

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
)

// MessageRef identifies one message within an authenticated mailbox.
// Refs are only valid for the run that produced them; a referenced
// message can disappear before it is fetched.
type MessageRef struct {
	ID       string
	ThreadID string
}

// Header is a single message header as returned by the provider.
type Header struct {
	Name  string
	Value string
}

// MessagePart is one node of the provider's MIME tree. Data holds the
// base64url-encoded payload of this part, if any.
type MessagePart struct {
	MimeType string
	Data     string
	Parts    []MessagePart
}

// RawMessage is the full content of one fetched message. It is never
// mutated after construction.
type RawMessage struct {
	ID       string
	ThreadID string
	Headers  []Header
	Payload  MessagePart
}

// Header returns the value of the first header with the given name,
// matched case-insensitively, or "" when absent.
func (m *RawMessage) Header(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

type MailboxRepo interface {
	GetAuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	Search(ctx context.Context, token *oauth2.Token, query string, maxResults int64) ([]MessageRef, error)
	GetMessage(ctx context.Context, token *oauth2.Token, ref MessageRef) (*RawMessage, error)
}
