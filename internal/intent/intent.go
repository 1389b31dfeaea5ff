// Package intent turns free text such as "Book two tickets for Jazz Night"
// into a structured booking intent, and holds the conversational assistant
// that talks users through a booking. The inventory never depends on which
// Parser produced the result.
package intent

import "context"

// Kind is what the user wants to do.
type Kind string

// Kinds a Parser can return.
const (
	KindBook    Kind = "book"
	KindList    Kind = "list"
	KindUnknown Kind = "unknown"
)

// Intent is the parsed form of a request. Event is empty when the text
// named no event. Tickets is nil when the parser has no count; an explicit
// count is kept as said, zero included, and checked when the booking is made.
type Intent struct {
	Kind    Kind   `json:"intent"`
	Event   string `json:"event,omitempty"`
	Tickets *int   `json:"tickets,omitempty"`
}

// Unknown is returned for text no parser could interpret.
var Unknown = Intent{Kind: KindUnknown}

// Parser classifies text. Implementations must not return an error for text
// they merely fail to understand; they return Unknown instead.
type Parser interface {
	Parse(ctx context.Context, text string) (Intent, error)
}

// normalize coerces a parsed intent into the shapes callers rely on.
func normalize(in Intent) Intent {
	switch in.Kind {
	case KindBook:
		return in
	case KindList:
		return Intent{Kind: KindList}
	default:
		return Unknown
	}
}

func count(n int) *int { return &n }
