package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

var (
	listPattern   = regexp.MustCompile(`show|list|events|available`)
	digitQuantity = regexp.MustCompile(`\b(\d+)\s*(tickets?|seats?)\b`)
	eventPattern  = regexp.MustCompile(`(?i)for\s+(.+)$`)
)

// numberWords is checked in order; the first word followed by "ticket(s)"
// or "seat(s)" wins.
var numberWords = []struct {
	pattern *regexp.Regexp
	value   int
}{
	{wordPattern("one"), 1},
	{wordPattern("a"), 1},
	{wordPattern("an"), 1},
	{wordPattern("two"), 2},
	{wordPattern("pair"), 2},
	{wordPattern("couple"), 2},
	{wordPattern("three"), 3},
	{wordPattern("four"), 4},
	{wordPattern("five"), 5},
	{wordPattern("six"), 6},
	{wordPattern("seven"), 7},
	{wordPattern("eight"), 8},
	{wordPattern("nine"), 9},
	{wordPattern("ten"), 10},
}

func wordPattern(word string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + word + `\b\s*(tickets?|seats?)`)
}

// Fallback is the deterministic keyword parser used when no language model
// is configured or the model's answer is unusable.
type Fallback struct{}

var _ Parser = Fallback{}

// Parse never returns an error.
func (Fallback) Parse(_ context.Context, text string) (Intent, error) {
	return ParseFallback(text), nil
}

// ParseFallback classifies text with keyword rules:
// listing words win, then a quantity and/or "for <event>" makes a booking
// (one ticket when no quantity is given), and anything else is unknown.
func ParseFallback(text string) Intent {
	text = strings.TrimSpace(text)
	if text == "" {
		return Unknown
	}
	lower := strings.ToLower(text)

	if listPattern.MatchString(lower) {
		return Intent{Kind: KindList}
	}

	tickets, hasTickets := extractQuantity(lower)

	var event string
	if m := eventPattern.FindStringSubmatch(text); m != nil {
		event = strings.TrimSpace(strings.TrimSuffix(m[1], "."))
	}

	if event == "" && !hasTickets {
		return Unknown
	}
	if !hasTickets {
		tickets = 1
	}
	return Intent{Kind: KindBook, Event: event, Tickets: count(tickets)}
}

// extractQuantity finds "2 tickets" style digits or small number words.
func extractQuantity(lower string) (int, bool) {
	if m := digitQuantity.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n, true
		}
	}
	for _, w := range numberWords {
		if w.pattern.MatchString(lower) {
			return w.value, true
		}
	}
	return 0, false
}
