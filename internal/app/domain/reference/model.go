// Package reference defines trust attestations members leave for each other
// after a confirmed sync or a shared event.
package reference

import "time"

// Sentiment is the overall judgement carried by a reference.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Valid reports whether the sentiment is a known value.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// Weight is the sentiment's contribution to the trust score.
func (s Sentiment) Weight() float64 {
	switch s {
	case SentimentPositive:
		return 1
	case SentimentNeutral:
		return 0.5
	}
	return 0
}

// Context is what a reference attests to.
type Context string

const (
	ContextSync  Context = "sync"
	ContextEvent Context = "event"
)

// Reference is a one-directional attestation from author to subject. Rating
// is optional and on a 1-5 scale. A reference with InReplyTo set is the
// subject's single allowed reply to a received reference.
type Reference struct {
	ID           string
	AuthorID     string
	SubjectID    string
	ConnectionID string
	Context      Context
	SyncID       string
	EventID      string
	Sentiment    Sentiment
	Body         string
	Rating       *int
	InReplyTo    string
	EditCount    int
	Published    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsReply reports whether the reference is a reply to another reference.
func (r Reference) IsReply() bool { return r.InReplyTo != "" }

// TrustScore is the aggregate standing derived from a profile's received
// published references.
type TrustScore struct {
	ProfileID  string
	Score      float64
	Positive   int
	Neutral    int
	Negative   int
	Total      int
	ComputedAt time.Time
}
