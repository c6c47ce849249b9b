package types

import (
	"fmt"
	"time"
)

// TweetID is the opaque identifier the source assigns to a single tweet. It
// is a non-empty string of decimal digits; the numeric value is never
// interpreted, only compared for equality.
type TweetID string

// ParseTweetID validates s against the tweet id grammar and returns it as a
// TweetID.
func ParseTweetID(s string) (TweetID, error) {
	id := TweetID(s)
	if !id.Valid() {
		return "", fmt.Errorf("invalid tweet id %q", s)
	}
	return id, nil
}

// Valid reports whether the id matches the tweet id grammar.
func (id TweetID) Valid() bool {
	if len(id) == 0 {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (id TweetID) String() string { return string(id) }

// Tweet is one retrieved item. Identity is the ID field; the remaining
// fields are payload passed through from the source unchanged.
type Tweet struct {
	ID             TweetID   `json:"id"`
	ConversationID TweetID   `json:"conversation_id,omitempty"`
	InReplyToID    TweetID   `json:"in_reply_to_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	Username       string    `json:"username,omitempty"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
	Lang           string    `json:"lang,omitempty"`
}

// Page is one page of results from the source. An empty NextCursor means
// the source has no further pages. The cursor is opaque and is only ever
// forwarded back to the source.
type Page struct {
	Tweets     []Tweet `json:"tweets"`
	NextCursor string  `json:"next_cursor,omitempty"`
}
