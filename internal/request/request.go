package request

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/covey-labs/nest/api/types"
)

const (
	// NoLimit disables the total-results cap. The -1 sentinel survives the
	// JSON and CLI encodings unchanged, so an unbounded request never decodes
	// to a bounded one.
	NoLimit = -1

	// DefaultMaxTweets caps a request that does not ask for a limit.
	DefaultMaxTweets = 100

	// DefaultBatchSize is the page size requested from the source per
	// round-trip when none is given.
	DefaultBatchSize = 20
)

// Kind is the variant tag of a request, also used in the wire encoding.
type Kind string

const (
	KindSearch   Kind = "search"
	KindReplies  Kind = "replies"
	KindThread   Kind = "thread"
	KindTimeline Kind = "timeline"
)

// ValidationError reports a structurally invalid request at construction
// time, before any network activity.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// Bounds are the retrieval limits every request variant carries.
type Bounds struct {
	MaxTweets int `json:"max_tweets"`
	BatchSize int `json:"batch_size"`
}

func DefaultBounds() Bounds {
	return Bounds{MaxTweets: DefaultMaxTweets, BatchSize: DefaultBatchSize}
}

// RequestBounds satisfies the Request interface for every variant that
// embeds Bounds.
func (b Bounds) RequestBounds() Bounds { return b }

func (b Bounds) validate() error {
	if b.BatchSize <= 0 {
		return &ValidationError{Field: "batch_size", Reason: "must be positive"}
	}
	if b.MaxTweets < 0 && b.MaxTweets != NoLimit {
		return &ValidationError{Field: "max_tweets", Reason: "must be non-negative or -1 for no limit"}
	}
	return nil
}

// Request is an immutable description of a retrieval intent. The variant
// set is closed: Search, Replies, Thread and Timeline.
type Request interface {
	Kind() Kind
	RequestBounds() Bounds
	// Equal reports structural equality. Requests of different variants are
	// never equal.
	Equal(other Request) bool
	// Validate checks the structural invariants. Constructors call it, and
	// the codec re-checks records read from disk.
	Validate() error
}

// SearchFilter selects which result tab of the source a search reads from.
type SearchFilter string

const (
	FilterTop    SearchFilter = "top"
	FilterLatest SearchFilter = "latest"
	FilterPhotos SearchFilter = "photos"
	FilterVideos SearchFilter = "videos"
)

var searchFilters = []SearchFilter{FilterTop, FilterLatest, FilterPhotos, FilterVideos}

// Search retrieves tweets matching a query, optionally restricted to a
// half-open date window [Since, Until) and a language.
type Search struct {
	Bounds
	Query  string       `json:"query"`
	Since  *Date        `json:"since,omitempty"`
	Until  *Date        `json:"until,omitempty"`
	Filter SearchFilter `json:"filter"`
	Lang   string       `json:"lang,omitempty"`
}

func NewSearch(query string, since, until *Date, filter SearchFilter, lang string, b Bounds) (*Search, error) {
	if filter == "" {
		filter = FilterTop
	}
	s := &Search{Bounds: b, Query: query, Since: since, Until: until, Filter: filter, Lang: lang}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Search) Kind() Kind { return KindSearch }

func (s *Search) Validate() error {
	if err := s.Bounds.validate(); err != nil {
		return err
	}
	if s.Query == "" {
		return &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if !slices.Contains(searchFilters, s.Filter) {
		return &ValidationError{Field: "filter", Reason: fmt.Sprintf("unknown filter %q", s.Filter)}
	}
	if s.Since != nil && s.Until != nil && !s.Since.Before(*s.Until) {
		return &ValidationError{Field: "since", Reason: "must be before until"}
	}
	return nil
}

func (s *Search) Equal(other Request) bool {
	o, ok := other.(*Search)
	if !ok {
		return false
	}
	return s.Bounds == o.Bounds &&
		s.Query == o.Query &&
		datesEqual(s.Since, o.Since) &&
		datesEqual(s.Until, o.Until) &&
		s.Filter == o.Filter &&
		s.Lang == o.Lang
}

// Replies retrieves the direct replies to one tweet: a single level of the
// conversation tree, no recursion.
type Replies struct {
	Bounds
	TweetID types.TweetID `json:"tweet_id"`
}

func NewReplies(id types.TweetID, b Bounds) (*Replies, error) {
	r := &Replies{Bounds: b, TweetID: id}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Replies) Kind() Kind { return KindReplies }

func (r *Replies) Validate() error {
	if err := r.Bounds.validate(); err != nil {
		return err
	}
	if !r.TweetID.Valid() {
		return &ValidationError{Field: "tweet_id", Reason: fmt.Sprintf("invalid id %q", r.TweetID)}
	}
	return nil
}

func (r *Replies) Equal(other Request) bool {
	o, ok := other.(*Replies)
	if !ok {
		return false
	}
	return r.Bounds == o.Bounds && r.TweetID == o.TweetID
}

// Thread retrieves every tweet transitively reachable from one tweet via
// the reply-to relation: the full conversation subtree.
type Thread struct {
	Bounds
	TweetID types.TweetID `json:"tweet_id"`
}

func NewThread(id types.TweetID, b Bounds) (*Thread, error) {
	t := &Thread{Bounds: b, TweetID: id}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Thread) Kind() Kind { return KindThread }

func (t *Thread) Validate() error {
	if err := t.Bounds.validate(); err != nil {
		return err
	}
	if !t.TweetID.Valid() {
		return &ValidationError{Field: "tweet_id", Reason: fmt.Sprintf("invalid id %q", t.TweetID)}
	}
	return nil
}

func (t *Thread) Equal(other Request) bool {
	o, ok := other.(*Thread)
	if !ok {
		return false
	}
	return t.Bounds == o.Bounds && t.TweetID == o.TweetID
}

// Timeline retrieves the recent tweets of one user.
type Timeline struct {
	Bounds
	Username string `json:"username"`
}

func NewTimeline(username string, b Bounds) (*Timeline, error) {
	t := &Timeline{Bounds: b, Username: username}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Timeline) Kind() Kind { return KindTimeline }

func (t *Timeline) Validate() error {
	if err := t.Bounds.validate(); err != nil {
		return err
	}
	if t.Username == "" {
		return &ValidationError{Field: "username", Reason: "must not be empty"}
	}
	return nil
}

func (t *Timeline) Equal(other Request) bool {
	o, ok := other.(*Timeline)
	if !ok {
		return false
	}
	return t.Bounds == o.Bounds && t.Username == o.Username
}

func datesEqual(a, b *Date) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
