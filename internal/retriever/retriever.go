package retriever

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/covey-labs/nest/api/types"
	"github.com/covey-labs/nest/internal/request"
	"github.com/covey-labs/nest/internal/source"
)

// Result is one element of a retrieval stream. A Result with Err set is the
// final element of its stream.
type Result struct {
	Tweet types.Tweet
	Err   error
}

// Retriever turns a request into a bounded stream of tweets by driving the
// source's cursor pagination.
type Retriever struct {
	source        source.Source
	maxRetries    uint64
	retryInterval time.Duration
}

type Option func(*Retriever)

// WithMaxRetries bounds how often a transient source failure is retried
// before it is treated as fatal.
func WithMaxRetries(n uint64) Option {
	return func(r *Retriever) { r.maxRetries = n }
}

// WithRetryInterval sets the initial backoff interval between retries.
func WithRetryInterval(d time.Duration) Option {
	return func(r *Retriever) { r.retryInterval = d }
}

func New(src source.Source, opts ...Option) *Retriever {
	r := &Retriever{
		source:        src,
		maxRetries:    5,
		retryInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve produces the request's tweets as a lazily-evaluated stream. The
// stream is finite and cannot be restarted; call Retrieve again for a fresh
// retrieval. Tweets arrive in page order, source order within a page, and
// never more than the request's max_tweets of them. A terminal failure is
// delivered as the last Result before the channel closes; cancelling ctx
// aborts between page fetches.
func (r *Retriever) Retrieve(ctx context.Context, req request.Request) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		if err := r.retrieve(ctx, req, out); err != nil {
			select {
			case out <- Result{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out
}

// Collect drains a retrieval into a slice.
func (r *Retriever) Collect(ctx context.Context, req request.Request) ([]types.Tweet, error) {
	var tweets []types.Tweet
	for res := range r.Retrieve(ctx, req) {
		if res.Err != nil {
			return nil, res.Err
		}
		tweets = append(tweets, res.Tweet)
	}
	return tweets, nil
}

func (r *Retriever) retrieve(ctx context.Context, req request.Request, out chan<- Result) error {
	bounds := req.RequestBounds()
	if bounds.MaxTweets == 0 {
		return nil
	}

	em := &emitter{ctx: ctx, out: out, limit: bounds.MaxTweets}

	switch q := req.(type) {
	case *request.Search:
		sq := source.SearchQuery{Text: q.Query, Since: q.Since, Until: q.Until, Filter: q.Filter, Lang: q.Lang}
		return r.paginate(ctx, em, bounds, func(ctx context.Context, cursor string, limit int) (*types.Page, error) {
			return r.source.SearchPage(ctx, sq, cursor, limit)
		}, nil)

	case *request.Timeline:
		return r.paginate(ctx, em, bounds, func(ctx context.Context, cursor string, limit int) (*types.Page, error) {
			return r.source.TimelinePage(ctx, q.Username, cursor, limit)
		}, nil)

	case *request.Replies:
		// Only direct replies to the root, one level of the tree. The source
		// may repeat tweets across pages, so dedup within this retrieval.
		seen := map[types.TweetID]bool{}
		keep := func(t types.Tweet) bool {
			if t.InReplyToID != q.TweetID || seen[t.ID] {
				return false
			}
			seen[t.ID] = true
			return true
		}
		return r.paginate(ctx, em, bounds, func(ctx context.Context, cursor string, limit int) (*types.Page, error) {
			return r.source.ConversationPage(ctx, q.TweetID, cursor, limit)
		}, keep)

	case *request.Thread:
		// Everything transitively reachable from the root via reply-to, in
		// source order. The source lists a conversation parents-first, so a
		// reachability set over the ids seen so far covers the subtree.
		reachable := map[types.TweetID]bool{q.TweetID: true}
		emitted := map[types.TweetID]bool{}
		keep := func(t types.Tweet) bool {
			if !reachable[t.InReplyToID] {
				return false
			}
			reachable[t.ID] = true
			if emitted[t.ID] {
				return false
			}
			emitted[t.ID] = true
			return true
		}
		return r.paginate(ctx, em, bounds, func(ctx context.Context, cursor string, limit int) (*types.Page, error) {
			return r.source.ConversationPage(ctx, q.TweetID, cursor, limit)
		}, keep)

	default:
		return fmt.Errorf("unknown request variant %q", req.Kind())
	}
}

type fetchFunc func(ctx context.Context, cursor string, limit int) (*types.Page, error)

// paginate walks the cursor chain: fetch a page, emit what keep accepts,
// follow the continuation token until the source is exhausted or the bound
// is reached.
func (r *Retriever) paginate(ctx context.Context, em *emitter, bounds request.Bounds, fetch fetchFunc, keep func(types.Tweet) bool) error {
	limit := bounds.BatchSize
	if limit > source.MaxPageSize {
		limit = source.MaxPageSize
	}

	cursor := ""
	for {
		page, err := r.fetchWithRetry(ctx, fetch, cursor, limit)
		if err != nil {
			return err
		}

		for _, t := range page.Tweets {
			if keep != nil && !keep(t) {
				continue
			}
			done, err := em.emit(t)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}

		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

func (r *Retriever) fetchWithRetry(ctx context.Context, fetch fetchFunc, cursor string, limit int) (*types.Page, error) {
	var page *types.Page
	attempt := 0

	operation := func() error {
		attempt++
		p, err := fetch(ctx, cursor, limit)
		if err != nil {
			if source.IsTransient(err) {
				logrus.Warnf("transient source failure (attempt %d): %v", attempt, err)
				return err
			}
			return backoff.Permanent(err)
		}
		page = p
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retryInterval
	policy.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx))
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if source.IsTransient(err) {
			// Retries exhausted; escalate so the owning job fails instead of
			// spinning forever.
			return nil, &source.FatalError{Cause: fmt.Errorf("giving up after %d attempts: %w", attempt, err)}
		}
		return nil, err
	}
	return page, nil
}

// emitter pushes tweets downstream and enforces the max_tweets bound so the
// final page is truncated rather than overshooting.
type emitter struct {
	ctx   context.Context
	out   chan<- Result
	limit int
	sent  int
}

func (e *emitter) emit(t types.Tweet) (done bool, err error) {
	select {
	case e.out <- Result{Tweet: t}:
	case <-e.ctx.Done():
		return false, e.ctx.Err()
	}
	e.sent++
	return e.limit != request.NoLimit && e.sent >= e.limit, nil
}
