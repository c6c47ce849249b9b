package retriever_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/covey-labs/nest/api/types"
	"github.com/covey-labs/nest/internal/request"
	. "github.com/covey-labs/nest/internal/retriever"
	"github.com/covey-labs/nest/internal/source"
)

type pageCall struct {
	cursor string
	limit  int
}

type response struct {
	page *types.Page
	err  error
}

// fakeSource serves a scripted sequence of responses, or an endless stream
// of identical tweets when endless is set. It records every page call.
type fakeSource struct {
	mu      sync.Mutex
	queue   []response
	calls   []pageCall
	endless *types.Tweet
}

func (f *fakeSource) serve(cursor string, limit int) (*types.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pageCall{cursor: cursor, limit: limit})

	if f.endless != nil {
		page := &types.Page{NextCursor: fmt.Sprintf("cursor-%d", len(f.calls))}
		for i := 0; i < limit; i++ {
			page.Tweets = append(page.Tweets, *f.endless)
		}
		return page, nil
	}

	if len(f.queue) == 0 {
		return &types.Page{}, nil
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next.page, next.err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSource) call(i int) pageCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func (f *fakeSource) SearchPage(_ context.Context, _ source.SearchQuery, cursor string, limit int) (*types.Page, error) {
	return f.serve(cursor, limit)
}

func (f *fakeSource) ConversationPage(_ context.Context, _ types.TweetID, cursor string, limit int) (*types.Page, error) {
	return f.serve(cursor, limit)
}

func (f *fakeSource) TimelinePage(_ context.Context, _ string, cursor string, limit int) (*types.Page, error) {
	return f.serve(cursor, limit)
}

func tweet(id string) types.Tweet {
	return types.Tweet{ID: types.TweetID(id), Text: "tweet " + id}
}

func reply(id, to string) types.Tweet {
	t := tweet(id)
	t.InReplyToID = types.TweetID(to)
	return t
}

func ids(tweets []types.Tweet) []string {
	out := make([]string, 0, len(tweets))
	for _, t := range tweets {
		out = append(out, t.ID.String())
	}
	return out
}

func mustSearch(maxTweets, batchSize int) *request.Search {
	s, err := request.NewSearch("trump", nil, nil, request.FilterTop, "", request.Bounds{MaxTweets: maxTweets, BatchSize: batchSize})
	Expect(err).NotTo(HaveOccurred())
	return s
}

var _ = Describe("Retriever", func() {
	var src *fakeSource
	var r *Retriever

	BeforeEach(func() {
		src = &fakeSource{}
		r = New(src, WithMaxRetries(2), WithRetryInterval(time.Millisecond))
	})

	Describe("pagination", func() {
		It("emits every tweet in page-then-source order and follows cursors", func() {
			src.queue = []response{
				{page: &types.Page{Tweets: []types.Tweet{tweet("1"), tweet("2")}, NextCursor: "c1"}},
				{page: &types.Page{Tweets: []types.Tweet{tweet("3")}, NextCursor: "c2"}},
				{page: &types.Page{Tweets: []types.Tweet{tweet("4")}}},
			}

			tweets, err := r.Collect(context.Background(), mustSearch(request.NoLimit, 20))
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(tweets)).To(Equal([]string{"1", "2", "3", "4"}))

			Expect(src.callCount()).To(Equal(3))
			Expect(src.call(0).cursor).To(BeEmpty())
			Expect(src.call(1).cursor).To(Equal("c1"))
			Expect(src.call(2).cursor).To(Equal("c2"))
		})

		It("stops at an empty page without a cursor", func() {
			src.queue = []response{{page: &types.Page{}}}

			tweets, err := r.Collect(context.Background(), mustSearch(request.NoLimit, 20))
			Expect(err).NotTo(HaveOccurred())
			Expect(tweets).To(BeEmpty())
			Expect(src.callCount()).To(Equal(1))
		})

		It("clamps the page size sent to the source but not the request", func() {
			req := mustSearch(10, 5000)
			_, err := r.Collect(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())

			Expect(src.call(0).limit).To(Equal(source.MaxPageSize))
			Expect(req.BatchSize).To(Equal(5000))
		})
	})

	Describe("the max_tweets bound", func() {
		It("retrieves exactly 10 tweets from an endless source", func() {
			src.endless = &types.Tweet{ID: "777", Text: "make tweets great again"}

			tweets, err := r.Collect(context.Background(), mustSearch(10, 3))
			Expect(err).NotTo(HaveOccurred())
			Expect(tweets).To(HaveLen(10))
			for _, t := range tweets {
				Expect(t.Text).To(Equal("make tweets great again"))
			}
		})

		It("truncates the final page", func() {
			src.queue = []response{
				{page: &types.Page{Tweets: []types.Tweet{tweet("1"), tweet("2"), tweet("3")}, NextCursor: "c1"}},
				{page: &types.Page{Tweets: []types.Tweet{tweet("4"), tweet("5"), tweet("6")}, NextCursor: "c2"}},
			}

			tweets, err := r.Collect(context.Background(), mustSearch(4, 3))
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(tweets)).To(Equal([]string{"1", "2", "3", "4"}))
			Expect(src.callCount()).To(Equal(2), "no page beyond the bound should be fetched")
		})

		It("yields an empty stream for max_tweets zero without fetching", func() {
			src.endless = &types.Tweet{ID: "777"}

			tweets, err := r.Collect(context.Background(), mustSearch(0, 20))
			Expect(err).NotTo(HaveOccurred())
			Expect(tweets).To(BeEmpty())
			Expect(src.callCount()).To(BeZero())
		})

		It("drains the source when unbounded", func() {
			src.queue = []response{
				{page: &types.Page{Tweets: []types.Tweet{tweet("1"), tweet("2")}, NextCursor: "c1"}},
				{page: &types.Page{Tweets: []types.Tweet{tweet("3"), tweet("4")}}},
			}

			tweets, err := r.Collect(context.Background(), mustSearch(request.NoLimit, 20))
			Expect(err).NotTo(HaveOccurred())
			Expect(tweets).To(HaveLen(4))
		})
	})

	Describe("replies", func() {
		It("emits only direct replies to the root", func() {
			req, err := request.NewReplies("100", request.Bounds{MaxTweets: request.NoLimit, BatchSize: 20})
			Expect(err).NotTo(HaveOccurred())

			src.queue = []response{
				{page: &types.Page{Tweets: []types.Tweet{
					reply("101", "100"),
					reply("102", "101"), // nested, not a direct reply
					reply("103", "100"),
				}, NextCursor: "c1"}},
				{page: &types.Page{Tweets: []types.Tweet{
					reply("103", "100"), // repeated by the source
					reply("104", "100"),
				}}},
			}

			tweets, err := r.Collect(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(tweets)).To(Equal([]string{"101", "103", "104"}))
		})
	})

	Describe("threads", func() {
		It("emits the transitive reply subtree in source order", func() {
			req, err := request.NewThread("1", request.Bounds{MaxTweets: request.NoLimit, BatchSize: 20})
			Expect(err).NotTo(HaveOccurred())

			src.queue = []response{
				{page: &types.Page{Tweets: []types.Tweet{
					reply("2", "1"),
					reply("3", "2"),
					reply("9", "42"), // different subtree
				}, NextCursor: "c1"}},
				{page: &types.Page{Tweets: []types.Tweet{
					reply("4", "3"),
					reply("2", "1"), // duplicate from pagination
					reply("5", "9"), // reachable only via the other subtree
				}}},
			}

			tweets, err := r.Collect(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(tweets)).To(Equal([]string{"2", "3", "4"}))
		})
	})

	Describe("failure handling", func() {
		It("retries transient failures and then succeeds", func() {
			src.queue = []response{
				{err: source.Transientf("rate limit exceeded")},
				{err: source.Transientf("rate limit exceeded")},
				{page: &types.Page{Tweets: []types.Tweet{tweet("1")}}},
			}

			tweets, err := r.Collect(context.Background(), mustSearch(10, 20))
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(tweets)).To(Equal([]string{"1"}))
			Expect(src.callCount()).To(Equal(3))
		})

		It("escalates to a fatal error once retries are exhausted", func() {
			src.queue = []response{
				{err: source.Transientf("rate limit exceeded")},
				{err: source.Transientf("rate limit exceeded")},
				{err: source.Transientf("rate limit exceeded")},
				{err: source.Transientf("rate limit exceeded")},
			}

			_, err := r.Collect(context.Background(), mustSearch(10, 20))
			Expect(err).To(HaveOccurred())

			var fatal *source.FatalError
			Expect(err).To(BeAssignableToTypeOf(fatal))
			// Initial attempt plus the configured two retries.
			Expect(src.callCount()).To(Equal(3))
		})

		It("surfaces fatal errors immediately without retrying", func() {
			src.queue = []response{{err: source.Fatalf("no tweet with id 404")}}

			_, err := r.Collect(context.Background(), mustSearch(10, 20))
			Expect(err).To(HaveOccurred())
			Expect(source.IsTransient(err)).To(BeFalse())
			Expect(src.callCount()).To(Equal(1))
		})

		It("delivers the error after the tweets that preceded it", func() {
			src.queue = []response{
				{page: &types.Page{Tweets: []types.Tweet{tweet("1")}, NextCursor: "c1"}},
				{err: source.Fatalf("gone")},
			}

			var got []string
			var streamErr error
			for res := range r.Retrieve(context.Background(), mustSearch(request.NoLimit, 20)) {
				if res.Err != nil {
					streamErr = res.Err
					continue
				}
				got = append(got, res.Tweet.ID.String())
			}
			Expect(got).To(Equal([]string{"1"}))
			Expect(streamErr).To(HaveOccurred())
		})
	})

	Describe("cancellation", func() {
		It("aborts an in-flight retrieval between page fetches", func() {
			src.endless = &types.Tweet{ID: "777"}

			ctx, cancel := context.WithCancel(context.Background())
			stream := r.Retrieve(ctx, mustSearch(request.NoLimit, 3))

			for i := 0; i < 5; i++ {
				Eventually(stream).Should(Receive())
			}
			cancel()

			Eventually(stream, "2s").Should(BeClosed())
		})
	})
})
