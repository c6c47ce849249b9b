package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/covey-labs/nest/api/types"
	"github.com/covey-labs/nest/internal/config"
	"github.com/covey-labs/nest/internal/executor"
	"github.com/covey-labs/nest/internal/request"
	"github.com/covey-labs/nest/internal/retriever"
	"github.com/covey-labs/nest/internal/source"
)

var (
	maxTweets   int
	batchSize   int
	toBatchFile string
)

var (
	searchQuery  string
	searchSince  string
	searchUntil  string
	searchFilter string
	searchLang   string
	searchDaily  bool
)

var (
	repliesTweetID string
	threadTweetID  string
	timelineUser   string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Retrieve tweets matching a query",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := parseDateFlag(searchSince)
		if err != nil {
			return err
		}
		until, err := parseDateFlag(searchUntil)
		if err != nil {
			return err
		}

		req, err := request.NewSearch(searchQuery, since, until,
			request.SearchFilter(searchFilter), searchLang, bounds())
		if err != nil {
			return err
		}

		if searchDaily {
			if toBatchFile == "" {
				return errors.New("--daily only makes sense with --to-batch-file")
			}
			days, err := req.ToDailyRequests()
			if err != nil {
				return err
			}
			reqs := make([]request.Request, 0, len(days))
			for _, day := range days {
				reqs = append(reqs, day)
			}
			return queueRequests(toBatchFile, reqs)
		}
		return runRetrieval(cmd, req)
	},
}

var repliesCmd = &cobra.Command{
	Use:   "replies",
	Short: "Retrieve the direct replies to a tweet",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := request.NewReplies(types.TweetID(repliesTweetID), bounds())
		if err != nil {
			return err
		}
		return runRetrieval(cmd, req)
	},
}

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Retrieve the full conversation subtree below a tweet",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := request.NewThread(types.TweetID(threadTweetID), bounds())
		if err != nil {
			return err
		}
		return runRetrieval(cmd, req)
	},
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Retrieve a user's recent tweets",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := request.NewTimeline(timelineUser, bounds())
		if err != nil {
			return err
		}
		return runRetrieval(cmd, req)
	},
}

func init() {
	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "search query (required)")
	searchCmd.Flags().StringVarP(&searchSince, "since", "s", "", "only tweets on or after this date (YYYY-MM-DD)")
	searchCmd.Flags().StringVarP(&searchUntil, "until", "u", "", "only tweets before this date (YYYY-MM-DD)")
	searchCmd.Flags().StringVarP(&searchFilter, "filter", "f", string(request.FilterTop), "result tab: top, latest, photos or videos")
	searchCmd.Flags().StringVarP(&searchLang, "lang", "l", "", "restrict results to a language")
	searchCmd.Flags().BoolVar(&searchDaily, "daily", false, "queue one job per day of the since/until window (max-tweets applies per day)")
	_ = searchCmd.MarkFlagRequired("query")

	repliesCmd.Flags().StringVarP(&repliesTweetID, "tweet-id", "t", "", "id of the replied-to tweet (required)")
	_ = repliesCmd.MarkFlagRequired("tweet-id")

	threadCmd.Flags().StringVarP(&threadTweetID, "tweet-id", "t", "", "id of the thread's root tweet (required)")
	_ = threadCmd.MarkFlagRequired("tweet-id")

	timelineCmd.Flags().StringVarP(&timelineUser, "user", "u", "", "username whose timeline to retrieve (required)")
	_ = timelineCmd.MarkFlagRequired("user")

	for _, cmd := range []*cobra.Command{searchCmd, repliesCmd, threadCmd, timelineCmd} {
		cmd.Flags().IntVarP(&maxTweets, "max-tweets", "m", request.DefaultMaxTweets, "cap on retrieved tweets, -1 for no limit")
		cmd.Flags().IntVarP(&batchSize, "batch-size", "b", request.DefaultBatchSize, "tweets requested from the source per page")
		cmd.Flags().StringVar(&toBatchFile, "to-batch-file", "", "queue the request in this job file instead of executing it")
		rootCmd.AddCommand(cmd)
	}
}

func bounds() request.Bounds {
	return request.Bounds{MaxTweets: maxTweets, BatchSize: batchSize}
}

func parseDateFlag(s string) (*request.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := request.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// runRetrieval either executes the request right away, printing tweets as
// JSON lines, or appends it to a job file for a later batch run.
func runRetrieval(cmd *cobra.Command, req request.Request) error {
	if toBatchFile != "" {
		return queueRequests(toBatchFile, []request.Request{req})
	}

	cfg := config.ReadConfig()
	r := newRetriever(cfg)

	enc := json.NewEncoder(os.Stdout)
	for res := range r.Retrieve(cmd.Context(), req) {
		if res.Err != nil {
			return res.Err
		}
		if err := enc.Encode(res.Tweet); err != nil {
			return err
		}
	}
	return nil
}

// queueRequests merges the job file's existing queue, appends the new
// requests and writes everything back. Nothing executes here.
func queueRequests(path string, reqs []request.Request) error {
	exec := executor.New(nil)
	if _, err := os.Stat(path); err == nil {
		if err := exec.LoadRequests(path); err != nil {
			return err
		}
	}
	for _, req := range reqs {
		exec.Submit(req)
	}
	return exec.DumpRequests(path)
}

func newSource(cfg config.Config) *source.HTTPSource {
	return source.NewHTTPSource(cfg.SourceBaseURL(), cfg.SourceBearerToken(),
		source.WithRequestsPerSecond(cfg.SourceRequestsPerSecond()))
}

func newRetriever(cfg config.Config) *retriever.Retriever {
	return retriever.New(newSource(cfg),
		retriever.WithMaxRetries(uint64(cfg.SourceMaxRetries())))
}
