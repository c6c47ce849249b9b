package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/covey-labs/nest/api/types"
	"github.com/covey-labs/nest/internal/request"
)

const (
	searchEndpoint = "tweets/search/recent"

	// DefaultBaseURL is the API v2 root.
	DefaultBaseURL = "https://api.x.com/2"
)

// HTTPSource talks to the real service over its JSON paging API. All three
// retrieval shapes go through the search endpoint: conversations via the
// conversation_id operator, timelines via the from operator.
type HTTPSource struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.httpClient = c }
}

// WithRequestsPerSecond caps the page-fetch rate against the source.
func WithRequestsPerSecond(rps float64) HTTPOption {
	return func(s *HTTPSource) { s.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

func NewHTTPSource(baseURL, bearerToken string, opts ...HTTPOption) *HTTPSource {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	s := &HTTPSource{
		baseURL:     baseURL,
		bearerToken: bearerToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(1), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	logrus.Debugf("source client ready, base URL %s", s.baseURL)
	return s
}

func (s *HTTPSource) SearchPage(ctx context.Context, q SearchQuery, cursor string, limit int) (*types.Page, error) {
	params := url.Values{}
	text := q.Text
	if q.Lang != "" {
		text += " lang:" + q.Lang
	}
	params.Add("query", text)
	if q.Since != nil {
		params.Add("start_time", q.Since.Time().Format(time.RFC3339))
	}
	if q.Until != nil {
		params.Add("end_time", q.Until.Time().Format(time.RFC3339))
	}
	if q.Filter == request.FilterLatest {
		params.Add("sort_order", "recency")
	} else {
		params.Add("sort_order", "relevancy")
	}
	return s.getPage(ctx, params, cursor, limit)
}

func (s *HTTPSource) ConversationPage(ctx context.Context, id types.TweetID, cursor string, limit int) (*types.Page, error) {
	params := url.Values{}
	params.Add("query", "conversation_id:"+id.String())
	return s.getPage(ctx, params, cursor, limit)
}

func (s *HTTPSource) TimelinePage(ctx context.Context, username string, cursor string, limit int) (*types.Page, error) {
	params := url.Values{}
	params.Add("query", "from:"+username)
	params.Add("sort_order", "recency")
	return s.getPage(ctx, params, cursor, limit)
}

// pageResponse is the wire shape of one page.
type pageResponse struct {
	Data []struct {
		ID           string    `json:"id"`
		Conversation string    `json:"conversation_id"`
		InReplyToID  string    `json:"in_reply_to_id"`
		AuthorID     string    `json:"author_id"`
		Username     string    `json:"username"`
		Text         string    `json:"text"`
		CreatedAt    time.Time `json:"created_at"`
		Lang         string    `json:"lang"`
	} `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

func (s *HTTPSource) getPage(ctx context.Context, params url.Values, cursor string, limit int) (*types.Page, error) {
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	params.Add("max_results", strconv.Itoa(limit))
	if cursor != "" {
		// The cursor is forwarded untouched; its contents are the source's
		// business.
		params.Add("next_token", cursor)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s?%s", s.baseURL, searchEndpoint, params.Encode())
	logrus.Debugf("GET %s", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, Fatalf("creating page request: %w", err)
	}
	req.Header.Add("Authorization", "Bearer "+s.bearerToken)
	req.Header.Add("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Transientf("page request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		body, _ := io.ReadAll(resp.Body)
		logrus.Warnf("source throttled or unavailable (status %d): %s", resp.StatusCode, string(body))
		return nil, Transientf("unexpected status code %d: %s", resp.StatusCode, string(body))
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, Fatalf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var result pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, Fatalf("failed to decode page: %w", err)
	}

	page := &types.Page{NextCursor: result.Meta.NextToken}
	for _, t := range result.Data {
		page.Tweets = append(page.Tweets, types.Tweet{
			ID:             types.TweetID(t.ID),
			ConversationID: types.TweetID(t.Conversation),
			InReplyToID:    types.TweetID(t.InReplyToID),
			UserID:         t.AuthorID,
			Username:       t.Username,
			Text:           t.Text,
			CreatedAt:      t.CreatedAt,
			Lang:           t.Lang,
		})
	}
	logrus.Debugf("page fetched, %d tweets, more=%v", len(page.Tweets), page.NextCursor != "")
	return page, nil
}
