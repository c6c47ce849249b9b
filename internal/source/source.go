package source

import (
	"context"

	"github.com/covey-labs/nest/api/types"
	"github.com/covey-labs/nest/internal/request"
)

// MaxPageSize is the largest page the source will serve per round-trip.
// Callers clamp their requested page size to it; a request's own batch_size
// field is never rewritten.
const MaxPageSize = 100

// SearchQuery is an already-validated source-side search. The retriever
// builds it from a Search request.
type SearchQuery struct {
	Text   string
	Since  *request.Date
	Until  *request.Date
	Filter request.SearchFilter
	Lang   string
}

// Source is the page-at-a-time protocol of the external service. Every
// method returns up to limit tweets and an opaque continuation cursor; an
// empty cursor in means "first page", an empty cursor out means exhausted.
//
// Failures are reported as *TransientError (worth retrying) or *FatalError
// (surface immediately).
type Source interface {
	SearchPage(ctx context.Context, q SearchQuery, cursor string, limit int) (*types.Page, error)
	ConversationPage(ctx context.Context, id types.TweetID, cursor string, limit int) (*types.Page, error)
	TimelinePage(ctx context.Context, username string, cursor string, limit int) (*types.Page, error)
}
