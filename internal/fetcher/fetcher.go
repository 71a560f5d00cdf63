package fetcher

import (
	"context"
	"net/http"

	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/retry"
)

// Fetcher fetches a single page body and metadata over the configured
// transport. Implementations never parse the body; they return raw bytes.
type Fetcher interface {
	Init(httpClient *http.Client)
	Fetch(
		ctx context.Context,
		crawlDepth int,
		fetchParam FetchParam,
		retryParam retry.RetryParam,
	) (FetchResult, failure.ClassifiedError)

	// RotateIdentity requests a new circuit/identity on the anonymizing
	// proxy's control channel. Failure is recorded but never fatal.
	RotateIdentity(ctx context.Context) error
}
