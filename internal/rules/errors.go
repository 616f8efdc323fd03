// ABOUTME: Sentinel errors for the admission-control taxonomy.
// ABOUTME: Callers match with errors.Is and translate into protocol/HTTP responses.

package rules

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Sentinels for the decision taxonomy. Rule failures are normally returned
// as Decision values; these errors exist for call sites that need to
// propagate a denial as an error (see Decision.Err).
var (
	ErrConnectionDenied = errors.New("connection denied")
	ErrValidation       = errors.New("validation failed")
	ErrRateLimited      = errors.New("rate limit exceeded")
)

// RateLimitError carries the limit and reset time for a rate-limit denial.
type RateLimitError struct {
	AgentType   string
	RequestType string
	Limit       int
	ResetAt     time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s/%s: limit %d, resets at %s",
		e.AgentType, e.RequestType, e.Limit, e.ResetAt.Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
