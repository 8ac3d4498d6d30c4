package githubclt

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// RateLimit is the API rate limit status of a GitHub API.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// RateLimitStatus contains the rate limits of the REST and GraphQL API.
type RateLimitStatus struct {
	Core    RateLimit
	GraphQL RateLimit
}

func (s *RateLimitStatus) LogFields() []zap.Field {
	return []zap.Field{
		zap.Int("github_api_rate_limit", s.Core.Limit),
		zap.Int("github_api_rate_limit_remaining", s.Core.Remaining),
		zap.Time("github_api_rate_limit_reset_time", s.Core.Reset),
		zap.Int("github_graphql_rate_limit", s.GraphQL.Limit),
		zap.Int("github_graphql_rate_limit_remaining", s.GraphQL.Remaining),
		zap.Time("github_graphql_rate_limit_reset_time", s.GraphQL.Reset),
	}
}

// RateLimits returns the current rate limit status.
// Querying it does not count against the rate limit.
func (clt *Client) RateLimits(ctx context.Context) (*RateLimitStatus, error) {
	limits, _, err := clt.restClt.RateLimits(ctx)
	if err != nil {
		return nil, err
	}

	if limits.Core == nil {
		return nil, errors.New("github returned a nil core rate limit")
	}

	result := RateLimitStatus{
		Core: RateLimit{
			Limit:     limits.Core.Limit,
			Remaining: limits.Core.Remaining,
			Reset:     limits.Core.Reset.Time,
		},
	}

	if limits.GraphQL != nil {
		result.GraphQL = RateLimit{
			Limit:     limits.GraphQL.Limit,
			Remaining: limits.GraphQL.Remaining,
			Reset:     limits.GraphQL.Reset.Time,
		}
	}

	return &result, nil
}
