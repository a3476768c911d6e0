package ratelimit

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/chaldduk-checkout/internal/common"
)

const globalPrefix = "ratelimit:global"

// NewStore returns a limiter store in Redis, or in process memory when rdb is nil.
func NewStore(rdb *redis.Client) (limiter.Store, error) {
	if rdb == nil {
		return memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: globalPrefix}), nil
	}
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: globalPrefix})
}

// Global builds a per-client-IP limiter for the whole API from a formatted
// rate such as "300-M". An empty rate disables it. Store failures are passed
// to onError and answered with 503.
func Global(store limiter.Store, rate string, onError func(error)) (func(http.Handler) http.Handler, error) {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", rate, err)
	}
	mw := stdlib.NewMiddleware(
		limiter.New(store, parsed),
		stdlib.WithKeyGetter(ClientIP),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, _ *http.Request) {
			common.JSONError(w, http.StatusTooManyRequests, CodeRateLimited, "too many requests, slow down", nil)
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
			if onError != nil {
				onError(err)
			}
			common.JSONError(w, http.StatusServiceUnavailable, common.CodeUpstream, "rate limiter unavailable", nil)
		}),
	)
	return mw.Handler, nil
}
