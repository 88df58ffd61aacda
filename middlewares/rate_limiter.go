package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	ginmiddleware "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/utils"
)

// Usage:
//
//	group.POST("/:id/accept", middleware.NewRateLimiter("10-1m", "accept"), ctrl.Accept)
//	group.PUT("/location", middleware.CombinedRateLimiter("location", "120-1m", "2000-1h"), ctrl.UpdateLocation)

var (
	storeMu     sync.RWMutex
	redisClient *redis.Client
)

// UseRedis makes limiters created afterwards share counters through Redis.
// Without it they count in process memory.
func UseRedis(client *redis.Client) {
	storeMu.Lock()
	defer storeMu.Unlock()
	redisClient = client
}

// limiterKey identifies the caller: the authenticated user when there is one,
// the client IP otherwise.
func limiterKey(c *gin.Context) string {
	if id, err := utils.GetUserIDFromContext(c); err == nil {
		return id.String()
	}
	return "ip:" + c.ClientIP()
}

// createStore builds a route-scoped store whose keys expire with the rate's period.
func createStore(routeID string, period time.Duration) (limiter.Store, error) {
	opts := limiter.StoreOptions{
		Prefix:          fmt.Sprintf("rate_limiter:%s", routeID),
		MaxRetry:        3,
		CleanUpInterval: period,
	}

	storeMu.RLock()
	rdb := redisClient
	storeMu.RUnlock()
	if rdb == nil {
		return memorystore.NewStoreWithOptions(opts), nil
	}

	store, err := redisstore.NewStoreWithOptions(rdb, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis store for route %s: %w", routeID, err)
	}
	return store, nil
}

// ParseCustomRate allows formats like "10-2m", "30-20m", "5-1h", "20-10s".
func ParseCustomRate(rateStr string) (limiter.Rate, error) {
	parts := strings.Split(rateStr, "-")
	if len(parts) != 2 {
		return limiter.Rate{}, fmt.Errorf("invalid rate format: %s", rateStr)
	}

	limit, err := strconv.Atoi(parts[0])
	if err != nil || limit <= 0 {
		return limiter.Rate{}, fmt.Errorf("invalid limit: %s", parts[0])
	}

	durationStr := parts[1]
	if len(durationStr) < 2 {
		return limiter.Rate{}, fmt.Errorf("unsupported period: %s", durationStr)
	}
	amount, err := strconv.Atoi(durationStr[:len(durationStr)-1])
	if err != nil {
		return limiter.Rate{}, fmt.Errorf("invalid duration %q: %v", durationStr, err)
	}

	var unit time.Duration
	switch durationStr[len(durationStr)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	default:
		return limiter.Rate{}, fmt.Errorf("unsupported period: %s", durationStr)
	}

	return limiter.Rate{Period: time.Duration(amount) * unit, Limit: int64(limit)}, nil
}

func newLimiter(rateStr, routeID string) (*limiter.Limiter, error) {
	rate, err := ParseCustomRate(rateStr)
	if err != nil {
		return nil, err
	}
	store, err := createStore(routeID, rate.Period)
	if err != nil {
		return nil, err
	}
	return limiter.New(store, rate), nil
}

// NewRateLimiter limits each caller on routeID to rateStr, e.g. "10-2m".
// A bad rate or store turns limiting off for the route.
func NewRateLimiter(rateStr, routeID string) gin.HandlerFunc {
	l, err := newLimiter(rateStr, routeID)
	if err != nil {
		logger.ErrorLogger.Errorf("Rate limiter for route %s disabled: %v", routeID, err)
		return func(c *gin.Context) { c.Next() }
	}
	return ginmiddleware.NewMiddleware(l, ginmiddleware.WithKeyGetter(limiterKey))
}

// CombinedRateLimiter applies every rate in rateStrings to the same route;
// the request is rejected as soon as one of them is reached.
func CombinedRateLimiter(routeID string, rateStrings ...string) gin.HandlerFunc {
	limiters := make([]*limiter.Limiter, 0, len(rateStrings))
	for i, rateStr := range rateStrings {
		l, err := newLimiter(rateStr, fmt.Sprintf("%s_%d", routeID, i))
		if err != nil {
			logger.ErrorLogger.Errorf("Rate %q for route %s ignored: %v", rateStr, routeID, err)
			continue
		}
		limiters = append(limiters, l)
	}

	return func(c *gin.Context) {
		key := limiterKey(c)
		for _, l := range limiters {
			lc, err := l.Get(c.Request.Context(), key)
			if err != nil {
				logger.ErrorLogger.Errorf("Rate limiter for route %s failed: %v", routeID, err)
				continue
			}
			if lc.Reached {
				c.Header("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
				c.Header("X-RateLimit-Reset", strconv.FormatInt(lc.Reset, 10))
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
				return
			}
		}
		c.Next()
	}
}
