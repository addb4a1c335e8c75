package cache

import "fmt"

// RateLimitKey is the counter key for client within a throttled scope.
func RateLimitKey(scope, client string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, client)
}
