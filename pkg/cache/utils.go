package cache

import "fmt"

// GenerateKeyWithParams creates a cache key with multiple parameters.
// Empty string parameters are skipped.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	key := prefix
	for _, param := range params {
		if s, ok := param.(string); ok && s == "" {
			continue
		}
		key = fmt.Sprintf("%s:%v", key, param)
	}
	return key
}
