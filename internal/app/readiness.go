package app

import (
	"context"
	"fmt"
)

// Pinger is anything that can report its own reachability.
type Pinger interface{ Ping(ctx context.Context) error }

// BuildReadinessChecks returns the optional cache and Tika probes. A nil
// dependency yields a nil check, which readiness skips.
func BuildReadinessChecks(cache, tika Pinger) (cacheCheck, tikaCheck func(context.Context) error) {
	if cache != nil {
		cacheCheck = func(ctx context.Context) error {
			if err := cache.Ping(ctx); err != nil {
				return fmt.Errorf("cache: %w", err)
			}
			return nil
		}
	}
	if tika != nil {
		tikaCheck = func(ctx context.Context) error {
			if err := tika.Ping(ctx); err != nil {
				return fmt.Errorf("tika: %w", err)
			}
			return nil
		}
	}
	return cacheCheck, tikaCheck
}
