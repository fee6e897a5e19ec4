package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinels_DistinctAndWrappable(t *testing.T) {
	all := []error{
		ErrInvalidArgument, ErrUnauthorized, ErrRateLimited, ErrUpstream,
		ErrUpstreamTimeout, ErrUpstreamRateLimit, ErrSchemaInvalid, ErrInternal,
	}
	for i, a := range all {
		wrapped := fmt.Errorf("op=test: %w", a)
		assert.ErrorIs(t, wrapped, a)
		for j, b := range all {
			if i != j {
				assert.False(t, errors.Is(wrapped, b), "%v must not match %v", a, b)
			}
		}
	}
}

func TestSentinels_Messages(t *testing.T) {
	assert.EqualError(t, ErrUpstreamTimeout, "upstream timeout")
	assert.EqualError(t, ErrSchemaInvalid, "schema invalid")
	assert.EqualError(t, fmt.Errorf("op=analyze.llm: %w", ErrUpstream), "op=analyze.llm: upstream failure")
}
