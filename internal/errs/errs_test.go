package errs_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/asyncengine/engine/internal/errs"
)

func TestIsMatchesKind(t *testing.T) {
	err := errs.New(errs.KindNotFound, "job not found")
	assert.True(t, errs.Is(err, errs.KindNotFound))
	assert.False(t, errs.Is(err, errs.KindDuplicate))
}

func TestIsUnwrapsWrappedErrors(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	wrapped := errs.Wrap(errs.KindStorageUnavailable, "redis unavailable", cause)
	outer := fmt.Errorf("manager: %w", wrapped)

	assert.True(t, errs.Is(outer, errs.KindStorageUnavailable))

	var e *errs.E
	assert.True(t, errs.As(outer, &e))
	assert.Equal(t, cause, e.Unwrap())
}

func TestIsFalseForPlainErrors(t *testing.T) {
	assert.False(t, errs.Is(fmt.Errorf("boom"), errs.KindInvalid))
}
