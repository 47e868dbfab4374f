package dag

import (
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/buildgridgo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_ReleaseAll(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.NewContext(t)
	s := NewScope()
	var order []string
	for _, name := range []string{"rust", "yarn", "cuda-devel"} {
		name := name
		s.Acquire(name, func(ctx context.Context) error {
			order = append(order, name)
			if name == "yarn" {
				return errors.New("cache still mounted")
			}
			return nil
		})
	}

	// --- Act ---
	err := s.ReleaseAll(ctx)

	// --- Assert ---
	assert.ErrorContains(t, err, "release yarn: cache still mounted")
	assert.Equal(t, []string{"cuda-devel", "yarn", "rust"}, order)

	// Releases run at most once.
	require.NoError(t, s.ReleaseAll(ctx))
	assert.Len(t, order, 3)
}
