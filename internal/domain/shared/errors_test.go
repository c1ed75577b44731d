package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	t.Run("matches by code when details differ", func(t *testing.T) {
		err := ErrNotFound.WithDetail("id", "abc")
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.False(t, errors.Is(err, ErrInvalidState))
	})

	t.Run("matches through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("loading product: %w", ErrNotFound)
		assert.True(t, errors.Is(wrapped, ErrNotFound))
		assert.True(t, IsDomainError(wrapped, "NOT_FOUND"))
	})
}

func TestDomainError_WithDetail(t *testing.T) {
	base := NewDomainError("X", "x happened")
	withA := base.WithDetail("a", 1)
	withAB := withA.WithDetail("b", 2)

	assert.Nil(t, base.Details)
	assert.Equal(t, map[string]any{"a": 1}, withA.Details)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, withAB.Details)
}

func TestFilter_Normalize(t *testing.T) {
	f := Filter{Page: 0, PageSize: 1000, OrderDir: "sideways"}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, MaxPageSize, f.PageSize)
	assert.Equal(t, "desc", f.OrderDir)
	assert.Equal(t, 0, f.Offset())

	f = Filter{Page: 3, PageSize: 10, OrderDir: "asc"}.Normalize()
	assert.Equal(t, 20, f.Offset())
	assert.Equal(t, "asc", f.OrderDir)
}

func TestNewPaginated(t *testing.T) {
	p := NewPaginated([]int{1, 2}, 21, 1, 10)
	assert.Equal(t, 3, p.TotalPages)

	empty := NewPaginated[int](nil, 0, 1, 10)
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.TotalPages)
}
