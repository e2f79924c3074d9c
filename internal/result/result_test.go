package result

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrom(t *testing.T) {
	r := From(42, nil)
	require.True(t, r.IsOk())
	v, err := r.Unwrap()
	assert.NoError(t, err)
	assert.Equal(t, 42, v)

	boom := errors.New("boom")
	r = From(0, boom)
	assert.False(t, r.IsOk())
	assert.ErrorIs(t, r.Error(), boom)
}

func TestOrElse(t *testing.T) {
	assert.Equal(t, "value", Ok("value").OrElse(func(error) string { return "fallback" }))

	got := Err[string](errors.New("down")).OrElse(func(err error) string { return "fallback: " + err.Error() })
	assert.Equal(t, "fallback: down", got)
}

func TestFirstOk(t *testing.T) {
	calls := 0
	attempt := func(r Result[int]) func() Result[int] {
		return func() Result[int] {
			calls++
			return r
		}
	}

	t.Run("stops at first success", func(t *testing.T) {
		calls = 0
		r := FirstOk(
			attempt(Err[int](errors.New("a"))),
			attempt(Ok(2)),
			attempt(Ok(3)),
		)
		v, err := r.Unwrap()
		require.NoError(t, err)
		assert.Equal(t, 2, v)
		assert.Equal(t, 2, calls)
	})

	t.Run("joins every failure", func(t *testing.T) {
		a, b := errors.New("a"), errors.New("b")
		r := FirstOk(attempt(Err[int](a)), attempt(Err[int](b)))
		assert.ErrorIs(t, r.Error(), a)
		assert.ErrorIs(t, r.Error(), b)
	})

	t.Run("no attempts", func(t *testing.T) {
		assert.ErrorIs(t, FirstOk[int]().Error(), ErrNoResults)
	})
}

func TestPartition(t *testing.T) {
	values, errs := Partition([]Result[string]{
		Ok("x"),
		Err[string](errors.New("e")),
		Ok("y"),
	})
	assert.Equal(t, []string{"x", "y"}, values)
	assert.Len(t, errs, 1)
}
