package es

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func token(name, id, stream string, version int64) *VersionToken {
	return NewVersionToken(NewObjectIdentifier(name, id), NewVersionIdentifier(stream, version))
}

func TestCompare(t *testing.T) {
	data := []struct {
		a, b *VersionToken
		out  int
	}{
		{token("order", "1", "s1", 1), token("order", "1", "s1", 2), -1},
		{token("order", "1", "s1", 2), token("order", "1", "s1", 2), 0},
		{token("order", "1", "s1", 9), token("order", "1", "s1", 2), 1},
		{token("Order", "1", "s1", 3), token("order", "1", "s1", 2), 1},
		{nil, token("order", "1", "s1", 0), -1},
		{nil, nil, 0},
		{LatestVersionToken(NewObjectIdentifier("order", "1"), "s1"), token("order", "1", "s1", 1<<40), 1},
	}

	for i, tt := range data {
		t.Run(fmt.Sprintf("case-%d", i), func(t *testing.T) {
			out, err := Compare(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.out, out)

			back, err := Compare(tt.b, tt.a)
			require.NoError(t, err)
			assert.Equal(t, -tt.out, back)
		})
	}
}

func TestCompareSelf(t *testing.T) {
	a := token("order", "7", "s1", 42)
	out, err := Compare(a, a)
	require.NoError(t, err)
	assert.Equal(t, 0, out)
}

func TestCompareDifferentObjects(t *testing.T) {
	_, err := Compare(token("order", "1", "s1", 1), token("invoice", "1", "s1", 1))

	var cmpErr *ComparisonError
	require.True(t, errors.As(err, &cmpErr))
	assert.Equal(t, "order", cmpErr.Left)
	assert.Equal(t, "invoice", cmpErr.Right)
	assert.Contains(t, err.Error(), "comparing different streams")
}

func TestIsNewer(t *testing.T) {
	ok, err := IsNewer(token("order", "1", "s1", 1), nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsNewer(token("order", "1", "s1", 1), token("order", "1", "s1", 1))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = IsNewer(token("order", "1", "s1", 2), token("order", "1", "s1", 1))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = IsNewer(token("order", "1", "s1", 2), token("invoice", "1", "s1", 1))
	assert.Error(t, err)
}

func TestVersionTokenString(t *testing.T) {
	tk := token("order", "1", "s1", 5)
	assert.Equal(t, "order__1__s1__00000000000000000005", tk.String())

	latest := LatestVersionToken(NewObjectIdentifier("order", "1"), "s1")
	assert.Equal(t, "order__1__s1__09223372036854775807", latest.String())
}

func TestParseVersionToken(t *testing.T) {
	for _, tk := range []*VersionToken{
		token("order", "1", "s1", 5),
		token("order", "a__b", "s1", 0),
		LatestVersionToken(NewObjectIdentifier("order", "1"), "s1"),
	} {
		t.Run(tk.String(), func(t *testing.T) {
			parsed, err := ParseVersionToken(tk.String())
			require.NoError(t, err)
			assert.Equal(t, tk, parsed)
		})
	}

	for _, bad := range []string{"", "order__1", "order__1__s1__5", "order__1__s1__0000000000000000000x"} {
		t.Run("bad-"+bad, func(t *testing.T) {
			_, err := ParseVersionToken(bad)
			assert.True(t, errors.Is(err, ErrInvalidVersionToken))
		})
	}
}
