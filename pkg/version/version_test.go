package version

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Version
		wantErr bool
	}{
		{name: "simple", input: "1.2.3", want: New(1, 2, 3)},
		{name: "zeros", input: "0.0.0", want: New(0, 0, 0)},
		{name: "padded whitespace", input: " 10.20.30 ", want: New(10, 20, 30)},
		{name: "two components", input: "1.2", wantErr: true},
		{name: "four components", input: "1.2.3.4", wantErr: true},
		{name: "non numeric", input: "1.a.3", wantErr: true},
		{name: "negative", input: "1.-2.3", wantErr: true},
		{name: "prefixed", input: "v1.2.3", wantErr: true},
		{name: "wildcard patch", input: "1.2.x", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBound(t *testing.T) {
	lower, err := ParseBound("1.8.x", 0)
	require.NoError(t, err)
	assert.Equal(t, New(1, 8, 0), lower)

	upper, err := ParseBound("2.0.x", BucketPatchCeiling)
	require.NoError(t, err)
	assert.Equal(t, New(2, 0, 999), upper)

	forced, err := ParseBound("1.3.7", BucketPatchCeiling)
	require.NoError(t, err)
	assert.Equal(t, New(1, 3, 999), forced)

	_, err = ParseBound("1.x.x", 0)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = ParseBound("1.3.y", 0)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestCompareAndShortForm(t *testing.T) {
	a := MustParse("1.2.3")
	b := MustParse("1.10.0")

	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, 1, Compare(b, a))
	assert.Equal(t, 0, Compare(a, a))
	assert.True(t, a.LT(b))
	assert.True(t, a.LTE(a))
	assert.True(t, b.GT(a))
	assert.True(t, b.GTE(b))

	assert.Equal(t, "1.2.x", a.ShortForm())
	assert.Equal(t, "1.10.0", b.String())
	assert.True(t, SameMinorLine(a, MustParse("1.2.9")))
	assert.False(t, SameMinorLine(a, b))
}

func TestMinMaxAndSet(t *testing.T) {
	_, ok := Min()
	assert.False(t, ok)

	vs := []Version{MustParse("1.1.0"), MustParse("0.9.0"), MustParse("1.0.5")}
	lo, ok := Min(vs...)
	require.True(t, ok)
	assert.Equal(t, MustParse("0.9.0"), lo)

	hi, ok := Max(vs...)
	require.True(t, ok)
	assert.Equal(t, MustParse("1.1.0"), hi)

	set := NewSet(vs...)
	assert.True(t, set.Contains(MustParse("1.0.5")))
	assert.False(t, set.Contains(MustParse("1.0.6")))
	setMin, ok := set.Min()
	require.True(t, ok)
	assert.Equal(t, MustParse("0.9.0"), setMin)
}

func TestCompareIsTotalOrder(t *testing.T) {
	gen := rapid.Custom(func(t *rapid.T) Version {
		return New(
			rapid.IntRange(0, 5).Draw(t, "major"),
			rapid.IntRange(0, 5).Draw(t, "minor"),
			rapid.IntRange(0, 5).Draw(t, "patch"),
		)
	})

	rapid.Check(t, func(t *rapid.T) {
		a, b, c := gen.Draw(t, "a"), gen.Draw(t, "b"), gen.Draw(t, "c")

		if Compare(a, b) != -Compare(b, a) {
			t.Fatalf("antisymmetry violated for %s, %s", a, b)
		}
		if (Compare(a, b) == 0) != (a == b) {
			t.Fatalf("equality mismatch for %s, %s", a, b)
		}
		if a.LTE(b) && b.LTE(c) && !a.LTE(c) {
			t.Fatalf("transitivity violated for %s, %s, %s", a, b, c)
		}

		parsed, err := Parse(a.String())
		if err != nil || parsed != a {
			t.Fatalf("String/Parse mismatch for %s", a)
		}
	})
}
