package permission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccessLevelBits(t *testing.T) {
	require.Equal(t, AccessLevel(1), Read)
	require.Equal(t, AccessLevel(2), Write)
	require.Equal(t, AccessLevel(4), Delete)
	require.Equal(t, AccessLevel(8), Admin)
	require.Equal(t, AccessLevel(15), Full)
}

func TestAccessLevelHas(t *testing.T) {
	rw := Read | Write
	require.True(t, rw.Has(Read))
	require.True(t, rw.Has(Write))
	require.True(t, rw.Has(Read|Write))
	require.False(t, rw.Has(Delete))
	require.False(t, rw.Has(Read|Delete))
	require.True(t, Full.Contains(rw))
	require.False(t, Read.Contains(rw))
	// Everything has the empty level.
	require.True(t, None.Has(None))
}

func TestAccessLevelSetOps(t *testing.T) {
	require.Equal(t, Read|Write, Read.Union(Write))
	require.Equal(t, Write, (Read | Write).Intersect(Write|Delete))
	require.True(t, None.IsNone())
	require.False(t, Read.IsNone())
}

func TestAccessLevelString(t *testing.T) {
	cases := []struct {
		level AccessLevel
		want  string
	}{
		{None, "none"},
		{Read, "read"},
		{Read | Write, "read|write"},
		{Full, "read|write|delete|admin"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, tc.level.String())
	}
}

func TestParseAccessLevel(t *testing.T) {
	for _, level := range []AccessLevel{None, Read, Write, Read | Write, Write | Admin, Full} {
		parsed, err := ParseAccessLevel(level.String())
		require.NoError(t, err)
		require.Equal(t, level, parsed)
	}

	parsed, err := ParseAccessLevel("full")
	require.NoError(t, err)
	require.Equal(t, Full, parsed)

	parsed, err = ParseAccessLevel(" Read | WRITE ")
	require.NoError(t, err)
	require.Equal(t, Read|Write, parsed)

	_, err = ParseAccessLevel("read|owner")
	require.ErrorIs(t, err, ErrInvalidScope)
}

func TestAccessLevelJSON(t *testing.T) {
	data, err := json.Marshal(Read | Write)
	require.NoError(t, err)
	require.Equal(t, `"read|write"`, string(data))

	var fromString AccessLevel
	require.NoError(t, json.Unmarshal([]byte(`"read|admin"`), &fromString))
	require.Equal(t, Read|Admin, fromString)

	var fromMask AccessLevel
	require.NoError(t, json.Unmarshal([]byte(`5`), &fromMask))
	require.Equal(t, Read|Delete, fromMask)

	var bad AccessLevel
	require.ErrorIs(t, json.Unmarshal([]byte(`"owner"`), &bad), ErrInvalidScope)
	require.ErrorIs(t, json.Unmarshal([]byte(`16`), &bad), ErrInvalidScope)
}
