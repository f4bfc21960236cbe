package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 25, 120)
	require.Equal(t, 2, p.Page)
	require.Equal(t, 25, p.PerPage)
	require.Equal(t, 120, p.Total)
	require.Equal(t, 5, p.TotalPages)
	require.Equal(t, 25, p.Offset())
}

func TestNewPaginationDefaults(t *testing.T) {
	p := NewPagination(0, 0, 10)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 50, p.PerPage)
	require.Equal(t, 1, p.TotalPages)
	require.Zero(t, p.Offset())

	p = NewPagination(-3, -1, 0)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 50, p.PerPage)
	require.Zero(t, p.TotalPages)
}
