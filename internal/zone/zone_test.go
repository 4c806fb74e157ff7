package zone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	require.Equal(t, Local, Resolve("560001", "560001"))
	require.Equal(t, Local, Resolve(" 560001", "560001 "))
	require.Equal(t, Default, Resolve("560001", "560002"))
	require.Equal(t, Default, Resolve("", ""))
}

func TestTable(t *testing.T) {
	tbl := Table("560001")
	require.Len(t, tbl, len(All()))
	require.Equal(t, "560001", tbl[Local])
	for _, z := range All() {
		require.NotEmpty(t, tbl[z], "zone %s", z)
	}

	// callers may mutate the returned map
	tbl[Metro] = "x"
	require.Equal(t, "400001", Table("560001")[Metro])
}

func TestLabels(t *testing.T) {
	l := Labels()
	for _, z := range All() {
		require.NotEmpty(t, l[z], "zone %s", z)
	}
	l[Local] = "changed"
	require.Equal(t, "Within City", Labels()[Local])
}
