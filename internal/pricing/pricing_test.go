package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func baseOptions() Options {
	return Options{
		VendorSharePercent:   d("50"),
		RetailerSharePercent: d("20"),
		VendorSlabs:          []Slab{{Min: d("0"), Max: dp("100"), Percent: d("10")}},
		VendorExclusions:     []string{"  VIP-Vendor "},
	}
}

func TestShareAndCap_SlabApplies(t *testing.T) {
	got := ShareAndCap(baseOptions(), d("100"), Vendor, "v-1")
	require.True(t, got.Equal(d("55")), got.String())
}

func TestShareAndCap_ExcludedUserGetsShareOnly(t *testing.T) {
	got := ShareAndCap(baseOptions(), d("100"), Vendor, "vip-vendor")
	require.True(t, got.Equal(d("50")), got.String())
}

func TestShareAndCap_NonPositiveBase(t *testing.T) {
	require.True(t, ShareAndCap(baseOptions(), d("0"), Vendor, "v").IsZero())
	require.True(t, ShareAndCap(baseOptions(), d("-5"), Vendor, "v").IsZero())
}

func TestShareAndCap_NoSlabMatch(t *testing.T) {
	opts := baseOptions()
	got := ShareAndCap(opts, d("400"), Vendor, "v") // share 200 above every slab
	require.True(t, got.Equal(d("200")), got.String())
}

func TestShareAndCap_PartiesAreIndependent(t *testing.T) {
	opts := baseOptions()
	opts.RetailerSlabs = []Slab{{Min: d("0"), Percent: d("50")}}
	got := ShareAndCap(opts, d("100"), Retailer, "vip-vendor")
	// retailer share 20, unbounded slab 50% → 30; vendor exclusions do not apply
	require.True(t, got.Equal(d("30")), got.String())
}

func TestCalculate_SharedBoundaryTakesLowerSlab(t *testing.T) {
	opts := Options{
		VendorSharePercent: d("100"),
		VendorSlabs: []Slab{
			{Min: d("50"), Max: nil, Percent: d("5")},
			{Min: d("0"), Max: dp("50"), Percent: d("20")},
		},
	}
	b := Calculate(opts, d("50"), Vendor, "")
	require.True(t, b.Cap.Equal(d("10")), b.Cap.String())
	require.True(t, b.Total.Equal(d("60")), b.Total.String())
}

func TestParseOptions(t *testing.T) {
	o, err := ParseOptions([]byte(`
vendor_share_percent: 50
retailer_share_percent: "12.5"
vendor_slabs:
  - {min: 0, max: 100, percent: 10}
  - {min: 100, percent: 5}
vendor_exclusions: [acme]
`))
	require.NoError(t, err)
	require.True(t, o.RetailerSharePercent.Equal(d("12.5")))
	require.Len(t, o.VendorSlabs, 2)
	require.Nil(t, o.VendorSlabs[1].Max)
	require.True(t, ShareAndCap(o, d("100"), Vendor, "x").Equal(d("55")))
}

func TestParseOptions_Invalid(t *testing.T) {
	_, err := ParseOptions([]byte("vendor_slabs:\n  - {min: 10, max: 5, percent: 1}\n"))
	require.Error(t, err)
	_, err = ParseOptions([]byte("vendor_share_percent: -1\n"))
	require.Error(t, err)
}

func TestLoadOptions(t *testing.T) {
	o, err := LoadOptions("")
	require.NoError(t, err)
	require.True(t, o.VendorSharePercent.IsZero())

	path := filepath.Join(t.TempDir(), "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vendor_share_percent: 40\n"), 0o600))
	o, err = LoadOptions(path)
	require.NoError(t, err)
	require.True(t, o.VendorSharePercent.Equal(d("40")))

	_, err = LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
