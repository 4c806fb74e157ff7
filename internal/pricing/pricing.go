// Package pricing computes a party's share of a carrier base cost plus the
// hidden cap chosen from that party's slab table.
package pricing

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Party string

const (
	Vendor   Party = "vendor"
	Retailer Party = "retailer"
)

// Slab applies Percent when Min <= share <= Max. A nil Max is unbounded.
type Slab struct {
	Min     decimal.Decimal  `yaml:"min" json:"min"`
	Max     *decimal.Decimal `yaml:"max,omitempty" json:"max,omitempty"`
	Percent decimal.Decimal  `yaml:"percent" json:"percent"`
}

func (s Slab) contains(v decimal.Decimal) bool {
	if v.LessThan(s.Min) {
		return false
	}
	return s.Max == nil || v.LessThanOrEqual(*s.Max)
}

// Options is an immutable pricing snapshot. Callers load it once and pass
// it by value.
type Options struct {
	VendorSharePercent   decimal.Decimal `yaml:"vendor_share_percent"`
	RetailerSharePercent decimal.Decimal `yaml:"retailer_share_percent"`
	VendorSlabs          []Slab          `yaml:"vendor_slabs"`
	RetailerSlabs        []Slab          `yaml:"retailer_slabs"`
	VendorExclusions     []string        `yaml:"vendor_exclusions"`
	RetailerExclusions   []string        `yaml:"retailer_exclusions"`
}

type Breakdown struct {
	Share decimal.Decimal `json:"share"`
	Cap   decimal.Decimal `json:"cap"`
	Total decimal.Decimal `json:"total"`
}

var hundred = decimal.NewFromInt(100)

func (o Options) forParty(p Party) (decimal.Decimal, []Slab, []string) {
	if p == Retailer {
		return o.RetailerSharePercent, o.RetailerSlabs, o.RetailerExclusions
	}
	return o.VendorSharePercent, o.VendorSlabs, o.VendorExclusions
}

// Calculate splits the result into share and cap. Slabs are scanned in
// ascending Min order and the first match wins, so a share sitting exactly
// on a shared boundary takes the lower slab.
func Calculate(opts Options, baseCost decimal.Decimal, party Party, userID string) Breakdown {
	if !baseCost.IsPositive() {
		return Breakdown{Share: decimal.Zero, Cap: decimal.Zero, Total: decimal.Zero}
	}
	pct, slabs, excluded := opts.forParty(party)
	share := baseCost.Mul(pct).Div(hundred)
	out := Breakdown{Share: share, Cap: decimal.Zero, Total: share}
	if isExcluded(excluded, userID) {
		return out
	}
	for _, s := range sortedSlabs(slabs) {
		if s.contains(share) {
			out.Cap = share.Mul(s.Percent).Div(hundred)
			out.Total = share.Add(out.Cap)
			return out
		}
	}
	return out
}

// ShareAndCap returns share plus cap for party.
func ShareAndCap(opts Options, baseCost decimal.Decimal, party Party, userID string) decimal.Decimal {
	return Calculate(opts, baseCost, party, userID).Total
}

func isExcluded(list []string, userID string) bool {
	id := strings.ToLower(strings.TrimSpace(userID))
	if id == "" {
		return false
	}
	for _, v := range list {
		if strings.ToLower(strings.TrimSpace(v)) == id {
			return true
		}
	}
	return false
}

func sortedSlabs(in []Slab) []Slab {
	out := append([]Slab(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Min.LessThan(out[j].Min) })
	return out
}

// Validate rejects negative percentages and slabs whose Max is below Min.
func (o Options) Validate() error {
	var errs []error
	for _, p := range []struct {
		name string
		v    decimal.Decimal
	}{{"vendor_share_percent", o.VendorSharePercent}, {"retailer_share_percent", o.RetailerSharePercent}} {
		if p.v.IsNegative() {
			errs = append(errs, fmt.Errorf("%s must not be negative", p.name))
		}
	}
	check := func(name string, slabs []Slab) {
		for i, s := range slabs {
			if s.Percent.IsNegative() {
				errs = append(errs, fmt.Errorf("%s[%d]: percent must not be negative", name, i))
			}
			if s.Max != nil && s.Max.LessThan(s.Min) {
				errs = append(errs, fmt.Errorf("%s[%d]: max %s below min %s", name, i, s.Max, s.Min))
			}
		}
	}
	check("vendor_slabs", o.VendorSlabs)
	check("retailer_slabs", o.RetailerSlabs)
	return errors.Join(errs...)
}

// LoadOptions reads a YAML options file. An empty path yields zero
// percentages, which price every shipment at zero.
func LoadOptions(path string) (Options, error) {
	if strings.TrimSpace(path) == "" {
		return Options{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read pricing options: %w", err)
	}
	return ParseOptions(b)
}

func ParseOptions(b []byte) (Options, error) {
	var o Options
	if err := yaml.Unmarshal(b, &o); err != nil {
		return Options{}, fmt.Errorf("parse pricing options: %w", err)
	}
	if err := o.Validate(); err != nil {
		return Options{}, fmt.Errorf("invalid pricing options: %w", err)
	}
	return o, nil
}

// Static serves one fixed snapshot.
type Static Options

func (s Static) Options() Options { return Options(s) }
