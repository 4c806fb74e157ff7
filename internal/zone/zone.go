package zone

import "strings"

type Zone string

const (
	Local    Zone = "local"
	Regional Zone = "regional"
	Metro    Zone = "metro"
	National Zone = "national"
	Special  Zone = "special"
)

// Default is returned for every origin/destination pair that is not an exact
// pincode match. Carriers return their own zone on each quote; this value only
// labels estimates.
const Default = National

// Representative hub pincodes used to approximate a vendor's price spread
// without quoting every real destination.
var hubs = map[Zone]string{
	Regional: "110001",
	Metro:    "400001",
	National: "700001",
	Special:  "781001",
}

var labels = map[Zone]string{
	Local:    "Within City",
	Regional: "Within Region",
	Metro:    "Metro to Metro",
	National: "Rest of India",
	Special:  "North-East & J&K",
}

// All lists zones in display order.
func All() []Zone {
	return []Zone{Local, Regional, Metro, National, Special}
}

func Resolve(origin, destination string) Zone {
	o, d := strings.TrimSpace(origin), strings.TrimSpace(destination)
	if o != "" && o == d {
		return Local
	}
	return Default
}

// Table maps each zone to the destination pincode used for estimates.
func Table(origin string) map[Zone]string {
	t := make(map[Zone]string, len(hubs)+1)
	t[Local] = strings.TrimSpace(origin)
	for z, pin := range hubs {
		t[z] = pin
	}
	return t
}

func Labels() map[Zone]string {
	out := make(map[Zone]string, len(labels))
	for z, l := range labels {
		out[z] = l
	}
	return out
}
