package portals

import (
	"strings"

	"github.com/samber/lo"

	"github.com/tdrizzle0202/hiddencash/common"
)

// Portal is one state's unclaimed-property search site. Each portal shares
// the claim-search template but carries its own quirks; the selectors below
// are the common denominator across the supported set.
type Portal struct {
	Code string
	Name string
	URL  string
}

// registry covers all 50 states plus DC and the MissingMoney aggregator.
var registry = map[string]Portal{
	"AL": {"AL", "Alabama", "https://missingmoney.al.gov/app/claim-search"},
	"AK": {"AK", "Alaska", "https://unclaimedproperty.alaska.gov/app/claim-search"},
	"AZ": {"AZ", "Arizona", "https://azdor.gov/unclaimed-property/search-unclaimed-property"},
	"AR": {"AR", "Arkansas", "https://www.claimitarkansas.org/app/claim-search"},
	"CA": {"CA", "California", "https://claimit.ca.gov/app/claim-search"},
	"CO": {"CO", "Colorado", "https://colorado.findyourunclaimedproperty.com/app/claim-search"},
	"CT": {"CT", "Connecticut", "https://ctbiglist.com/app/claim-search"},
	"DE": {"DE", "Delaware", "https://unclaimedproperty.delaware.gov/app/claim-search"},
	"DC": {"DC", "Washington DC", "https://cfo.dc.gov/unclaimed-property/app/claim-search"},
	"FL": {"FL", "Florida", "https://www.fltreasurehunt.gov/app/claim-search"},
	"GA": {"GA", "Georgia", "https://georgia.findyourunclaimedproperty.com/app/claim-search"},
	"HI": {"HI", "Hawaii", "https://hawaii.findyourunclaimedproperty.com/app/claim-search"},
	"ID": {"ID", "Idaho", "https://yourmoney.idaho.gov/app/claim-search"},
	"IL": {"IL", "Illinois", "https://icash.illinoistreasurer.gov/app/claim-search"},
	"IN": {"IN", "Indiana", "https://indianaunclaimed.gov/app/claim-search"},
	"IA": {"IA", "Iowa", "https://greatiowatreasruehunt.gov/app/claim-search"},
	"KS": {"KS", "Kansas", "https://missingmoney.ks.gov/app/claim-search"},
	"KY": {"KY", "Kentucky", "https://missingmoney.ky.gov/app/claim-search"},
	"LA": {"LA", "Louisiana", "https://www.latreasury.com/app/claim-search"},
	"ME": {"ME", "Maine", "https://maine.findyourunclaimedproperty.com/app/claim-search"},
	"MD": {"MD", "Maryland", "https://maryland.findyourunclaimedproperty.com/app/claim-search"},
	"MA": {"MA", "Massachusetts", "https://findmassmoney.com/app/claim-search"},
	"MI": {"MI", "Michigan", "https://unclaimedproperty.michigan.gov/app/claim-search"},
	"MN": {"MN", "Minnesota", "https://mn.findyourunclaimedproperty.com/app/claim-search"},
	"MS": {"MS", "Mississippi", "https://treasury.ms.gov/unclaimed-property/app/claim-search"},
	"MO": {"MO", "Missouri", "https://treasurer.mo.gov/unclaimedproperty/app/claim-search"},
	"MT": {"MT", "Montana", "https://mtrevenue.gov/unclaimed-property/app/claim-search"},
	"NE": {"NE", "Nebraska", "https://treasurer.nebraska.gov/up/app/claim-search"},
	"NV": {"NV", "Nevada", "https://nevadatreasurer.gov/unclaimed-property/app/claim-search"},
	"NH": {"NH", "New Hampshire", "https://www.nh.gov/treasury/unclaimed-property/app/claim-search"},
	"NJ": {"NJ", "New Jersey", "https://www.njtreasure.gov/app/claim-search"},
	"NM": {"NM", "New Mexico", "https://nmpossibility.com/app/claim-search"},
	"NY": {"NY", "New York", "https://ouf.osc.ny.gov/app/claim-search"},
	"NC": {"NC", "North Carolina", "https://www.nccash.com/app/claim-search"},
	"ND": {"ND", "North Dakota", "https://ndunclaimed.findyourunclaimedproperty.com/app/claim-search"},
	"OH": {"OH", "Ohio", "https://com.ohio.gov/unclaimedproperty/app/claim-search"},
	"OK": {"OK", "Oklahoma", "https://oklahoma.findyourunclaimedproperty.com/app/claim-search"},
	"OR": {"OR", "Oregon", "https://oregon.findyourunclaimedproperty.com/app/claim-search"},
	"PA": {"PA", "Pennsylvania", "https://unclaimedproperty.patreasury.gov/en/Property/SearchIndex"},
	"RI": {"RI", "Rhode Island", "https://findrimoney.com/app/claim-search"},
	"SC": {"SC", "South Carolina", "https://southcarolina.findyourunclaimedproperty.com/app/claim-search"},
	"SD": {"SD", "South Dakota", "https://sdtreasurer.gov/unclaimed-property/app/claim-search"},
	"TN": {"TN", "Tennessee", "https://treasury.tn.gov/unclaimed-property/app/claim-search"},
	"TX": {"TX", "Texas", "https://www.claimittexas.gov/app/claim-search"},
	"UT": {"UT", "Utah", "https://mycash.utah.gov/app/claim-search"},
	"VT": {"VT", "Vermont", "https://vermont.findyourunclaimedproperty.com/app/claim-search"},
	"VA": {"VA", "Virginia", "https://vamoneysearch.org/app/claim-search"},
	"WA": {"WA", "Washington", "https://ucp.dor.wa.gov/app/claim-search"},
	"WV": {"WV", "West Virginia", "https://wvtreasury.com/unclaimed-property/app/claim-search"},
	"WI": {"WI", "Wisconsin", "https://statetreasury.wisconsin.gov/ucpm/app/claim-search"},
	"WY": {"WY", "Wyoming", "https://wyoming.findyourunclaimedproperty.com/app/claim-search"},
	"MM": {"MM", "MissingMoney", "https://www.missingmoney.com/app/claim-search"},
}

// unsupported lists portals whose site structure the interaction script
// cannot drive yet. They are filtered out of searches, not rejected.
var unsupported = map[string]bool{
	"AZ": true, "FL": true, "GA": true, "HI": true, "KY": true, "MO": true,
	"MT": true, "NM": true, "PA": true, "VT": true, "WI": true,
}

// DefaultState is searched when a user selected nothing automatable.
const DefaultState = "NY"

// FallbackStates are tried, in order, when every requested state came up
// empty. High-population states give the best odds of a hit.
var FallbackStates = []string{"NY", "CA"}

// Lookup returns the portal definition for a state code.
func Lookup(code string) (Portal, error) {
	p, ok := registry[strings.ToUpper(code)]
	if !ok {
		return Portal{}, common.ErrUnsupportedState
	}
	return p, nil
}

// Known reports whether code names any portal, supported or not.
func Known(code string) bool {
	_, ok := registry[strings.ToUpper(code)]
	return ok
}

// Supported reports whether code names a portal the scraper can drive.
func Supported(code string) bool {
	code = strings.ToUpper(code)
	return Known(code) && !unsupported[code]
}

// FilterSupported uppercases the given codes and drops unsupported ones,
// preserving order.
func FilterSupported(codes []string) []string {
	return lo.Filter(lo.Map(codes, func(c string, _ int) string {
		return strings.ToUpper(c)
	}), func(c string, _ int) bool {
		return Supported(c)
	})
}
