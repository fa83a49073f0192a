package bundle

import (
	"regexp"
	"strings"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
)

var tierLiteral = regexp.MustCompile(`devDynamicContent\.parent\[0\]\.TIER\s*=\s*['"](T[12])['"]`)

// DetectTier guesses the tier a Dynamic.js was written for: the literal
// assigned to the TIER variable, else T2 when the source mentions offerType,
// else T1 when it mentions custom_offer. It returns "" when nothing matches.
func DetectTier(src string) api.Tier {
	if m := tierLiteral.FindStringSubmatch(src); m != nil {
		return api.Tier(m[1])
	}
	switch {
	case strings.Contains(src, api.TierT2.Column()):
		return api.TierT2
	case strings.Contains(src, api.TierT1.Column()):
		return api.TierT1
	default:
		return ""
	}
}
