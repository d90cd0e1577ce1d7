package taxonomy

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	reParens       = regexp.MustCompile(`\(.*?\)`)
	reVendorPrefix = regexp.MustCompile(`(?i)^(amazon|aws)\s+`)
)

// fillerWords carry no identity in a service name.
var fillerWords = map[string]bool{
	"service":  true,
	"services": true,
	"family":   true,
	"product":  true,
	"products": true,
}

var separators = strings.NewReplacer(
	"&", "and",
	"\u2013", " ",
	"\u2014", " ",
	"-", " ",
	"_", " ",
	"/", " ",
)

// Canon reduces a service name to a lookup key.
//
// The text is NFKC-normalized, parenthesized parts and a leading "Amazon" or
// "AWS" are removed, "&" becomes "and", dashes, underscores and slashes
// become spaces, filler words such as "service" are dropped, and the result
// is lowercased with single spaces. Canon("Amazon EC2 (Compute)") == "ec2".
func Canon(text string) string {
	t := norm.NFKC.String(text)
	t = reParens.ReplaceAllString(t, "")
	t = strings.TrimSpace(t)
	t = reVendorPrefix.ReplaceAllString(t, "")
	t = separators.Replace(t)

	tokens := strings.Fields(t)
	kept := tokens[:0]
	for _, w := range tokens {
		if !fillerWords[strings.ToLower(w)] {
			kept = append(kept, w)
		}
	}
	return strings.ToLower(strings.Join(kept, " "))
}
