package providerfilter

import (
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ProviderInfo is the part of an offer the filter looks at.
type ProviderInfo struct {
	Name            string   `json:"name"`
	ID              string   `json:"id"`
	CPUCapabilities []string `json:"cpu_capabilities,omitempty"`
}

// String renders the provider as name@id.
func (p ProviderInfo) String() string {
	return p.Name + "@" + p.ID
}

// FuzzyMatches reports whether candidate names this provider either by
// exact node name or by id prefix. A candidate matching both ways is
// ambiguous and does not match.
func (p ProviderInfo) FuzzyMatches(candidate string) bool {
	candidate = normalize(candidate)
	if candidate == "" {
		return false
	}
	nameMatches := normalize(p.Name) == candidate
	idMatches := strings.HasPrefix(p.ID, candidate)
	return nameMatches != idMatches
}

// HasFeatures reports whether every required feature is advertised.
func (p ProviderInfo) HasFeatures(required []string) bool {
	for _, feature := range required {
		if !slices.Contains(p.CPUCapabilities, feature) {
			return false
		}
	}
	return true
}

// normalize folds names to NFC so visually identical node names compare
// equal regardless of how the provider encoded them.
func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
