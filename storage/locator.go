package storage

import (
	"fmt"
	"strings"
)

// Resolver converts between content ids, locators and gateway URLs.
// A locator is <scheme>://<cid>; the gateway serves <gateway>/ipfs/<cid>.
type Resolver struct {
	Scheme     string
	GatewayURL string
}

// Locator builds the locator for cid.
func (r Resolver) Locator(cid string) string {
	return r.Scheme + "://" + cid
}

// ContentIDOf extracts the content id from a locator or a gateway URL.
func (r Resolver) ContentIDOf(ref string) (string, error) {
	prefix := r.Scheme + "://"
	if strings.HasPrefix(ref, prefix) {
		return strings.TrimPrefix(ref, prefix), nil
	}
	if i := strings.Index(ref, "/ipfs/"); i >= 0 && (strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")) {
		return strings.Trim(ref[i+len("/ipfs/"):], "/"), nil
	}
	return "", fmt.Errorf("%q is not a %s locator", ref, r.Scheme)
}

// Resolve returns an HTTP URL for ref. Locators of this resolver's scheme
// are routed through the gateway; anything else is returned as is.
func (r Resolver) Resolve(ref string) string {
	prefix := r.Scheme + "://"
	if !strings.HasPrefix(ref, prefix) {
		return ref
	}
	return strings.TrimRight(r.GatewayURL, "/") + "/ipfs/" + strings.TrimPrefix(ref, prefix)
}
