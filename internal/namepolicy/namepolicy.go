// Package namepolicy decides which queries this gateway is authoritative
// for and recognizes the single distinguished gateway name within that
// suffix. It is a direct port of the original daemon's is_match_suffix,
// strip_dot, strip_suffix, and is_gateway_domain helpers (src/dns.c,
// src/gateway.c in the C original), operating on miekg/dns's already
// lower-case-agnostic owner name strings.
package namepolicy

import "strings"

// Policy holds the normalized suffix and gateway name a gateway instance is
// configured with. Both are compared case-insensitively against query
// names, matching DNS name comparison semantics (RFC 1035 §2.3.3) and the
// original daemon's strncasecmp-based checks.
type Policy struct {
	// Suffix is the authoritative domain suffix, always stored with a
	// single leading dot (e.g. ".docker").
	Suffix string
	// GatewayName is the single label answered with the synthesized
	// gateway record, e.g. "gateway".
	GatewayName string
}

// New builds a Policy from raw config values. suffix is normalized to carry
// exactly one leading dot.
func New(suffix, gatewayName string) Policy {
	return Policy{
		Suffix:      normalizeSuffix(suffix),
		GatewayName: gatewayName,
	}
}

func normalizeSuffix(suffix string) string {
	if suffix == "" {
		return "."
	}
	if !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	return suffix
}

// StripDot removes a single trailing root dot from an FQDN, e.g.
// "gateway.docker." -> "gateway.docker".
func StripDot(name string) string {
	if strings.HasSuffix(name, ".") {
		return name[:len(name)-1]
	}
	return name
}

// IsMatchSuffix reports whether name falls within p.Suffix, ignoring a
// trailing root dot and comparing case-insensitively.
func (p Policy) IsMatchSuffix(name string) bool {
	name = StripDot(name)
	if len(name) < len(p.Suffix) {
		return false
	}
	tail := name[len(name)-len(p.Suffix):]
	return strings.EqualFold(tail, p.Suffix)
}

// StripSuffix removes a trailing root dot and then p.Suffix from name. The
// caller must have already confirmed IsMatchSuffix(name); if name is
// shorter than the suffix, name is returned unchanged (mirrors the C
// original's unchecked pointer arithmetic guard).
func (p Policy) StripSuffix(name string) string {
	name = StripDot(name)
	if len(name) < len(p.Suffix) {
		return name
	}
	return name[:len(name)-len(p.Suffix)]
}

// IsGatewayDomain reports whether name (with or without a trailing dot)
// names the single distinguished gateway record, i.e. GatewayName+Suffix.
// Returns false when GatewayName is empty, meaning gateway synthesis is
// disabled.
func (p Policy) IsGatewayDomain(name string) bool {
	if p.GatewayName == "" {
		return false
	}
	name = StripDot(name)
	expected := p.GatewayName + p.Suffix
	return strings.EqualFold(name, expected)
}
