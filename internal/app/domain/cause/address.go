package cause

import (
	"fmt"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// IsZero reports whether h is the zero script hash, the null address.
func IsZero(h util.Uint160) bool {
	return h.Equals(util.Uint160{})
}

// ParseAddress accepts a Neo N3 address ("N...") or a 0x-prefixed
// little-endian script hash as printed by the RPC node.
func ParseAddress(s string) (util.Uint160, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return util.Uint160{}, fmt.Errorf("empty address")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		h, err := util.Uint160DecodeStringLE(s[2:])
		if err != nil {
			return util.Uint160{}, fmt.Errorf("invalid script hash %q: %w", s, err)
		}
		return h, nil
	}
	h, err := address.StringToUint160(s)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return h, nil
}

// FormatAddress renders h as a Neo N3 address.
func FormatAddress(h util.Uint160) string {
	return address.Uint160ToString(h)
}
