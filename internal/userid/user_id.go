package userid

import (
	"encoding/binary"
	"encoding/hex"
	"net"

	"github.com/dchest/siphash"
)

const (
	DefaultV4Prefix = 24
	DefaultV6Prefix = 48
)

// Hash returns siphash-2-4 of parts keyed by salt. Parts are NUL separated so
// ("ab", "c") and ("a", "bc") differ.
func Hash(salt Salt, parts ...string) uint64 {
	h := siphash.New(salt[:])
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Fingerprint is the hex encoded hash of the visitor tuple.
func Fingerprint(salt Salt, siteID, ipPrefix, userAgent string) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], Hash(salt, siteID, ipPrefix, userAgent))
	return hex.EncodeToString(b[:])
}

// Prefix masks ip to its network prefix to tolerate address churn within a
// network. Unparseable addresses are returned as is.
func Prefix(ip string, v4Bits, v6Bits int) string {
	x := net.ParseIP(ip)
	if x == nil {
		return ip
	}
	if v4 := x.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(clamp(v4Bits, 32), 32)).String()
	}
	return x.Mask(net.CIDRMask(clamp(v6Bits, 128), 128)).String()
}

func clamp(bits, max int) int {
	if bits <= 0 || bits > max {
		return max
	}
	return bits
}
