//go:build devtrust

package tlsdiag

import (
	"crypto/x509"
	"net"
)

// LenientEnabled reports whether this build can bypass certificate
// validation.
const LenientEnabled = true

// LenientDecision accepts chains from IP-literal or allow-listed hosts
// even when normal validation would fail. Development builds only; the
// decision never consults the chain content, only the endpoint identity.
func LenientDecision(certs []*x509.Certificate, hostname string) bool {
	if len(certs) == 0 {
		return false
	}
	if net.ParseIP(hostname) != nil {
		return true
	}
	for _, h := range AllowedHosts {
		if h == hostname {
			return true
		}
	}
	return false
}
