//go:build !devtrust

package tlsdiag

import "crypto/x509"

// LenientEnabled reports whether this build can bypass certificate
// validation. Release builds never can.
const LenientEnabled = false

// LenientDecision always declines in release builds. The devtrust build
// tag enables the development bypass.
func LenientDecision(certs []*x509.Certificate, hostname string) bool {
	return false
}
