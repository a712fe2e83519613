// Package tlsdiag inspects server certificate chains against several
// validation policies at once. It exists for debugging broken dev and QA
// TLS setups: one handshake, one report showing which policy would have
// accepted the chain and which would not.
package tlsdiag

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"
)

// AllowedHosts is the fixed set of development host names the allow-list
// policy (and lenient dev builds) will accept.
var AllowedHosts = []string{
	"devbox.local",
	"qa.chatlink.internal",
	"localhost",
}

// PolicyResult is the outcome of one validation policy.
type PolicyResult struct {
	Policy string `json:"policy"`
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

// Report is a multi-policy evaluation of one presented chain.
type Report struct {
	Host        string         `json:"host"`
	SubjectCNs  []string       `json:"subjectCNs"`
	Policies    []PolicyResult `json:"policies"`
	EvaluatedAt time.Time      `json:"evaluatedAt"`
}

// Evaluate runs every policy against the presented chain. certs[0] is the
// leaf; the rest are intermediates as presented by the server.
func Evaluate(certs []*x509.Certificate, host string, roots *x509.CertPool) Report {
	r := Report{
		Host:        host,
		EvaluatedAt: time.Now().UTC(),
	}
	for _, c := range certs {
		r.SubjectCNs = append(r.SubjectCNs, c.Subject.CommonName)
	}
	if len(certs) == 0 {
		r.Policies = append(r.Policies, PolicyResult{
			Policy: "chain", Passed: false, Error: "no certificates presented",
		})
		return r
	}

	leaf := certs[0]
	inters := x509.NewCertPool()
	for _, c := range certs[1:] {
		inters.AddCert(c)
	}

	r.Policies = append(r.Policies,
		verify("chain", leaf, x509.VerifyOptions{Roots: roots, Intermediates: inters}),
		verify("ssl+hostname", leaf, x509.VerifyOptions{Roots: roots, Intermediates: inters, DNSName: host}),
		verify("ssl", leaf, x509.VerifyOptions{Roots: roots, Intermediates: inters}),
		allowListPolicy(leaf, inters, roots),
	)
	return r
}

func verify(policy string, leaf *x509.Certificate, opts x509.VerifyOptions) PolicyResult {
	if _, err := leaf.Verify(opts); err != nil {
		return PolicyResult{Policy: policy, Passed: false, Error: err.Error()}
	}
	return PolicyResult{Policy: policy, Passed: true}
}

// allowListPolicy accepts a chain that validates for any of the known
// development host names, regardless of the host actually dialed.
func allowListPolicy(leaf *x509.Certificate, inters, roots *x509.CertPool) PolicyResult {
	var lastErr error
	for _, h := range AllowedHosts {
		_, err := leaf.Verify(x509.VerifyOptions{Roots: roots, Intermediates: inters, DNSName: h})
		if err == nil {
			return PolicyResult{Policy: "ssl+allowlist", Passed: true}
		}
		lastErr = err
	}
	return PolicyResult{
		Policy: "ssl+allowlist",
		Passed: false,
		Error:  fmt.Sprintf("no allow-listed host matched: %v", lastErr),
	}
}

// Probe dials host:port, captures the presented chain without verifying
// it, and evaluates the report against the system roots.
func Probe(addr, host string) (Report, error) {
	conn, err := tls.Dial("tcp", addr, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: true, // diagnostics capture the chain, Evaluate judges it
	})
	if err != nil {
		return Report{}, fmt.Errorf("tls probe %s: %w", addr, err)
	}
	defer conn.Close()

	return Evaluate(conn.ConnectionState().PeerCertificates, host, nil), nil
}
