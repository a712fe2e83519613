package tlsdiag

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPKI struct {
	roots *x509.CertPool
	ca    *x509.Certificate
	caKey *ecdsa.PrivateKey
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "chatlink test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	ca, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(ca)
	return &testPKI{roots: roots, ca: ca, caKey: key}
}

func (p *testPKI) issue(t *testing.T, cn string, dnsNames []string) *x509.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     dnsNames,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, p.ca, &key.PublicKey, p.caKey)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return leaf
}

func policy(t *testing.T, r Report, name string) PolicyResult {
	t.Helper()
	for _, p := range r.Policies {
		if p.Policy == name {
			return p
		}
	}
	t.Fatalf("policy %s missing from report", name)
	return PolicyResult{}
}

func TestEvaluateValidChainForHost(t *testing.T) {
	pki := newTestPKI(t)
	leaf := pki.issue(t, "devbox.local", []string{"devbox.local"})

	r := Evaluate([]*x509.Certificate{leaf}, "devbox.local", pki.roots)

	assert.Equal(t, []string{"devbox.local"}, r.SubjectCNs)
	assert.True(t, policy(t, r, "chain").Passed)
	assert.True(t, policy(t, r, "ssl+hostname").Passed)
	assert.True(t, policy(t, r, "ssl").Passed)
	assert.True(t, policy(t, r, "ssl+allowlist").Passed)
}

func TestEvaluateHostnameMismatch(t *testing.T) {
	pki := newTestPKI(t)
	leaf := pki.issue(t, "devbox.local", []string{"devbox.local"})

	r := Evaluate([]*x509.Certificate{leaf}, "other.example.com", pki.roots)

	// the chain itself is fine, only the dialed name does not match
	assert.True(t, policy(t, r, "ssl").Passed)
	mismatch := policy(t, r, "ssl+hostname")
	assert.False(t, mismatch.Passed)
	assert.NotEmpty(t, mismatch.Error)
	// the certificate is valid for an allow-listed host
	assert.True(t, policy(t, r, "ssl+allowlist").Passed)
}

func TestEvaluateUntrustedIssuer(t *testing.T) {
	issuing := newTestPKI(t)
	trusted := newTestPKI(t)
	leaf := issuing.issue(t, "devbox.local", []string{"devbox.local"})

	r := Evaluate([]*x509.Certificate{leaf}, "devbox.local", trusted.roots)

	for _, p := range r.Policies {
		assert.False(t, p.Passed, "policy %s should fail for an untrusted issuer", p.Policy)
	}
}

func TestEvaluateAllowListRejectsUnknownNames(t *testing.T) {
	pki := newTestPKI(t)
	leaf := pki.issue(t, "prod.example.com", []string{"prod.example.com"})

	r := Evaluate([]*x509.Certificate{leaf}, "prod.example.com", pki.roots)

	assert.True(t, policy(t, r, "ssl+hostname").Passed)
	assert.False(t, policy(t, r, "ssl+allowlist").Passed)
}

func TestEvaluateEmptyChain(t *testing.T) {
	r := Evaluate(nil, "devbox.local", nil)

	require.Len(t, r.Policies, 1)
	assert.False(t, r.Policies[0].Passed)
}
