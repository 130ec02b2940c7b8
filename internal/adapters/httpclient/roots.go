package httpclient

import (
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// systemBundles are the well-known CA bundle locations, most common first.
var systemBundles = []string{
	"/etc/ssl/certs/ca-certificates.crt",
	"/etc/pki/tls/certs/ca-bundle.crt",
	"/etc/ssl/ca-bundle.pem",
	"/etc/pki/ca-trust/extracted/pem/tls-ca-bundle.pem",
	"/etc/ssl/cert.pem",
	"/usr/local/etc/openssl/cert.pem",
}

// Roots is a resolved trusted-root bundle.
type Roots struct {
	Pool   *x509.CertPool
	Source string
}

// LoadRoots resolves the trusted roots once at startup. An explicit path wins,
// then SSL_CERT_FILE, then the well-known bundle locations, then the platform
// pool. Any failure here must stop the process.
func LoadRoots(path string) (Roots, error) {
	if path != "" {
		return loadBundle(path)
	}
	if env := os.Getenv("SSL_CERT_FILE"); env != "" {
		return loadBundle(env)
	}
	for _, candidate := range systemBundles {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return loadBundle(candidate)
		}
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		return Roots{}, fmt.Errorf("system cert pool: %w", err)
	}
	if pool == nil {
		return Roots{}, errors.New("no trusted root bundle found")
	}
	return Roots{Pool: pool, Source: "system"}, nil
}

func loadBundle(path string) (Roots, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return Roots{}, fmt.Errorf("read ca bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return Roots{}, fmt.Errorf("no certificates in ca bundle %s", path)
	}
	return Roots{Pool: pool, Source: path}, nil
}
