// Package tls manages the self-signed certificate used when the agent
// serves HTTPS and WSS.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultValidFor is the lifetime of generated certificates.
const DefaultValidFor = 2 * 365 * 24 * time.Hour

const (
	certFileName = "agent.crt"
	keyFileName  = "agent.key"
)

// CertConfig describes where the certificate lives and what it covers.
type CertConfig struct {
	// CertPath and KeyPath locate the PEM files. Empty values fall back to
	// agent.crt and agent.key inside Dir.
	CertPath string
	KeyPath  string
	Dir      string

	// Hosts are the DNS names and IPs placed in the certificate.
	// Defaults to LocalHosts().
	Hosts []string

	// ValidFor defaults to DefaultValidFor.
	ValidFor time.Duration
}

// CertInfo describes a loaded or generated certificate.
type CertInfo struct {
	CertPath    string
	KeyPath     string
	Fingerprint string // SHA-256, colon-separated uppercase hex
	NotAfter    time.Time
	Generated   bool // false when loaded from existing files
}

// ExpiresWithin reports whether the certificate expires before now+d.
func (c *CertInfo) ExpiresWithin(d time.Duration) bool {
	return time.Now().Add(d).After(c.NotAfter)
}

// Paths returns the certificate and key locations, filling empty ones from Dir.
func (cfg CertConfig) Paths() (string, string, error) {
	certPath, keyPath := cfg.CertPath, cfg.KeyPath
	if certPath != "" && keyPath != "" {
		return certPath, keyPath, nil
	}
	if cfg.Dir == "" {
		return "", "", fmt.Errorf("certificate paths not set and no directory given")
	}
	if certPath == "" {
		certPath = filepath.Join(cfg.Dir, certFileName)
	}
	if keyPath == "" {
		keyPath = filepath.Join(cfg.Dir, keyFileName)
	}
	return certPath, keyPath, nil
}

// Ensure loads the certificate pair, generating a new one if either file
// is missing.
func Ensure(cfg CertConfig) (*CertInfo, error) {
	certPath, keyPath, err := cfg.Paths()
	if err != nil {
		return nil, err
	}

	if fileExists(certPath) && fileExists(keyPath) {
		info, err := Load(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		return info, nil
	}

	cfg.CertPath, cfg.KeyPath = certPath, keyPath
	info, err := Generate(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}
	return info, nil
}

// Load reads an existing pair and computes its fingerprint.
func Load(certPath, keyPath string) (*CertInfo, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate pair: %w", err)
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return &CertInfo{
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: Fingerprint(cert),
		NotAfter:    cert.NotAfter,
	}, nil
}

// Generate writes a new self-signed ECDSA P-256 certificate and key.
func Generate(cfg CertConfig) (*CertInfo, error) {
	certPath, keyPath, err := cfg.Paths()
	if err != nil {
		return nil, err
	}
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = LocalHosts()
	}
	validFor := cfg.ValidFor
	if validFor <= 0 {
		validFor = DefaultValidFor
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := time.Now().Add(-time.Minute)
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"rpistatus"}, CommonName: "rpistatus agent"},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	if err := writePEM(certPath, "CERTIFICATE", der, 0644); err != nil {
		return nil, err
	}
	if err := writePEM(keyPath, "PRIVATE KEY", keyDER, 0600); err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated certificate: %w", err)
	}
	return &CertInfo{
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: Fingerprint(cert),
		NotAfter:    cert.NotAfter,
		Generated:   true,
	}, nil
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create certificate directory: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Fingerprint returns the SHA-256 fingerprint as "AA:BB:...".
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// ServerConfig builds the server-side TLS configuration for a pair.
func ServerConfig(certPath, keyPath string) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// LocalHosts returns localhost, the hostname, its .local name, and every
// non-loopback unicast address of this machine.
func LocalHosts() []string {
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	if name, err := os.Hostname(); err == nil && name != "" {
		hosts = append(hosts, name)
		if !strings.HasSuffix(name, ".local") {
			hosts = append(hosts, name+".local")
		}
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return hosts
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() {
			continue
		}
		hosts = append(hosts, ipNet.IP.String())
	}
	return hosts
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
