package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const devCertValidity = 365 * 24 * time.Hour

// DevCertGenerator keeps one self-signed certificate under dir, regenerating
// it once expired.
type DevCertGenerator struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	cached *tls.Certificate
}

func NewDevCertGenerator(dir string, logger *zap.Logger) *DevCertGenerator {
	return &DevCertGenerator{dir: dir, logger: logger, now: time.Now}
}

func (d *DevCertGenerator) paths() (string, string) {
	return filepath.Join(d.dir, "dev-cert.pem"), filepath.Join(d.dir, "dev-key.pem")
}

func (d *DevCertGenerator) GenerateCert(hosts []string) (tls.Certificate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cached != nil && d.valid(d.cached.Leaf) {
		return *d.cached, nil
	}

	certPath, keyPath := d.paths()
	if cert, err := tls.LoadX509KeyPair(certPath, keyPath); err == nil && d.valid(cert.Leaf) {
		d.cached = &cert
		return cert, nil
	}

	d.logger.Info("Generating self-signed certificate", zap.Strings("hosts", hosts))

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate serial: %w", err)
	}

	now := d.now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"Workflow Dashboard Development"}},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(devCertValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if h != "" {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("marshal key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := d.persist(certPath, certPEM, keyPath, keyPEM); err != nil {
		// Serve from memory when the directory is not writable.
		d.logger.Warn("Could not persist self-signed certificate", zap.Error(err))
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load generated certificate: %w", err)
	}
	d.cached = &cert
	return cert, nil
}

func (d *DevCertGenerator) persist(certPath string, certPEM []byte, keyPath string, keyPEM []byte) error {
	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return err
	}
	return os.WriteFile(keyPath, keyPEM, 0o600)
}

func (d *DevCertGenerator) valid(leaf *x509.Certificate) bool {
	if leaf == nil {
		return false
	}
	now := d.now()
	return now.After(leaf.NotBefore) && now.Before(leaf.NotAfter)
}
