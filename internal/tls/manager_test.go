package tls

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"workflow-dashboard/internal/config"
)

func TestDevCertIsPersistedAndReused(t *testing.T) {
	dir := t.TempDir()
	gen := NewDevCertGenerator(dir, zap.NewNop())

	first, err := gen.GenerateCert([]string{"dashboard.local", "127.0.0.1"})
	require.NoError(t, err)
	require.NotNil(t, first.Leaf)
	assert.Contains(t, first.Leaf.DNSNames, "dashboard.local")
	require.Len(t, first.Leaf.IPAddresses, 1)

	assert.FileExists(t, filepath.Join(dir, "dev-cert.pem"))
	info, err := os.Stat(filepath.Join(dir, "dev-key.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A fresh generator picks up the files on disk.
	again, err := NewDevCertGenerator(dir, zap.NewNop()).GenerateCert([]string{"other"})
	require.NoError(t, err)
	assert.Equal(t, first.Leaf.SerialNumber, again.Leaf.SerialNumber)
}

func TestDevCertRegeneratesWhenExpired(t *testing.T) {
	dir := t.TempDir()
	gen := NewDevCertGenerator(dir, zap.NewNop())

	first, err := gen.GenerateCert([]string{"localhost"})
	require.NoError(t, err)

	gen.now = func() time.Time { return time.Now().Add(devCertValidity + time.Hour) }
	second, err := gen.GenerateCert([]string{"localhost"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Leaf.SerialNumber, second.Leaf.SerialNumber)
}

func TestManagerFallsBackToDevCert(t *testing.T) {
	m, err := NewTLSManager(config.ServerConfig{
		EnableTLS:   true,
		Domain:      "localhost",
		AutoCertDir: t.TempDir(),
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, m.GetAutocertManager())

	cert, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	require.NoError(t, err)
	assert.Contains(t, cert.Leaf.DNSNames, "localhost")

	cfg := m.GetTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
}
