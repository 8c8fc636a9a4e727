// Package tls resolves server certificates from ACME, files on disk, or a
// generated development certificate, in that order.
package tls

import (
	"crypto/tls"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"workflow-dashboard/internal/config"
)

type TLSManager struct {
	cfg      config.ServerConfig
	autoCert *autocert.Manager
	dev      *DevCertGenerator
	logger   *zap.Logger
}

func NewTLSManager(cfg config.ServerConfig, logger *zap.Logger) (*TLSManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &TLSManager{
		cfg:    cfg,
		dev:    NewDevCertGenerator(cfg.AutoCertDir, logger),
		logger: logger,
	}

	if cfg.EnableTLS && cfg.AutoCert {
		if err := os.MkdirAll(cfg.AutoCertDir, 0o700); err != nil {
			return nil, fmt.Errorf("create autocert dir: %w", err)
		}
		m.autoCert = &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.Domain),
			Cache:      autocert.DirCache(cfg.AutoCertDir),
			Email:      cfg.Email,
		}
		logger.Info("AutoCert configured",
			zap.String("domain", cfg.Domain),
			zap.String("cache_dir", cfg.AutoCertDir))
	}

	return m, nil
}

func (m *TLSManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		cert, err := m.autoCert.GetCertificate(hello)
		if err == nil {
			return cert, nil
		}
		m.logger.Warn("AutoCert lookup failed", zap.String("server_name", hello.ServerName), zap.Error(err))
	}

	if m.cfg.CertFile != "" && m.cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(m.cfg.CertFile, m.cfg.KeyFile)
		if err == nil {
			return &cert, nil
		}
		m.logger.Warn("Certificate files unusable", zap.Error(err))
	}

	cert, err := m.dev.GenerateCert([]string{m.cfg.Domain, "localhost", "127.0.0.1", "::1"})
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	return &cert, nil
}

func (m *TLSManager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}

// GetAutocertManager is nil unless ACME is enabled.
func (m *TLSManager) GetAutocertManager() *autocert.Manager {
	return m.autoCert
}
