package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// generateSelfSignedCert writes a self-signed certificate usable as both a
// leaf and a CA.
func generateSelfSignedCert(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestDisabledReturnsNil(t *testing.T) {
	server, err := NewServerTLSConfig(ServerConfig{})
	if err != nil || server != nil {
		t.Errorf("NewServerTLSConfig() = %v, %v", server, err)
	}
	client, err := NewClientTLSConfig(ClientConfig{})
	if err != nil || client != nil {
		t.Errorf("NewClientTLSConfig() = %v, %v", client, err)
	}
}

func TestServerConfig(t *testing.T) {
	certFile, keyFile := generateSelfSignedCert(t, t.TempDir())

	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
		check   func(t *testing.T, c *tls.Config)
	}{
		{
			name: "valid cert",
			cfg:  ServerConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile},
			check: func(t *testing.T, c *tls.Config) {
				if len(c.Certificates) != 1 {
					t.Errorf("expected 1 certificate, got %d", len(c.Certificates))
				}
				if c.MinVersion != tls.VersionTLS12 {
					t.Errorf("expected TLS 1.2 minimum, got %x", c.MinVersion)
				}
				if c.ClientAuth != tls.NoClientCert {
					t.Error("client auth should be off")
				}
			},
		},
		{
			name: "mtls",
			cfg:  ServerConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: certFile, ClientAuth: true, MinVersion: "1.3"},
			check: func(t *testing.T, c *tls.Config) {
				if c.ClientAuth != tls.RequireAndVerifyClientCert || c.ClientCAs == nil {
					t.Error("expected client certificate verification")
				}
				if c.MinVersion != tls.VersionTLS13 {
					t.Errorf("expected TLS 1.3 minimum, got %x", c.MinVersion)
				}
			},
		},
		{name: "missing cert", cfg: ServerConfig{Enabled: true, CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}, wantErr: true},
		{name: "missing ca", cfg: ServerConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: "/nonexistent/ca.pem", ClientAuth: true}, wantErr: true},
		{name: "bad min version", cfg: ServerConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.0"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewServerTLSConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewServerTLSConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, c)
			}
		})
	}
}

func TestClientConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := generateSelfSignedCert(t, dir)
	garbage := filepath.Join(dir, "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a cert"), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := NewClientTLSConfig(ClientConfig{
		Enabled:            true,
		CertFile:           certFile,
		KeyFile:            keyFile,
		CAFile:             certFile,
		InsecureSkipVerify: true,
		ServerName:         "collector.internal",
	})
	if err != nil {
		t.Fatalf("NewClientTLSConfig() error = %v", err)
	}
	if len(c.Certificates) != 1 || c.RootCAs == nil {
		t.Error("expected client certificate and root CAs")
	}
	if !c.InsecureSkipVerify || c.ServerName != "collector.internal" {
		t.Errorf("InsecureSkipVerify = %v, ServerName = %q", c.InsecureSkipVerify, c.ServerName)
	}

	if _, err := NewClientTLSConfig(ClientConfig{Enabled: true, CAFile: garbage}); err == nil {
		t.Error("expected error for unparsable CA")
	}
	if _, err := NewClientTLSConfig(ClientConfig{Enabled: true, CertFile: "/nonexistent", KeyFile: "/nonexistent"}); err == nil {
		t.Error("expected error for missing client certificate")
	}
}

func TestParseMinVersion(t *testing.T) {
	tests := map[string]uint16{"": tls.VersionTLS12, "1.2": tls.VersionTLS12, "TLS1.3": tls.VersionTLS13}
	for in, want := range tests {
		got, err := ParseMinVersion(in)
		if err != nil || got != want {
			t.Errorf("ParseMinVersion(%q) = %x, %v", in, got, err)
		}
	}
}
