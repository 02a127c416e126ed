package tlsconfig

import (
    "bytes"
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

// writeKeyPair writes a self-signed certificate and key under dir and
// returns their paths.
func writeKeyPair(t *testing.T, dir, name, cn string) (certFile, keyFile string) {
    t.Helper()
    key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
    if err != nil { t.Fatalf("generate key: %v", err) }
    tmpl := x509.Certificate{
        SerialNumber:          big.NewInt(time.Now().UnixNano()),
        Subject:               pkix.Name{CommonName: cn},
        NotBefore:             time.Now().Add(-time.Hour),
        NotAfter:              time.Now().Add(time.Hour),
        KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
        BasicConstraintsValid: true,
        IsCA:                  true,
    }
    der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
    if err != nil { t.Fatalf("create cert: %v", err) }
    keyDER, err := x509.MarshalECPrivateKey(key)
    if err != nil { t.Fatalf("marshal key: %v", err) }

    certFile = filepath.Join(dir, name+".crt")
    keyFile = filepath.Join(dir, name+".key")
    certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
    keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
    if err := os.WriteFile(certFile, certPEM, 0o600); err != nil { t.Fatal(err) }
    if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil { t.Fatal(err) }
    return certFile, keyFile
}

func TestDisabledYieldsNil(t *testing.T) {
    var o Options
    for _, build := range []func() (*tls.Config, error){o.Server, o.Client, o.ServerHotReload, o.ClientHotReload} {
        cfg, err := build()
        if err != nil { t.Fatalf("disabled build: %v", err) }
        if cfg != nil { t.Fatalf("disabled build returned non-nil config") }
    }
}

func TestServerRequiresKeyPair(t *testing.T) {
    o := Options{Enable: true}
    if _, err := o.Server(); err == nil {
        t.Fatalf("expected error without cert/key")
    }
    if _, err := o.ServerHotReload(); err == nil {
        t.Fatalf("expected hot-reload error without cert/key")
    }
}

func TestServerAndClientConfigs(t *testing.T) {
    dir := t.TempDir()
    cert, key := writeKeyPair(t, dir, "node", "node1")

    o := Options{Enable: true, CertFile: cert, KeyFile: key, CAFile: cert}
    srv, err := o.Server()
    if err != nil { t.Fatalf("server: %v", err) }
    if len(srv.Certificates) != 1 { t.Fatalf("server certs = %d, want 1", len(srv.Certificates)) }
    if srv.ClientAuth != tls.RequireAndVerifyClientCert {
        t.Fatalf("CA file should enable client cert verification")
    }

    cli, err := o.Client()
    if err != nil { t.Fatalf("client: %v", err) }
    if cli.RootCAs == nil { t.Fatalf("client RootCAs not set") }
    if len(cli.Certificates) != 1 { t.Fatalf("client certs = %d, want 1", len(cli.Certificates)) }
}

func TestBadCAFileRejected(t *testing.T) {
    dir := t.TempDir()
    cert, key := writeKeyPair(t, dir, "node", "node1")
    junk := filepath.Join(dir, "junk.pem")
    if err := os.WriteFile(junk, []byte("not pem"), 0o600); err != nil { t.Fatal(err) }

    o := Options{Enable: true, CertFile: cert, KeyFile: key, CAFile: junk}
    if _, err := o.Server(); err == nil {
        t.Fatalf("expected error for junk CA file")
    }
}

func TestHotReloadPicksUpRotation(t *testing.T) {
    dir := t.TempDir()
    cert1, key1 := writeKeyPair(t, dir, "gen1", "node1")

    o := Options{Enable: true, CertFile: cert1, KeyFile: key1, ReloadTTL: time.Millisecond}
    cfg, err := o.ServerHotReload()
    if err != nil { t.Fatalf("hot reload config: %v", err) }

    first, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
    if err != nil { t.Fatalf("first load: %v", err) }

    // Rotate: write a new pair over the same paths, wait out the TTL.
    cert2, key2 := writeKeyPair(t, dir, "gen2", "node1-rotated")
    cp := func(src, dst string) {
        data, err := os.ReadFile(src)
        if err != nil { t.Fatal(err) }
        if err := os.WriteFile(dst, data, 0o600); err != nil { t.Fatal(err) }
    }
    cp(cert2, cert1)
    cp(key2, key1)
    time.Sleep(5 * time.Millisecond)

    second, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
    if err != nil { t.Fatalf("second load: %v", err) }
    if bytes.Equal(first.Certificate[0], second.Certificate[0]) {
        t.Fatalf("certificate did not rotate")
    }
}
