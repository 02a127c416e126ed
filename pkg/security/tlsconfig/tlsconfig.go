// Package tlsconfig builds tls.Config values for the node's two endpoints,
// the consensus gRPC transport and the management API. Hot-reload variants
// re-read the key pair from disk so certificates can be rotated without a
// restart.
package tlsconfig

import (
    "crypto/tls"
    "crypto/x509"
    "errors"
    "os"
    "sync"
    "time"
)

// DefaultReloadTTL bounds how often hot-reload configs re-read the key
// pair from disk.
const DefaultReloadTTL = 10 * time.Second

// Options defines mTLS configuration inputs.
type Options struct {
    Enable             bool
    CAFile             string
    CertFile           string
    KeyFile            string
    InsecureSkipVerify bool
    ServerName         string
    // ReloadTTL overrides DefaultReloadTTL for the hot-reload variants.
    ReloadTTL time.Duration
}

// Server returns a tls.Config for servers if enabled, otherwise nil.
// A CA file switches on client certificate verification (mTLS).
func (o Options) Server() (*tls.Config, error) {
    if !o.Enable {
        return nil, nil
    }
    if o.CertFile == "" || o.KeyFile == "" {
        return nil, errors.New("tls: server cert/key required when TLS enabled")
    }
    cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
    if err != nil { return nil, err }
    cfg := &tls.Config{Certificates: []tls.Certificate{cert}}
    if err := o.installClientCAs(cfg); err != nil { return nil, err }
    return cfg, nil
}

// Client returns a tls.Config for clients if enabled, otherwise nil.
func (o Options) Client() (*tls.Config, error) {
    if !o.Enable {
        return nil, nil
    }
    cfg := &tls.Config{InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec
    if o.ServerName != "" { cfg.ServerName = o.ServerName }
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.RootCAs = pool
    }
    if o.CertFile != "" && o.KeyFile != "" {
        cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
        if err != nil { return nil, err }
        cfg.Certificates = []tls.Certificate{cert}
    }
    return cfg, nil
}

// ServerHotReload returns a server tls.Config whose certificate is
// re-read from disk on handshake, rate-limited by ReloadTTL. The CA pool
// is loaded once.
func (o Options) ServerHotReload() (*tls.Config, error) {
    if !o.Enable {
        return nil, nil
    }
    if o.CertFile == "" || o.KeyFile == "" {
        return nil, errors.New("tls: server cert/key required when TLS enabled")
    }
    cfg := &tls.Config{}
    if err := o.installClientCAs(cfg); err != nil { return nil, err }
    cache := newCertCache(o.CertFile, o.KeyFile, o.reloadTTL())
    cfg.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
        return cache.load()
    }
    return cfg, nil
}

// ClientHotReload returns a client tls.Config whose certificate is
// re-read from disk on demand. CA roots are loaded once.
func (o Options) ClientHotReload() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    cfg := &tls.Config{InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec
    if o.ServerName != "" { cfg.ServerName = o.ServerName }
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.RootCAs = pool
    }
    if o.CertFile == "" || o.KeyFile == "" {
        return cfg, nil
    }
    cache := newCertCache(o.CertFile, o.KeyFile, o.reloadTTL())
    cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
        return cache.load()
    }
    return cfg, nil
}

func (o Options) reloadTTL() time.Duration {
    if o.ReloadTTL > 0 { return o.ReloadTTL }
    return DefaultReloadTTL
}

func (o Options) installClientCAs(cfg *tls.Config) error {
    if o.CAFile == "" { return nil }
    pool, err := loadPool(o.CAFile)
    if err != nil { return err }
    cfg.ClientCAs = pool
    cfg.ClientAuth = tls.RequireAndVerifyClientCert
    return nil
}

func loadPool(caFile string) (*x509.CertPool, error) {
    ca, err := os.ReadFile(caFile)
    if err != nil { return nil, err }
    pool := x509.NewCertPool()
    if !pool.AppendCertsFromPEM(ca) {
        return nil, errors.New("tls: no certificates parsed from CA file")
    }
    return pool, nil
}

// certCache holds the most recently loaded key pair and refreshes it at
// most once per ttl.
type certCache struct {
    certFile, keyFile string
    ttl               time.Duration

    mu       sync.RWMutex
    cached   *tls.Certificate
    lastLoad time.Time
}

func newCertCache(certFile, keyFile string, ttl time.Duration) *certCache {
    return &certCache{certFile: certFile, keyFile: keyFile, ttl: ttl}
}

func (c *certCache) load() (*tls.Certificate, error) {
    c.mu.RLock()
    if c.cached != nil && time.Since(c.lastLoad) < c.ttl {
        cert := *c.cached
        c.mu.RUnlock()
        return &cert, nil
    }
    c.mu.RUnlock()
    cert, err := tls.LoadX509KeyPair(c.certFile, c.keyFile)
    if err != nil {
        // Keep serving the previous pair if rotation left the files
        // momentarily inconsistent.
        c.mu.RLock()
        defer c.mu.RUnlock()
        if c.cached != nil {
            stale := *c.cached
            return &stale, nil
        }
        return nil, err
    }
    c.mu.Lock()
    c.cached = &cert
    c.lastLoad = time.Now()
    c.mu.Unlock()
    return &cert, nil
}
