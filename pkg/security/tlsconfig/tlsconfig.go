// Package tlsconfig builds TLS configurations for the control endpoint and
// for the connection to the orchestrator.
package tlsconfig

import (
    "crypto/tls"
    "crypto/x509"
    "errors"
    "fmt"
    "os"
    "sync"
    "time"
)

// reloadTTL bounds how long a loaded certificate is reused before it is read
// from disk again.
const reloadTTL = 10 * time.Second

// Options defines the TLS inputs shared by servers and clients.
type Options struct {
    Enable             bool   `yaml:"enable"`
    CAFile             string `yaml:"caFile"`
    CertFile           string `yaml:"certFile"`
    KeyFile            string `yaml:"keyFile"`
    ServerName         string `yaml:"serverName"`
    InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

// Validate checks that a server certificate is configured when enabled.
func (o Options) Validate() error {
    if !o.Enable {
        return nil
    }
    if (o.CertFile == "") != (o.KeyFile == "") {
        return errors.New("tls: certFile and keyFile must be set together")
    }
    return nil
}

// Server returns a server tls.Config, or nil when TLS is disabled. The
// certificate is reloaded lazily on handshake so rotated files are picked
// up without restarting the agent. A CA file turns on client verification.
func (o Options) Server() (*tls.Config, error) {
    if !o.Enable {
        return nil, nil
    }
    if o.CertFile == "" || o.KeyFile == "" {
        return nil, errors.New("tls: server cert/key required when TLS enabled")
    }
    cfg := &tls.Config{MinVersion: tls.VersionTLS12}
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.ClientCAs = pool
        cfg.ClientAuth = tls.RequireAndVerifyClientCert
    }
    kp := &keyPair{cert: o.CertFile, key: o.KeyFile}
    if _, err := kp.load(); err != nil { return nil, err }
    cfg.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) { return kp.load() }
    return cfg, nil
}

// Client returns a client tls.Config, or nil when TLS is disabled.
func (o Options) Client() (*tls.Config, error) {
    if !o.Enable {
        return nil, nil
    }
    cfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: o.ServerName, InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.RootCAs = pool
    }
    if o.CertFile != "" && o.KeyFile != "" {
        kp := &keyPair{cert: o.CertFile, key: o.KeyFile}
        if _, err := kp.load(); err != nil { return nil, err }
        cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) { return kp.load() }
    }
    return cfg, nil
}

func loadPool(file string) (*x509.CertPool, error) {
    ca, err := os.ReadFile(file)
    if err != nil { return nil, err }
    pool := x509.NewCertPool()
    if !pool.AppendCertsFromPEM(ca) {
        return nil, fmt.Errorf("tls: no certificates in %s", file)
    }
    return pool, nil
}

// keyPair caches a certificate loaded from disk for reloadTTL.
type keyPair struct {
    cert, key string

    mu       sync.Mutex
    cached   *tls.Certificate
    loadedAt time.Time
}

func (k *keyPair) load() (*tls.Certificate, error) {
    k.mu.Lock()
    defer k.mu.Unlock()
    if k.cached != nil && time.Since(k.loadedAt) < reloadTTL {
        return k.cached, nil
    }
    cert, err := tls.LoadX509KeyPair(k.cert, k.key)
    if err != nil {
        if k.cached != nil { return k.cached, nil }
        return nil, err
    }
    k.cached = &cert
    k.loadedAt = time.Now()
    return k.cached, nil
}
