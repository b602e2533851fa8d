package tlsconfig

import (
    "crypto/ecdsa"
    "crypto/elliptic"
    "crypto/rand"
    "crypto/x509"
    "crypto/x509/pkix"
    "encoding/pem"
    "math/big"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

// writeSelfSigned writes a self-signed certificate and key to dir.
func writeSelfSigned(t *testing.T, dir string) (certFile, keyFile string) {
    t.Helper()
    key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
    require.NoError(t, err)
    tmpl := &x509.Certificate{
        SerialNumber:          big.NewInt(1),
        Subject:               pkix.Name{CommonName: "nnagent"},
        DNSNames:              []string{"localhost"},
        NotBefore:             time.Now().Add(-time.Hour),
        NotAfter:              time.Now().Add(time.Hour),
        IsCA:                  true,
        BasicConstraintsValid: true,
        KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
        ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
    }
    der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
    require.NoError(t, err)
    kder, err := x509.MarshalECPrivateKey(key)
    require.NoError(t, err)

    certFile = filepath.Join(dir, "tls.crt")
    keyFile = filepath.Join(dir, "tls.key")
    require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
    require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: kder}), 0o600))
    return certFile, keyFile
}

func TestDisabledReturnsNil(t *testing.T) {
    s, err := Options{}.Server()
    require.NoError(t, err)
    assert.Nil(t, s)
    c, err := Options{}.Client()
    require.NoError(t, err)
    assert.Nil(t, c)
}

func TestServerAndClient(t *testing.T) {
    cert, key := writeSelfSigned(t, t.TempDir())
    o := Options{Enable: true, CAFile: cert, CertFile: cert, KeyFile: key, ServerName: "localhost"}
    require.NoError(t, o.Validate())

    s, err := o.Server()
    require.NoError(t, err)
    require.NotNil(t, s.GetCertificate)
    got, err := s.GetCertificate(nil)
    require.NoError(t, err)
    assert.NotEmpty(t, got.Certificate)
    assert.NotNil(t, s.ClientCAs)

    c, err := o.Client()
    require.NoError(t, err)
    assert.Equal(t, "localhost", c.ServerName)
    assert.NotNil(t, c.RootCAs)
    assert.NotNil(t, c.GetClientCertificate)
}

func TestErrors(t *testing.T) {
    _, err := Options{Enable: true}.Server()
    assert.Error(t, err)
    assert.Error(t, Options{Enable: true, CertFile: "a"}.Validate())

    bad := filepath.Join(t.TempDir(), "ca.pem")
    require.NoError(t, os.WriteFile(bad, []byte("not a cert"), 0o600))
    _, err = Options{Enable: true, CAFile: bad}.Client()
    assert.Error(t, err)
}
