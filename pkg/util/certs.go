package util

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EnsureCertificate loads the key pair at keyPath and certPath, generating a
// self-signed one first when the certificate file does not exist.
func EnsureCertificate(keyPath, certPath, commonName string) (*tls.Certificate, error) {
	if _, err := os.Stat(certPath); errors.Is(err, os.ErrNotExist) {
		if err := GenerateSelfSigned(keyPath, certPath, commonName); err != nil {
			return nil, err
		}
	}
	return LoadKeyAndCertificate(keyPath, certPath)
}

// GenerateSelfSigned writes a P-256 self-signed CA certificate and its key.
func GenerateSelfSigned(keyPath, certPath, commonName string) error {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"energy-bridge"},
			CommonName:   commonName,
		},
		NotBefore:             time.Now().Add(-10 * time.Second),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            2,
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return err
	}
	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return err
	}

	if err := writePEM(certPath, "CERTIFICATE", certBytes, 0644); err != nil {
		return err
	}
	return writePEM(keyPath, "PRIVATE KEY", privBytes, 0600)
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if err := pem.Encode(out, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// LoadCertPool reads every certificate in path into a pool.
func LoadCertPool(path string) (*x509.CertPool, error) {
	certificate, err := LoadCertificate(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	for _, der := range certificate.Certificate {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, err
		}
		pool.AddCert(cert)
	}
	return pool, nil
}

// LoadKeyAndCertificate reads a PEM key and its certificate chain.
func LoadKeyAndCertificate(keyPath string, certificatePath string) (*tls.Certificate, error) {
	key, err := LoadKey(keyPath)
	if err != nil {
		return nil, err
	}
	certificate, err := LoadCertificate(certificatePath)
	if err != nil {
		return nil, err
	}
	certificate.PrivateKey = key
	return certificate, nil
}

func readBlocks(path string) ([]*pem.Block, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var blocks []*pem.Block
	for {
		var block *pem.Block
		block, raw = pem.Decode(raw)
		if block == nil {
			return blocks, nil
		}
		blocks = append(blocks, block)
	}
}

// LoadKey reads the first PEM block of path as a PKCS#1, PKCS#8 or SEC 1 key.
func LoadKey(path string) (crypto.PrivateKey, error) {
	blocks, err := readBlocks(path)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 || !strings.HasSuffix(blocks[0].Type, "PRIVATE KEY") {
		return nil, fmt.Errorf("%s: no private key block", path)
	}
	der := blocks[0].Bytes

	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch key := key.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey:
			return key, nil
		default:
			return nil, fmt.Errorf("%s: unsupported PKCS#8 key %T", path, key)
		}
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("%s: unreadable private key", path)
}

// LoadCertificate reads every CERTIFICATE block of path.
func LoadCertificate(path string) (*tls.Certificate, error) {
	blocks, err := readBlocks(path)
	if err != nil {
		return nil, err
	}
	var certificate tls.Certificate
	for _, block := range blocks {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("%s: unexpected %s block", path, block.Type)
		}
		certificate.Certificate = append(certificate.Certificate, block.Bytes)
	}
	if len(certificate.Certificate) == 0 {
		return nil, fmt.Errorf("%s: no certificate found", path)
	}
	return &certificate, nil
}
