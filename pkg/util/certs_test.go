package util

import (
	"crypto/ecdsa"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCertificateGeneratesOnce(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "certs", "server-key.pem")
	certPath := filepath.Join(dir, "certs", "server.pem")

	first, err := EnsureCertificate(keyPath, certPath, "energy-bridge")
	require.NoError(t, err)
	require.Len(t, first.Certificate, 1)
	_, ok := first.PrivateKey.(*ecdsa.PrivateKey)
	assert.True(t, ok)

	second, err := EnsureCertificate(keyPath, certPath, "energy-bridge")
	require.NoError(t, err)
	assert.Equal(t, first.Certificate, second.Certificate)

	pool, err := LoadCertPool(certPath)
	require.NoError(t, err)
	assert.NotNil(t, pool)

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadRejectsWrongBlocks(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key.pem")
	certPath := filepath.Join(dir, "cert.pem")
	require.NoError(t, GenerateSelfSigned(keyPath, certPath, "test"))

	_, err := LoadCertificate(keyPath)
	assert.Error(t, err)
	_, err = LoadKey(certPath)
	assert.Error(t, err)
}
