package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCert(t *testing.T, cn string) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), cn+".pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	return key, path
}

func sign(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerify(t *testing.T) {
	key, path := writeCert(t, "ops")
	other, _ := writeCert(t, "other")
	v, err := NewValidator([]string{path}, "nimbus-admin", "nimbus")
	require.NoError(t, err)

	good := jwt.MapClaims{"iss": "nimbus-admin", "aud": "nimbus", "exp": time.Now().Add(time.Minute).Unix()}
	claims, err := v.Verify(sign(t, key, "ops", good))
	require.NoError(t, err)
	assert.Equal(t, "nimbus-admin", claims["iss"])

	tests := []struct {
		name  string
		token string
	}{
		{"wrong key", sign(t, other, "ops", good)},
		{"wrong issuer", sign(t, key, "ops", jwt.MapClaims{"iss": "x", "aud": "nimbus"})},
		{"wrong audience", sign(t, key, "ops", jwt.MapClaims{"iss": "nimbus-admin", "aud": "x"})},
		{"expired", sign(t, key, "ops", jwt.MapClaims{"iss": "nimbus-admin", "aud": "nimbus", "exp": time.Now().Add(-time.Minute).Unix()})},
		{"garbage", "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifyWithoutKeys(t *testing.T) {
	v, err := NewValidator(nil, "", "")
	require.NoError(t, err)
	_, err = v.Verify("anything")
	assert.ErrorIs(t, err, ErrNoKeys)
}

func TestNewValidatorBadPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o600))
	_, err := NewValidator([]string{path}, "", "")
	assert.Error(t, err)
}
