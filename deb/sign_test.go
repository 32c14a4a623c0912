package deb

import (
	"bytes"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestKey(t *testing.T) string {
	t.Helper()
	e, err := openpgp.NewEntity("Packager", "test", "packager@example.com", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, e.SerializePrivate(w, nil))
	require.NoError(t, w.Close())
	return buf.String()
}

func TestSignAndVerify(t *testing.T) {
	key := generateTestKey(t)
	members := [][]byte{[]byte(DebianBinaryVersion), []byte("control"), []byte("data")}

	mtime := time.Now()
	sig, err := Sign(key, nil, mtime, members...)
	require.NoError(t, err)
	assert.Contains(t, string(sig), "BEGIN PGP SIGNATURE")

	pub, err := PublicKey(key)
	require.NoError(t, err)
	require.NoError(t, VerifySignature(string(pub), sig, members...))

	tampered := [][]byte{members[0], members[1], []byte("evil")}
	assert.Error(t, VerifySignature(string(pub), sig, tampered...))
}

func TestSignWithoutPrivateKey(t *testing.T) {
	pub, err := PublicKey(generateTestKey(t))
	require.NoError(t, err)
	_, err = Sign(string(pub), nil, time.Now(), []byte("x"))
	assert.Error(t, err)
}

func TestSignIsReproducible(t *testing.T) {
	key := generateTestKey(t)
	members := [][]byte{[]byte(DebianBinaryVersion), []byte("control"), []byte("data")}
	mtime := time.Now()

	first, err := Sign(key, nil, mtime, members...)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	second, err := Sign(key, nil, mtime, members...)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// A date before the key existed is moved to the key creation time.
	pub, err := PublicKey(key)
	require.NoError(t, err)
	old, err := Sign(key, nil, time.Unix(0, 0), members...)
	require.NoError(t, err)
	require.NoError(t, VerifySignature(string(pub), old, members...))
	again, err := Sign(key, nil, time.Unix(1, 0), members...)
	require.NoError(t, err)
	assert.Equal(t, old, again)
}
