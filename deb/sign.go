package deb

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// readSigner returns the first entity of an ASCII-armored key ring holding a
// private key, decrypted with passphrase when it is protected.
func readSigner(key string, passphrase []byte) (*openpgp.Entity, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}
	for _, e := range entities {
		if e.PrivateKey == nil {
			continue
		}
		if e.PrivateKey.Encrypted {
			if err := e.DecryptPrivateKeys(passphrase); err != nil {
				return nil, fmt.Errorf("decrypting signing key: %w", err)
			}
		}
		return e, nil
	}
	return nil, fmt.Errorf("no private key found")
}

// signingTime is mtime, moved forward to the creation of the newest key of
// e when mtime predates it.
func signingTime(e *openpgp.Entity, mtime time.Time) time.Time {
	t := mtime
	if c := e.PrimaryKey.CreationTime; t.Before(c) {
		t = c
	}
	for _, sub := range e.Subkeys {
		if sub.PublicKey != nil && t.Before(sub.PublicKey.CreationTime) {
			t = sub.PublicKey.CreationTime
		}
	}
	return t
}

// Sign produces the _gpgorigin member of a package: an armored detached
// OpenPGP signature over the concatenation of the members that precede it.
// The signature is dated mtime, so signing the same members twice yields the
// same bytes.
func Sign(key string, passphrase []byte, mtime time.Time, members ...[]byte) ([]byte, error) {
	signer, err := readSigner(key, passphrase)
	if err != nil {
		return nil, err
	}
	at := signingTime(signer, mtime)
	config := &packet.Config{Time: func() time.Time { return at }}
	readers := make([]io.Reader, len(members))
	for i, m := range members {
		readers[i] = bytes.NewReader(m)
	}
	var out bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&out, signer, io.MultiReader(readers...), config); err != nil {
		return nil, fmt.Errorf("signing package: %w", err)
	}
	return out.Bytes(), nil
}

// VerifySignature checks an armored detached signature produced by Sign
// against the armored public key ring.
func VerifySignature(publicKey string, signature []byte, members ...[]byte) error {
	keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(publicKey))
	if err != nil {
		return fmt.Errorf("reading public key: %w", err)
	}
	readers := make([]io.Reader, len(members))
	for i, m := range members {
		readers[i] = bytes.NewReader(m)
	}
	if _, err := openpgp.CheckArmoredDetachedSignature(keyring, io.MultiReader(readers...), bytes.NewReader(signature), nil); err != nil {
		return fmt.Errorf("verifying package signature: %w", err)
	}
	return nil
}

// PublicKey extracts the ASCII-armored public key of an armored private key.
func PublicKey(key string) ([]byte, error) {
	signer, err := readSigner(key, nil)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, err
	}
	if err := signer.Serialize(w); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
