// Package sigverify verifies detached OpenPGP signatures over
// canonicalised changeset payloads against user-bound public keys.
//
// The signing input is the canonical form of the payload wrapped in a
// standard cleartext-signed envelope together with the hash tag declared
// by the signer. Verification has no side effects.
package sigverify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"

	"github.com/offenes-grundbuch/registry/internal/canonical"
	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/repository"
)

// Verification outcomes.
var (
	// ErrUnknownKey means no key is registered under (email, fingerprint).
	ErrUnknownKey = errors.New("no public key registered for signer")
	// ErrBadSignature means the signature does not verify over the
	// canonical payload.
	ErrBadSignature = errors.New("signature verification failed")
	// ErrPolicyReject means the declared hash algorithm is too weak.
	ErrPolicyReject = errors.New("hash algorithm rejected by policy")
)

// allowedHashes are the digest tags the verification policy accepts.
// Weak digests (MD5, SHA1, RIPEMD160) are refused before any key lookup.
var allowedHashes = map[string]bool{
	"SHA256": true,
	"SHA384": true,
	"SHA512": true,
}

// Verifier checks changeset signatures against the MetaStore keyring.
type Verifier struct {
	keys repository.KeyRepository
}

// New creates a verifier backed by the given key repository.
func New(keys repository.KeyRepository) *Verifier {
	return &Verifier{keys: keys}
}

// Verify checks that the changeset's signature verifies over the canonical
// form of its payload using the key registered for
// (email, changeset.Fingerprint).
func (v *Verifier) Verify(ctx context.Context, email string, cs *models.Changeset) error {
	tag := strings.ToUpper(cs.Signature.Hash)
	if !allowedHashes[tag] {
		return fmt.Errorf("%w: %s", ErrPolicyReject, cs.Signature.Hash)
	}

	payload, err := canonical.Marshal(&cs.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	fingerprint := strings.ToLower(cs.Fingerprint)
	key, err := v.keys.Get(ctx, email, fingerprint)
	if err != nil {
		return fmt.Errorf("load key %s/%s: %w", email, fingerprint, err)
	}
	if key == nil {
		return fmt.Errorf("%w: %s for %s", ErrUnknownKey, fingerprint, email)
	}

	keyring, err := ReadKeyRing(key.KeyData)
	if err != nil {
		return fmt.Errorf("%w: stored key unreadable: %v", ErrBadSignature, err)
	}

	envelope, err := Envelope(payload, tag, cs.Signature.Bytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	block, _ := clearsign.Decode(envelope)
	if block == nil {
		return fmt.Errorf("%w: malformed signature envelope", ErrBadSignature)
	}

	if _, err := openpgp.CheckDetachedSignature(keyring,
		bytes.NewReader(block.Bytes), block.ArmoredSignature.Body, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

// Envelope builds the cleartext-signed envelope over a canonical payload:
// the signed message, the declared hash tag and the armored detached
// signature. The same block is embedded verbatim into commit messages.
func Envelope(payload []byte, hashTag string, signature []byte) ([]byte, error) {
	var sig bytes.Buffer
	w, err := armor.Encode(&sig, "PGP SIGNATURE", nil)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(signature); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("-----BEGIN PGP SIGNED MESSAGE-----\r\n")
	buf.WriteString("Hash: " + hashTag + "\r\n\r\n")
	buf.Write(dashEscape(payload))
	buf.WriteString("\r\n")
	buf.Write(sig.Bytes())
	return buf.Bytes(), nil
}

// dashEscape prefixes message lines starting with a dash, as required
// inside a cleartext-signed envelope.
func dashEscape(msg []byte) []byte {
	lines := bytes.Split(msg, []byte("\r\n"))
	for i, line := range lines {
		if bytes.HasPrefix(line, []byte("-")) {
			lines[i] = append([]byte("- "), line...)
		}
	}
	return bytes.Join(lines, []byte("\r\n"))
}

// ReadKeyRing parses stored public key bytes, armored or binary.
func ReadKeyRing(data []byte) (openpgp.EntityList, error) {
	if bytes.Contains(data, []byte("-----BEGIN PGP")) {
		return openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	}
	return openpgp.ReadKeyRing(bytes.NewReader(data))
}

// Fingerprint returns the lowercase hex fingerprint of the first entity in
// the given key material.
func Fingerprint(data []byte) (string, error) {
	keyring, err := ReadKeyRing(data)
	if err != nil {
		return "", err
	}
	if len(keyring) == 0 {
		return "", errors.New("empty keyring")
	}
	return fmt.Sprintf("%x", keyring[0].PrimaryKey.Fingerprint), nil
}
