package sigverify

import (
	"bytes"
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offenes-grundbuch/registry/internal/canonical"
	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/repository"
)

// fakeKeyRepo is a map-backed KeyRepository.
type fakeKeyRepo struct {
	keys map[string]*models.PublicKey
}

func newFakeKeyRepo() *fakeKeyRepo {
	return &fakeKeyRepo{keys: make(map[string]*models.PublicKey)}
}

func (f *fakeKeyRepo) Upsert(_ context.Context, key *models.PublicKey) error {
	f.keys[key.Email+"/"+key.Fingerprint] = key
	return nil
}

func (f *fakeKeyRepo) Get(_ context.Context, email, fingerprint string) (*models.PublicKey, error) {
	return f.keys[email+"/"+fingerprint], nil
}

func (f *fakeKeyRepo) ListByEmail(_ context.Context, email string) ([]*models.PublicKey, error) {
	var out []*models.PublicKey
	for _, k := range f.keys {
		if k.Email == email {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeKeyRepo) Delete(_ context.Context, email, fingerprint string) error {
	delete(f.keys, email+"/"+fingerprint)
	return nil
}

var _ repository.KeyRepository = (*fakeKeyRepo)(nil)

// newSignedChangeset creates an entity, registers its public key and
// returns a changeset carrying a valid signature over its payload.
func newSignedChangeset(t *testing.T, repo *fakeKeyRepo, email string) *models.Changeset {
	t.Helper()

	cfg := &packet.Config{DefaultHash: crypto.SHA256}
	entity, err := openpgp.NewEntity("Test User", "", email, cfg)
	require.NoError(t, err)

	var pub bytes.Buffer
	require.NoError(t, entity.Serialize(&pub))

	fingerprint := fmt.Sprintf("%x", entity.PrimaryKey.Fingerprint)
	require.NoError(t, repo.Upsert(context.Background(), &models.PublicKey{
		Email:       email,
		Fingerprint: fingerprint,
		KeyData:     pub.Bytes(),
	}))

	cs := &models.Changeset{
		Title:       "Neuanlage",
		Fingerprint: fingerprint,
		Payload: models.ChangesetPayload{
			New: []models.Document{{
				DocumentKey: models.DocumentKey{Amtsgericht: "Prenzlau", Bezirk: "Seelübbe", Blatt: 42},
				Body:        json.RawMessage(`{"eigentümer":"A"}`),
			}},
		},
	}

	payload, err := canonical.Marshal(&cs.Payload)
	require.NoError(t, err)

	var signed bytes.Buffer
	w, err := clearsign.Encode(&signed, entity.PrivateKey, cfg)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	block, _ := clearsign.Decode(signed.Bytes())
	require.NotNil(t, block)
	sig, err := io.ReadAll(block.ArmoredSignature.Body)
	require.NoError(t, err)

	cs.Signature = models.Signature{Hash: "SHA256", Bytes: sig}
	return cs
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	repo := newFakeKeyRepo()
	cs := newSignedChangeset(t, repo, "u@example.org")

	v := New(repo)
	assert.NoError(t, v.Verify(context.Background(), "u@example.org", cs))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	repo := newFakeKeyRepo()
	cs := newSignedChangeset(t, repo, "u@example.org")
	cs.Payload.New[0].Body = json.RawMessage(`{"eigentümer":"B"}`)

	v := New(repo)
	err := v.Verify(context.Background(), "u@example.org", cs)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsUnknownKey(t *testing.T) {
	repo := newFakeKeyRepo()
	cs := newSignedChangeset(t, repo, "u@example.org")

	v := New(repo)
	err := v.Verify(context.Background(), "other@example.org", cs)
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestVerifyRejectsWeakHash(t *testing.T) {
	repo := newFakeKeyRepo()
	cs := newSignedChangeset(t, repo, "u@example.org")
	cs.Signature.Hash = "SHA1"

	v := New(repo)
	err := v.Verify(context.Background(), "u@example.org", cs)
	assert.ErrorIs(t, err, ErrPolicyReject)
}

func TestVerifyHashTagIsCaseInsensitive(t *testing.T) {
	repo := newFakeKeyRepo()
	cs := newSignedChangeset(t, repo, "u@example.org")
	cs.Signature.Hash = "sha256"

	v := New(repo)
	assert.NoError(t, v.Verify(context.Background(), "u@example.org", cs))
}

func TestFingerprintMatchesEntity(t *testing.T) {
	cfg := &packet.Config{DefaultHash: crypto.SHA256}
	entity, err := openpgp.NewEntity("Test User", "", "fp@example.org", cfg)
	require.NoError(t, err)

	var pub bytes.Buffer
	require.NoError(t, entity.Serialize(&pub))

	fp, err := Fingerprint(pub.Bytes())
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%x", entity.PrimaryKey.Fingerprint), fp)
}
