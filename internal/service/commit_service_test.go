package service

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
	"github.com/offenes-grundbuch/registry/internal/database"
	"github.com/offenes-grundbuch/registry/internal/docstore"
	"github.com/offenes-grundbuch/registry/internal/index"
	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/notifier"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/repository"
	"github.com/offenes-grundbuch/registry/internal/sigverify"
)

type commitFixture struct {
	svc    CommitService
	docs   *docstore.Store
	meta   *database.Meta
	user   *models.User
	entity *openpgp.Entity
	pgpCfg *packet.Config
}

func newCommitFixture(t *testing.T) *commitFixture {
	t.Helper()
	ctx := context.Background()

	meta := newTestMeta(t)
	users := repository.NewUserRepository(meta)
	keys := repository.NewKeyRepository(meta)
	districts := repository.NewDistrictRepository(meta)
	subs := repository.NewSubscriptionRepository(meta)

	docs, err := docstore.Open(t.TempDir())
	require.NoError(t, err)
	ix, err := index.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })

	require.NoError(t, districts.Create(ctx, &models.District{
		Land: "BB", Amtsgericht: "Prenzlau", Bezirk: "Seelübbe",
	}))

	user := seedUser(t, users, "u@example.org", "geheim", models.RoleEditor)

	pgpCfg := &packet.Config{DefaultHash: crypto.SHA256}
	entity, err := openpgp.NewEntity("U", "", user.Email, pgpCfg)
	require.NoError(t, err)
	var pub bytes.Buffer
	require.NoError(t, entity.Serialize(&pub))
	require.NoError(t, keys.Upsert(ctx, &models.PublicKey{
		Email:       user.Email,
		Fingerprint: fmt.Sprintf("%x", entity.PrimaryKey.Fingerprint),
		KeyData:     pub.Bytes(),
	}))

	notify := notifier.New(subs, nil, nil, "http://localhost:8080", testLogger())
	svc := NewCommitService(districts, sigverify.New(keys), docs, ix, notify, nil, testLogger())

	return &commitFixture{svc: svc, docs: docs, meta: meta, user: user, entity: entity, pgpCfg: pgpCfg}
}

// sign fills in the changeset's fingerprint and signature.
func (f *commitFixture) sign(t *testing.T, cs *models.Changeset) {
	t.Helper()

	payload, err := canonical.Marshal(&cs.Payload)
	require.NoError(t, err)

	var signed bytes.Buffer
	w, err := clearsign.Encode(&signed, f.entity.PrivateKey, f.pgpCfg)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	block, _ := clearsign.Decode(signed.Bytes())
	require.NotNil(t, block)
	sig, err := io.ReadAll(block.ArmoredSignature.Body)
	require.NoError(t, err)

	cs.Fingerprint = fmt.Sprintf("%x", f.entity.PrimaryKey.Fingerprint)
	cs.Signature = models.Signature{Hash: "SHA256", Bytes: sig}
}

func newChangeset(body string) *models.Changeset {
	return &models.Changeset{
		Title: "Neuanlage Blatt 42",
		Payload: models.ChangesetPayload{
			New: []models.Document{{
				DocumentKey: models.DocumentKey{Amtsgericht: "Prenzlau", Bezirk: "Seelübbe", Blatt: 42},
				Body:        json.RawMessage(body),
			}},
		},
	}
}

func TestCommitHappyPath(t *testing.T) {
	f := newCommitFixture(t)
	ctx := context.Background()

	cs := newChangeset(`{"b":1,"a":2}`)
	f.sign(t, cs)

	result, err := f.svc.Commit(ctx, f.user, cs)
	require.NoError(t, err)
	assert.False(t, result.Noop)
	assert.NotEmpty(t, result.CommitID)

	// The stored file is the canonical form.
	content, err := f.docs.ReadDoc("BB/Prenzlau/Seelübbe/Seelübbe_42.json")
	require.NoError(t, err)
	want, err := canonical.JSON([]byte(`{"a":2,"b":1}`))
	require.NoError(t, err)
	assert.Equal(t, want, content)

	// The commit message carries the recoverable signature.
	commits, err := f.docs.History("BB/Prenzlau/Seelübbe/Seelübbe_42.json")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, cs.Signature.Bytes, docstore.ExtractSignature(commits[0].Message))
}

func TestCommitIdenticalChangesetIsNoop(t *testing.T) {
	f := newCommitFixture(t)
	ctx := context.Background()

	cs := newChangeset(`{"a":1}`)
	f.sign(t, cs)

	first, err := f.svc.Commit(ctx, f.user, cs)
	require.NoError(t, err)
	second, err := f.svc.Commit(ctx, f.user, cs)
	require.NoError(t, err)

	assert.True(t, second.Noop)
	assert.Equal(t, first.CommitID, second.CommitID)
}

func TestCommitRejectsBadSignature(t *testing.T) {
	f := newCommitFixture(t)
	ctx := context.Background()

	cs := newChangeset(`{"a":1}`)
	f.sign(t, cs)
	cs.Payload.New[0].Body = json.RawMessage(`{"a":2}`)

	_, err := f.svc.Commit(ctx, f.user, cs)
	e := apperr.As(err)
	assert.Equal(t, apperr.CodeSignature, e.Code)

	// Nothing was written.
	head, err := f.docs.Head()
	require.NoError(t, err)
	assert.Empty(t, head)
}

func TestCommitRejectsUnknownDistrict(t *testing.T) {
	f := newCommitFixture(t)
	ctx := context.Background()

	cs := newChangeset(`{"a":1}`)
	cs.Payload.New[0].Bezirk = "Unbekannt"
	f.sign(t, cs)

	_, err := f.svc.Commit(ctx, f.user, cs)
	e := apperr.As(err)
	assert.Equal(t, apperr.CodeValidation, e.Code)
	assert.Contains(t, e.Text, "Prenzlau/Unbekannt")
}

func TestCommitRequiresWriteRole(t *testing.T) {
	f := newCommitFixture(t)
	ctx := context.Background()

	cs := newChangeset(`{"a":1}`)
	f.sign(t, cs)

	guest := &models.User{Email: f.user.Email, Role: models.RoleGuest}
	_, err := f.svc.Commit(ctx, guest, cs)
	assert.Equal(t, apperr.ErrForbidden, err)

	_, err = f.svc.Commit(ctx, nil, cs)
	assert.Equal(t, apperr.ErrUnauthorized, err)
}

func TestCommitRejectsEmptyChangeset(t *testing.T) {
	f := newCommitFixture(t)

	cs := &models.Changeset{Title: "leer"}
	f.sign(t, cs)

	_, err := f.svc.Commit(context.Background(), f.user, cs)
	e := apperr.As(err)
	assert.Equal(t, apperr.CodeValidation, e.Code)
}
