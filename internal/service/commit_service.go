package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/offenes-grundbuch/registry/internal/canonical"
	"github.com/offenes-grundbuch/registry/internal/docstore"
	"github.com/offenes-grundbuch/registry/internal/index"
	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/notifier"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/repository"
	"github.com/offenes-grundbuch/registry/internal/sigverify"
	"github.com/offenes-grundbuch/registry/internal/syncengine"
)

// CommitResult reports the outcome of an applied changeset.
type CommitResult struct {
	CommitID string `json:"commit_id"`
	// Noop is true when the changeset produced a tree identical to the
	// current head; no commit was appended.
	Noop bool `json:"noop,omitempty"`
}

// CommitService verifies and applies changesets on a write-capable node.
type CommitService interface {
	Commit(ctx context.Context, user *models.User, cs *models.Changeset) (*CommitResult, error)
}

type commitService struct {
	districts repository.DistrictRepository
	verifier  *sigverify.Verifier
	docs      *docstore.Store
	index     index.Index
	notifier  *notifier.Notifier
	engine    *syncengine.Engine
	validate  *validator.Validate
	logger    *slog.Logger

	// mu serialises the verify-resolve-commit-index sequence so two
	// changesets never interleave between district resolution and the
	// appended commit.
	mu sync.Mutex
}

// NewCommitService creates the commit service. engine may be nil on
// standalone nodes.
func NewCommitService(
	districts repository.DistrictRepository,
	verifier *sigverify.Verifier,
	docs *docstore.Store,
	ix index.Index,
	n *notifier.Notifier,
	engine *syncengine.Engine,
	logger *slog.Logger,
) CommitService {
	return &commitService{
		districts: districts,
		verifier:  verifier,
		docs:      docs,
		index:     ix,
		notifier:  n,
		engine:    engine,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Commit verifies the changeset signature, resolves every document key
// against the district namespace, writes the canonical files and appends
// one commit. Notification fan-out and follower push-notify run after the
// commit and never fail it.
func (s *commitService) Commit(ctx context.Context, user *models.User, cs *models.Changeset) (*CommitResult, error) {
	if user == nil {
		return nil, apperr.ErrUnauthorized
	}
	if user.Role != models.RoleEditor && user.Role != models.RoleAdmin {
		return nil, apperr.ErrForbidden
	}

	if err := s.validate.Struct(cs); err != nil {
		return nil, apperr.Validation("Ungültiger Änderungssatz: " + err.Error())
	}
	if len(cs.Payload.New) == 0 && len(cs.Payload.Changed) == 0 {
		return nil, apperr.Validation("Leerer Änderungssatz")
	}

	if err := s.verifier.Verify(ctx, user.Email, cs); err != nil {
		return nil, signatureError(err, user.Email, cs.Fingerprint)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := cs.Payload.Documents()
	files := make([]docstore.FileWrite, 0, len(docs))
	lands := make(map[models.DocumentKey]string, len(docs))
	for _, doc := range docs {
		land, err := s.resolveLand(ctx, doc.DocumentKey)
		if err != nil {
			return nil, err
		}
		lands[doc.DocumentKey] = land

		content, err := canonical.JSON(doc.Body)
		if err != nil {
			return nil, apperr.Validation("Ungültiges Dokument " + doc.DocumentKey.String() + ": " + err.Error())
		}
		files = append(files, docstore.FileWrite{
			Path:    canonical.DocumentPath(land, doc.Amtsgericht, doc.Bezirk, doc.Blatt),
			Content: content,
		})
	}

	message := docstore.BuildMessage(
		cs.Title, cs.Description,
		strings.ToUpper(cs.Signature.Hash),
		strings.ToLower(cs.Fingerprint),
		cs.Signature.Bytes,
	)

	commitID, noop, err := s.docs.Commit(ctx, docstore.Author{Name: user.Name, Email: user.Email}, message, files)
	if err != nil {
		return nil, apperr.Storage("Änderungssatz konnte nicht gespeichert werden", err)
	}
	if noop {
		s.logger.Info("changeset was a no-op", "user", user.Email, "head", commitID)
		return &CommitResult{CommitID: commitID, Noop: true}, nil
	}

	for _, doc := range docs {
		if err := s.index.Add(ctx, lands[doc.DocumentKey], doc); err != nil {
			s.logger.Error("index update failed", "key", doc.DocumentKey.String(), "error", err)
		}
	}

	s.logger.Info("changeset committed",
		"commit", commitID,
		"user", user.Email,
		"documents", len(docs),
	)

	keys := cs.Payload.Keys()
	go func() {
		// Detached from the request; the commit is durable already.
		bg := context.Background()
		if s.engine != nil {
			s.engine.PushNotify(bg)
		}
		s.notifier.NotifyCommit(bg, commitID, keys)
	}()

	return &CommitResult{CommitID: commitID}, nil
}

// resolveLand maps a document key to its Land via the district namespace.
func (s *commitService) resolveLand(ctx context.Context, key models.DocumentKey) (string, error) {
	land, err := s.districts.ResolveLand(ctx, key.Amtsgericht, key.Bezirk)
	if errors.Is(err, repository.ErrAmbiguousBezirk) {
		return "", apperr.BadDistrict(key.Amtsgericht, key.Bezirk)
	}
	if err != nil {
		return "", apperr.Storage("Bezirksauflösung fehlgeschlagen", err)
	}
	if land == "" {
		return "", apperr.BadDistrict(key.Amtsgericht, key.Bezirk)
	}
	return land, nil
}

// signatureError maps verification failures to wire errors.
func signatureError(err error, email, fingerprint string) error {
	switch {
	case errors.Is(err, sigverify.ErrUnknownKey):
		return apperr.UnknownKey(email, fingerprint)
	case errors.Is(err, sigverify.ErrPolicyReject):
		return apperr.BadSignature("Hash-Verfahren nicht zugelassen")
	case errors.Is(err, sigverify.ErrBadSignature):
		return apperr.BadSignature("Prüfung fehlgeschlagen")
	default:
		return apperr.Storage("Signaturprüfung fehlgeschlagen", err)
	}
}

var _ CommitService = (*commitService)(nil)
