// Package changedb defines the replicated MetaStore change operations and
// applies them. Every administrative mutation travels as one tagged
// operation so writers and tooling share a single wire format.
package changedb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/offenes-grundbuch/registry/internal/auth"
	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/repository"
	"github.com/offenes-grundbuch/registry/internal/sigverify"
)

// OpKind tags a change operation.
type OpKind string

const (
	OpCreateUser          OpKind = "create_user"
	OpDeleteUser          OpKind = "delete_user"
	OpChangeRole          OpKind = "change_role"
	OpChangePubKey        OpKind = "change_pubkey"
	OpCreateDistrict      OpKind = "create_district"
	OpCreateDistricts     OpKind = "create_districts"
	OpDeleteDistricts     OpKind = "delete_districts"
	OpCreateSubscription  OpKind = "create_subscription"
	OpDeleteSubscription  OpKind = "delete_subscription"
	OpCreateAccessRequest OpKind = "create_access_request"
	OpGrantAccess         OpKind = "grant_access"
	OpDenyAccess          OpKind = "deny_access"
	OpIssueSessionToken   OpKind = "issue_session_token"
	OpSetConfig           OpKind = "set_config"
)

// Op is one change operation: a kind tag plus exactly one populated
// payload. Unknown kinds and missing payloads are rejected by Apply.
type Op struct {
	Kind OpKind `json:"op" validate:"required"`

	CreateUser          *CreateUser          `json:"create_user,omitempty"`
	DeleteUser          *DeleteUser          `json:"delete_user,omitempty"`
	ChangeRole          *ChangeRole          `json:"change_role,omitempty"`
	ChangePubKey        *ChangePubKey        `json:"change_pubkey,omitempty"`
	CreateDistrict      *CreateDistrict      `json:"create_district,omitempty"`
	CreateDistricts     *CreateDistricts     `json:"create_districts,omitempty"`
	DeleteDistricts     *DeleteDistricts     `json:"delete_districts,omitempty"`
	CreateSubscription  *CreateSubscription  `json:"create_subscription,omitempty"`
	DeleteSubscription  *DeleteSubscription  `json:"delete_subscription,omitempty"`
	CreateAccessRequest *CreateAccessRequest `json:"create_access_request,omitempty"`
	GrantAccess         *AccessDecision      `json:"grant_access,omitempty"`
	DenyAccess          *AccessDecision      `json:"deny_access,omitempty"`
	IssueSessionToken   *IssueSessionToken   `json:"issue_session_token,omitempty"`
	SetConfig           *SetConfig           `json:"set_config,omitempty"`
}

// CreateUser creates or replaces an account. Password arrives in the
// clear over the cluster channel and is hashed before storage.
type CreateUser struct {
	Email    string      `json:"email" validate:"required,email"`
	Name     string      `json:"name" validate:"required"`
	Role     models.Role `json:"role" validate:"required"`
	Password string      `json:"password" validate:"required"`
}

// DeleteUser removes an account and everything keyed to it.
type DeleteUser struct {
	Email string `json:"email" validate:"required,email"`
}

// ChangeRole moves an existing account to a new role.
type ChangeRole struct {
	Email string      `json:"email" validate:"required,email"`
	Role  models.Role `json:"role" validate:"required"`
}

// ChangePubKey registers public key material for an account. The
// fingerprint is derived from the key bytes, never taken from the caller.
type ChangePubKey struct {
	Email   string `json:"email" validate:"required,email"`
	KeyData []byte `json:"key_data" validate:"required"`
}

// CreateDistrict adds one district row to the namespace.
type CreateDistrict struct {
	District models.District `json:"district"`
}

// CreateDistricts adds district rows in one transaction.
type CreateDistricts struct {
	Districts []models.District `json:"districts" validate:"required,min=1"`
}

// DeleteDistricts removes district rows in one transaction.
type DeleteDistricts struct {
	Districts []models.District `json:"districts" validate:"required,min=1"`
}

// CreateSubscription registers a notification subscription.
type CreateSubscription struct {
	Subscription models.Subscription `json:"subscription"`
}

// DeleteSubscription removes a subscription by its unique tuple.
type DeleteSubscription struct {
	Kind   models.SubscriptionKind `json:"kind" validate:"required"`
	Target string                  `json:"target" validate:"required"`
	Key    models.DocumentKey      `json:"key"`
}

// CreateAccessRequest files a pending access request.
type CreateAccessRequest struct {
	Request models.AccessRequest `json:"request"`
}

// AccessDecision grants or denies a pending access request.
type AccessDecision struct {
	ID    uuid.UUID `json:"id" validate:"required"`
	Actor string    `json:"actor" validate:"required"`
}

// IssueSessionToken records a session token minted by the writer so
// followers can authenticate it after the next MetaStore pull.
type IssueSessionToken struct {
	Token     string    `json:"token" validate:"required"`
	UserEmail string    `json:"user_email" validate:"required,email"`
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
}

// SetConfig stores one replicated settings value.
type SetConfig struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value"`
}

// Decode parses one operation from its wire form.
func Decode(data []byte) (*Op, error) {
	var op Op
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, fmt.Errorf("decode change operation: %w", err)
	}
	return &op, nil
}

// Applier executes change operations against the MetaStore repositories.
type Applier struct {
	users     repository.UserRepository
	keys      repository.KeyRepository
	sessions  repository.SessionRepository
	districts repository.DistrictRepository
	subs      repository.SubscriptionRepository
	access    repository.AccessRequestRepository
	settings  repository.SettingsRepository
}

// NewApplier creates an applier over the given repositories.
func NewApplier(
	users repository.UserRepository,
	keys repository.KeyRepository,
	sessions repository.SessionRepository,
	districts repository.DistrictRepository,
	subs repository.SubscriptionRepository,
	access repository.AccessRequestRepository,
	settings repository.SettingsRepository,
) *Applier {
	return &Applier{
		users:     users,
		keys:      keys,
		sessions:  sessions,
		districts: districts,
		subs:      subs,
		access:    access,
		settings:  settings,
	}
}

// Apply executes one operation. Every kind is handled here; adding a kind
// without extending the switch fails at runtime, not silently.
func (a *Applier) Apply(ctx context.Context, op *Op) error {
	switch op.Kind {
	case OpCreateUser:
		p, err := payload(op.Kind, op.CreateUser)
		if err != nil {
			return err
		}
		if !p.Role.Valid() {
			return fmt.Errorf("create_user: unknown role %q", p.Role)
		}
		hash, err := auth.HashPassword(p.Password)
		if err != nil {
			return fmt.Errorf("create_user: %w", err)
		}
		return a.users.Create(ctx, &models.User{
			Email:        p.Email,
			Name:         p.Name,
			Role:         p.Role,
			PasswordHash: hash,
		})

	case OpDeleteUser:
		p, err := payload(op.Kind, op.DeleteUser)
		if err != nil {
			return err
		}
		return a.users.Delete(ctx, p.Email)

	case OpChangeRole:
		p, err := payload(op.Kind, op.ChangeRole)
		if err != nil {
			return err
		}
		if !p.Role.Valid() {
			return fmt.Errorf("change_role: unknown role %q", p.Role)
		}
		return a.users.ChangeRole(ctx, p.Email, p.Role)

	case OpChangePubKey:
		p, err := payload(op.Kind, op.ChangePubKey)
		if err != nil {
			return err
		}
		fingerprint, err := sigverify.Fingerprint(p.KeyData)
		if err != nil {
			return fmt.Errorf("change_pubkey: %w", err)
		}
		return a.keys.Upsert(ctx, &models.PublicKey{
			Email:       p.Email,
			Fingerprint: fingerprint,
			KeyData:     p.KeyData,
		})

	case OpCreateDistrict:
		p, err := payload(op.Kind, op.CreateDistrict)
		if err != nil {
			return err
		}
		return a.districts.Create(ctx, &p.District)

	case OpCreateDistricts:
		p, err := payload(op.Kind, op.CreateDistricts)
		if err != nil {
			return err
		}
		return a.districts.CreateBatch(ctx, p.Districts)

	case OpDeleteDistricts:
		p, err := payload(op.Kind, op.DeleteDistricts)
		if err != nil {
			return err
		}
		return a.districts.DeleteBatch(ctx, p.Districts)

	case OpCreateSubscription:
		p, err := payload(op.Kind, op.CreateSubscription)
		if err != nil {
			return err
		}
		if !p.Subscription.Kind.Valid() {
			return fmt.Errorf("create_subscription: unknown kind %q", p.Subscription.Kind)
		}
		return a.subs.Create(ctx, &p.Subscription)

	case OpDeleteSubscription:
		p, err := payload(op.Kind, op.DeleteSubscription)
		if err != nil {
			return err
		}
		return a.subs.Delete(ctx, p.Kind, p.Target, p.Key)

	case OpCreateAccessRequest:
		p, err := payload(op.Kind, op.CreateAccessRequest)
		if err != nil {
			return err
		}
		return a.access.Create(ctx, &p.Request)

	case OpGrantAccess:
		p, err := payload(op.Kind, op.GrantAccess)
		if err != nil {
			return err
		}
		return a.access.SetState(ctx, p.ID, models.AccessGranted, p.Actor, time.Now().UTC())

	case OpDenyAccess:
		p, err := payload(op.Kind, op.DenyAccess)
		if err != nil {
			return err
		}
		return a.access.SetState(ctx, p.ID, models.AccessDenied, p.Actor, time.Now().UTC())

	case OpIssueSessionToken:
		p, err := payload(op.Kind, op.IssueSessionToken)
		if err != nil {
			return err
		}
		user, err := a.users.GetByEmail(ctx, p.UserEmail)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("issue_session_token: unknown user %s", p.UserEmail)
		}
		return a.sessions.Create(ctx, &models.Session{
			Token:     p.Token,
			UserID:    user.ID,
			ExpiresAt: p.ExpiresAt,
		})

	case OpSetConfig:
		p, err := payload(op.Kind, op.SetConfig)
		if err != nil {
			return err
		}
		return a.settings.Set(ctx, p.Key, p.Value)

	default:
		return fmt.Errorf("unknown change operation %q", op.Kind)
	}
}

func payload[T any](kind OpKind, p *T) (*T, error) {
	if p == nil {
		return nil, fmt.Errorf("change operation %s: missing payload", kind)
	}
	return p, nil
}
