package credential

import (
	"context"
	"errors"
	"fmt"
)

const (
	// KeyToken is the storage key of the bearer token.
	KeyToken = "token"
	// KeyRole is the storage key of the role label.
	KeyRole = "role"
)

var (
	// ErrUnavailable wraps every failure of the underlying storage medium.
	ErrUnavailable = errors.New("credential storage unavailable")
	// ErrIncomplete is returned by Save when token or role is empty.
	ErrIncomplete = errors.New("credential requires both token and role")
)

// KV is the minimal key/value capability a credential backend must provide.
//
// SetMany must apply all values or none from the point of view of a later Get.
// Delete of a missing key is not an error.
type KV interface {
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// Credential is the persisted session pair.
type Credential struct {
	Token string
	Role  string
}

// Complete reports whether both halves of the pair are present.
func (c Credential) Complete() bool {
	return c.Token != "" && c.Role != ""
}

// Store enforces the both-or-neither credential invariant over a [KV].
type Store struct {
	kv KV
}

// NewStore wraps kv. A nil kv yields an in-memory store.
func NewStore(kv KV) *Store {
	if kv == nil {
		kv = NewMemoryKV()
	}
	return &Store{kv: kv}
}

// Save persists token and role in one backend write.
func (s *Store) Save(ctx context.Context, cred Credential) error {
	if !cred.Complete() {
		return ErrIncomplete
	}
	err := s.kv.SetMany(ctx, map[string]string{
		KeyToken: cred.Token,
		KeyRole:  cred.Role,
	})
	if err != nil {
		return wrapUnavailable("save", err)
	}
	return nil
}

// Load returns the stored credential. ok is false when nothing is stored,
// when only one half of the pair is present, or when the backend failed; in
// the last case err is also non-nil so the caller can log it.
func (s *Store) Load(ctx context.Context) (cred Credential, ok bool, err error) {
	values, err := s.kv.Get(ctx, KeyToken, KeyRole)
	if err != nil {
		return Credential{}, false, wrapUnavailable("load", err)
	}
	cred = Credential{Token: values[KeyToken], Role: values[KeyRole]}
	if !cred.Complete() {
		return Credential{}, false, nil
	}
	return cred, true, nil
}

// Clear removes both keys.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyToken, KeyRole); err != nil {
		return wrapUnavailable("clear", err)
	}
	return nil
}

func wrapUnavailable(op string, err error) error {
	if errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("credential %s: %w", op, err)
	}
	return fmt.Errorf("credential %s: %w: %w", op, ErrUnavailable, err)
}
