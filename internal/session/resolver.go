// Package session resolves caller-supplied session identifiers to canonical
// ones. Callers cannot be trusted to produce collision-free canonical ids;
// this package is the single point guaranteeing canonicity while preserving a
// friendly mapping path for non-standard identifiers.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/threadline-dev/threadline/internal/storage"
	"github.com/threadline-dev/threadline/pkg/types"
)

// IDPrefix marks canonical session identifiers.
const IDPrefix = "ses_"

// Resolver maps an arbitrary caller identifier to a canonical session id,
// minting one if absent.
type Resolver interface {
	Resolve(ctx context.Context, candidate string) (types.SessionInfo, error)
}

// NewID mints a fresh canonical session id.
func NewID() string {
	return IDPrefix + uuid.New().String()
}

// IsCanonicalID reports whether id carries the canonical prefix and a valid
// UUID body.
func IsCanonicalID(id string) bool {
	if !strings.HasPrefix(id, IDPrefix) {
		return false
	}
	_, err := uuid.Parse(strings.TrimPrefix(id, IDPrefix))
	return err == nil
}

// StoreResolver is the primary resolver. It applies the canonicity rules and
// additionally verifies canonical candidates against the session store, so a
// caller replaying a stale id from a wiped database is still handed a working
// one. Non-canonical candidates are remembered so the same caller identifier
// always maps to the same canonical id within one server lifetime.
type StoreResolver struct {
	sessions storage.SessionStore

	mu       sync.Mutex
	remapped map[string]string // original candidate -> canonical id
}

// NewStoreResolver creates a StoreResolver over the given session store.
func NewStoreResolver(sessions storage.SessionStore) *StoreResolver {
	return &StoreResolver{
		sessions: sessions,
		remapped: make(map[string]string),
	}
}

// Resolve implements Resolver.
func (r *StoreResolver) Resolve(ctx context.Context, candidate string) (types.SessionInfo, error) {
	if candidate == "" {
		return types.SessionInfo{
			SessionID:    NewID(),
			IsNewSession: true,
		}, nil
	}

	if IsCanonicalID(candidate) {
		// Pass-through, but surface store failures so the router can fall
		// back to the stateless resolver.
		if _, err := r.sessions.Get(ctx, candidate); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return types.SessionInfo{}, fmt.Errorf("session resolver: store lookup for %s: %w", candidate, err)
		}
		return types.SessionInfo{SessionID: candidate}, nil
	}

	// Non-canonical candidate: assign (or re-use) a canonical id and keep the
	// original for annotation.
	r.mu.Lock()
	canonical, ok := r.remapped[candidate]
	if !ok {
		canonical = NewID()
		r.remapped[candidate] = canonical
	}
	r.mu.Unlock()

	return types.SessionInfo{
		SessionID:         canonical,
		IsNewSession:      !ok,
		IsNonStandardID:   true,
		OriginalSessionID: candidate,
	}, nil
}

// StatelessResolver applies the pure canonicity rules with no store access.
// The router uses it as a fallback when the primary resolver fails, so the
// request still completes with a usable id.
type StatelessResolver struct{}

// Resolve implements Resolver.
func (StatelessResolver) Resolve(_ context.Context, candidate string) (types.SessionInfo, error) {
	switch {
	case candidate == "":
		return types.SessionInfo{SessionID: NewID(), IsNewSession: true}, nil
	case IsCanonicalID(candidate):
		return types.SessionInfo{SessionID: candidate}, nil
	default:
		return types.SessionInfo{
			SessionID:         NewID(),
			IsNewSession:      true,
			IsNonStandardID:   true,
			OriginalSessionID: candidate,
		}, nil
	}
}
