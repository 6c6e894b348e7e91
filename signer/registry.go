// Package signer provides an in-memory security.Registry implementation and
// helpers for signing and generating Ed25519 keys for civicrun envelopes.
package signer

import (
	"crypto/ed25519"
	"fmt"
	"sync"
)

// Registry is a concurrency-safe, in-memory signer-id-to-public-key map
// satisfying security.Registry.
type Registry struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[string]ed25519.PublicKey)}
}

// Get resolves signerID to its registered public key.
func (r *Registry) Get(signerID string) (ed25519.PublicKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pub, ok := r.keys[signerID]
	return pub, ok
}

// Register associates signerID with pub, overwriting any prior key.
func (r *Registry) Register(signerID string, pub ed25519.PublicKey) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("signer: public key for %q has length %d, want %d", signerID, len(pub), ed25519.PublicKeySize)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[signerID] = append(ed25519.PublicKey(nil), pub...)
	return nil
}

// Remove drops signerID's key, if any.
func (r *Registry) Remove(signerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, signerID)
}

// SignerIDs returns every registered signer id, in no particular order.
func (r *Registry) SignerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.keys))
	for id := range r.keys {
		ids = append(ids, id)
	}
	return ids
}
