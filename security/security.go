// Package security implements the envelope authentication contract: Ed25519
// signature verification, nonce anti-replay, proposer/signer matching, and
// license gating. It mutates State only to register a consumed nonce; that
// registration rolls back with the rest of the envelope on later failure
// because it happens inside the kernel's snapshotted critical section.
package security

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"civicrun/canon"
	"civicrun/envelope"
	"civicrun/state"
)

// Registry resolves a signer id to its Ed25519 public key.
type Registry interface {
	Get(signerID string) (ed25519.PublicKey, bool)
}

// LicenseRequirement gates a kind behind a minimum license tier in a named
// school.
type LicenseRequirement struct {
	School  string
	MinTier state.TierRank
}

// Config holds the security engine's configurable switches.
type Config struct {
	RequireSignature     bool
	RequireKnownSigner   bool
	RequireNonce         bool
	EnforceProposerMatch bool
	RequireLicense       bool
	AllowInlinePublicKey bool
	LicenseRequirements  map[envelope.Kind]LicenseRequirement
}

// DefaultConfig returns the conservative default: the signature,
// known-signer, nonce and proposer-match gates on, the license gate off,
// inline public keys disallowed, and no license requirements configured.
func DefaultConfig() Config {
	return Config{
		RequireSignature:     true,
		RequireKnownSigner:   true,
		RequireNonce:         true,
		EnforceProposerMatch: true,
		RequireLicense:       false,
		AllowInlinePublicKey: false,
		LicenseRequirements:  map[envelope.Kind]LicenseRequirement{},
	}
}

// ValidationError is returned by Validate for any admissibility failure;
// callers should wrap it as a kernel-level ValidationError.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func fail(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Engine validates envelope auth blocks against a signer registry and
// civic state.
type Engine struct {
	cfg      Config
	registry Registry
}

// New returns a security engine bound to registry with cfg.
func New(cfg Config, registry Registry) *Engine {
	return &Engine{cfg: cfg, registry: registry}
}

// Validate checks env's auth block against the engine's configured gates,
// registering its nonce in st on success. proposer is the proposer's
// account, which the license gate checks. No gate here is time-dependent.
func (e *Engine) Validate(env envelope.Envelope, st *state.State, proposer *state.Account) error {
	auth := env.Auth

	if e.cfg.RequireSignature && (auth == nil || auth.Signature == "") {
		return fail("security: signature required but missing")
	}

	if auth == nil {
		return nil
	}

	if auth.Algorithm != "ED25519" {
		return fail("security: unsupported algorithm %q", auth.Algorithm)
	}

	if e.cfg.EnforceProposerMatch && auth.SignerID != env.ProposerID {
		return fail("security: auth.signer_id %q does not match proposer_id %q", auth.SignerID, env.ProposerID)
	}

	pub, known := e.registry.Get(auth.SignerID)
	if !known {
		if e.cfg.RequireKnownSigner {
			return fail("security: unknown signer %q", auth.SignerID)
		}
		if !e.cfg.AllowInlinePublicKey || auth.PublicKey == "" {
			return fail("security: no registry key for signer %q and inline keys disallowed", auth.SignerID)
		}
		decoded, err := base64.StdEncoding.DecodeString(auth.PublicKey)
		if err != nil {
			return fail("security: malformed inline public_key: %v", err)
		}
		pub = ed25519.PublicKey(decoded)
	}

	if auth.Signature != "" {
		if err := e.verifySignature(env, pub, auth.Signature); err != nil {
			return err
		}
	}

	if e.cfg.RequireNonce {
		if auth.Nonce == "" {
			return fail("security: nonce required but missing")
		}
		if err := st.RegisterNonce(auth.SignerID, auth.Nonce); err != nil {
			return fail("security: nonce %q already used by signer %q", auth.Nonce, auth.SignerID)
		}
	}

	if e.cfg.RequireLicense {
		if req, ok := e.cfg.LicenseRequirements[env.Kind]; ok {
			if proposer == nil || !proposer.HasLicense(req.School, req.MinTier) {
				return fail("security: proposer %q lacks required license (school=%s min_tier=%d)", env.ProposerID, req.School, req.MinTier)
			}
		}
	}

	return nil
}

func (e *Engine) verifySignature(env envelope.Envelope, pub ed25519.PublicKey, sigB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return fail("security: malformed signature: %v", err)
	}
	view, err := env.SigningView()
	if err != nil {
		return fail("security: failed to build signing view: %v", err)
	}
	payload, err := canon.MarshalMap(view)
	if err != nil {
		return fail("security: failed to canonicalize signing payload: %v", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fail("security: invalid public key length %d", len(pub))
	}
	if !ed25519.Verify(pub, payload, sig) {
		return fail("security: signature verification failed for signer %q", env.Auth.SignerID)
	}
	return nil
}
