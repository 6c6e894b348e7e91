package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"

	"civicrun/canon"
	"civicrun/envelope"
)

// KeyPair holds a generated Ed25519 key pair, base64-encoded for transport.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// GenerateKey creates a new Ed25519 key pair and returns it base64-encoded.
func GenerateKey() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("signer: generate key: %w", err)
	}
	return KeyPair{
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
		PrivateKey: base64.StdEncoding.EncodeToString(priv),
	}, nil
}

// Options configures Sign.
type Options struct {
	SignerID   string
	PrivateKey ed25519.PrivateKey
	PublicKey  string // base64; set when the verifier has no registry entry for SignerID
	Nonce      string // defaults to a fresh UUID when empty
}

// Sign computes env's canonical signing payload and attaches a populated
// Auth block, returning the signed envelope. env.Auth is overwritten.
func Sign(env envelope.Envelope, opts Options) (envelope.Envelope, error) {
	if len(opts.PrivateKey) != ed25519.PrivateKeySize {
		return envelope.Envelope{}, fmt.Errorf("signer: private key has length %d, want %d", len(opts.PrivateKey), ed25519.PrivateKeySize)
	}
	nonce := opts.Nonce
	if nonce == "" {
		nonce = uuid.NewString()
	}

	env.Auth = &envelope.Auth{
		SignerID:  opts.SignerID,
		Algorithm: "ED25519",
		Nonce:     nonce,
		PublicKey: opts.PublicKey,
	}

	view, err := env.SigningView()
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("signer: build signing view: %w", err)
	}
	payload, err := canon.MarshalMap(view)
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("signer: canonicalize signing payload: %w", err)
	}

	sig := ed25519.Sign(opts.PrivateKey, payload)
	env.Auth.Signature = base64.StdEncoding.EncodeToString(sig)
	return env, nil
}
