package signer

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters; N is the expensive one and dominates brute-force
// cost. These match the values golang.org/x/crypto/scrypt's own docs
// recommend for interactive use as of 2026.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// EncryptedKeyFile is the on-disk JSON form of a passphrase-protected
// KeyPair: the private key ciphertext plus everything needed to re-derive
// the wrapping key and open it.
type EncryptedKeyFile struct {
	PublicKey string `json:"public_key"`
	Salt      string `json:"salt"`
	Nonce     string `json:"nonce"`
	Sealed    string `json:"sealed_private_key"`
}

// EncryptKeyPair wraps kp.PrivateKey with a key derived from passphrase via
// scrypt, sealing it with NaCl secretbox (XSalsa20-Poly1305). PublicKey is
// stored in the clear since it carries no secrecy requirement.
func EncryptKeyPair(kp KeyPair, passphrase string) (*EncryptedKeyFile, error) {
	priv, err := base64.StdEncoding.DecodeString(kp.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("signer: decode private key: %w", err)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("signer: generate salt: %w", err)
	}
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("signer: derive wrapping key: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("signer: generate nonce: %w", err)
	}
	var keyArr [32]byte
	copy(keyArr[:], key)

	sealed := secretbox.Seal(nil, priv, &nonce, &keyArr)
	return &EncryptedKeyFile{
		PublicKey: kp.PublicKey,
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Nonce:     base64.StdEncoding.EncodeToString(nonce[:]),
		Sealed:    base64.StdEncoding.EncodeToString(sealed),
	}, nil
}

// DecryptKeyPair reverses EncryptKeyPair, re-deriving the wrapping key from
// passphrase and opening the sealed private key. It fails closed: a wrong
// passphrase or a tampered file both return an error rather than garbage
// key material.
func DecryptKeyPair(ekf *EncryptedKeyFile, passphrase string) (KeyPair, error) {
	salt, err := base64.StdEncoding.DecodeString(ekf.Salt)
	if err != nil {
		return KeyPair{}, fmt.Errorf("signer: decode salt: %w", err)
	}
	nonceBytes, err := base64.StdEncoding.DecodeString(ekf.Nonce)
	if err != nil || len(nonceBytes) != 24 {
		return KeyPair{}, fmt.Errorf("signer: decode nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(ekf.Sealed)
	if err != nil {
		return KeyPair{}, fmt.Errorf("signer: decode sealed private key: %w", err)
	}

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return KeyPair{}, fmt.Errorf("signer: derive wrapping key: %w", err)
	}
	var nonce [24]byte
	copy(nonce[:], nonceBytes)
	var keyArr [32]byte
	copy(keyArr[:], key)

	priv, ok := secretbox.Open(nil, sealed, &nonce, &keyArr)
	if !ok {
		return KeyPair{}, fmt.Errorf("signer: open sealed private key: wrong passphrase or corrupt file")
	}

	return KeyPair{
		PublicKey:  ekf.PublicKey,
		PrivateKey: base64.StdEncoding.EncodeToString(priv),
	}, nil
}

// MarshalEncryptedKeyFile is a thin json.MarshalIndent wrapper kept here so
// callers never need to import encoding/json just to write a key file.
func MarshalEncryptedKeyFile(ekf *EncryptedKeyFile) ([]byte, error) {
	return json.MarshalIndent(ekf, "", "  ")
}
