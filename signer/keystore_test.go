package signer

import "testing"

func TestEncryptDecryptKeyPairRoundTrips(t *testing.T) {
	kp, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	ekf, err := EncryptKeyPair(kp, "correct horse battery staple")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if ekf.PublicKey != kp.PublicKey {
		t.Fatalf("expected public key to be stored in the clear")
	}

	decrypted, err := DecryptKeyPair(ekf, "correct horse battery staple")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if decrypted.PrivateKey != kp.PrivateKey {
		t.Fatalf("expected decrypted private key to round-trip")
	}
}

func TestDecryptKeyPairRejectsWrongPassphrase(t *testing.T) {
	kp, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ekf, err := EncryptKeyPair(kp, "correct horse battery staple")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := DecryptKeyPair(ekf, "wrong passphrase"); err == nil {
		t.Fatalf("expected decrypt with the wrong passphrase to fail")
	}
}
