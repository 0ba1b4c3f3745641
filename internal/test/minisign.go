package test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"testing"

	"golang.org/x/crypto/blake2b"
)

// Signer creates minisign keys and signatures for tests
type Signer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	KeyID   [8]byte
}

// NewSigner generates a new Ed25519 key pair with a random key id
func NewSigner(t testing.TB) *Signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed generating key: %v", err)
	}
	s := &Signer{private: priv, public: pub}
	if _, err := rand.Read(s.KeyID[:]); err != nil {
		t.Fatalf("failed generating key id: %v", err)
	}
	return s
}

// PublicKey returns the 42 byte public key blob
func (s *Signer) PublicKey() []byte {
	b := make([]byte, 0, 42)
	b = append(b, 'E', 'd')
	b = append(b, s.KeyID[:]...)
	return append(b, s.public...)
}

// PublicKeyString returns the base64 public key as found in a minisign .pub file
func (s *Signer) PublicKeyString() string {
	return base64.StdEncoding.EncodeToString(s.PublicKey())
}

// Sign returns the 74 byte signature blob over data
// If prehash is true the BLAKE2b-512 hash of data is signed with the "ED" algorithm
func (s *Signer) Sign(data []byte, prehash bool) []byte {
	return s.SignWith(data, prehash, s.KeyID)
}

// SignWith is Sign but with a custom key id in the blob
func (s *Signer) SignWith(data []byte, prehash bool, keyID [8]byte) []byte {
	alg := []byte{'E', 'd'}
	msg := data
	if prehash {
		alg = []byte{'E', 'D'}
		h := blake2b.Sum512(data)
		msg = h[:]
	}
	b := make([]byte, 0, 74)
	b = append(b, alg...)
	b = append(b, keyID[:]...)
	return append(b, ed25519.Sign(s.private, msg)...)
}

// SignatureFile returns a complete .minisig file over data
// The trusted comment is of the form "timestamp:<signTime>\tfile:<filename>"
func (s *Signer) SignatureFile(data []byte, filename string, signTime uint64, prehash bool) string {
	return s.SignatureFileComment(data, fmt.Sprintf("timestamp:%d\tfile:%s", signTime, filename), prehash)
}

// SignatureFileComment is SignatureFile with a custom trusted comment
func (s *Signer) SignatureFileComment(data []byte, comment string, prehash bool) string {
	sig := s.Sign(data, prehash)
	global := ed25519.Sign(s.private, append(append([]byte{}, sig[10:]...), []byte(comment)...))
	return fmt.Sprintf(
		"untrusted comment: signature from test key\n%s\ntrusted comment: %s\n%s\n",
		base64.StdEncoding.EncodeToString(sig),
		comment,
		base64.StdEncoding.EncodeToString(global),
	)
}
