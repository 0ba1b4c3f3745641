// Package verify implements signature verification for discovery documents
// The signatures use the minisign format, see https://jedisct1.github.io/minisign/#signature-format
package verify

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-errors/errors"
	"github.com/jedisct1/go-minisign"
	"golang.org/x/crypto/blake2b"
)

const (
	// PublicKeySize is the size of a public key blob: algorithm (2) + key id (8) + Ed25519 key (32)
	PublicKeySize = 42
	// SignatureSize is the size of a signature blob: algorithm (2) + key id (8) + Ed25519 signature (64)
	SignatureSize = 74
)

var (
	// algLegacy signs the raw message
	algLegacy = [2]byte{'E', 'd'}
	// algPrehashed signs the BLAKE2b-512 hash of the message
	algPrehashed = [2]byte{'E', 'D'}
)

// Kind is the kind of signature failure
type Kind int8

const (
	KindFetchFailed Kind = iota + 1
	KindInvalidPublicKey
	KindInvalidSignature
	KindPublicKeyIDMismatch
	KindUnsupportedAlgorithm
	KindLegacySignatureNotAllowed
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindFetchFailed:
		return "fetching signature failed"
	case KindInvalidPublicKey:
		return "invalid public key"
	case KindInvalidSignature:
		return "invalid signature"
	case KindPublicKeyIDMismatch:
		return "public key id mismatch"
	case KindUnsupportedAlgorithm:
		return "unsupported algorithm"
	case KindLegacySignatureNotAllowed:
		return "legacy minisign signature is not allowed"
	case KindInvalid:
		return "signature was invalid"
	default:
		return "unknown signature error"
	}
}

// Error is a signature error
// Use errors.Is with the Err* variables to check for a kind
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a signature error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrFetchFailed               = &Error{Kind: KindFetchFailed}
	ErrInvalidPublicKey          = &Error{Kind: KindInvalidPublicKey}
	ErrInvalidSignature          = &Error{Kind: KindInvalidSignature}
	ErrPublicKeyIDMismatch       = &Error{Kind: KindPublicKeyIDMismatch}
	ErrUnsupportedAlgorithm      = &Error{Kind: KindUnsupportedAlgorithm}
	ErrLegacySignatureNotAllowed = &Error{Kind: KindLegacySignatureNotAllowed}
	ErrInvalid                   = &Error{Kind: KindInvalid}
)

// ExtractSignature gets the signature blob out of the contents of a .minisig file
// The second line holds the base64 encoded signature
func ExtractSignature(sigFile []byte) ([]byte, error) {
	if !utf8.Valid(sigFile) {
		return nil, &Error{Kind: KindFetchFailed, Err: fmt.Errorf("signature file is not valid UTF-8")}
	}
	var lines []string
	for _, l := range strings.Split(string(sigFile), "\n") {
		// empty lines are skipped
		if l = strings.TrimRight(l, "\r"); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		return nil, &Error{Kind: KindFetchFailed, Err: fmt.Errorf("signature file has %d line(s), want at least 2", len(lines))}
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(lines[1]))
	if err != nil {
		return nil, &Error{Kind: KindFetchFailed, Err: err}
	}
	return sig, nil
}

// ParsePublicKey decodes a base64 minisign public key as found in the second line of a minisign .pub file
func ParsePublicKey(s string) ([]byte, error) {
	if _, err := minisign.NewPublicKey(s); err != nil {
		return nil, &Error{Kind: KindInvalidPublicKey, Err: err}
	}
	// NewPublicKey already made sure that this decodes to the right size
	return base64.StdEncoding.DecodeString(s)
}

func publicKeyBlob(b []byte) (minisign.PublicKey, error) {
	var pk minisign.PublicKey
	if len(b) != PublicKeySize {
		return pk, &Error{Kind: KindInvalidPublicKey, Err: fmt.Errorf("public key is %d bytes, want %d", len(b), PublicKeySize)}
	}
	copy(pk.SignatureAlgorithm[:], b[0:2])
	copy(pk.KeyId[:], b[2:10])
	copy(pk.PublicKey[:], b[10:42])
	return pk, nil
}

func signatureBlob(b []byte) (minisign.Signature, error) {
	var sig minisign.Signature
	if len(b) != SignatureSize {
		return sig, &Error{Kind: KindInvalidSignature, Err: fmt.Errorf("signature is %d bytes, want %d", len(b), SignatureSize)}
	}
	copy(sig.SignatureAlgorithm[:], b[0:2])
	copy(sig.KeyId[:], b[2:10])
	copy(sig.Signature[:], b[10:74])
	return sig, nil
}

// Verify verifies a signature blob over data with a public key blob
// The structural checks (sizes, key id, algorithm) come before the cryptographic check
// If legacyAllowed is false, only pre-hashed "ED" signatures are accepted
func Verify(signature []byte, data []byte, publicKey []byte, legacyAllowed bool) error {
	pk, err := publicKeyBlob(publicKey)
	if err != nil {
		return err
	}
	sig, err := signatureBlob(signature)
	if err != nil {
		return err
	}
	if pk.KeyId != sig.KeyId {
		return &Error{
			Kind: KindPublicKeyIDMismatch,
			Err:  fmt.Errorf("signature key id: %X, public key id: %X", sig.KeyId, pk.KeyId),
		}
	}

	var prehashed bool
	switch sig.SignatureAlgorithm {
	case algLegacy:
		prehashed = false
	case algPrehashed:
		prehashed = true
	default:
		return &Error{
			Kind: KindUnsupportedAlgorithm,
			Err:  fmt.Errorf("algorithm: %q", sig.SignatureAlgorithm[:]),
		}
	}
	if !prehashed && !legacyAllowed {
		return ErrLegacySignatureNotAllowed
	}

	msg := data
	if prehashed {
		h := blake2b.Sum512(data)
		msg = h[:]
	}
	if !ed25519.Verify(ed25519.PublicKey(pk.PublicKey[:]), msg, sig.Signature[:]) {
		return ErrInvalid
	}
	return nil
}

// IsSignatureValid is Verify but it only reports whether or not the signature is valid
func IsSignatureValid(data []byte, signature []byte, publicKey []byte, legacyAllowed bool) bool {
	return Verify(signature, data, publicKey, legacyAllowed) == nil
}

// VerifyWithKeys verifies the signature in a .minisig file over data with any of the public keys
// Keys with a different key id are skipped
// If no key has the right id, an *UnknownKeyError is returned
func VerifyWithKeys(sigFile []byte, data []byte, publicKeys [][]byte, legacyAllowed bool) error {
	sig, err := ExtractSignature(sigFile)
	if err != nil {
		return err
	}
	var last error
	for _, pk := range publicKeys {
		err = Verify(sig, data, pk, legacyAllowed)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrPublicKeyIDMismatch) {
			last = err
		}
	}
	if last != nil {
		return last
	}
	return &UnknownKeyError{}
}
