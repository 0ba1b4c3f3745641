package verify

import (
	"fmt"

	"github.com/jedisct1/go-minisign"
)

// VerifyFile verifies a complete .minisig file over signedJSON, including the trusted comment and the global signature.
//
// expectedFileName must be set to the file type to be verified, either "server_list.json" or "organization_list.json".
// minSignTime must be set to the minimum UNIX timestamp (without milliseconds) for the file version.
// This value should not be smaller than the time on the previous document verified.
// forcePrehash indicates whether or not we want to force the use of prehashed signatures.
//
// The trusted comment is checked to be of the form "timestamp:<timestamp>\tfile:<expectedFileName>", optionally suffixed by something, e.g. "\thashed".
// On success the sign time from the trusted comment is returned.
// Note that every error path is wrapped in a custom type here because minisign does not return custom error types, they use errors.New.
func VerifyFile(
	signatureFileContent string,
	signedJSON []byte,
	filename string,
	minSignTime uint64,
	allowedPublicKeys []string,
	forcePrehash bool,
) (uint64, error) {
	switch filename {
	case "server_list.json", "organization_list.json":
		break
	default:
		return 0, &UnknownExpectedFilenameError{
			Filename: filename,
			Expected: "server_list.json or organization_list.json",
		}
	}

	sig, err := minisign.DecodeSignature(signatureFileContent)
	if err != nil {
		return 0, &InvalidSignatureFormatError{Err: err}
	}

	if forcePrehash && sig.SignatureAlgorithm != algPrehashed {
		return 0, &InvalidSignatureAlgorithmError{
			Algorithm:       string(sig.SignatureAlgorithm[:]),
			WantedAlgorithm: "ED (BLAKE2b-prehashed EdDSA)",
		}
	}

	for _, keyStr := range allowedPublicKeys {
		key, err := minisign.NewPublicKey(keyStr)
		if err != nil {
			return 0, &CreatePublicKeyError{PublicKey: keyStr, Err: err}
		}

		if sig.KeyId != key.KeyId {
			continue
		}

		valid, err := key.Verify(signedJSON, sig)
		if !valid {
			return 0, &InvalidSignatureError{Err: err}
		}

		var signTime uint64
		var sigFileName string
		// sigFileName cannot have spaces
		_, err = fmt.Sscanf(
			sig.TrustedComment,
			"trusted comment: timestamp:%d\tfile:%s",
			&signTime,
			&sigFileName,
		)
		if err != nil {
			return 0, &InvalidTrustedCommentError{
				TrustedComment: sig.TrustedComment,
				Err:            err,
			}
		}

		if sigFileName != filename {
			return 0, &WrongSigFilenameError{Filename: filename, SigFilename: sigFileName}
		}

		if signTime < minSignTime {
			return 0, &SigTimeEarlierError{SigTime: signTime, MinSigTime: minSignTime}
		}

		return signTime, nil
	}

	return 0, &UnknownKeyError{Filename: filename}
}

type UnknownExpectedFilenameError struct {
	Filename string
	Expected string
}

func (e *UnknownExpectedFilenameError) Error() string {
	return fmt.Sprintf("invalid filename: %s, expected: %s", e.Filename, e.Expected)
}

type InvalidSignatureFormatError struct {
	Err error
}

func (e *InvalidSignatureFormatError) Error() string {
	return fmt.Sprintf("invalid signature format with error: %v", e.Err)
}

func (e *InvalidSignatureFormatError) Unwrap() error {
	return e.Err
}

type InvalidSignatureAlgorithmError struct {
	Algorithm       string
	WantedAlgorithm string
}

func (e *InvalidSignatureAlgorithmError) Error() string {
	return fmt.Sprintf(
		"invalid signature algorithm: %s, wanted: %s",
		e.Algorithm,
		e.WantedAlgorithm,
	)
}

type CreatePublicKeyError struct {
	PublicKey string
	Err       error
}

func (e *CreatePublicKeyError) Error() string {
	return fmt.Sprintf("failed to create public key: %s with error: %v", e.PublicKey, e.Err)
}

func (e *CreatePublicKeyError) Unwrap() error {
	return e.Err
}

type InvalidSignatureError struct {
	Err error
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("invalid signature with error: %v", e.Err)
}

func (e *InvalidSignatureError) Unwrap() error {
	return e.Err
}

type InvalidTrustedCommentError struct {
	TrustedComment string
	Err            error
}

func (e *InvalidTrustedCommentError) Error() string {
	return fmt.Sprintf("invalid trusted comment: %s with error: %v", e.TrustedComment, e.Err)
}

func (e *InvalidTrustedCommentError) Unwrap() error {
	return e.Err
}

type WrongSigFilenameError struct {
	Filename    string
	SigFilename string
}

func (e *WrongSigFilenameError) Error() string {
	return fmt.Sprintf(
		"wrong filename: %s, expected filename: %s for signature",
		e.Filename,
		e.SigFilename,
	)
}

type SigTimeEarlierError struct {
	SigTime    uint64
	MinSigTime uint64
}

func (e *SigTimeEarlierError) Error() string {
	return fmt.Sprintf("sign time: %d is earlier than sign time: %d", e.SigTime, e.MinSigTime)
}

// UnknownKeyError is returned when none of the allowed keys has the key id of the signature
type UnknownKeyError struct {
	Filename string
}

func (e *UnknownKeyError) Error() string {
	if e.Filename == "" {
		return "signature was created with an unknown key"
	}
	return fmt.Sprintf("signature for filename: %s was created with an unknown key", e.Filename)
}
