package fileio

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
)

// ErrIntegrity is returned when a signature or MAC fails to verify against a saved
// file's bytes, adapted from federation/signing's ErrAuth to the byte-oriented
// contract this package needs: a saved population file has no protobuf message to
// sign over, only the raw bytes WriteText/WriteBinary/WriteTableText/
// WriteTableBinary already produced.
var ErrIntegrity = errors.New("fileio: integrity check failed")

// domainTag separates file-integrity signatures from any other protocol that might
// reuse the same keys, mirroring federation/signing's domain-separation discipline.
const domainTag = "SLIMGO-FILEIO-V1"

func addDomain(b []byte) []byte {
	out := make([]byte, 0, len(domainTag)+1+len(b))
	out = append(out, domainTag...)
	out = append(out, 0)
	out = append(out, b...)
	return out
}

// SignEd25519 signs a saved file's raw bytes, for callers that want to attach a
// detached signature alongside a population dump.
func SignEd25519(priv ed25519.PrivateKey, fileBytes []byte) []byte {
	return ed25519.Sign(priv, addDomain(fileBytes))
}

// VerifyEd25519 checks a detached Ed25519 signature over a saved file's raw bytes.
func VerifyEd25519(pub ed25519.PublicKey, fileBytes, sig []byte) error {
	if !ed25519.Verify(pub, addDomain(fileBytes), sig) {
		return ErrIntegrity
	}
	return nil
}

// SignHMAC computes an HMAC-SHA256 over a saved file's raw bytes, for deployments
// that distribute a shared key rather than an asymmetric keypair.
func SignHMAC(key, fileBytes []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(addDomain(fileBytes))
	return h.Sum(nil)
}

// VerifyHMAC checks an HMAC-SHA256 over a saved file's raw bytes.
func VerifyHMAC(key, fileBytes, mac []byte) error {
	h := hmac.New(sha256.New, key)
	h.Write(addDomain(fileBytes))
	if !hmac.Equal(mac, h.Sum(nil)) {
		return ErrIntegrity
	}
	return nil
}
