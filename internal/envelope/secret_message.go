package envelope

import (
	"github.com/empower1/enclavecore/internal/coreerr"
)

const (
	nonceLength     = 32
	userPubKeyLength = 32
	// SecretMessageMinLength is the shortest valid wire encoding: nonce +
	// public key, with an empty ciphertext.
	SecretMessageMinLength = nonceLength + userPubKeyLength
)

// SecretMessage is the user-to-contract envelope: a fresh nonce, the user's
// ephemeral public key, and the AEAD ciphertext of the payload.
type SecretMessage struct {
	Nonce         [nonceLength]byte
	UserPublicKey [userPubKeyLength]byte
	Ciphertext    []byte
}

// ParseSecretMessage decodes the fixed-layout wire format
// nonce(32) || user_public_key(32) || ciphertext(var). Inputs shorter than
// SecretMessageMinLength are rejected.
func ParseSecretMessage(raw []byte) (*SecretMessage, error) {
	if len(raw) < SecretMessageMinLength {
		return nil, coreerr.Wrap(coreerr.KindFailedToDeserialize, "secret message too short: %d bytes", len(raw))
	}
	msg := &SecretMessage{}
	copy(msg.Nonce[:], raw[:nonceLength])
	copy(msg.UserPublicKey[:], raw[nonceLength:nonceLength+userPubKeyLength])
	msg.Ciphertext = append([]byte(nil), raw[nonceLength+userPubKeyLength:]...)
	return msg, nil
}

// Bytes re-serializes the message to its wire format.
func (m *SecretMessage) Bytes() []byte {
	out := make([]byte, 0, SecretMessageMinLength+len(m.Ciphertext))
	out = append(out, m.Nonce[:]...)
	out = append(out, m.UserPublicKey[:]...)
	out = append(out, m.Ciphertext...)
	return out
}

// SigInfo is the host-supplied description of the signed transaction that
// authenticates this call. Field names beyond what the Signature Verifier
// consumes are treated as an opaque schema owned by the host.
type SigInfo struct {
	Signature     []byte `json:"signature"`
	SignerPubKey  []byte `json:"signer_pub_key"`
	SignMode      string `json:"sign_mode"`
	SignDocBytes  []byte `json:"sign_doc_bytes"`
}

// RecognizedSignMode is the only sign-mode this core verifies.
const RecognizedSignMode = "SIGN_MODE_DIRECT"
