// Package msgcrypto implements the Message Decryptor and Output Encryptor:
// AEAD decryption of inbound SecretMessages, code-hash prefix binding of the
// resulting plaintext, and AEAD encryption of contract output back to the
// originating user.
package msgcrypto

import (
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/empower1/enclavecore/internal/coreerr"
	"github.com/empower1/enclavecore/internal/envelope"
)

const kdfInfo = "enclavecore/msg-key/v1"

// deriveKey derives a per-message AEAD key from the user's ephemeral public
// key, the enclave secret, and the message nonce.
func deriveKey(userPublicKey, enclaveSecret, nonce []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, enclaveSecret, append(append([]byte{}, userPublicKey...), nonce...), []byte(kdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := reader.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Decrypt performs AEAD decryption of msg.Ciphertext using a key derived
// from (msg.UserPublicKey, enclaveSecret, msg.Nonce).
func Decrypt(msg *envelope.SecretMessage, enclaveSecret []byte) ([]byte, error) {
	key, err := deriveKey(msg.UserPublicKey[:], enclaveSecret, msg.Nonce[:])
	if err != nil {
		return nil, coreerr.New(coreerr.KindDecryptionError, err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, coreerr.New(coreerr.KindDecryptionError, err)
	}
	if len(msg.Ciphertext) < aead.NonceSize() {
		return nil, coreerr.Wrap(coreerr.KindDecryptionError, "ciphertext shorter than AEAD nonce")
	}
	aeadNonce, sealed := msg.Ciphertext[:aead.NonceSize()], msg.Ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, aeadNonce, sealed, nil)
	if err != nil {
		return nil, coreerr.New(coreerr.KindDecryptionError, err)
	}
	return plaintext, nil
}

// ValidateMsg asserts that plaintext begins with hex(codeHash) (64 ASCII
// chars) and returns the remainder. This binds a ciphertext to one specific
// code version and defeats replay against a differently-coded contract.
func ValidateMsg(plaintext []byte, codeHash envelope.CodeHash) ([]byte, error) {
	prefix := codeHash.Hex()
	if len(plaintext) < len(prefix) || string(plaintext[:len(prefix)]) != prefix {
		return nil, coreerr.Wrap(coreerr.KindValidationFailure, "plaintext missing expected code-hash prefix")
	}
	return plaintext[len(prefix):], nil
}

// cosmWasmResponse mirrors the JSON shape of a CosmWasm v0.10-style
// init/handle response: an optional base64 "data" payload, "log" attributes
// (some marked for encryption), and "messages" dispatched to other
// contracts or the bank module as a result of this call.
type cosmWasmResponse struct {
	Messages []cosmWasmSubMsg  `json:"messages,omitempty"`
	Log      []cosmWasmLogAttr `json:"log,omitempty"`
	Data     *string           `json:"data,omitempty"`
}

// cosmWasmSubMsg is one dispatched sub-message. Msg carries the payload
// intended for the target contract and must be unreadable to anyone but
// that contract and the originating user, same as the top-level output.
type cosmWasmSubMsg struct {
	Contract string          `json:"contract,omitempty"`
	Msg      *string         `json:"msg,omitempty"`
	Send     json.RawMessage `json:"send,omitempty"`
}

// cosmWasmLogAttr is one log attribute. Only attributes the contract marked
// Encrypted are re-encrypted; plaintext attributes (event names, counters)
// pass through untouched.
type cosmWasmLogAttr struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Encrypted bool   `json:"encrypted,omitempty"`
}

// fieldNonce derives a unique AEAD nonce per encrypted field from the
// call's base nonce and a field label, so sealing several fields under one
// derived key never reuses a nonce.
func fieldNonce(nonce []byte, label string) []byte {
	h := sha256.Sum256(append(append([]byte{}, nonce...), []byte(label)...))
	return h[:chacha20poly1305.NonceSizeX]
}

// sealField seals plain under aead with a nonce derived from (nonce, label)
// and returns nonce||ciphertext, base64-encoded.
func sealField(aead cipher.AEAD, nonce []byte, label string, ad, plain []byte) string {
	fn := fieldNonce(nonce, label)
	sealed := aead.Seal(nil, fn, plain, ad)
	return base64.StdEncoding.EncodeToString(append(append([]byte{}, fn...), sealed...))
}

// EncryptOutput AEAD-encrypts the contract's output under a key derived
// from (userPublicKey, enclaveSecret, nonce). contractAddr is bound into
// the associated data so a re-encrypted sub-message cannot be replayed
// against a different contract; for query output, contractAddr is
// envelope.EmptyCanonicalAddr().
//
// If plain parses as a CosmWasm-style response (it has a data field, log
// attributes, or dispatched messages), each sensitive field — data, any log
// attribute marked encrypted, and every sub-message's msg payload — is
// sealed independently and the response is re-serialized with those fields
// replaced, so only the originating user (data, log) or the target
// contract (a sub-message's msg) can read its own piece. Plain byte output
// that isn't such a response (e.g. a query result) is sealed whole, as
// before.
func EncryptOutput(plain, nonce, userPublicKey []byte, contractAddr envelope.CanonicalAddr, enclaveSecret []byte) ([]byte, error) {
	key, err := deriveKey(userPublicKey, enclaveSecret, nonce)
	if err != nil {
		return nil, coreerr.New(coreerr.KindEncryptionError, err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, coreerr.New(coreerr.KindEncryptionError, err)
	}

	var resp cosmWasmResponse
	if err := json.Unmarshal(plain, &resp); err == nil && (resp.Data != nil || len(resp.Log) > 0 || len(resp.Messages) > 0) {
		if resp.Data != nil {
			sealed := sealField(aead, nonce, "data", contractAddr, []byte(*resp.Data))
			resp.Data = &sealed
		}
		for i := range resp.Log {
			if !resp.Log[i].Encrypted {
				continue
			}
			resp.Log[i].Value = sealField(aead, nonce, fmt.Sprintf("log:%d", i), contractAddr, []byte(resp.Log[i].Value))
		}
		for i := range resp.Messages {
			if resp.Messages[i].Msg == nil {
				continue
			}
			sealed := sealField(aead, nonce, fmt.Sprintf("msg:%d", i), contractAddr, []byte(*resp.Messages[i].Msg))
			resp.Messages[i].Msg = &sealed
		}
		out, err := json.Marshal(resp)
		if err != nil {
			return nil, coreerr.New(coreerr.KindEncryptionError, err)
		}
		return out, nil
	}

	aeadNonce := fieldNonce(nonce, "opaque")
	sealed := aead.Seal(nil, aeadNonce, plain, contractAddr)
	return append(append([]byte{}, aeadNonce...), sealed...), nil
}
