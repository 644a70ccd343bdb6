// Package sigverify implements the Signature Verifier: checking that a
// host-supplied SigInfo authenticates the exact envelope fields and
// ciphertext the user committed to.
package sigverify

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"

	"github.com/empower1/enclavecore/internal/coreerr"
	"github.com/empower1/enclavecore/internal/envelope"
)

// signBytes reconstructs the digest the user is expected to have signed:
// SHA-256 over sender, funds, contract address, block height, and the whole
// secret message (nonce, public key, ciphertext).
func signBytes(env *envelope.EnvV010, secretMsg *envelope.SecretMessage) []byte {
	h := sha256.New()
	h.Write([]byte(env.Message.Sender))
	for _, coin := range env.Message.SentFunds {
		h.Write([]byte(coin.Denom))
		h.Write([]byte(coin.Amount))
	}
	h.Write([]byte(env.Contract.Address))
	var height [8]byte
	binary.BigEndian.PutUint64(height[:], env.Block.Height)
	h.Write(height[:])
	h.Write(secretMsg.Bytes())
	return h.Sum(nil)
}

// VerifyParams checks that sigInfo authenticates env and secretMsg. Mismatch
// or an unrecognized sign mode both produce FailedTxVerification.
func VerifyParams(sigInfo *envelope.SigInfo, env *envelope.EnvV010, secretMsg *envelope.SecretMessage) error {
	if sigInfo.SignMode != envelope.RecognizedSignMode {
		return coreerr.Wrap(coreerr.KindFailedTxVerification, "unrecognized sign mode %q", sigInfo.SignMode)
	}
	if len(sigInfo.SignerPubKey) != ed25519.PublicKeySize {
		return coreerr.Wrap(coreerr.KindFailedTxVerification, "signer public key has wrong length")
	}
	want := signBytes(env, secretMsg)
	if !ed25519.Verify(ed25519.PublicKey(sigInfo.SignerPubKey), want, sigInfo.Signature) {
		return coreerr.Wrap(coreerr.KindFailedTxVerification, "signature does not authenticate envelope")
	}
	return nil
}
