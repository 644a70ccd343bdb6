package sigverify

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empower1/enclavecore/internal/envelope"
)

func testSecretMsg() *envelope.SecretMessage {
	msg := &envelope.SecretMessage{Ciphertext: []byte("ciphertext")}
	for i := range msg.Nonce {
		msg.Nonce[i] = byte(i)
	}
	return msg
}

func signedEnvAndSig(t *testing.T, sender string) (*envelope.EnvV010, *envelope.SigInfo, *envelope.SecretMessage) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	env := &envelope.EnvV010{
		Block:    envelope.BlockV010{Height: 1, Time: 1, ChainID: "t"},
		Message:  envelope.MessageInfo{Sender: sender},
		Contract: envelope.ContractInfoV010{Address: "secret1contract"},
	}
	msg := testSecretMsg()
	sig := ed25519.Sign(priv, signBytes(env, msg))
	return env, &envelope.SigInfo{
		Signature:    sig,
		SignerPubKey: pub,
		SignMode:     envelope.RecognizedSignMode,
	}, msg
}

func TestVerifyParamsAcceptsValidSignature(t *testing.T) {
	env, sigInfo, msg := signedEnvAndSig(t, "secret1sender")
	assert.NoError(t, VerifyParams(sigInfo, env, msg))
}

// S5: a signature over a different sender must not authenticate this env.
func TestVerifyParamsRejectsSignatureOverDifferentSender(t *testing.T) {
	_, sigInfo, msg := signedEnvAndSig(t, "secret1sender")
	otherEnv := &envelope.EnvV010{
		Block:    envelope.BlockV010{Height: 1, Time: 1, ChainID: "t"},
		Message:  envelope.MessageInfo{Sender: "secret1someoneelse"},
		Contract: envelope.ContractInfoV010{Address: "secret1contract"},
	}
	assert.Error(t, VerifyParams(sigInfo, otherEnv, msg))
}

func TestVerifyParamsRejectsUnrecognizedSignMode(t *testing.T) {
	env, sigInfo, msg := signedEnvAndSig(t, "secret1sender")
	sigInfo.SignMode = "SIGN_MODE_LEGACY_AMINO_JSON"
	assert.Error(t, VerifyParams(sigInfo, env, msg))
}
