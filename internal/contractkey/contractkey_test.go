package contractkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empower1/enclavecore/internal/envelope"
)

func testEnv() *envelope.EnvV010 {
	return &envelope.EnvV010{
		Block:    envelope.BlockV010{Height: 7, Time: 100, ChainID: "t"},
		Message:  envelope.MessageInfo{Sender: "secret1sender"},
		Contract: envelope.ContractInfoV010{Address: "secret1contract"},
	}
}

// Testable property 3: two init calls with identical (env, code, addr)
// inside the same enclave yield byte-identical contract_key.
func TestGenerateIsDeterministic(t *testing.T) {
	secret := []byte("enclave-master-secret-32-bytes!")
	env := testEnv()
	codeHash := envelope.HashCode([]byte("contract bytes"))
	addr := envelope.CanonicalAddr([]byte{1, 2, 3, 4})

	k1 := Generate(secret, env, codeHash, addr)
	k2 := Generate(secret, env, codeHash, addr)
	assert.Equal(t, k1, k2)
}

// Testable property 4: validate(generate(...)) is true, and flipping any
// byte of the address or the code hash makes it false.
func TestValidateAcceptsGeneratedKeyAndRejectsTampering(t *testing.T) {
	secret := []byte("enclave-master-secret-32-bytes!")
	env := testEnv()
	codeHash := envelope.HashCode([]byte("contract bytes"))
	addr := envelope.CanonicalAddr([]byte{1, 2, 3, 4})

	key := Generate(secret, env, codeHash, addr)
	assert.True(t, Validate(secret, key, addr, codeHash))

	tamperedAddr := envelope.CanonicalAddr([]byte{1, 2, 3, 5})
	assert.False(t, Validate(secret, key, tamperedAddr, codeHash))

	tamperedHash := codeHash
	tamperedHash[0] ^= 0xFF
	assert.False(t, Validate(secret, key, addr, tamperedHash))
}

func TestExtractRejectsAbsentOrMalformedKey(t *testing.T) {
	env := testEnv()
	_, err := Extract(env)
	require.Error(t, err)

	short := "deadbeef"
	env.ContractKey = &short
	_, err = Extract(env)
	require.Error(t, err)
}

func TestExtractRoundTripsGeneratedKey(t *testing.T) {
	secret := []byte("enclave-master-secret-32-bytes!")
	env := testEnv()
	codeHash := envelope.HashCode([]byte("contract bytes"))
	addr := envelope.CanonicalAddr([]byte{1, 2, 3, 4})

	key := Generate(secret, env, codeHash, addr)
	hexKey := bytesToHex(key[:])
	env.ContractKey = &hexKey

	extracted, err := Extract(env)
	require.NoError(t, err)
	assert.Equal(t, key, extracted)
	assert.True(t, Validate(secret, extracted, addr, codeHash))
}

func bytesToHex(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
