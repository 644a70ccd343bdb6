// Package dispatcher implements the Operation Dispatcher: the state machine
// driving init, handle, and query by orchestrating the Envelope Codec,
// Contract-Key Service, Signature Verifier, Message Decryptor, Engine
// Adapter, and Output Encryptor.
package dispatcher

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/empower1/enclavecore/internal/contractkey"
	"github.com/empower1/enclavecore/internal/coreerr"
	"github.com/empower1/enclavecore/internal/enclave"
	"github.com/empower1/enclavecore/internal/engine"
	"github.com/empower1/enclavecore/internal/envelope"
	"github.com/empower1/enclavecore/internal/hostapi"
	"github.com/empower1/enclavecore/internal/msgcrypto"
	"github.com/empower1/enclavecore/internal/sigverify"
)

// Service drives init/handle/query calls. It holds no cross-call state of
// its own — the enclave master secret and module cache live in
// internal/enclave; Service is just the logger-carrying entry point.
type Service struct {
	logger *zap.SugaredLogger
}

// NewService builds a dispatcher Service bound to logger.
func NewService(logger *zap.Logger) *Service {
	return &Service{logger: logger.Sugar()}
}

// InitResult is returned by Init on success.
type InitResult struct {
	Output      []byte
	ContractKey contractkey.ContractKey
}

// HandleResult is returned by Handle on success.
type HandleResult struct {
	Output []byte
}

// QueryResult is returned by Query on success.
type QueryResult struct {
	Output []byte
}

// Init implements spec.md §4.G's init entry point.
func (s *Service) Init(
	ctx hostapi.Context,
	gasLimit uint64,
	usedGas *uint64,
	apiVersion envelope.ApiVersion,
	contract, envBytes, msgBytes, sigBytes []byte,
) (*InitResult, error) {
	traceID := uuid.New().String()
	log := s.logger.With("trace_id", traceID, "op", "init")
	guard := newGasGuard(usedGas)

	state := StateParse
	fail := func(k coreerr.Kind, format string, args ...interface{}) (*InitResult, error) {
		log.Warnw("init failed", "state", state, "kind", k)
		return nil, coreerr.Wrap(k, format, args...)
	}

	env, err := envelope.ParseEnvV010(envBytes)
	if err != nil {
		return fail(coreerr.KindFailedToDeserialize, "parse env: %w", err)
	}
	codeHash := envelope.HashCode(contract)
	envelope.StampCodeHash(env, codeHash)

	state = StateKeyResolve
	canonicalAddr, err := envelope.ToCanonical(envelope.HumanAddr(env.Contract.Address))
	if err != nil {
		return fail(coreerr.KindFailedToDeserialize, "canonicalize contract address: %w", err)
	}
	contractKey := contractkey.Generate(enclave.MasterSecret(), env, codeHash, canonicalAddr)
	log.Debugw("contract key generated", "contract_key", envelope.DebugBase58(contractKey[:]))

	state = StateAuthenticate
	sigInfo, err := envelope.ParseSigInfo(sigBytes)
	if err != nil {
		return fail(coreerr.KindFailedToDeserialize, "parse sig info: %w", err)
	}
	secretMsg, err := envelope.ParseSecretMessage(msgBytes)
	if err != nil {
		return fail(coreerr.KindFailedToDeserialize, "parse secret message: %w", err)
	}
	log.Debugw("secret message parsed", "nonce", envelope.DebugBase58(secretMsg.Nonce[:]))
	if err := sigverify.VerifyParams(sigInfo, env, secretMsg); err != nil {
		return fail(coreerr.KindFailedTxVerification, "verify params: %w", err)
	}

	state = StateDecrypt
	plaintext, err := msgcrypto.Decrypt(secretMsg, enclave.MasterSecret())
	if err != nil {
		return fail(coreerr.KindDecryptionError, "decrypt message: %w", err)
	}

	state = StateValidate
	payload, err := msgcrypto.ValidateMsg(plaintext, codeHash)
	if err != nil {
		return fail(coreerr.KindValidationFailure, "validate message: %w", err)
	}

	state = StateEngineReady
	module, err := enclave.GetOrCompileModule(contract)
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "compile module: %w", err)
	}
	eng, err := engine.Start(module, &engine.ContractInstance{
		Context:       ctx,
		GasLimit:      gasLimit,
		Operation:     engine.OperationInit,
		Nonce:         secretMsg.Nonce,
		UserPublicKey: secretMsg.UserPublicKey,
		ApiVersion:    apiVersion,
	})
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "start engine: %w", err)
	}
	defer eng.Close()
	guard.bind(eng.GasUsed)
	defer guard.release()

	state = StateExecuting
	envWire, err := envelope.EnvToBytes(env, apiVersion)
	if err != nil {
		return fail(coreerr.KindFailedToSerialize, "serialize env: %w", err)
	}
	envPtr, err := eng.WriteToMemory(envWire)
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "stage env: %w", err)
	}
	msgPtr, err := eng.WriteToMemory(payload)
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "stage message: %w", err)
	}
	outPtr, err := eng.Init(envPtr, msgPtr)
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "invoke init: %w", err)
	}
	output, err := eng.ExtractVector(outPtr)
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "extract output: %w", err)
	}

	state = StateEncrypting
	encrypted, err := msgcrypto.EncryptOutput(output, secretMsg.Nonce[:], secretMsg.UserPublicKey[:], canonicalAddr, enclave.MasterSecret())
	if err != nil {
		return fail(coreerr.KindEncryptionError, "encrypt output: %w", err)
	}

	state = StateDone
	log.Infow("init succeeded", "gas_used", eng.GasUsed())
	return &InitResult{Output: encrypted, ContractKey: contractKey}, nil
}

// Handle implements spec.md §4.G's handle entry point.
func (s *Service) Handle(
	ctx hostapi.Context,
	gasLimit uint64,
	usedGas *uint64,
	apiVersion envelope.ApiVersion,
	contract, envBytes, msgBytes, sigBytes []byte,
) (*HandleResult, error) {
	traceID := uuid.New().String()
	log := s.logger.With("trace_id", traceID, "op", "handle")
	guard := newGasGuard(usedGas)

	state := StateParse
	fail := func(k coreerr.Kind, format string, args ...interface{}) (*HandleResult, error) {
		log.Warnw("handle failed", "state", state, "kind", k)
		return nil, coreerr.Wrap(k, format, args...)
	}

	env, err := envelope.ParseEnvV010(envBytes)
	if err != nil {
		return fail(coreerr.KindFailedToDeserialize, "parse env: %w", err)
	}
	codeHash := envelope.HashCode(contract)
	envelope.StampCodeHash(env, codeHash)

	state = StateKeyResolve
	canonicalAddr, err := envelope.ToCanonical(envelope.HumanAddr(env.Contract.Address))
	if err != nil {
		return fail(coreerr.KindFailedToDeserialize, "canonicalize contract address: %w", err)
	}
	key, err := contractkey.Extract(env)
	if err != nil {
		return fail(coreerr.KindFailedContractAuthentication, "extract contract key: %w", err)
	}
	if !contractkey.Validate(enclave.MasterSecret(), key, canonicalAddr, codeHash) {
		return fail(coreerr.KindFailedContractAuthentication, "contract key validation failed")
	}
	log.Debugw("contract key validated", "contract_key", envelope.DebugBase58(key[:]))

	state = StateAuthenticate
	sigInfo, err := envelope.ParseSigInfo(sigBytes)
	if err != nil {
		return fail(coreerr.KindFailedToDeserialize, "parse sig info: %w", err)
	}
	// A single parse of the wire bytes suffices: the source this core is
	// modeled on calls SecretMessage::from_slice(msg) a second time at
	// this point, but parsing is pure here and the second parse has no
	// observable effect to preserve.
	secretMsg, err := envelope.ParseSecretMessage(msgBytes)
	if err != nil {
		return fail(coreerr.KindFailedToDeserialize, "parse secret message: %w", err)
	}
	log.Debugw("secret message parsed", "nonce", envelope.DebugBase58(secretMsg.Nonce[:]))
	if err := sigverify.VerifyParams(sigInfo, env, secretMsg); err != nil {
		return fail(coreerr.KindFailedTxVerification, "verify params: %w", err)
	}

	state = StateDecrypt
	plaintext, err := msgcrypto.Decrypt(secretMsg, enclave.MasterSecret())
	if err != nil {
		return fail(coreerr.KindDecryptionError, "decrypt message: %w", err)
	}

	state = StateValidate
	payload, err := msgcrypto.ValidateMsg(plaintext, codeHash)
	if err != nil {
		return fail(coreerr.KindValidationFailure, "validate message: %w", err)
	}

	state = StateEngineReady
	module, err := enclave.GetOrCompileModule(contract)
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "compile module: %w", err)
	}
	eng, err := engine.Start(module, &engine.ContractInstance{
		Context:       ctx,
		GasLimit:      gasLimit,
		Operation:     engine.OperationHandle,
		Nonce:         secretMsg.Nonce,
		UserPublicKey: secretMsg.UserPublicKey,
		ApiVersion:    apiVersion,
	})
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "start engine: %w", err)
	}
	defer eng.Close()
	guard.bind(eng.GasUsed)
	defer guard.release()

	state = StateExecuting
	envWire, err := envelope.EnvToBytes(env, apiVersion)
	if err != nil {
		return fail(coreerr.KindFailedToSerialize, "serialize env: %w", err)
	}
	envPtr, err := eng.WriteToMemory(envWire)
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "stage env: %w", err)
	}
	msgPtr, err := eng.WriteToMemory(payload)
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "stage message: %w", err)
	}
	outPtr, err := eng.Handle(envPtr, msgPtr)
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "invoke handle: %w", err)
	}
	output, err := eng.ExtractVector(outPtr)
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "extract output: %w", err)
	}

	state = StateEncrypting
	encrypted, err := msgcrypto.EncryptOutput(output, secretMsg.Nonce[:], secretMsg.UserPublicKey[:], canonicalAddr, enclave.MasterSecret())
	if err != nil {
		return fail(coreerr.KindEncryptionError, "encrypt output: %w", err)
	}

	state = StateDone
	log.Infow("handle succeeded", "gas_used", eng.GasUsed())
	return &HandleResult{Output: encrypted}, nil
}

// Query implements spec.md §4.G's query entry point. Queries carry no env
// and are never signature-checked (testable property 7): the msg buffer is
// prefixed with a raw contract-key that is split off and logged at debug
// level only. It is not passed to the engine and is never validated
// against the code — queries are read-only and the host is not trusted to
// authenticate them for this path.
func (s *Service) Query(
	ctx hostapi.Context,
	gasLimit uint64,
	usedGas *uint64,
	apiVersion envelope.ApiVersion,
	contract, msgBytes []byte,
) (*QueryResult, error) {
	traceID := uuid.New().String()
	log := s.logger.With("trace_id", traceID, "op", "query")
	guard := newGasGuard(usedGas)

	state := StateParse
	fail := func(k coreerr.Kind, format string, args ...interface{}) (*QueryResult, error) {
		log.Warnw("query failed", "state", state, "kind", k)
		return nil, coreerr.Wrap(k, format, args...)
	}

	if len(msgBytes) < contractkey.Length {
		return fail(coreerr.KindFailedFunctionCall, "query message shorter than contract key prefix")
	}
	advisoryKeyPrefix := msgBytes[:contractkey.Length] // advisory contract key prefix, see doc comment above
	log.Debugw("query advisory key prefix", "contract_key_prefix", envelope.DebugBase58(advisoryKeyPrefix))
	rest := msgBytes[contractkey.Length:]

	state = StateDecrypt
	codeHash := envelope.HashCode(contract)
	secretMsg, err := envelope.ParseSecretMessage(rest)
	if err != nil {
		return fail(coreerr.KindFailedToDeserialize, "parse secret message: %w", err)
	}
	log.Debugw("secret message parsed", "nonce", envelope.DebugBase58(secretMsg.Nonce[:]))
	plaintext, err := msgcrypto.Decrypt(secretMsg, enclave.MasterSecret())
	if err != nil {
		return fail(coreerr.KindDecryptionError, "decrypt message: %w", err)
	}

	state = StateValidate
	payload, err := msgcrypto.ValidateMsg(plaintext, codeHash)
	if err != nil {
		return fail(coreerr.KindValidationFailure, "validate message: %w", err)
	}

	state = StateEngineReady
	module, err := enclave.GetOrCompileModule(contract)
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "compile module: %w", err)
	}
	eng, err := engine.Start(module, &engine.ContractInstance{
		Context:       ctx,
		GasLimit:      gasLimit,
		Operation:     engine.OperationQuery,
		Nonce:         secretMsg.Nonce,
		UserPublicKey: secretMsg.UserPublicKey,
		ApiVersion:    apiVersion,
	})
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "start engine: %w", err)
	}
	defer eng.Close()
	guard.bind(eng.GasUsed)
	defer guard.release()

	state = StateExecuting
	msgPtr, err := eng.WriteToMemory(payload)
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "stage message: %w", err)
	}
	outPtr, err := eng.Query(msgPtr)
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "invoke query: %w", err)
	}
	output, err := eng.ExtractVector(outPtr)
	if err != nil {
		return fail(coreerr.KindFailedFunctionCall, "extract output: %w", err)
	}

	state = StateEncrypting
	encrypted, err := msgcrypto.EncryptOutput(output, secretMsg.Nonce[:], secretMsg.UserPublicKey[:], envelope.EmptyCanonicalAddr(), enclave.MasterSecret())
	if err != nil {
		return fail(coreerr.KindEncryptionError, "encrypt output: %w", err)
	}

	state = StateDone
	log.Infow("query succeeded", "gas_used", eng.GasUsed())
	return &QueryResult{Output: encrypted}, nil
}
