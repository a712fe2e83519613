package credstore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	saltSize        = 16
)

var (
	// ErrEnvelopeAuth means the passphrase was wrong or the data was
	// tampered with.
	ErrEnvelopeAuth = errors.New("credential envelope authentication failed")
	// ErrEnvelopeInvalid means the stored data is not a recognizable
	// envelope.
	ErrEnvelopeInvalid = errors.New("credential envelope is invalid")
)

// envelope is the on-disk format for the encrypted credentials: an
// argon2id-derived key sealing the payload with XChaCha20-Poly1305.
type envelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

func deriveKey(passphrase string, salt []byte, timeCost, memoryKB uint32, threads uint8) []byte {
	return argon2.IDKey([]byte(passphrase), salt, timeCost, memoryKB, threads, chacha20poly1305.KeySize)
}

func seal(passphrase string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	env := envelope{
		Version:     envelopeVersion,
		KDF:         "argon2id",
		KDFTime:     2,
		KDFMemoryKB: 64 * 1024,
		KDFThreads:  1,
		Salt:        salt,
	}

	key := deriveKey(passphrase, salt, env.KDFTime, env.KDFMemoryKB, env.KDFThreads)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	env.Nonce = make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(env.Nonce); err != nil {
		return nil, err
	}
	env.Ciphertext = aead.Seal(nil, env.Nonce, plaintext, nil)

	return json.Marshal(env)
}

func open(passphrase string, data []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}
	if env.Version != envelopeVersion || env.KDF != "argon2id" {
		return nil, ErrEnvelopeInvalid
	}
	if len(env.Salt) != saltSize || len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrEnvelopeInvalid
	}

	key := deriveKey(passphrase, env.Salt, env.KDFTime, env.KDFMemoryKB, env.KDFThreads)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrEnvelopeAuth
	}
	return plaintext, nil
}
