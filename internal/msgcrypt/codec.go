// Package msgcrypt seals message bodies at rest with AES-256-CBC.
package msgcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// DefaultSecret is used when no MESSAGE_ENCRYPTION_KEY is configured.
const DefaultSecret = "default_dev_key"

// Undecryptable replaces bodies that neither decode stage can open.
const Undecryptable = "[Encrypted message - could not be decrypted]"

var (
	ErrInvalidKey        = errors.New("msgcrypt: key must be 32 bytes")
	ErrMalformed         = errors.New("msgcrypt: malformed ciphertext")
	ErrBadPadding        = errors.New("msgcrypt: bad padding")
	ErrEmptyPlaintext    = errors.New("msgcrypt: empty plaintext")
	errInvalidUTF8Result = errors.New("msgcrypt: decrypted text is not valid UTF-8")
)

// Sealed is the at-rest form of a message body. Both fields are hex encoded.
// An empty IV marks content written by the legacy fixed-IV scheme.
type Sealed struct {
	Ciphertext string `json:"-"`
	IV         string `json:"-"`
}

// DeriveKey turns a configured secret of any length into a 32-byte key.
func DeriveKey(secret string) []byte {
	if secret == "" {
		secret = DefaultSecret
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Codec encrypts and decrypts message bodies with a fixed key.
type Codec struct {
	block     cipher.Block
	legacyKey []byte
	legacyIV  []byte
	rand      io.Reader
}

// Option configures a Codec.
type Option func(*Codec)

// WithRandom overrides the IV source.
func WithRandom(r io.Reader) Option {
	return func(c *Codec) {
		if r != nil {
			c.rand = r
		}
	}
}

// NewCodec builds a codec for a 32-byte key, typically from DeriveKey.
func NewCodec(key []byte, opts ...Option) (*Codec, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("msgcrypt: %w", err)
	}
	lk, liv := bytesToKey(key, 32, aes.BlockSize)
	c := &Codec{block: block, legacyKey: lk, legacyIV: liv, rand: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FromSecret builds a codec keyed by DeriveKey(secret). An empty secret
// selects DefaultSecret so rows written under the default key stay readable.
func FromSecret(secret string, opts ...Option) (*Codec, error) {
	return NewCodec(DeriveKey(secret), opts...)
}

// Seal encrypts plaintext with a fresh random IV.
func (c *Codec) Seal(plaintext string) (Sealed, error) {
	if plaintext == "" {
		return Sealed{}, ErrEmptyPlaintext
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return Sealed{}, fmt.Errorf("msgcrypt: read iv: %w", err)
	}
	data := pad([]byte(plaintext))
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out, data)
	return Sealed{Ciphertext: hex.EncodeToString(out), IV: hex.EncodeToString(iv)}, nil
}

// Open decodes in two stages: the per-message IV scheme first, then the
// legacy scheme whose key and IV are derived from the message key.
func (c *Codec) Open(s Sealed) (string, error) {
	plain, modernErr := c.openModern(s)
	if modernErr == nil {
		return plain, nil
	}
	plain, legacyErr := c.openLegacy(s)
	if legacyErr == nil {
		return plain, nil
	}
	return "", errors.Join(modernErr, legacyErr)
}

// OpenOrPlaceholder never fails; undecodable bodies become Undecryptable.
func (c *Codec) OpenOrPlaceholder(s Sealed) string {
	plain, err := c.Open(s)
	if err != nil {
		return Undecryptable
	}
	return plain
}

func (c *Codec) openModern(s Sealed) (string, error) {
	if s.IV == "" {
		return "", fmt.Errorf("%w: missing iv", ErrMalformed)
	}
	iv, err := hex.DecodeString(s.IV)
	if err != nil || len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: iv", ErrMalformed)
	}
	return decryptCBC(c.block, iv, s.Ciphertext)
}

func (c *Codec) openLegacy(s Sealed) (string, error) {
	block, err := aes.NewCipher(c.legacyKey)
	if err != nil {
		return "", err
	}
	return decryptCBC(block, c.legacyIV, s.Ciphertext)
}

func decryptCBC(block cipher.Block, iv []byte, ciphertextHex string) (string, error) {
	raw, err := hex.DecodeString(ciphertextHex)
	if err != nil || len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext", ErrMalformed)
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, raw)
	plain, err := unpad(out)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", errInvalidUTF8Result
	}
	return string(plain), nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, ErrBadPadding
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}

// bytesToKey is OpenSSL's EVP_BytesToKey with MD5, one round and no salt.
func bytesToKey(password []byte, keyLen, ivLen int) ([]byte, []byte) {
	var (
		buf  []byte
		prev []byte
	)
	for len(buf) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(password)
		prev = h.Sum(nil)
		buf = append(buf, prev...)
	}
	return buf[:keyLen], buf[keyLen : keyLen+ivLen]
}
