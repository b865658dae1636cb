// Package envelope implements the chunked encryption container that
// wraps a vault's serialized records on disk: a TLV metadata header
// naming the KDF, cipher and compression in use, followed by an AEAD
// ciphertext body. It also exposes per-value encrypt/decrypt helpers
// used for field-level password storage.
package envelope

import (
	"bytes"
	"encoding/binary"
	"encoding/base64"
	"crypto/rand"
	"fmt"
	"hash/crc32"
	"io"
	"log"

	"github.com/keyvault-go/keybox/internal/aead"
	"github.com/keyvault-go/keybox/internal/compressor"
	"github.com/keyvault-go/keybox/internal/kdf"
	"github.com/keyvault-go/keybox/internal/secureio"
	"github.com/keyvault-go/keybox/internal/verr"
)

var magic = [4]byte{'[', 'K', ']', 0}

const (
	tagEnd         byte = 0
	tagDataSize    byte = 1
	tagPlainSize   byte = 2
	tagCompression byte = 3
	tagCipher      byte = 4
	tagKDF         byte = 5
	tagKDFParams   byte = 6
	tagSalt        byte = 7
	tagCRC32       byte = 8

	minSaltSize = 16
)

// kdfArgon2id is the only registered KDF id. Kept as a constant rather
// than a registry (unlike aead/compressor) since only one KDF is named.
const kdfArgon2id byte = 1

// Logger receives forward-compatibility warnings (unknown header tag).
type Logger interface {
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Warnf(string, ...any) {}

type stdLogger struct{}

func (stdLogger) Warnf(format string, args ...any) { log.Printf(format, args...) }

// Envelope holds the KDF/cipher/compression selection and derived key
// material for one encrypted file or field.
type Envelope struct {
	kdfID      byte
	kdfParams  kdf.Params
	cipherID   byte
	cipher     aead.Cipher
	compressID byte
	compressor compressor.Compressor
	salt       []byte
	key        *secureio.SecureBytes
	logger     Logger
}

// New returns an Envelope configured with the default KDF (Argon2id),
// cipher (XSalsa20-Poly1305) and compression (deflate), and a fresh
// random salt. Call SetPassphrase before Write/Read.
func New() *Envelope {
	salt := make([]byte, minSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		panic(fmt.Sprintf("envelope: generate salt: %v", err))
	}
	cipher, _ := aead.ByID(aead.XSalsa20Poly1305)
	comp, _ := compressor.ByID(compressor.Deflate)
	return &Envelope{
		kdfID:      kdfArgon2id,
		kdfParams:  kdf.DefaultParams(),
		cipherID:   aead.XSalsa20Poly1305,
		cipher:     cipher,
		compressID: compressor.Deflate,
		compressor: comp,
		salt:       salt,
		logger:     stdLogger{},
	}
}

// SetLogger overrides the warning sink (default: the standard library
// logger). A nil logger discards warnings.
func (e *Envelope) SetLogger(logger Logger) {
	if logger == nil {
		logger = nopLogger{}
	}
	e.logger = logger
}

// SetCipher selects a non-default registered cipher by id. Must be
// called before SetPassphrase.
func (e *Envelope) SetCipher(id byte) error {
	c, ok := aead.ByID(id)
	if !ok {
		return fmt.Errorf("envelope: unknown cipher id %d: %w", id, verr.ErrCorruptFormat)
	}
	e.cipherID = id
	e.cipher = c
	return nil
}

// SetCompression selects a non-default registered compressor by id.
func (e *Envelope) SetCompression(id byte) error {
	c, ok := compressor.ByID(id)
	if !ok {
		return fmt.Errorf("envelope: unknown compression id %d: %w", id, verr.ErrCorruptFormat)
	}
	e.compressID = id
	e.compressor = c
	return nil
}

// SetPassphrase derives the working key from passphrase and the
// envelope's current salt/KDF parameters.
func (e *Envelope) SetPassphrase(passphrase string) error {
	if e.cipher == nil {
		return fmt.Errorf("envelope: no cipher selected")
	}
	key := kdf.Derive(passphrase, e.salt, e.cipher.KeySize(), e.kdfParams)
	if e.key != nil {
		e.key.Close()
	}
	e.key = secureio.New(key)
	return nil
}

// CheckPassphrase reports whether passphrase re-derives the current key.
func (e *Envelope) CheckPassphrase(passphrase string) bool {
	if e.key == nil || e.cipher == nil {
		return false
	}
	candidate := kdf.Derive(passphrase, e.salt, e.cipher.KeySize(), e.kdfParams)
	defer secureio.New(candidate).Close()
	return e.key.Equal(candidate)
}

// Close zeroes the working key.
func (e *Envelope) Close() {
	if e.key != nil {
		e.key.Close()
		e.key = nil
	}
}

func writeChunk(buf *bytes.Buffer, tag byte, value []byte) error {
	if len(value) > 255 {
		return fmt.Errorf("envelope: chunk value too large for tag %d (%d bytes)", tag, len(value))
	}
	buf.WriteByte(tag)
	buf.WriteByte(byte(len(value)))
	buf.Write(value)
	return nil
}

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func unpackUint(value []byte) (uint64, error) {
	switch len(value) {
	case 1:
		return uint64(value[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(value)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(value)), nil
	case 8:
		return binary.LittleEndian.Uint64(value), nil
	default:
		return 0, fmt.Errorf("envelope: unsupported integer width %d: %w", len(value), verr.ErrCorruptFormat)
	}
}

// writeHeader emits MAGIC, META_SIZE and the metadata chunk sequence.
func (e *Envelope) writeHeader(w io.Writer, dataSize, plainSize uint64, crc uint32) error {
	var meta bytes.Buffer
	if err := writeChunk(&meta, tagDataSize, u32le(uint32(dataSize))); err != nil {
		return err
	}
	if err := writeChunk(&meta, tagPlainSize, u32le(uint32(plainSize))); err != nil {
		return err
	}
	if err := writeChunk(&meta, tagCompression, []byte{e.compressID}); err != nil {
		return err
	}
	if err := writeChunk(&meta, tagCipher, []byte{e.cipherID}); err != nil {
		return err
	}
	if err := writeChunk(&meta, tagKDF, []byte{e.kdfID}); err != nil {
		return err
	}
	if err := writeChunk(&meta, tagKDFParams, e.kdfParams.Encode()); err != nil {
		return err
	}
	if err := writeChunk(&meta, tagSalt, e.salt); err != nil {
		return err
	}
	if err := writeChunk(&meta, tagCRC32, u32le(crc)); err != nil {
		return err
	}
	if err := meta.WriteByte(tagEnd); err != nil {
		return err
	}

	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if _, err := w.Write(u32le(uint32(meta.Len()))); err != nil {
		return err
	}
	_, err := w.Write(meta.Bytes())
	return err
}

type header struct {
	dataSize  int64
	plainSize int64
	haveCRC   bool
	crc       uint32
}

// readHeader parses MAGIC, META_SIZE and the metadata chunks, applying
// any KDF/cipher/compression/salt selection found to e.
func (e *Envelope) readHeader(r io.Reader) (header, error) {
	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return header{}, fmt.Errorf("envelope: read magic: %w", err)
	}
	if gotMagic != magic {
		return header{}, fmt.Errorf("envelope: bad magic: %w", verr.ErrCorruptFormat)
	}
	var metaSizeBuf [4]byte
	if _, err := io.ReadFull(r, metaSizeBuf[:]); err != nil {
		return header{}, fmt.Errorf("envelope: read meta size: %w", err)
	}
	metaSize := binary.LittleEndian.Uint32(metaSizeBuf[:])
	meta := make([]byte, metaSize)
	if _, err := io.ReadFull(r, meta); err != nil {
		return header{}, fmt.Errorf("envelope: read meta: %w", err)
	}

	h := header{dataSize: -1, plainSize: -1}
	pos := 0
	for pos < len(meta) {
		tag := meta[pos]
		pos++
		if tag == tagEnd {
			break
		}
		if pos >= len(meta) {
			break
		}
		length := int(meta[pos])
		pos++
		if pos+length > len(meta) {
			return header{}, fmt.Errorf("envelope: truncated chunk for tag %d: %w", tag, verr.ErrCorruptFormat)
		}
		value := meta[pos : pos+length]
		pos += length

		switch tag {
		case tagDataSize:
			v, err := unpackUint(value)
			if err != nil {
				return header{}, err
			}
			h.dataSize = int64(v)
		case tagPlainSize:
			v, err := unpackUint(value)
			if err != nil {
				return header{}, err
			}
			h.plainSize = int64(v)
		case tagCompression:
			if length != 1 {
				return header{}, fmt.Errorf("envelope: bad compression chunk: %w", verr.ErrCorruptFormat)
			}
			c, ok := compressor.ByID(value[0])
			if !ok {
				return header{}, fmt.Errorf("envelope: unknown compression id %d: %w", value[0], verr.ErrCorruptFormat)
			}
			e.compressID = value[0]
			e.compressor = c
		case tagCipher:
			if length != 1 {
				return header{}, fmt.Errorf("envelope: bad cipher chunk: %w", verr.ErrCorruptFormat)
			}
			c, ok := aead.ByID(value[0])
			if !ok {
				return header{}, fmt.Errorf("envelope: unknown cipher id %d: %w", value[0], verr.ErrCorruptFormat)
			}
			e.cipherID = value[0]
			e.cipher = c
		case tagKDF:
			if length != 1 || value[0] != kdfArgon2id {
				return header{}, fmt.Errorf("envelope: unknown KDF id: %w", verr.ErrCorruptFormat)
			}
			e.kdfID = value[0]
		case tagKDFParams:
			p, err := kdf.DecodeParams(value)
			if err != nil {
				return header{}, fmt.Errorf("%w: %v", verr.ErrCorruptFormat, err)
			}
			e.kdfParams = p
		case tagSalt:
			if len(value) < minSaltSize {
				return header{}, fmt.Errorf("envelope: salt shorter than %d bytes: %w", minSaltSize, verr.ErrCorruptFormat)
			}
			e.salt = append([]byte(nil), value...)
		case tagCRC32:
			v, err := unpackUint(value)
			if err != nil {
				return header{}, err
			}
			h.haveCRC = true
			h.crc = uint32(v)
		default:
			e.logger.Warnf("envelope: unknown metadata tag %d, skipping %d bytes", tag, length)
		}
	}
	return h, nil
}

// Write computes plaintext's CRC32, compresses, encrypts with a fresh
// nonce, and emits the header followed by the body.
func (e *Envelope) Write(w io.Writer, plaintext []byte) error {
	if e.key == nil {
		return fmt.Errorf("envelope: no passphrase set")
	}
	crc := crc32.ChecksumIEEE(plaintext)
	compressed, err := e.compressor.Compress(plaintext)
	if err != nil {
		return fmt.Errorf("envelope: compress: %w", err)
	}
	nonce, err := aead.NewNonce(e.cipher)
	if err != nil {
		return err
	}
	ciphertext := e.cipher.Seal(e.key.Bytes(), nonce, compressed)
	body := append(nonce, ciphertext...)

	if err := e.writeHeader(w, uint64(len(body)), uint64(len(plaintext)), crc); err != nil {
		return fmt.Errorf("envelope: write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("envelope: write body: %w", err)
	}
	return nil
}

// Read parses the header, reads the body, obtains a passphrase via
// askPassphrase, derives the key, decrypts and decompresses, and
// verifies the plain-size and CRC32 assertions when present.
func (e *Envelope) Read(r io.Reader, askPassphrase func() (string, error)) ([]byte, error) {
	h, err := e.readHeader(r)
	if err != nil {
		return nil, err
	}
	if h.dataSize < 0 {
		return nil, fmt.Errorf("envelope: missing data size: %w", verr.ErrCorruptFormat)
	}
	body := make([]byte, h.dataSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("envelope: read body: %w", err)
	}
	if e.cipher == nil {
		return nil, fmt.Errorf("envelope: no cipher selected: %w", verr.ErrCorruptFormat)
	}
	if len(body) < e.cipher.NonceSize() {
		return nil, fmt.Errorf("envelope: body shorter than nonce: %w", verr.ErrCorruptFormat)
	}
	passphrase, err := askPassphrase()
	if err != nil {
		return nil, err
	}
	if err := e.SetPassphrase(passphrase); err != nil {
		return nil, err
	}

	nonce := body[:e.cipher.NonceSize()]
	ciphertext := body[e.cipher.NonceSize():]
	compressed, err := e.cipher.Open(e.key.Bytes(), nonce, ciphertext)
	if err != nil {
		return nil, verr.ErrAuthFailure
	}

	plainHint := -1
	if h.plainSize >= 0 {
		plainHint = int(h.plainSize)
	}
	plaintext, err := e.compressor.Decompress(compressed, plainHint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", verr.ErrCorruptFormat, err)
	}
	if h.haveCRC && crc32.ChecksumIEEE(plaintext) != h.crc {
		return nil, fmt.Errorf("envelope: crc32 mismatch: %w", verr.ErrCorruptFormat)
	}
	return plaintext, nil
}

// EncryptB64 encrypts s with a fresh nonce under the current key and
// returns the base64 encoding of nonce‖ciphertext‖tag. Used for
// per-field (password) encryption.
func (e *Envelope) EncryptB64(s string) (string, error) {
	if e.key == nil {
		return "", fmt.Errorf("envelope: no passphrase set")
	}
	nonce, err := aead.NewNonce(e.cipher)
	if err != nil {
		return "", err
	}
	ciphertext := e.cipher.Seal(e.key.Bytes(), nonce, []byte(s))
	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

// DecryptB64 reverses EncryptB64.
func (e *Envelope) DecryptB64(s string) (string, error) {
	if e.key == nil {
		return "", fmt.Errorf("envelope: no passphrase set")
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("envelope: decode base64: %w", verr.ErrCorruptFormat)
	}
	if len(raw) < e.cipher.NonceSize() {
		return "", fmt.Errorf("envelope: value shorter than nonce: %w", verr.ErrCorruptFormat)
	}
	nonce := raw[:e.cipher.NonceSize()]
	ciphertext := raw[e.cipher.NonceSize():]
	plaintext, err := e.cipher.Open(e.key.Bytes(), nonce, ciphertext)
	if err != nil {
		return "", verr.ErrAuthFailure
	}
	return string(plaintext), nil
}
