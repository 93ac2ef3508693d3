package intunewin

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/intunedeploy/internal/common"
	"github.com/stretchr/testify/require"
)

// encryptPayload produces a payload the way the packaging tool does:
// a 48-byte staging header followed by AES-CBC ciphertext of the
// PKCS#7-padded plaintext.
func encryptPayload(t *testing.T, plaintext, key, iv []byte) []byte {
	t.Helper()

	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := make([]byte, len(plaintext)+pad)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	header := bytes.Repeat([]byte{0xAB}, stagingHeaderSize)
	return append(header, ciphertext...)
}

func testKeyIV() (key, iv []byte) {
	return bytes.Repeat([]byte{0x42}, 32), bytes.Repeat([]byte{0x24}, 16)
}

func TestDecryptFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	key, iv := testKeyIV()

	plaintext := make([]byte, 1024)
	for i := range plaintext {
		plaintext[i] = byte(i % 251)
	}

	src := filepath.Join(dir, "payload.enc")
	require.NoError(t, os.WriteFile(src, encryptPayload(t, plaintext, key, iv), 0o600))

	dst := filepath.Join(dir, "payload.dec")
	require.NoError(t, DecryptFile(src, dst, key, iv, int64(len(plaintext))))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Len(t, got, 1024)
	require.Equal(t, plaintext, got)
}

func TestDecryptFile_Deterministic(t *testing.T) {
	dir := t.TempDir()
	key, iv := testKeyIV()
	plaintext := []byte("same input, same output")

	src := filepath.Join(dir, "payload.enc")
	require.NoError(t, os.WriteFile(src, encryptPayload(t, plaintext, key, iv), 0o600))

	dst1 := filepath.Join(dir, "a.dec")
	dst2 := filepath.Join(dir, "b.dec")
	require.NoError(t, DecryptFile(src, dst1, key, iv, int64(len(plaintext))))
	require.NoError(t, DecryptFile(src, dst2, key, iv, int64(len(plaintext))))

	a, err := os.ReadFile(dst1)
	require.NoError(t, err)
	b, err := os.ReadFile(dst2)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDecryptFile_NonBlockAlignedPlaintext(t *testing.T) {
	dir := t.TempDir()
	key, iv := testKeyIV()
	plaintext := []byte("seven b") // forces a padded final block

	src := filepath.Join(dir, "payload.enc")
	require.NoError(t, os.WriteFile(src, encryptPayload(t, plaintext, key, iv), 0o600))

	dst := filepath.Join(dir, "payload.dec")
	require.NoError(t, DecryptFile(src, dst, key, iv, int64(len(plaintext))))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptFile_BadKeyLength(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "payload.enc")
	require.NoError(t, os.WriteFile(src, make([]byte, 64), 0o600))

	err := DecryptFile(src, filepath.Join(dir, "out"), []byte("short"), make([]byte, 16), 10)
	require.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestDecryptFile_BadIVLength(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "payload.enc")
	require.NoError(t, os.WriteFile(src, make([]byte, 64), 0o600))

	err := DecryptFile(src, filepath.Join(dir, "out"), make([]byte, 32), []byte("short"), 10)
	require.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestDecryptFile_TruncatedCiphertext(t *testing.T) {
	dir := t.TempDir()
	key, iv := testKeyIV()
	plaintext := make([]byte, 100)

	data := encryptPayload(t, plaintext, key, iv)
	src := filepath.Join(dir, "payload.enc")
	require.NoError(t, os.WriteFile(src, data[:len(data)-aes.BlockSize], 0o600))

	err := DecryptFile(src, filepath.Join(dir, "out"), key, iv, int64(len(plaintext)))
	require.ErrorIs(t, err, common.ErrDecryptionFailed)
	require.Contains(t, err.Error(), "short")
}

func TestDecryptFile_MisalignedCiphertext(t *testing.T) {
	dir := t.TempDir()
	key, iv := testKeyIV()

	data := encryptPayload(t, make([]byte, 100), key, iv)
	src := filepath.Join(dir, "payload.enc")
	require.NoError(t, os.WriteFile(src, data[:len(data)-3], 0o600))

	err := DecryptFile(src, filepath.Join(dir, "out"), key, iv, 100)
	require.ErrorIs(t, err, common.ErrDecryptionFailed)
}

// End-to-end over a real container: the descriptor's declared size matches
// the decrypted output byte for byte.
func TestContainerDecrypt_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	key, iv := testKeyIV()

	plaintext := make([]byte, 1024)
	for i := range plaintext {
		plaintext[i] = byte(i)
	}

	path := writeContainer(t, dir, "app.intunewin.bin", int64(len(plaintext)), key, iv,
		encryptPayload(t, plaintext, key, iv))

	desc, encPath, err := Open(path)
	require.NoError(t, err)

	k, err := desc.Key()
	require.NoError(t, err)
	v, err := desc.IV()
	require.NoError(t, err)

	dst := filepath.Join(dir, "app.dec")
	require.NoError(t, DecryptFile(encPath, dst, k, v, desc.UnencryptedSize))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, int64(len(got)), desc.UnencryptedSize)
	require.Equal(t, plaintext, got)
}

func TestDecryptFile_SourceMissing(t *testing.T) {
	dir := t.TempDir()
	key, iv := testKeyIV()

	err := DecryptFile(filepath.Join(dir, "nope"), filepath.Join(dir, "out"), key, iv, 10)
	require.ErrorIs(t, err, common.ErrDecryptionFailed)
}
