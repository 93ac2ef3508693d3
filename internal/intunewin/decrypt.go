package intunewin

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/intunedeploy/internal/common"
)

// stagingHeaderSize is the fixed prefix the packaging tool writes in front of
// the ciphertext. It is not part of the encrypted stream and must be skipped.
const stagingHeaderSize = 48

// decryptChunkSize bounds memory use while decrypting. Must be a multiple of
// the AES block size.
const decryptChunkSize = 2 << 20

// DecryptFile decrypts the AES-CBC payload at src into dst, skipping the
// staging header. Exactly size cleartext bytes are written; trailing block
// padding beyond size is discarded, and a stream that ends before size bytes
// were produced is an error. All failures match common.ErrDecryptionFailed.
func DecryptFile(src, dst string, key, iv []byte, size int64) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	if len(iv) != aes.BlockSize {
		return fmt.Errorf("%w: initialization vector must be %d bytes, got %d", common.ErrDecryptionFailed, aes.BlockSize, len(iv))
	}
	mode := cipher.NewCBCDecrypter(block, iv)

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", common.ErrDecryptionFailed, src, err)
	}
	defer in.Close()

	if _, err := in.Seek(stagingHeaderSize, io.SeekStart); err != nil {
		return fmt.Errorf("%w: skip staging header: %v", common.ErrDecryptionFailed, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", common.ErrDecryptionFailed, dst, err)
	}
	defer out.Close()

	buf := make([]byte, decryptChunkSize)
	remaining := size

	for {
		n, rerr := io.ReadFull(in, buf)
		if rerr == io.EOF {
			break
		}
		if rerr != nil && rerr != io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: read ciphertext: %v", common.ErrDecryptionFailed, rerr)
		}
		if n%aes.BlockSize != 0 {
			return fmt.Errorf("%w: ciphertext length is not a multiple of the block size", common.ErrDecryptionFailed)
		}

		chunk := buf[:n]
		mode.CryptBlocks(chunk, chunk)

		w := int64(len(chunk))
		if w > remaining {
			w = remaining
		}
		if w > 0 {
			if _, err := out.Write(chunk[:w]); err != nil {
				return fmt.Errorf("%w: write cleartext: %v", common.ErrDecryptionFailed, err)
			}
			remaining -= w
		}

		if rerr == io.ErrUnexpectedEOF {
			break
		}
	}

	if remaining > 0 {
		return fmt.Errorf("%w: ciphertext ended %d bytes short of the declared size", common.ErrDecryptionFailed, remaining)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", common.ErrDecryptionFailed, dst, err)
	}
	return nil
}
