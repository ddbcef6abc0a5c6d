package encrypt

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Seal compresses data and, when aesKey is non-empty, encrypts it
func Seal(data []byte, aesKey []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to compress data: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	if len(aesKey) == 0 {
		return buf.Bytes(), nil
	}
	encrypted, err := aesGcmEncrypt(buf.Bytes(), aesKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt data: %w", err)
	}
	return encrypted, nil
}

// Open reverses Seal
func Open(data []byte, aesKey []byte) ([]byte, error) {
	compressed := data
	if len(aesKey) > 0 {
		decrypted, err := aesGcmDecrypt(data, aesKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt data: %w", err)
		}
		compressed = decrypted
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress data: %w", err)
	}
	return out, nil
}
