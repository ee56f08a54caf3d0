// Package contenthash implements the block-chained content hash used to
// verify downloaded revision bytes: the file is split into fixed-size blocks,
// each block is hashed with SHA-256, and the concatenation of the block
// digests is hashed again. The result is hex encoded.
//
// See https://www.dropbox.com/developers/reference/content-hash
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// BlockSize is the fixed block length the remote hashes over.
const BlockSize = 4 * 1024 * 1024

// Sum computes the content hash of everything readable from r.
func Sum(r io.Reader) (string, error) {
	var blockHashes []byte
	buf := make([]byte, BlockSize)

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			digest := sha256.Sum256(buf[:n])
			blockHashes = append(blockHashes, digest[:]...)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading block: %w", err)
		}
	}

	final := sha256.Sum256(blockHashes)
	return hex.EncodeToString(final[:]), nil
}

// File computes the content hash of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file for hashing: %w", err)
	}
	defer f.Close()

	return Sum(f)
}
