package contenthash_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"packrat-go/internal/contenthash"
)

// want computes the expected hash: sha256 over the concatenated sha256
// digests of each 4 MiB block.
func want(data []byte) string {
	outer := sha256.New()
	for len(data) > 0 {
		n := len(data)
		if n > contenthash.BlockSize {
			n = contenthash.BlockSize
		}
		block := sha256.Sum256(data[:n])
		outer.Write(block[:])
		data = data[n:]
	}
	return hex.EncodeToString(outer.Sum(nil))
}

func TestSum(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		got, err := contenthash.Sum(bytes.NewReader(nil))
		if err != nil {
			t.Fatalf("Sum() error = %v", err)
		}
		if want := hex.EncodeToString(sha256.New().Sum(nil)); got != want {
			t.Errorf("Sum() = %s, want %s", got, want)
		}
	})

	t.Run("single block", func(t *testing.T) {
		data := []byte("the quick brown fox")
		got, err := contenthash.Sum(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("Sum() error = %v", err)
		}
		if want := want(data); got != want {
			t.Errorf("Sum() = %s, want %s", got, want)
		}
	})

	t.Run("block boundary", func(t *testing.T) {
		data := bytes.Repeat([]byte{0xab}, contenthash.BlockSize)
		got, err := contenthash.Sum(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("Sum() error = %v", err)
		}
		if want := want(data); got != want {
			t.Errorf("Sum() = %s, want %s", got, want)
		}
	})

	t.Run("spans multiple blocks", func(t *testing.T) {
		data := bytes.Repeat([]byte{0xcd}, contenthash.BlockSize+1024)
		got, err := contenthash.Sum(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("Sum() error = %v", err)
		}
		if want := want(data); got != want {
			t.Errorf("Sum() = %s, want %s", got, want)
		}
	})
}

func TestFile(t *testing.T) {
	t.Run("hashes file content", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.txt")
		data := []byte("file content to hash")
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}
		got, err := contenthash.File(path)
		if err != nil {
			t.Fatalf("File() error = %v", err)
		}
		if want := want(data); got != want {
			t.Errorf("File() = %s, want %s", got, want)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := contenthash.File(filepath.Join(t.TempDir(), "nope")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
