package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

// Fingerprint returns the hex BLAKE3 digest of raw config bytes.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return Fingerprint(data), nil
}

// VerifyFileHash reports whether the source file still matches the hash it
// was loaded with.
func (c *Config) VerifyFileHash() error {
	if c.SourcePath == "" {
		return fmt.Errorf("config has no source file")
	}
	actual, err := ComputeBlake3Hash(c.SourcePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actual != c.Hash {
		return fmt.Errorf("config %s changed on disk since load: expected %s, got %s", c.SourcePath, c.Hash, actual)
	}
	return nil
}
