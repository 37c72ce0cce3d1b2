// Package content stores image bytes under content-addressed keys.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path"
	"strings"
)

var (
	// ErrExists is returned by PutIfAbsent when the key is already stored.
	ErrExists = errors.New("content already exists")
	// ErrInvalidKey signals a key that escapes the store root.
	ErrInvalidKey = errors.New("invalid content key")
)

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Key lays out a digest as <ext>/<digest[0:2]>/<digest>.<ext>.
func Key(digest, ext string) string {
	shard := digest
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return path.Join(ext, shard, digest+"."+ext)
}

func validKey(key string) bool {
	if key == "" || path.IsAbs(key) {
		return false
	}
	clean := path.Clean(key)
	return clean == key && clean != "." && clean != ".." && !strings.HasPrefix(clean, "../")
}
