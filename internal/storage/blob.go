package storage

import (
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrBadKey   = errors.New("invalid blob key")
	ErrNotFound = errors.New("blob not found")
)

type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	Delete(key string) error // missing keys are not an error
}

// AssetPrefix is where the gateway serves stored blobs.
const AssetPrefix = "/assets/"

// URL is the public path a stored key is served from.
func URL(key string) string {
	return AssetPrefix + key
}

// CleanKey normalises key to a relative slash path and rejects anything that
// would escape the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.ReplaceAll(key, "\\", "/"), "/")
	if key == "" {
		return "", ErrBadKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", ErrBadKey
		}
	}
	return path.Clean(key), nil
}
