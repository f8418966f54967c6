package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"smartqa-backend/internal/shared/util"
)

var ErrInvalidKey = errors.New("invalid storage key")

// ObjectStore defines the contract for saving and retrieving binary objects.
type ObjectStore interface {
	Put(ctx context.Context, storageKey string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, storageKey string) error
}

// DocumentKey builds the storage key for a document attached to an analysis.
// Owner ids are hashed so keys never leak identities.
func DocumentKey(ownerID, analysisID, fileName string) (string, error) {
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	if strings.TrimSpace(analysisID) == "" {
		return "", ErrInvalidKey
	}
	return path.Join("documents", util.HashUserKey(ownerID), analysisID, util.RandomID()+"_"+name), nil
}

// CleanKey rejects absolute keys and traversal.
func CleanKey(storageKey string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(storageKey, "\\", "/"))
	if clean == "." || strings.HasPrefix(clean, "..") || strings.HasPrefix(clean, "/") {
		return "", ErrInvalidKey
	}
	return clean, nil
}
