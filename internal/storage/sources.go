package storage

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"

	"github.com/coderev/coderev/backend/go-services/internal/models"
	"github.com/coderev/coderev/backend/go-services/pkg/logger"
	"github.com/coderev/coderev/backend/go-services/pkg/metrics"
)

var ErrUnsupportedFile = errors.New("unsupported source file type")

// CacheControl is set on every uploaded source file.
const CacheControl = "public, max-age=3600, s-maxage=3600"

// UploadResult describes a stored file. It still has to be recorded on the
// owning entity.
type UploadResult struct {
	UID        string `json:"uid"`
	Size       int64  `json:"size"`
	URL        string `json:"url"`
	Path       string `json:"path"`
	AddedAtUTC string `json:"addedAtUtc"`
}

// SourceStorage stores workspace source files under "<workspaceUid>/<uid><ext>".
type SourceStorage struct {
	store ObjectStore
}

func NewSourceStorage(store ObjectStore) *SourceStorage {
	return &SourceStorage{store: store}
}

// AddSourceFile uploads content for a workspace. Without explicitUID the uid
// is the SHA-1 of the content, so uploading the same file twice stores one
// object. An explicit uid overwrites that object and is recorded in the
// "explicitUid" metadata.
func (s *SourceStorage) AddSourceFile(ctx context.Context, workspaceUID, fileName string, content []byte, metadata map[string]string, explicitUID string) (*UploadResult, error) {
	if !models.IsAllowedCodeFile(fileName) {
		metrics.StorageOps.WithLabelValues("put", "rejected").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, fileName)
	}
	ext := models.Ext(fileName)

	uid := explicitUID
	meta := map[string]string{"originalFileName": fileName}
	for k, v := range metadata {
		meta[k] = v
	}
	if uid == "" {
		sum := sha1.Sum(content)
		uid = hex.EncodeToString(sum[:])
	} else {
		meta["explicitUid"] = uid
	}

	key := workspaceUID + "/" + uid + ext
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	size, err := s.store.Put(ctx, key, bytes.NewReader(content), int64(len(content)), PutOptions{
		ContentType:  contentType,
		CacheControl: CacheControl,
		Metadata:     meta,
	})
	if err != nil {
		metrics.StorageOps.WithLabelValues("put", "error").Inc()
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}
	url, err := s.store.URL(ctx, key)
	if err != nil {
		metrics.StorageOps.WithLabelValues("put", "error").Inc()
		return nil, fmt.Errorf("url %s: %w", key, err)
	}
	metrics.StorageOps.WithLabelValues("put", "ok").Inc()

	return &UploadResult{
		UID:        uid,
		Size:       size,
		URL:        url,
		Path:       key,
		AddedAtUTC: models.NowUTC(),
	}, nil
}

// DeleteFile removes the object at path. Failures are logged and reported as
// false so bulk cleanup can continue.
func (s *SourceStorage) DeleteFile(ctx context.Context, path string) bool {
	logger.Infof("storage: deleting %s", path)
	if err := s.store.Remove(ctx, path); err != nil {
		metrics.StorageOps.WithLabelValues("delete", "error").Inc()
		logger.Errorf("storage: deletion of %s failed: %v", path, err)
		return false
	}
	metrics.StorageOps.WithLabelValues("delete", "ok").Inc()
	return true
}

// ReadText returns the contents of path, or "" when it cannot be read.
func (s *SourceStorage) ReadText(ctx context.Context, path string) string {
	rc, err := s.store.Get(ctx, path)
	if err != nil {
		metrics.StorageOps.WithLabelValues("read", "error").Inc()
		logger.Errorf("storage: read of %s failed: %v", path, err)
		return ""
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		metrics.StorageOps.WithLabelValues("read", "error").Inc()
		logger.Errorf("storage: read of %s failed: %v", path, err)
		return ""
	}
	metrics.StorageOps.WithLabelValues("read", "ok").Inc()
	return string(b)
}
