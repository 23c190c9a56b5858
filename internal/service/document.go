package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"docproof/internal/hash"
	"docproof/internal/model"
	"docproof/internal/provenance"
	"docproof/internal/repository"
	"docproof/internal/serial"
	"docproof/internal/storage"
)

var (
	ErrIDRequired    = errors.New("id is required")
	ErrOwnerRequired = errors.New("owner is required")
	ErrNotFound      = errors.New("document not found")
	ErrReaderNil     = errors.New("reader is nil")
	// ErrContentConflict means the uploaded content's hash already belongs
	// to a different record.
	ErrContentConflict = errors.New("content already registered under a different record")
)

// serialInsertRetries bounds re-allocation when a concurrent writer commits
// the same serial between our exists pre-check and the insert.
const serialInsertRetries = 3

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
}

// DocumentService is the authoritative registry for document records. It
// owns the derivation of content hash, serial number, and provenance code;
// every persisted record carries all three or is not committed at all.
type DocumentService interface {
	// Register stores the content, derives hash/serial/provenance code, and
	// persists the record in a single write. Content whose hash is already
	// registered is rejected with ErrContentConflict.
	// originalFilename is used only to extract extension; stored filename will be UUID + original extension.
	Register(ctx context.Context, r io.Reader, originalFilename string, contentType string, size int64, owner string) (*model.Document, error)

	// ReplaceContent swaps the stored bytes of an existing record and
	// re-derives hash and provenance code atomically with the swap. The
	// serial number is preserved once assigned.
	ReplaceContent(ctx context.Context, id string, r io.Reader, originalFilename string, contentType string, size int64) (*model.Document, error)

	// List returns documents using limit/offset and a total count.
	List(ctx context.Context, limit, offset int) (*DocumentListResult, error)

	// Get returns a single document by its ID.
	Get(ctx context.Context, id string) (*model.Document, error)

	// DownloadURL returns a time-limited URL for the stored content.
	DownloadURL(ctx context.Context, id string, expiry time.Duration) (string, error)

	// Delete removes a document by ID from both storage and repository.
	Delete(ctx context.Context, id string) error
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store     storage.Storage
	repo      repository.DocumentRepository
	allocator *serial.Allocator
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, allocator *serial.Allocator) DocumentService {
	if allocator == nil {
		allocator = serial.New()
	}
	return &documentService{store: store, repo: repo, allocator: allocator}
}

// putContent streams the content to object storage while hashing it in the
// same pass, so large files are never buffered whole.
func (s *documentService) putContent(ctx context.Context, r io.Reader, originalFilename, contentType string, size int64) (storage.ObjectInfo, string, error) {
	ext := filepath.Ext(originalFilename)
	genName := uuid.New().String() + ext
	key := filepath.ToSlash(filepath.Join("documents", genName))

	digest := hash.NewDigest()
	objInfo, err := s.store.Put(ctx, key, io.TeeReader(r, digest), storage.PutObjectOptions{
		Size:        size,
		ContentType: contentType,
		Metadata: map[string]string{
			"original-filename": originalFilename,
		},
	})
	if err != nil {
		return storage.ObjectInfo{}, "", fmt.Errorf("upload to storage: %w", err)
	}
	return objInfo, digest.Hex(), nil
}

func (s *documentService) rollbackObject(ctx context.Context, key string, cause error) error {
	if delErr := s.store.Delete(ctx, key); delErr != nil {
		return fmt.Errorf("%v; rollback delete failed: %v", cause, delErr)
	}
	return cause
}

func (s *documentService) Register(ctx context.Context, r io.Reader, originalFilename string, contentType string, size int64, owner string) (*model.Document, error) {
	if r == nil {
		return nil, ErrReaderNil
	}
	if owner == "" {
		return nil, ErrOwnerRequired
	}

	objInfo, contentHash, err := s.putContent(ctx, r, originalFilename, contentType, size)
	if err != nil {
		return nil, err
	}

	// Duplicate-content pre-check; advisory only, the unique constraint is
	// the real gate.
	if existing, err := s.repo.FindByHash(ctx, contentHash); err == nil && existing != nil {
		return nil, s.rollbackObject(ctx, objInfo.Key, ErrContentConflict)
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, s.rollbackObject(ctx, objInfo.Key, fmt.Errorf("hash lookup: %w", err))
	}

	doc := &model.Document{
		ID:          uuid.New().String(),
		Owner:       owner,
		Filename:    filepath.Base(objInfo.Key),
		StoragePath: objInfo.Key,
		Size:        objInfo.Size,
		ContentType: objInfo.ContentType,
		ContentHash: contentHash,
		CreatedAt:   time.Now().UTC(),
	}

	// All derived fields are in place before the single insert; a failure
	// anywhere here leaves no partial record behind.
	var stored *model.Document
	for attempt := 0; ; attempt++ {
		doc.SerialNumber, err = s.allocator.Allocate(ctx, s.repo.SerialExists)
		if err != nil {
			return nil, s.rollbackObject(ctx, objInfo.Key, fmt.Errorf("allocate serial: %w", err))
		}

		doc.ProvenanceCode, err = provenance.Encode(provenance.Payload{
			DocumentID:   doc.ID,
			SerialNumber: doc.SerialNumber,
			Owner:        doc.Owner,
		})
		if err != nil {
			return nil, s.rollbackObject(ctx, objInfo.Key, fmt.Errorf("encode provenance: %w", err))
		}

		stored, err = s.repo.Create(ctx, doc)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrDuplicateSerial) && attempt < serialInsertRetries {
			// Lost the commit race on the serial; draw another and retry.
			continue
		}
		if errors.Is(err, repository.ErrDuplicateHash) {
			return nil, s.rollbackObject(ctx, objInfo.Key, ErrContentConflict)
		}
		return nil, s.rollbackObject(ctx, objInfo.Key, fmt.Errorf("db save failed: %w", err))
	}
	return stored, nil
}

func (s *documentService) ReplaceContent(ctx context.Context, id string, r io.Reader, originalFilename string, contentType string, size int64) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	if r == nil {
		return nil, ErrReaderNil
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	objInfo, contentHash, err := s.putContent(ctx, r, originalFilename, contentType, size)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.Filename = filepath.Base(objInfo.Key)
	updated.StoragePath = objInfo.Key
	updated.Size = objInfo.Size
	updated.ContentType = objInfo.ContentType
	updated.ContentHash = contentHash

	// Serial is assigned once and never reassigned.
	if updated.SerialNumber == "" {
		updated.SerialNumber, err = s.allocator.Allocate(ctx, s.repo.SerialExists)
		if err != nil {
			return nil, s.rollbackObject(ctx, objInfo.Key, fmt.Errorf("allocate serial: %w", err))
		}
	}

	updated.ProvenanceCode, err = provenance.Encode(provenance.Payload{
		DocumentID:   updated.ID,
		SerialNumber: updated.SerialNumber,
		Owner:        updated.Owner,
	})
	if err != nil {
		return nil, s.rollbackObject(ctx, objInfo.Key, fmt.Errorf("encode provenance: %w", err))
	}

	stored, err := s.repo.Update(ctx, &updated)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateHash) {
			return nil, s.rollbackObject(ctx, objInfo.Key, ErrContentConflict)
		}
		return nil, s.rollbackObject(ctx, objInfo.Key, fmt.Errorf("db save failed: %w", err))
	}

	// Old content is unreferenced after the commit; best effort removal.
	if existing.StoragePath != "" && existing.StoragePath != stored.StoragePath {
		_ = s.store.Delete(ctx, existing.StoragePath)
	}
	return stored, nil
}

// List returns paginated documents without exposing repository types.
func (s *documentService) List(ctx context.Context, limit, offset int) (*DocumentListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total}, nil
}

// Get returns a document by ID.
func (s *documentService) Get(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// DownloadURL returns a presigned URL for the record's stored content.
func (s *documentService) DownloadURL(ctx context.Context, id string, expiry time.Duration) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.store.PresignGet(ctx, doc.StoragePath, expiry)
}

// Delete removes a document from storage, then deletes its record.
func (s *documentService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	// Find the document to get its storage path
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	// Delete from storage first; if this fails, keep DB row to avoid orphaned storage reference loss
	if err := s.store.Delete(ctx, doc.StoragePath); err != nil {
		return fmt.Errorf("delete storage: %w", err)
	}
	// Delete DB row (repository ignores missing row errors as per contract)
	return s.repo.Delete(ctx, id)
}
