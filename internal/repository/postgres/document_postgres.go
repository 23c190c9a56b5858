package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"docproof/internal/model"
	"docproof/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const documentColumns = `id, owner, filename, storage_path, size, content_type, content_hash, serial_number, provenance_code, created_at`

// uniqueViolation is the PostgreSQL error code for a unique constraint breach.
const uniqueViolation = "23505"

// translateUnique maps commit-time unique violations on the hash and serial
// indexes to repository sentinel errors. Other errors pass through.
func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case "documents_content_hash_key":
		return repository.ErrDuplicateHash
	case "documents_serial_number_key":
		return repository.ErrDuplicateSerial
	}
	return err
}

func scanDocument(row *sql.Row) (*model.Document, error) {
	var d model.Document
	if err := row.Scan(
		&d.ID,
		&d.Owner,
		&d.Filename,
		&d.StoragePath,
		&d.Size,
		&d.ContentType,
		&d.ContentHash,
		&d.SerialNumber,
		&d.ProvenanceCode,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (id, owner, filename, storage_path, size, content_type, content_hash, serial_number, provenance_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + documentColumns
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.Owner,
		doc.Filename,
		doc.StoragePath,
		doc.Size,
		doc.ContentType,
		doc.ContentHash,
		doc.SerialNumber,
		doc.ProvenanceCode,
		doc.CreatedAt,
	)
	out, err := scanDocument(row)
	if err != nil {
		return nil, translateUnique(err)
	}
	return out, nil
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(r.db.QueryRowContext(ctx, q, id))
}

// FindByHash fetches the document whose content hash matches exactly.
func (r *DocumentPostgres) FindByHash(ctx context.Context, hash string) (*model.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE content_hash = $1`
	return scanDocument(r.db.QueryRowContext(ctx, q, hash))
}

// FindBySerialAndID fetches the document matching both serial number and ID.
func (r *DocumentPostgres) FindBySerialAndID(ctx context.Context, serial, id string) (*model.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE serial_number = $1 AND id = $2`
	return scanDocument(r.db.QueryRowContext(ctx, q, serial, id))
}

// SerialExists reports whether any row already carries the serial.
func (r *DocumentPostgres) SerialExists(ctx context.Context, serial string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM documents WHERE serial_number = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, serial).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Update rewrites the mutable fields of an existing row in one statement, so
// content reference, hash, serial, and provenance code change together.
func (r *DocumentPostgres) Update(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		UPDATE documents
		SET filename = $2, storage_path = $3, size = $4, content_type = $5,
		    content_hash = $6, serial_number = $7, provenance_code = $8
		WHERE id = $1
		RETURNING ` + documentColumns
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.Filename,
		doc.StoragePath,
		doc.Size,
		doc.ContentType,
		doc.ContentHash,
		doc.SerialNumber,
		doc.ProvenanceCode,
	)
	out, err := scanDocument(row)
	if err != nil {
		return nil, translateUnique(err)
	}
	return out, nil
}

// List returns documents using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	// Count total rows
	const qCount = `SELECT COUNT(*) FROM documents`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	// Fetch page
	const qList = `
		SELECT ` + documentColumns + `
		FROM documents
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(
			&d.ID,
			&d.Owner,
			&d.Filename,
			&d.StoragePath,
			&d.Size,
			&d.ContentType,
			&d.ContentHash,
			&d.SerialNumber,
			&d.ProvenanceCode,
			&d.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Document]{
		Items: items,
		Total: total,
	}, nil
}

// Delete removes a document by ID. It does not return an error if the row does not exist.
func (r *DocumentPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM documents WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	_, _ = res.RowsAffected()
	return nil
}
