package model

import "time"

// Document is the authoritative record for a registered document.
// This is a pure domain model with no database-specific dependencies or tags.
// It can be used across layers (HTTP, service, storage) without coupling to persistence.
type Document struct {
	ID       string `json:"id"`
	Owner    string `json:"owner"`
	Filename string `json:"filename"`
	// StoragePath is an opaque reference to the underlying bytes in the
	// object store; the blobs themselves are not managed here.
	StoragePath string `json:"content_reference"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	// ContentHash is the lowercase hex SHA-256 of the stored bytes.
	// Unique across all records; recomputed on every content replacement.
	ContentHash string `json:"content_hash"`
	// SerialNumber is an 8-character uppercase alphanumeric identifier,
	// assigned once and never reassigned.
	SerialNumber string `json:"serial_number"`
	// ProvenanceCode is a base64-encoded QR PNG embedding
	// {document_id, serial_number, owner}.
	ProvenanceCode string    `json:"provenance_code"`
	CreatedAt      time.Time `json:"created_at"`
}
