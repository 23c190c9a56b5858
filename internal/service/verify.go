package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"docproof/internal/hash"
	"docproof/internal/provenance"
	"docproof/internal/repository"
)

// Verdict statuses. "valid" and "invalid" are both successful evaluations;
// "error" means the request could not be evaluated at all.
const (
	StatusValid   = "valid"
	StatusInvalid = "invalid"
	StatusError   = "error"
)

// Verdict is the tri-state result of a verification request.
type Verdict struct {
	Status     string `json:"status"`
	IsVerified bool   `json:"isVerified"`
	Message    string `json:"message"`
}

func valid(format string, args ...any) Verdict {
	return Verdict{Status: StatusValid, IsVerified: true, Message: fmt.Sprintf(format, args...)}
}

func invalid(msg string) Verdict {
	return Verdict{Status: StatusInvalid, Message: msg}
}

func errored(format string, args ...any) Verdict {
	return Verdict{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// artifactKind classifies an uploaded artifact by its declared content type.
type artifactKind int

const (
	artifactUnsupported artifactKind = iota
	artifactImage
	artifactDocument
)

func classify(contentType string) artifactKind {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.HasPrefix(ct, "image/"):
		return artifactImage
	case ct == "application/pdf":
		return artifactDocument
	default:
		return artifactUnsupported
	}
}

// VerificationService evaluates uploaded artifacts against the registry.
type VerificationService interface {
	// Verify classifies the artifact by declared content type, checks it
	// via the QR path (images) or the hash path (documents), and always
	// returns a structured verdict; it never returns a Go error.
	Verify(ctx context.Context, artifact []byte, contentType string) Verdict
}

type verificationService struct {
	repo repository.DocumentRepository
	// decode is provenance.Decode unless a test swaps it out.
	decode func([]byte) (provenance.Payload, error)
}

// NewVerificationService constructs a VerificationService over the registry.
func NewVerificationService(repo repository.DocumentRepository) VerificationService {
	return &verificationService{repo: repo, decode: provenance.Decode}
}

func (s *verificationService) Verify(ctx context.Context, artifact []byte, contentType string) Verdict {
	switch classify(contentType) {
	case artifactImage:
		return s.verifyImage(ctx, artifact)
	case artifactDocument:
		return s.verifyDocument(ctx, artifact)
	default:
		return errored("unsupported content type %q; submit an image or a PDF document", contentType)
	}
}

// verifyImage is the QR path: decode the provenance code and reconcile its
// triple against the registry.
func (s *verificationService) verifyImage(ctx context.Context, artifact []byte) Verdict {
	payload, err := s.decode(artifact)
	if err != nil {
		switch {
		case errors.Is(err, provenance.ErrNoCodeFound):
			return invalid("no provenance code recognized in the image")
		case errors.Is(err, provenance.ErrMalformedPayload):
			return invalid("provenance payload not parseable")
		default:
			return errored("could not scan image: %v", err)
		}
	}

	doc, err := s.repo.FindBySerialAndID(ctx, payload.SerialNumber, payload.DocumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invalid("no matching record for the scanned provenance code")
		}
		return errored("registry lookup failed: %v", err)
	}

	// Owner identities are opaque strings; compare case-insensitively.
	if !strings.EqualFold(doc.Owner, payload.Owner) {
		return invalid("provenance code owner does not match the registered owner")
	}

	return valid("document verified: registered by %s on %s", doc.Owner, doc.CreatedAt.Format(time.RFC3339))
}

// verifyDocument is the hash path: digest the uploaded bytes and look for an
// exact content match.
func (s *verificationService) verifyDocument(ctx context.Context, artifact []byte) Verdict {
	digest := hash.Bytes(artifact)

	doc, err := s.repo.FindByHash(ctx, digest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invalid("no matching record for this content; the document is unregistered or was altered")
		}
		return errored("registry lookup failed: %v", err)
	}

	return valid("document verified: registered by %s on %s", doc.Owner, doc.CreatedAt.Format(time.RFC3339))
}
