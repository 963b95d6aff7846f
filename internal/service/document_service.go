package service

import (
	"fmt"
	"os"
	"path"

	"go.uber.org/zap"

	appErrors "github.com/placementcell/placement-api/pkg/errors"
	"github.com/placementcell/placement-api/pkg/storage"
)

// DocumentService hands out short-lived signed links to stored resume files
// and resolves those links back to the file on disk. The link TTL is
// independent of the consent TTL; an expired link just needs a fresh read,
// while a revoked consent blocks the read that would mint it.
type DocumentService struct {
	files  *storage.LocalStorage
	signer *storage.SignedURLSigner
	prefix string
	logger *zap.Logger
}

// NewDocumentService constructs the service. prefix is the public route the
// token is appended to, e.g. "/api/v1/documents".
func NewDocumentService(files *storage.LocalStorage, signer *storage.SignedURLSigner, prefix string, logger *zap.Logger) *DocumentService {
	return &DocumentService{files: files, signer: signer, prefix: prefix, logger: logger}
}

// ResumeURL mints a signed download link for the resume document.
func (s *DocumentService) ResumeURL(resumeID string) (string, error) {
	relPath := path.Join("resumes", resumeID+".pdf")
	token, _, err := s.signer.Generate(resumeID, relPath)
	if err != nil {
		return "", fmt.Errorf("sign resume link: %w", err)
	}
	return s.prefix + "/" + token, nil
}

// Open validates a signed token and returns the underlying file.
func (s *DocumentService) Open(token string) (*os.File, string, error) {
	docID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired document link")
	}
	file, err := s.files.Open(relPath)
	if err != nil {
		s.logger.Warn("document missing on disk", zap.String("doc_id", docID), zap.String("path", relPath), zap.Error(err))
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	return file, path.Base(relPath), nil
}
