package handler

import (
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/placementcell/placement-api/pkg/response"
)

type documentService interface {
	Open(token string) (*os.File, string, error)
}

// DocumentHandler streams signed resume documents. The token itself carries
// the authorization; no session is required to follow a link that is still
// valid.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler builds a new handler.
func NewDocumentHandler(svc documentService) *DocumentHandler {
	return &DocumentHandler{service: svc}
}

// Download godoc
// @Summary Download a document via a signed link
// @Tags Documents
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Router /documents/{token} [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	file, filename, err := h.service.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
