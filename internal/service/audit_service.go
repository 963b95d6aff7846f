package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/placementcell/placement-api/internal/dto"
	"github.com/placementcell/placement-api/internal/models"
	"github.com/placementcell/placement-api/pkg/export"
	appErrors "github.com/placementcell/placement-api/pkg/errors"
)

type auditStore interface {
	ListByResource(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// AuditService serves the append-only trail: filtered queries for the office
// and tabular exports for compliance reviews.
type AuditService struct {
	audits auditStore
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
}

// NewAuditService constructs the service.
func NewAuditService(audits auditStore, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *AuditService {
	return &AuditService{audits: audits, csv: csv, pdf: pdf, logger: logger}
}

// Query returns audit events matching the filter, newest first.
func (s *AuditService) Query(ctx context.Context, query dto.AuditQuery) ([]models.AuditEvent, int, error) {
	filter := models.AuditFilter{
		Resource:   query.ResourceType,
		ResourceID: query.ResourceID,
		Action:     query.Action,
		ActorID:    query.ActorID,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	if query.From != "" {
		from, err := time.Parse(time.RFC3339, query.From)
		if err != nil {
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, "from must be an RFC3339 timestamp")
		}
		filter.From = from
	}
	if query.To != "" {
		to, err := time.Parse(time.RFC3339, query.To)
		if err != nil {
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, "to must be an RFC3339 timestamp")
		}
		filter.To = to
	}
	return s.audits.ListByResource(ctx, filter)
}

// Export renders the matching audit events as CSV or PDF bytes.
func (s *AuditService) Export(ctx context.Context, query dto.AuditQuery, format string) ([]byte, string, error) {
	query.Page = 1
	if query.PageSize <= 0 {
		query.PageSize = 500
	}
	events, _, err := s.Query(ctx, query)
	if err != nil {
		return nil, "", fmt.Errorf("query audit events: %w", err)
	}

	dataset := auditDataset(events)
	switch format {
	case "csv":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", fmt.Errorf("render audit csv: %w", err)
		}
		return data, "text/csv", nil
	case "pdf":
		data, err := s.pdf.Render(dataset, "Audit Trail")
		if err != nil {
			return nil, "", fmt.Errorf("render audit pdf: %w", err)
		}
		return data, "application/pdf", nil
	}
	return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
}

func auditDataset(events []models.AuditEvent) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"Time", "Actor", "Action", "Resource", "Resource ID", "IP"},
		Rows:    make([]map[string]string, 0, len(events)),
	}
	for i := range events {
		e := &events[i]
		row := map[string]string{
			"Time":     e.CreatedAt.Format(time.RFC3339),
			"Action":   e.Action,
			"Resource": e.Resource,
			"IP":       e.IPAddress,
		}
		if e.ActorID != nil {
			row["Actor"] = *e.ActorID
		}
		if e.ResourceID != nil {
			row["Resource ID"] = *e.ResourceID
		}
		dataset.Rows = append(dataset.Rows, row)
	}
	return dataset
}
