package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/btcbasis/internal/domain"
	"github.com/alanyoungcy/btcbasis/internal/notify"
)

// ContentTypeJSONL is the media type of exported reports.
const ContentTypeJSONL = "application/x-ndjson"

const (
	exportPageSize = 1000
	// Reports above this size are sent as a multipart upload.
	multipartThreshold = 64 * 1024 * 1024
)

// Alerter forwards operator notices. *notify.Notifier implements it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ReportArchiver writes a tenant's committed allocation trail to object
// storage as JSONL, one AllocationRecord per line. It implements
// domain.ReportExporter.
type ReportArchiver struct {
	writer      domain.BlobWriter
	reader      domain.BlobReader
	allocations domain.AllocationStore
	audit       domain.AuditStore
	alerts      Alerter
	prefix      string
	logger      *slog.Logger
}

// NewReportArchiver creates a ReportArchiver storing reports under prefix.
func NewReportArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	allocations domain.AllocationStore,
	audit domain.AuditStore,
	prefix string,
	logger *slog.Logger,
) *ReportArchiver {
	return &ReportArchiver{
		writer:      writer,
		reader:      reader,
		allocations: allocations,
		audit:       audit,
		prefix:      strings.Trim(prefix, "/"),
		logger:      logger.With(slog.String("component", "report_archiver")),
	}
}

// WithAlerter announces finished exports through a.
func (a *ReportArchiver) WithAlerter(al Alerter) *ReportArchiver {
	a.alerts = al
	return a
}

// ReportPath returns the object key of the report for tenant over [from, to).
//
//	allocations/acme/2024-01-01_2024-04-01.jsonl
func (a *ReportArchiver) ReportPath(tenantID string, from, to time.Time) string {
	return fmt.Sprintf("%s/%s_%s.jsonl", a.tenantPrefix(tenantID), domain.DayKey(from), domain.DayKey(to))
}

func (a *ReportArchiver) tenantPrefix(tenantID string) string {
	if a.prefix == "" {
		return tenantID
	}
	return a.prefix + "/" + tenantID
}

func validTenant(tenantID string) error {
	if tenantID == "" || strings.ContainsAny(tenantID, "/\\") || tenantID == "." || tenantID == ".." {
		return fmt.Errorf("s3blob: invalid tenant %q: %w", tenantID, domain.ErrInvalidInput)
	}
	return nil
}

// ExportTenant exports the allocation records committed in [from, to). An
// existing report for the same window is replaced.
func (a *ReportArchiver) ExportTenant(ctx context.Context, tenantID string, from, to time.Time) (domain.ExportResult, error) {
	if err := validTenant(tenantID); err != nil {
		return domain.ExportResult{}, err
	}
	from, to = from.UTC(), to.UTC()
	if !from.Before(to) {
		return domain.ExportResult{}, fmt.Errorf("s3blob: export window %s..%s is empty: %w",
			domain.DayKey(from), domain.DayKey(to), domain.ErrInvalidInput)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0
	for offset := 0; ; offset += exportPageSize {
		records, err := a.allocations.ListByTenant(ctx, tenantID, domain.ListOpts{
			Since:  &from,
			Until:  &to,
			Limit:  exportPageSize,
			Offset: offset,
		})
		if err != nil {
			return domain.ExportResult{}, fmt.Errorf("s3blob: export %s query: %w", tenantID, err)
		}
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return domain.ExportResult{}, fmt.Errorf("s3blob: export %s marshal: %w", tenantID, err)
			}
		}
		count += len(records)
		if len(records) < exportPageSize {
			break
		}
	}

	path := a.ReportPath(tenantID, from, to)
	if exists, err := a.reader.Exists(ctx, path); err == nil && exists {
		a.logger.InfoContext(ctx, "report_archiver: replacing existing report", slog.String("path", path))
	}

	var err error
	if buf.Len() > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, &buf, minPartSize*4)
	} else {
		err = a.writer.Put(ctx, path, &buf, ContentTypeJSONL)
	}
	if err != nil {
		return domain.ExportResult{}, fmt.Errorf("s3blob: export %s upload: %w", tenantID, err)
	}

	res := domain.ExportResult{Path: path, Records: count}
	if err := a.audit.Log(ctx, "report_exported", map[string]any{
		"tenant":  tenantID,
		"path":    path,
		"records": count,
		"from":    from.Format(time.RFC3339),
		"to":      to.Format(time.RFC3339),
	}); err != nil {
		return res, fmt.Errorf("s3blob: export %s audit log: %w", tenantID, err)
	}

	if a.alerts != nil {
		title, msg := notify.ExportCompleted(tenantID, res)
		if err := a.alerts.Notify(ctx, notify.EventExportCompleted, title, msg); err != nil {
			a.logger.WarnContext(ctx, "report_archiver: notify failed", slog.String("error", err.Error()))
		}
	}

	a.logger.InfoContext(ctx, "report_archiver: exported",
		slog.String("tenant", tenantID),
		slog.String("path", path),
		slog.Int("records", count),
	)
	return res, nil
}

// ListReports returns the stored reports of a tenant.
func (a *ReportArchiver) ListReports(ctx context.Context, tenantID string) ([]domain.BlobInfo, error) {
	if err := validTenant(tenantID); err != nil {
		return nil, err
	}
	infos, err := a.reader.List(ctx, a.tenantPrefix(tenantID)+"/")
	if err != nil {
		return nil, fmt.Errorf("s3blob: list reports %s: %w", tenantID, err)
	}
	return infos, nil
}

var _ domain.ReportExporter = (*ReportArchiver)(nil)
