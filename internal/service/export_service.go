package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/export"
)

// exportRepository reads appointments for report generation.
type exportRepository interface {
	ListActiveBetween(ctx context.Context, from, to time.Time, tenantID string) ([]*models.Appointment, error)
}

// ExportFormat names a supported output encoding.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ExportResult bundles the rendered bytes with delivery metadata.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportService renders day schedules and route manifests as CSV or PDF.
type ExportService struct {
	repo   exportRepository
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(repo exportRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		repo:   repo,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

var scheduleHeaders = []string{"Sequence", "Title", "Start", "End", "Customer", "Staff", "Type", "Status", "Priority", "Location"}

// DaySchedule renders every active appointment of one calendar day, ordered
// by start time as the repository returns them.
func (s *ExportService) DaySchedule(ctx context.Context, day time.Time, tenantID string, format ExportFormat) (*ExportResult, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	appts, err := s.repo.ListActiveBetween(ctx, dayStart, dayEnd, tenantID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "could not load day schedule")
	}

	rows := make([]map[string]string, 0, len(appts))
	for _, a := range appts {
		rows = append(rows, map[string]string{
			"Sequence": a.Sequence,
			"Title":    a.Title,
			"Start":    a.StartTime.Format("15:04"),
			"End":      a.EndTime.Format("15:04"),
			"Customer": a.Customer.Name,
			"Staff":    strings.Join(a.AssignedStaff, ", "),
			"Type":     string(a.Type),
			"Status":   string(a.Status),
			"Priority": string(a.Priority),
			"Location": string(a.Location),
		})
	}
	dataset := export.Dataset{Headers: scheduleHeaders, Rows: rows}

	name := fmt.Sprintf("schedule-%s", dayStart.Format("2006-01-02"))
	title := "Day Schedule"
	subtitle := fmt.Sprintf("%s, %d appointments", dayStart.Format("Monday 02 January 2006"), len(appts))
	return s.render(dataset, format, name, title, subtitle, true)
}

var manifestHeaders = []string{"#", "Name", "Address", "Type", "Priority", "Leg (km)", "ETA"}

// RouteManifest renders an ordered stop list with per-leg distances for a
// driver handout.
func (s *ExportService) RouteManifest(route *models.Route, format ExportFormat) (*ExportResult, error) {
	if route == nil || len(route.Points) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "route has no points to export")
	}

	rows := make([]map[string]string, 0, len(route.Points))
	for i, p := range route.Points {
		leg := ""
		if i > 0 {
			leg = fmt.Sprintf("%.1f", route.Points[i-1].DistanceTo(p)/1000)
		}
		eta := ""
		if p.EstimatedArrival != nil {
			eta = p.EstimatedArrival.Format("15:04")
		}
		rows = append(rows, map[string]string{
			"#":        fmt.Sprintf("%d", i+1),
			"Name":     p.Name,
			"Address":  p.Address,
			"Type":     string(p.Type),
			"Priority": string(p.Priority),
			"Leg (km)": leg,
			"ETA":      eta,
		})
	}
	dataset := export.Dataset{Headers: manifestHeaders, Rows: rows}

	name := "route-manifest"
	if route.Name != "" {
		name = fmt.Sprintf("route-%s", sanitizeFilename(route.Name))
	}
	subtitle := fmt.Sprintf("%.1f km, about %.0f minutes, %d stops",
		route.TotalDistance/1000, route.EstimatedDuration, len(route.Points))
	return s.render(dataset, format, name, "Route Manifest", subtitle, true)
}

func (s *ExportService) render(dataset export.Dataset, format ExportFormat, name, title, subtitle string, landscape bool) (*ExportResult, error) {
	switch format {
	case FormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "csv export failed")
		}
		return &ExportResult{Content: content, ContentType: "text/csv", Filename: name + ".csv"}, nil
	case FormatPDF:
		content, err := s.pdf.Render(dataset, export.PDFOptions{Title: title, Subtitle: subtitle, Landscape: landscape})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "pdf export failed")
		}
		return &ExportResult{Content: content, ContentType: "application/pdf", Filename: name + ".pdf"}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
}

func sanitizeFilename(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ', r == '_':
			return '-'
		}
		return -1
	}, name)
	return strings.Trim(mapped, "-")
}
