// Package aggregator builds the read side of reports: listing, media and
// address resolution, filtering, and the administrator's status edits.
package aggregator

import (
	"context"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwise1/safestreet/internal/events"
	"github.com/bwise1/safestreet/internal/model"
	"github.com/bwise1/safestreet/util"
	"golang.org/x/sync/errgroup"
)

const (
	AddressNotAvailable = "Address not available"
	AddressError        = "Error getting address"
	LocationMissing     = "Location data missing"
)

type ReportStore interface {
	ListReports(ctx context.Context, q model.ReportQuery) ([]model.Report, error)
	GetReport(ctx context.Context, id string) (model.Report, error)
	UpdateReportStatus(ctx context.Context, id string, status model.Status) (model.Report, error)
	UpdateReportLocation(ctx context.Context, id string, location string) error
	AttachDetection(ctx context.Context, d model.Detection) (model.Report, error)
}

type MediaResolver interface {
	PreviewURL(imageID string, width, height int) (string, error)
	ViewURL(imageID string) (string, error)
}

type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) ([]model.Address, error)
}

type Options struct {
	PreviewWidth  int
	PreviewHeight int
	Concurrency   int
	Events        events.Publisher
	Now           func() time.Time
}

type Aggregator struct {
	reports  ReportStore
	media    MediaResolver
	geocoder Geocoder
	opts     Options
}

func New(reports ReportStore, media MediaResolver, geocoder Geocoder, opts Options) *Aggregator {
	if opts.PreviewWidth <= 0 {
		opts.PreviewWidth = 300
	}
	if opts.PreviewHeight <= 0 {
		opts.PreviewHeight = 300
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Events == nil {
		opts.Events = events.NopPublisher{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{reports: reports, media: media, geocoder: geocoder, opts: opts}
}

// ListReports returns reports newest first, scoped to q.OwnerID when set.
func (a *Aggregator) ListReports(ctx context.Context, q model.ReportQuery) ([]model.Report, error) {
	return a.reports.ListReports(ctx, q)
}

func (a *Aggregator) GetReport(ctx context.Context, id string) (model.Report, error) {
	return a.reports.GetReport(ctx, id)
}

// ResolveMedia builds the display URLs for a report. Each URL is attempted
// once; a preview failure falls back to the full-size view.
func (a *Aggregator) ResolveMedia(r model.Report) model.Media {
	var media model.Media

	preview, err := a.media.PreviewURL(r.ImageID, a.opts.PreviewWidth, a.opts.PreviewHeight)
	if err != nil {
		log.Printf("[Aggregator] preview for image %s failed: %v", r.ImageID, err)
	} else {
		media.PreviewURL = a.bustCache(preview)
	}

	full, err := a.media.ViewURL(r.ImageID)
	if err != nil {
		log.Printf("[Aggregator] view url for image %s failed: %v", r.ImageID, err)
	} else {
		media.FullSizeURL = full
	}

	switch {
	case media.PreviewURL != "":
		media.DisplayURL = media.PreviewURL
		media.Available = true
	case media.FullSizeURL != "":
		media.DisplayURL = media.FullSizeURL
		media.Available = true
	}

	if r.ProcessedImageID != nil && *r.ProcessedImageID != "" {
		processed, err := a.media.ViewURL(*r.ProcessedImageID)
		if err != nil {
			log.Printf("[Aggregator] view url for processed image %s failed: %v", *r.ProcessedImageID, err)
		} else {
			media.ProcessedURL = processed
		}
	}
	return media
}

func (a *Aggregator) bustCache(raw string) string {
	stamp := strconv.FormatInt(a.opts.Now().UnixMilli(), 10)
	u, err := url.Parse(raw)
	if err != nil {
		return raw + "?cache=" + stamp
	}
	q := u.Query()
	q.Set("cache", stamp)
	u.RawQuery = q.Encode()
	return u.String()
}

// ResolveAddress reverse-geocodes the report location into a display line.
func (a *Aggregator) ResolveAddress(ctx context.Context, r model.Report) string {
	if !r.HasCoordinates() {
		return LocationMissing
	}

	candidates, err := a.geocoder.ReverseGeocode(ctx, r.Latitude, r.Longitude)
	if err != nil {
		log.Printf("[Aggregator] reverse geocode for report %s failed: %v", r.ID, err)
		return AddressError
	}
	if len(candidates) == 0 {
		return AddressNotAvailable
	}

	first := candidates[0]
	address := util.JoinNonBlank(", ", first.Street, first.City, first.Region, first.Country)
	if address == "" {
		return AddressNotAvailable
	}
	return address
}

// Decorate resolves media and address for every report in parallel. A
// failure on one report never fails the list.
func (a *Aggregator) Decorate(ctx context.Context, reports []model.Report) []model.ReportView {
	views := make([]model.ReportView, len(reports))

	var g errgroup.Group
	g.SetLimit(a.opts.Concurrency)
	for i, r := range reports {
		i, r := i, r
		g.Go(func() error {
			views[i] = model.ReportView{
				Report:      r,
				StatusLabel: r.Status.Label(),
				Media:       a.ResolveMedia(r),
				Address:     a.ResolveAddress(ctx, r),
			}
			return nil
		})
	}
	_ = g.Wait()

	return views
}

// UpdateStatus stores the status for an administrator label.
func (a *Aggregator) UpdateStatus(ctx context.Context, reportID string, label string) (model.Report, error) {
	status, err := model.StatusFromLabel(label)
	if err != nil {
		return model.Report{}, model.Validationf("unknown status %q", label)
	}

	report, err := a.reports.UpdateReportStatus(ctx, reportID, status)
	if err != nil {
		return model.Report{}, err
	}

	events.Emit(ctx, a.opts.Events, model.ReportEvent{
		Type:     model.EventReportStatusChanged,
		ReportID: report.ID,
		OwnerID:  report.OwnerID,
		Status:   report.Status,
		At:       a.opts.Now(),
	})
	return report, nil
}

// AttachDetection records the detector's annotated image. The report status
// is left unchanged.
func (a *Aggregator) AttachDetection(ctx context.Context, d model.Detection) (model.Report, error) {
	report, err := a.reports.AttachDetection(ctx, d)
	if err != nil {
		return model.Report{}, err
	}

	events.Emit(ctx, a.opts.Events, model.ReportEvent{
		Type:     model.EventReportDetected,
		ReportID: report.ID,
		OwnerID:  report.OwnerID,
		Status:   report.Status,
		At:       a.opts.Now(),
	})
	return report, nil
}

// BackfillLocations stores resolved addresses on reports that have none yet.
// Placeholder texts are never stored. It returns the number of reports updated.
func (a *Aggregator) BackfillLocations(ctx context.Context, views []model.ReportView) int {
	updated := 0
	for _, v := range views {
		if v.Location != nil && strings.TrimSpace(*v.Location) != "" {
			continue
		}
		if !isResolvedAddress(v.Address) {
			continue
		}
		if err := a.reports.UpdateReportLocation(ctx, v.ID, v.Address); err != nil {
			log.Printf("[Aggregator] storing location for report %s failed: %v", v.ID, err)
			continue
		}
		updated++
	}
	return updated
}

func isResolvedAddress(address string) bool {
	switch address {
	case "", AddressNotAvailable, AddressError, LocationMissing:
		return false
	}
	return true
}

// Stats counts reports per lifecycle state. Stored variants such as
// "Pending" and "pending" are counted together.
func Stats(reports []model.Report) model.ReportStats {
	stats := model.ReportStats{Total: len(reports)}
	for _, r := range reports {
		switch r.Status.Canonical() {
		case model.StatusPending:
			stats.Pending++
		case model.StatusInProgress:
			stats.InProgress++
		case model.StatusResolved:
			stats.Resolved++
		case model.StatusRejected:
			stats.Rejected++
		}
	}
	return stats
}
