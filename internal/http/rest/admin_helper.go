package rest

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/bwise1/safestreet/internal/aggregator"
	"github.com/bwise1/safestreet/internal/model"
	"github.com/bwise1/safestreet/util"
	"github.com/bwise1/safestreet/util/values"
)

type ReportPage struct {
	Reports  []model.ReportView `json:"reports"`
	Total    int                `json:"total"`
	Page     int                `json:"page,omitempty"`
	PageSize int                `json:"page_size,omitempty"`
}

func filterFromQuery(q url.Values) (model.ReportFilter, error) {
	f := model.ReportFilter{
		Severity: q.Get("severity"),
		Status:   q.Get("status"),
	}

	var err error
	if raw := q.Get("page"); raw != "" {
		if f.Page, err = strconv.Atoi(raw); err != nil || f.Page < 1 {
			return f, model.Validationf("page must be a positive integer")
		}
	}
	if raw := q.Get("pageSize"); raw != "" {
		if f.PageSize, err = strconv.Atoi(raw); err != nil || f.PageSize < 1 {
			return f, model.Validationf("pageSize must be a positive integer")
		}
	}
	return f, nil
}

// ListReportsHelper filters all reports, pages the result and decorates the
// page. Resolved addresses are stored on reports without a location.
func (api *API) ListReportsHelper(ctx context.Context, f model.ReportFilter) (ReportPage, string, string, error) {
	reports, err := api.Reports.ListReports(ctx, model.ReportQuery{})
	if err != nil {
		return ReportPage{}, values.Error, "Failed to list reports", err
	}

	filtered := aggregator.Filter(reports, f)
	page := aggregator.Paginate(filtered, f.Page, f.PageSize)
	views := api.Reports.Decorate(ctx, page)
	api.Reports.BackfillLocations(ctx, views)

	return ReportPage{
		Reports:  views,
		Total:    len(filtered),
		Page:     f.Page,
		PageSize: f.PageSize,
	}, values.Success, "Reports retrieved successfully", nil
}

func (api *API) ReportStatsHelper(ctx context.Context) (model.ReportStats, string, string, error) {
	reports, err := api.Reports.ListReports(ctx, model.ReportQuery{})
	if err != nil {
		return model.ReportStats{}, values.Error, "Failed to count reports", err
	}
	return aggregator.Stats(reports), values.Success, "Report statistics retrieved", nil
}

func (api *API) UpdateStatusHelper(ctx context.Context, reportID string, req model.UpdateStatusRequest) (model.Report, string, string, error) {
	if err := util.ValidateStruct(req); err != nil {
		return model.Report{}, values.BadRequestBody, "status is required", err
	}
	if !util.IsUUID(reportID) {
		return model.Report{}, values.NotFound, "Report not found", model.ErrReportNotFound
	}

	report, err := api.Reports.UpdateStatus(ctx, reportID, req.Status)
	switch {
	case errors.Is(err, model.ErrValidation):
		return model.Report{}, values.BadRequestBody, "Unknown status " + strconv.Quote(req.Status), err
	case errors.Is(err, model.ErrReportNotFound):
		return model.Report{}, values.NotFound, "Report not found", err
	case err != nil:
		return model.Report{}, values.Error, "Error updating status", err
	}
	return report, values.Success, "Status updated successfully", nil
}

func (api *API) AttachDetectionHelper(ctx context.Context, d model.Detection) (model.Report, string, string, error) {
	if err := util.ValidateStruct(d); err != nil {
		return model.Report{}, values.BadRequestBody, "Invalid detection: " + util.ValidationMessage(err), err
	}

	report, err := api.Reports.AttachDetection(ctx, d)
	if errors.Is(err, model.ErrReportNotFound) {
		return model.Report{}, values.NotFound, "No report for image", err
	}
	if err != nil {
		return model.Report{}, values.Error, "Failed to record detection", err
	}
	return report, values.Success, "Detection recorded", nil
}
