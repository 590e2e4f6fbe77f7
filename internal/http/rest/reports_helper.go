package rest

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/bwise1/safestreet/internal/model"
	"github.com/bwise1/safestreet/internal/pipeline"
	"github.com/bwise1/safestreet/util"
	"github.com/bwise1/safestreet/util/values"
)

// AddressLocator forward-geocodes a typed address.
type AddressLocator interface {
	ForwardGeocode(ctx context.Context, address string) (lat, lon float64, err error)
}

// submissionFromRequest reads the multipart upload. When the device sent no
// coordinates the typed address, if any, is geocoded instead. Otherwise
// missing coordinates are left nil for the pipeline to reject.
func (api *API) submissionFromRequest(w http.ResponseWriter, r *http.Request, ownerID string) (pipeline.Submission, error) {
	limit := api.Config.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		return pipeline.Submission{}, model.Validationf("invalid upload: %v", err)
	}

	image, err := readFormFile(r.MultipartForm, "file")
	if err != nil {
		return pipeline.Submission{}, err
	}

	sub := pipeline.Submission{OwnerID: ownerID, Image: image}
	if sub.Latitude, err = formFloat(r, "latitude"); err != nil {
		return pipeline.Submission{}, err
	}
	if sub.Longitude, err = formFloat(r, "longitude"); err != nil {
		return pipeline.Submission{}, err
	}

	address := strings.TrimSpace(r.FormValue("address"))
	if (sub.Latitude == nil || sub.Longitude == nil) && address != "" {
		lat, lon, err := api.locate(r.Context(), address)
		if err != nil {
			return pipeline.Submission{}, err
		}
		sub.Latitude, sub.Longitude = &lat, &lon
	}
	return sub, nil
}

func (api *API) locate(ctx context.Context, address string) (float64, float64, error) {
	if api.Locator == nil {
		return 0, 0, model.Validationf("address lookup is not available")
	}
	lat, lon, err := api.Locator.ForwardGeocode(ctx, address)
	if errors.Is(err, model.ErrAddressNotFound) {
		return 0, 0, model.Validationf("Address not found")
	}
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

func readFormFile(form *multipart.Form, field string) ([]byte, error) {
	if form == nil || len(form.File[field]) == 0 {
		return nil, model.Validationf("image is required")
	}
	f, err := form.File[field][0].Open()
	if err != nil {
		return nil, model.Validationf("unable to read image: %v", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func formFloat(r *http.Request, field string) (*float64, error) {
	v, err := util.ParseOptionalFloat(r.FormValue(field))
	if err != nil {
		return nil, model.Validationf("%s must be a number", field)
	}
	return v, nil
}

func outcomeStatus(outcome pipeline.Outcome) string {
	switch outcome {
	case pipeline.OutcomeSuccess:
		return values.Created
	case pipeline.OutcomeWarning:
		return values.Warning
	case pipeline.OutcomeRejectedContent:
		return values.Unprocessable
	default:
		return values.Upstream
	}
}

// GetReportHelper returns a decorated report visible to the session.
// Reports of other owners look missing to non-admins.
func (api *API) GetReportHelper(ctx context.Context, session model.SessionContext, reportID string) (model.ReportView, string, string, error) {
	if !util.IsUUID(reportID) {
		return model.ReportView{}, values.NotFound, "Report not found", model.ErrReportNotFound
	}

	report, err := api.Reports.GetReport(ctx, reportID)
	if errors.Is(err, model.ErrReportNotFound) {
		return model.ReportView{}, values.NotFound, "Report not found", err
	}
	if err != nil {
		return model.ReportView{}, values.Error, "Failed to get report", err
	}

	if !session.Account.IsAdmin() && report.OwnerID != session.Account.ID {
		return model.ReportView{}, values.NotFound, "Report not found", model.ErrReportNotFound
	}

	views := api.Reports.Decorate(ctx, []model.Report{report})
	return views[0], values.Success, "Report retrieved successfully", nil
}

func (api *API) ListMyReportsHelper(ctx context.Context, ownerID string) ([]model.ReportView, string, string, error) {
	reports, err := api.Reports.ListReports(ctx, model.ReportQuery{OwnerID: ownerID})
	if err != nil {
		return nil, values.Error, "Failed to list reports", err
	}
	return api.Reports.Decorate(ctx, reports), values.Success, "Reports retrieved successfully", nil
}
