package aggregator

import "github.com/bwise1/safestreet/internal/model"

// Filter keeps reports matching every non-empty criterion. Severity and
// status compare exactly against the stored values.
func Filter(reports []model.Report, f model.ReportFilter) []model.Report {
	out := make([]model.Report, 0, len(reports))
	for _, r := range reports {
		if f.Severity != "" && (r.Severity == nil || *r.Severity != f.Severity) {
			continue
		}
		if f.Status != "" && string(r.Status) != f.Status {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Paginate returns the 1-based page of reports. A non-positive page size
// disables paging.
func Paginate(reports []model.Report, page, pageSize int) []model.Report {
	if pageSize <= 0 {
		return reports
	}
	if page < 1 {
		page = 1
	}
	pages := min(len(reports), 1)
	if pageSize < len(reports) {
		pages = (len(reports) + pageSize - 1) / pageSize
	}
	if page-1 >= pages {
		return []model.Report{}
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, len(reports))
	return reports[start:end]
}
