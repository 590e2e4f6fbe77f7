package aggregator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bwise1/safestreet/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memReports struct {
	mu        sync.Mutex
	reports   map[string]model.Report
	locations map[string]string
}

func newMemReports(reports ...model.Report) *memReports {
	m := &memReports{reports: map[string]model.Report{}, locations: map[string]string{}}
	for _, r := range reports {
		m.reports[r.ID] = r
	}
	return m
}

func (m *memReports) ListReports(_ context.Context, q model.ReportQuery) ([]model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Report
	for _, r := range m.reports {
		if q.OwnerID == "" || r.OwnerID == q.OwnerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memReports) GetReport(_ context.Context, id string) (model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return model.Report{}, model.ErrReportNotFound
	}
	return r, nil
}

func (m *memReports) UpdateReportStatus(_ context.Context, id string, status model.Status) (model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return model.Report{}, model.ErrReportNotFound
	}
	r.Status = status
	m.reports[id] = r
	return r, nil
}

func (m *memReports) UpdateReportLocation(_ context.Context, id string, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[id] = location
	return nil
}

func (m *memReports) AttachDetection(_ context.Context, d model.Detection) (model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.reports {
		if r.ImageID != d.OriginalImageID {
			continue
		}
		if r.ProcessedImageID == nil {
			processed := d.ProcessedImageID
			r.ProcessedImageID = &processed
			m.reports[id] = r
		}
		return r, nil
	}
	return model.Report{}, model.ErrReportNotFound
}

type fakeMedia struct {
	previewErr error
	viewErr    error
}

func (f fakeMedia) PreviewURL(imageID string, w, h int) (string, error) {
	if f.previewErr != nil {
		return "", f.previewErr
	}
	return fmt.Sprintf("https://cdn.test/%dx%d/%s.jpg", w, h, imageID), nil
}

func (f fakeMedia) ViewURL(imageID string) (string, error) {
	if f.viewErr != nil {
		return "", f.viewErr
	}
	return "https://cdn.test/" + imageID + ".jpg", nil
}

type fakeGeocoder struct {
	addresses []model.Address
	err       error
	mu        sync.Mutex
	calls     int
}

func (f *fakeGeocoder) ReverseGeocode(context.Context, float64, float64) ([]model.Address, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.addresses, f.err
}

type recordingPublisher struct {
	events []model.ReportEvent
}

func (r *recordingPublisher) Publish(_ context.Context, e model.ReportEvent) error {
	r.events = append(r.events, e)
	return nil
}

var fixedNow = time.UnixMilli(1714521600000)

func newAggregator(store ReportStore, media MediaResolver, geo Geocoder, pub *recordingPublisher) *Aggregator {
	opts := Options{Now: func() time.Time { return fixedNow }}
	if pub != nil {
		opts.Events = pub
	}
	return New(store, media, geo, opts)
}

func report(id string, lat, lon float64) model.Report {
	return model.Report{ID: id, OwnerID: "u1", ImageID: "img_" + id, Latitude: lat, Longitude: lon, Status: model.StatusPending}
}

func TestResolveMedia(t *testing.T) {
	a := newAggregator(newMemReports(), fakeMedia{}, &fakeGeocoder{}, nil)

	media := a.ResolveMedia(report("1", 17.4, 78.5))
	assert.Equal(t, "https://cdn.test/300x300/img_1.jpg?cache=1714521600000", media.PreviewURL)
	assert.Equal(t, media.PreviewURL, media.DisplayURL)
	assert.Equal(t, "https://cdn.test/img_1.jpg", media.FullSizeURL)
	assert.True(t, media.Available)
	assert.Empty(t, media.ProcessedURL)
}

func TestResolveMediaFallbacks(t *testing.T) {
	a := newAggregator(newMemReports(), fakeMedia{previewErr: errors.New("no transform")}, &fakeGeocoder{}, nil)
	media := a.ResolveMedia(report("1", 17.4, 78.5))
	assert.Empty(t, media.PreviewURL)
	assert.Equal(t, "https://cdn.test/img_1.jpg", media.DisplayURL)
	assert.True(t, media.Available)

	a = newAggregator(newMemReports(), fakeMedia{previewErr: errors.New("x"), viewErr: errors.New("y")}, &fakeGeocoder{}, nil)
	media = a.ResolveMedia(report("1", 17.4, 78.5))
	assert.False(t, media.Available)
	assert.Empty(t, media.DisplayURL)
}

func TestResolveMediaProcessed(t *testing.T) {
	a := newAggregator(newMemReports(), fakeMedia{}, &fakeGeocoder{}, nil)
	r := report("1", 17.4, 78.5)
	processed := "det_1"
	r.ProcessedImageID = &processed

	media := a.ResolveMedia(r)
	assert.Equal(t, "https://cdn.test/det_1.jpg", media.ProcessedURL)
}

func TestResolveAddress(t *testing.T) {
	ctx := context.Background()

	geo := &fakeGeocoder{addresses: []model.Address{
		{Street: "MG Road", City: "Hyderabad", Region: " ", Country: "India"},
		{Street: "ignored"},
	}}
	a := newAggregator(newMemReports(), fakeMedia{}, geo, nil)
	assert.Equal(t, "MG Road, Hyderabad, India", a.ResolveAddress(ctx, report("1", 17.4, 78.5)))

	geo.addresses = nil
	assert.Equal(t, AddressNotAvailable, a.ResolveAddress(ctx, report("1", 17.4, 78.5)))

	geo.addresses = []model.Address{{}}
	assert.Equal(t, AddressNotAvailable, a.ResolveAddress(ctx, report("1", 17.4, 78.5)))

	geo.err = errors.New("timeout")
	assert.Equal(t, AddressError, a.ResolveAddress(ctx, report("1", 17.4, 78.5)))

	calls := geo.calls
	assert.Equal(t, LocationMissing, a.ResolveAddress(ctx, report("1", 0, 78.5)))
	assert.Equal(t, LocationMissing, a.ResolveAddress(ctx, report("1", 17.4, 0)))
	assert.Equal(t, calls, geo.calls)
}

func TestDecorateKeepsOrderAndNeverFails(t *testing.T) {
	geo := &fakeGeocoder{err: errors.New("down")}
	a := newAggregator(newMemReports(), fakeMedia{}, geo, nil)

	reports := []model.Report{report("1", 1, 1), report("2", 0, 0), report("3", 2, 2)}
	reports[2].Status = model.StatusInProgress

	views := a.Decorate(context.Background(), reports)
	require.Len(t, views, 3)
	assert.Equal(t, "1", views[0].ID)
	assert.Equal(t, AddressError, views[0].Address)
	assert.Equal(t, LocationMissing, views[1].Address)
	assert.Equal(t, "In Progress", views[2].StatusLabel)
	assert.Equal(t, 2, geo.calls)
}

func withoutCacheParam(t *testing.T, raw string) string {
	t.Helper()
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	q.Del("cache")
	u.RawQuery = q.Encode()
	return u.String()
}

func TestListReportsIsRepeatable(t *testing.T) {
	older := report("a", 17.4, 78.5)
	older.Timestamp = fixedNow.Add(-time.Hour)
	newer := report("b", 17.5, 78.6)
	newer.Timestamp = fixedNow
	missing := report("c", 0, 0)
	missing.Timestamp = fixedNow.Add(-2 * time.Hour)

	var clock sync.Mutex
	tick := fixedNow
	geo := &fakeGeocoder{addresses: []model.Address{{Street: "Tank Bund Road", City: "Hyderabad"}}}
	a := New(newMemReports(missing, older, newer), fakeMedia{}, geo, Options{
		PreviewWidth:  300,
		PreviewHeight: 300,
		Now: func() time.Time {
			clock.Lock()
			defer clock.Unlock()
			tick = tick.Add(time.Second)
			return tick
		},
	})

	ctx := context.Background()
	first, err := a.ListReports(ctx, model.ReportQuery{})
	require.NoError(t, err)
	second, err := a.ListReports(ctx, model.ReportQuery{})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	firstViews := a.Decorate(ctx, first)
	secondViews := a.Decorate(ctx, second)
	require.Len(t, secondViews, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{secondViews[0].ID, secondViews[1].ID, secondViews[2].ID})

	for i := range firstViews {
		assert.NotEqual(t, firstViews[i].Media.PreviewURL, secondViews[i].Media.PreviewURL)
		for _, v := range []*model.ReportView{&firstViews[i], &secondViews[i]} {
			v.Media.PreviewURL = withoutCacheParam(t, v.Media.PreviewURL)
			v.Media.DisplayURL = withoutCacheParam(t, v.Media.DisplayURL)
		}
	}
	assert.Equal(t, firstViews, secondViews)
}

func TestUpdateStatus(t *testing.T) {
	store := newMemReports(report("1", 1, 1))
	pub := &recordingPublisher{}
	a := newAggregator(store, fakeMedia{}, &fakeGeocoder{}, pub)
	ctx := context.Background()

	updated, err := a.UpdateStatus(ctx, "1", "In Progress")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, updated.Status)

	updated, err = a.UpdateStatus(ctx, "1", "Resolved")
	require.NoError(t, err)
	assert.Equal(t, model.Status("Resolved"), updated.Status)

	updated, err = a.UpdateStatus(ctx, "1", "Pending")
	require.NoError(t, err)
	assert.Equal(t, model.Status("Pending"), updated.Status)

	_, err = a.UpdateStatus(ctx, "1", "Closed")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = a.UpdateStatus(ctx, "missing", "Resolved")
	assert.ErrorIs(t, err, model.ErrReportNotFound)

	require.Len(t, pub.events, 3)
	assert.Equal(t, model.EventReportStatusChanged, pub.events[0].Type)
	assert.Equal(t, fixedNow, pub.events[0].At)
}

func TestAttachDetectionKeepsStatusAndFirstResult(t *testing.T) {
	r := report("1", 1, 1)
	r.Status = model.StatusResolved
	store := newMemReports(r)
	pub := &recordingPublisher{}
	a := newAggregator(store, fakeMedia{}, &fakeGeocoder{}, pub)
	ctx := context.Background()

	got, err := a.AttachDetection(ctx, model.Detection{OriginalImageID: "img_1", ProcessedImageID: "det_1"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, got.Status)
	require.NotNil(t, got.ProcessedImageID)
	assert.Equal(t, "det_1", *got.ProcessedImageID)

	got, err = a.AttachDetection(ctx, model.Detection{OriginalImageID: "img_1", ProcessedImageID: "det_2"})
	require.NoError(t, err)
	assert.Equal(t, "det_1", *got.ProcessedImageID)

	_, err = a.AttachDetection(ctx, model.Detection{OriginalImageID: "img_x", ProcessedImageID: "det_3"})
	assert.ErrorIs(t, err, model.ErrReportNotFound)
	assert.Len(t, pub.events, 2)
}

func TestBackfillLocations(t *testing.T) {
	store := newMemReports()
	a := newAggregator(store, fakeMedia{}, &fakeGeocoder{}, nil)
	stored := "Already there"

	views := []model.ReportView{
		{Report: model.Report{ID: "1"}, Address: "MG Road, Hyderabad"},
		{Report: model.Report{ID: "2"}, Address: AddressError},
		{Report: model.Report{ID: "3"}, Address: LocationMissing},
		{Report: model.Report{ID: "4", Location: &stored}, Address: "Somewhere"},
	}

	assert.Equal(t, 1, a.BackfillLocations(context.Background(), views))
	assert.Equal(t, map[string]string{"1": "MG Road, Hyderabad"}, store.locations)
}

func TestStats(t *testing.T) {
	reports := []model.Report{
		{Status: "pending"}, {Status: "Pending"}, {Status: "in_progress"},
		{Status: "Resolved"}, {Status: "Rejected"}, {Status: "Rejected"},
	}
	assert.Equal(t, model.ReportStats{Total: 6, Pending: 2, InProgress: 1, Resolved: 1, Rejected: 2}, Stats(reports))
}
