package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwise1/safestreet/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	isRoad  bool
	errs    []error
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (f *fakeClassifier) IsRoadImage(ctx context.Context, _ []byte) (bool, error) {
	f.calls++
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return false, err
		}
	}
	return f.isRoad, nil
}

type fakeStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	deleted  []string
	createFn func(objectID string) error
	calls    int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) CreateObject(_ context.Context, objectID string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.createFn != nil {
		if err := f.createFn(objectID); err != nil {
			return "", err
		}
	}
	f.objects[objectID] = data
	return objectID, nil
}

func (f *fakeStorage) DeleteObject(_ context.Context, objectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objectID)
	f.deleted = append(f.deleted, objectID)
	return nil
}

type fakeReports struct {
	reports []model.Report
	errs    []error
	calls   int
}

func (f *fakeReports) CreateReport(_ context.Context, r model.Report) (model.Report, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return model.Report{}, err
		}
	}
	r.ID = fmt.Sprintf("report_%d", len(f.reports)+1)
	f.reports = append(f.reports, r)
	return r, nil
}

type fakeDetector struct {
	err     error
	calls   int
	imageID string
}

func (f *fakeDetector) Detect(_ context.Context, _ []byte, originalImageID string) error {
	f.calls++
	f.imageID = originalImageID
	return f.err
}

type fixture struct {
	classifier *fakeClassifier
	storage    *fakeStorage
	reports    *fakeReports
	detector   *fakeDetector
	progress   []Progress
	pipeline   *Pipeline
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		classifier: &fakeClassifier{isRoad: true},
		storage:    newFakeStorage(),
		reports:    &fakeReports{},
		detector:   &fakeDetector{},
	}
	ids := 0
	if opts.NewObjectID == nil {
		opts.NewObjectID = func() string {
			ids++
			return fmt.Sprintf("img_%d", ids)
		}
	}
	opts.OnProgress = func(_ string, p Progress) {
		f.progress = append(f.progress, p)
	}
	f.pipeline = New(Services{
		Classifier: f.classifier,
		Storage:    f.storage,
		Reports:    f.reports,
		Detector:   f.detector,
	}, opts)
	return f
}

func coords(lat, lon float64) (*float64, *float64) {
	return &lat, &lon
}

func submission() Submission {
	lat, lon := coords(17.4, 78.5)
	return Submission{OwnerID: "user_1", Image: []byte("jpeg"), Latitude: lat, Longitude: lon}
}

func TestSubmitHappyPath(t *testing.T) {
	f := newFixture(t, Options{})

	res, err := f.pipeline.Submit(context.Background(), submission())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, StateDetected, res.State)
	assert.Equal(t, MsgSuccess, res.Message)
	assert.Equal(t, "report_1", res.ReportID)
	assert.Equal(t, "img_1", res.ImageID)
	assert.Equal(t, "img_1", f.detector.imageID)

	var messages []string
	for _, p := range f.progress {
		if p.Busy && p.Message != "" && (len(messages) == 0 || messages[len(messages)-1] != p.Message) {
			messages = append(messages, p.Message)
		}
	}
	assert.Equal(t, []string{MsgVerifying, MsgUploading, MsgSaving, MsgDetecting}, messages)

	status := f.pipeline.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.False(t, status.Busy)
	assert.False(t, status.CanRetry)
}

func TestRecordCarriesSubmissionTime(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC)
	f := newFixture(t, Options{Now: func() time.Time { return at }})

	_, err := f.pipeline.Submit(context.Background(), submission())
	require.NoError(t, err)

	require.Len(t, f.reports.reports, 1)
	recorded := f.reports.reports[0]
	assert.True(t, recorded.Timestamp.Equal(at))
	assert.Equal(t, model.StatusPending, recorded.Status)
	assert.Equal(t, "user_1", recorded.OwnerID)
}

func TestClassifierRejectionSkipsEverything(t *testing.T) {
	f := newFixture(t, Options{})
	f.classifier.isRoad = false

	res, err := f.pipeline.Submit(context.Background(), submission())
	require.NoError(t, err)

	assert.Equal(t, OutcomeRejectedContent, res.Outcome)
	assert.Equal(t, StateRejectedNotRoad, res.State)
	assert.ErrorIs(t, res.Err, model.ErrContentRejected)
	assert.Equal(t, 0, f.storage.calls)
	assert.Equal(t, 0, f.reports.calls)
	assert.Equal(t, 0, f.detector.calls)

	_, err = f.pipeline.Retry(context.Background())
	assert.ErrorIs(t, err, model.ErrNothingToRetry)
}

func TestClassifierErrorFailsClosed(t *testing.T) {
	f := newFixture(t, Options{})
	f.classifier.errs = []error{&model.TransportError{Service: "classifier", StatusCode: 503}}

	res, err := f.pipeline.Submit(context.Background(), submission())
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, StateClassifyFailed, res.State)
	assert.Equal(t, 0, f.storage.calls)
	assert.True(t, f.pipeline.Status().CanRetry)

	res, err = f.pipeline.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 2, f.classifier.calls)
}

func TestStorageFailureCreatesNoRecord(t *testing.T) {
	f := newFixture(t, Options{})
	f.storage.createFn = func(string) error { return errors.New("bucket unavailable") }

	res, err := f.pipeline.Submit(context.Background(), submission())
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, StateStoreFailed, res.State)
	assert.Equal(t, 0, f.reports.calls)
	assert.Equal(t, 0, f.detector.calls)

	f.storage.createFn = nil
	res, err = f.pipeline.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "img_2", res.ImageID)
	assert.Equal(t, 1, f.classifier.calls)
}

func TestRecordFailureNeverCallsDetector(t *testing.T) {
	f := newFixture(t, Options{})
	f.reports.errs = []error{errors.New("db down")}

	res, err := f.pipeline.Submit(context.Background(), submission())
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, StateRecordFailed, res.State)
	assert.Equal(t, "img_1", res.ImageID)
	assert.Equal(t, 0, f.detector.calls)
	assert.Contains(t, f.storage.objects, "img_1")

	res, err = f.pipeline.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "img_1", res.ImageID)
	assert.Equal(t, 1, f.storage.calls)
	assert.Equal(t, 1, f.classifier.calls)
}

func TestRecordFailureCompensation(t *testing.T) {
	f := newFixture(t, Options{CompensateOrphans: true})
	f.reports.errs = []error{errors.New("db down")}

	res, err := f.pipeline.Submit(context.Background(), submission())
	require.NoError(t, err)
	assert.Equal(t, StateRecordFailed, res.State)
	assert.Equal(t, []string{"img_1"}, f.storage.deleted)
	assert.NotContains(t, f.storage.objects, "img_1")

	res, err = f.pipeline.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "img_2", res.ImageID)
	assert.Equal(t, "img_2", f.reports.reports[0].ImageID)
}

// Detector returns 500 after the report exists: the report stays pending
// without a processed image.
func TestDetectorFailureDegradesToWarning(t *testing.T) {
	f := newFixture(t, Options{})
	f.detector.err = &model.TransportError{Service: "detector", StatusCode: 500, Detail: "model offline"}

	res, err := f.pipeline.Submit(context.Background(), submission())
	require.NoError(t, err)

	assert.Equal(t, OutcomeWarning, res.Outcome)
	assert.Equal(t, StateDetectFailed, res.State)
	assert.Equal(t, "Image uploaded but AI model processing failed: model offline", res.Message)

	require.Len(t, f.reports.reports, 1)
	report := f.reports.reports[0]
	assert.Equal(t, model.StatusPending, report.Status)
	assert.Equal(t, "img_1", report.ImageID)
	assert.Nil(t, report.ProcessedImageID)
	assert.Equal(t, 17.4, report.Latitude)
	assert.Equal(t, 78.5, report.Longitude)

	_, err = f.pipeline.Retry(context.Background())
	assert.ErrorIs(t, err, model.ErrNothingToRetry)
	assert.Equal(t, StateIdle, f.pipeline.Status().State)
}

func TestDetectorFailureWithoutDetail(t *testing.T) {
	f := newFixture(t, Options{})
	f.detector.err = errors.New("connection reset")

	res, err := f.pipeline.Submit(context.Background(), submission())
	require.NoError(t, err)
	assert.Equal(t, "Image uploaded but AI model processing failed: Unknown error", res.Message)
}

func TestValidationIssuesNoCalls(t *testing.T) {
	lat, lon := coords(95, 78.5)
	cases := map[string]Submission{
		"no owner":    {Image: []byte("x"), Latitude: lat, Longitude: lon},
		"no image":    {OwnerID: "u", Latitude: lat, Longitude: lon},
		"no location": {OwnerID: "u", Image: []byte("x")},
		"bad lat":     {OwnerID: "u", Image: []byte("x"), Latitude: lat, Longitude: lon},
	}
	for name, sub := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, Options{})
			_, err := f.pipeline.Submit(context.Background(), sub)
			assert.ErrorIs(t, err, model.ErrValidation)
			assert.Equal(t, 0, f.classifier.calls)
			assert.False(t, f.pipeline.Status().Busy)
		})
	}
}

func TestSecondSubmitWhileInFlight(t *testing.T) {
	f := newFixture(t, Options{})
	f.classifier.entered = make(chan struct{})
	f.classifier.release = make(chan struct{})

	done := make(chan Result)
	go func() {
		res, _ := f.pipeline.Submit(context.Background(), submission())
		done <- res
	}()
	<-f.classifier.entered

	_, err := f.pipeline.Submit(context.Background(), submission())
	assert.ErrorIs(t, err, model.ErrSubmissionInFlight)
	_, err = f.pipeline.Retry(context.Background())
	assert.ErrorIs(t, err, model.ErrSubmissionInFlight)
	assert.True(t, f.pipeline.Status().Busy)

	close(f.classifier.release)
	res := <-done
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 1, f.classifier.calls)
}

func TestCancelledContextDoesNotAbort(t *testing.T) {
	f := newFixture(t, Options{CallTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.pipeline.Submit(ctx, submission())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

type rejectingNormalizer struct{}

func (rejectingNormalizer) Normalize([]byte) ([]byte, error) {
	return nil, model.Validationf("image could not be decoded")
}

func TestNormalizerFailureIsValidation(t *testing.T) {
	f := newFixture(t, Options{Normalizer: rejectingNormalizer{}})

	_, err := f.pipeline.Submit(context.Background(), submission())
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, 0, f.classifier.calls)
}
