// Package pipeline runs the citizen submission workflow:
// classify, store, record, detect.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bwise1/safestreet/internal/events"
	"github.com/bwise1/safestreet/internal/metrics"
	"github.com/bwise1/safestreet/internal/model"
	"github.com/bwise1/safestreet/util"
	"github.com/lucsky/cuid"
)

type Classifier interface {
	IsRoadImage(ctx context.Context, image []byte) (bool, error)
}

type ObjectStore interface {
	CreateObject(ctx context.Context, objectID string, data []byte) (string, error)
	DeleteObject(ctx context.Context, objectID string) error
}

type ReportStore interface {
	CreateReport(ctx context.Context, report model.Report) (model.Report, error)
}

type Detector interface {
	Detect(ctx context.Context, image []byte, originalImageID string) error
}

type Normalizer interface {
	Normalize(raw []byte) ([]byte, error)
}

// ProgressFunc receives every state change of an attempt.
type ProgressFunc func(ownerID string, p Progress)

type Services struct {
	Classifier Classifier
	Storage    ObjectStore
	Reports    ReportStore
	Detector   Detector
}

type Options struct {
	CallTimeout       time.Duration
	CompensateOrphans bool
	Normalizer        Normalizer
	Events            events.Publisher
	OnProgress        ProgressFunc
	NewObjectID       func() string
	Now               func() time.Time
}

const defaultCallTimeout = 30 * time.Second

type step int

const (
	stepClassify step = iota
	stepStore
	stepRecord
	stepDetect
)

// attempt holds the captured inputs of the current submission until it
// reaches a terminal state, so a failed stage can be retried.
type attempt struct {
	sub      Submission
	failedAt State
	imageID  string
}

func (a *attempt) resumeFrom() step {
	switch a.failedAt {
	case StateStoreFailed:
		return stepStore
	case StateRecordFailed:
		if a.imageID == "" {
			return stepStore
		}
		return stepRecord
	default:
		return stepClassify
	}
}

// Pipeline allows at most one in-flight attempt.
type Pipeline struct {
	svc  Services
	opts Options

	mu      sync.Mutex
	busy    bool
	state   State
	message string
	pending *attempt
}

func New(svc Services, opts Options) *Pipeline {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.NewObjectID == nil {
		opts.NewObjectID = cuid.New
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Events == nil {
		opts.Events = events.NopPublisher{}
	}
	return &Pipeline{svc: svc, opts: opts, state: StateIdle}
}

// Submit validates sub and runs a new attempt to a terminal state. The
// returned error is non-nil only when the attempt did not start; stage
// failures are reported through Result.
func (p *Pipeline) Submit(ctx context.Context, sub Submission) (Result, error) {
	if err := validate(sub); err != nil {
		return Result{}, err
	}

	if p.opts.Normalizer != nil {
		image, err := p.opts.Normalizer.Normalize(sub.Image)
		if err != nil {
			return Result{}, err
		}
		sub.Image = image
	}

	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return Result{}, model.ErrSubmissionInFlight
	}
	p.busy = true
	a := &attempt{sub: sub}
	p.pending = a
	p.mu.Unlock()

	return p.run(ctx, a), nil
}

// Retry re-runs the failed stage of the last attempt with the same inputs.
func (p *Pipeline) Retry(ctx context.Context) (Result, error) {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return Result{}, model.ErrSubmissionInFlight
	}
	a := p.pending
	if a == nil || a.failedAt == "" {
		p.mu.Unlock()
		return Result{}, model.ErrNothingToRetry
	}
	p.busy = true
	p.mu.Unlock()

	log.Printf("[Pipeline] retrying %s for owner %s", a.failedAt, a.sub.OwnerID)
	return p.run(ctx, a), nil
}

func (p *Pipeline) Status() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *Pipeline) snapshot() Progress {
	return Progress{
		State:    p.state,
		Message:  p.message,
		Busy:     p.busy,
		CanRetry: !p.busy && p.pending != nil && p.pending.failedAt != "",
	}
}

func validate(sub Submission) error {
	if !util.NotBlank(sub.OwnerID) {
		return model.Validationf("owner is required")
	}
	if len(sub.Image) == 0 {
		return model.Validationf("image is required")
	}
	if sub.Latitude == nil || sub.Longitude == nil {
		return model.Validationf("location is required")
	}
	if err := util.ValidateCoordinates(*sub.Latitude, *sub.Longitude); err != nil {
		return model.Validationf("%v", err)
	}
	return nil
}

// run drives a from its resume point to a terminal state. Cancelling the
// caller's context does not abort the attempt.
func (p *Pipeline) run(ctx context.Context, a *attempt) Result {
	ctx = context.WithoutCancel(ctx)
	res := p.execute(ctx, a)
	metrics.RecordOutcome(string(res.Outcome))

	p.mu.Lock()
	p.busy = false
	switch res.State {
	case StateClassifyFailed, StateStoreFailed, StateRecordFailed:
		a.failedAt = res.State
		p.state = res.State
		p.message = res.Message
	default:
		p.pending = nil
		p.state = StateIdle
		p.message = ""
	}
	progress := p.snapshot()
	p.mu.Unlock()

	p.notify(a.sub.OwnerID, progress)
	return res
}

func (p *Pipeline) execute(ctx context.Context, a *attempt) Result {
	sub := a.sub
	from := a.resumeFrom()

	if from <= stepClassify {
		p.enter(sub.OwnerID, StateClassifying, MsgVerifying)
		var isRoad bool
		err := p.call(ctx, "classify", func(ctx context.Context) error {
			var err error
			isRoad, err = p.svc.Classifier.IsRoadImage(ctx, sub.Image)
			return err
		})
		if err != nil {
			log.Printf("[Pipeline] classification failed for owner %s: %v", sub.OwnerID, err)
			return Result{
				Outcome: OutcomeFailed,
				State:   StateClassifyFailed,
				Message: fmt.Sprintf("Image verification failed: %v", err),
				Err:     err,
			}
		}
		if !isRoad {
			return Result{
				Outcome: OutcomeRejectedContent,
				State:   StateRejectedNotRoad,
				Message: MsgNotRoad,
				Err:     model.ErrContentRejected,
			}
		}
		p.enter(sub.OwnerID, StateClassified, "")
	}

	if from <= stepStore {
		p.enter(sub.OwnerID, StateStoringImage, MsgUploading)
		objectID := p.opts.NewObjectID()
		var imageID string
		err := p.call(ctx, "store", func(ctx context.Context) error {
			var err error
			imageID, err = p.svc.Storage.CreateObject(ctx, objectID, sub.Image)
			return err
		})
		if err != nil {
			log.Printf("[Pipeline] storing image %s failed: %v", objectID, err)
			return Result{
				Outcome: OutcomeFailed,
				State:   StateStoreFailed,
				Message: fmt.Sprintf("Upload failed: %v", err),
				Err:     err,
			}
		}
		a.imageID = imageID
		p.enter(sub.OwnerID, StateStored, "")
	}

	p.enter(sub.OwnerID, StateCreatingRecord, MsgSaving)
	var report model.Report
	err := p.call(ctx, "record", func(ctx context.Context) error {
		var err error
		report, err = p.svc.Reports.CreateReport(ctx, model.Report{
			OwnerID:   sub.OwnerID,
			ImageID:   a.imageID,
			Latitude:  *sub.Latitude,
			Longitude: *sub.Longitude,
			Timestamp: p.opts.Now(),
			Status:    model.StatusPending,
		})
		return err
	})
	if err != nil {
		log.Printf("[Pipeline] creating report for image %s failed: %v", a.imageID, err)
		res := Result{
			Outcome: OutcomeFailed,
			State:   StateRecordFailed,
			Message: fmt.Sprintf("Upload failed: %v", err),
			ImageID: a.imageID,
			Err:     err,
		}
		if p.opts.CompensateOrphans {
			p.compensate(ctx, a)
		}
		return res
	}
	p.enter(sub.OwnerID, StateRecorded, "")

	events.Emit(ctx, p.opts.Events, model.ReportEvent{
		Type:     model.EventReportCreated,
		ReportID: report.ID,
		OwnerID:  report.OwnerID,
		Status:   report.Status,
		At:       p.opts.Now(),
	})

	p.enter(sub.OwnerID, StateDetecting, MsgDetecting)
	err = p.call(ctx, "detect", func(ctx context.Context) error {
		return p.svc.Detector.Detect(ctx, sub.Image, a.imageID)
	})
	if err != nil {
		log.Printf("[Pipeline] detection for image %s failed: %v", a.imageID, err)
		return Result{
			Outcome:  OutcomeWarning,
			State:    StateDetectFailed,
			Message:  msgWarning + detail(err),
			ReportID: report.ID,
			ImageID:  a.imageID,
			Err:      err,
		}
	}

	return Result{
		Outcome:  OutcomeSuccess,
		State:    StateDetected,
		Message:  MsgSuccess,
		ReportID: report.ID,
		ImageID:  a.imageID,
	}
}

// compensate deletes the image orphaned by a failed record creation. On
// success the next retry stores the image again.
func (p *Pipeline) compensate(ctx context.Context, a *attempt) {
	err := p.call(ctx, "compensate", func(ctx context.Context) error {
		return p.svc.Storage.DeleteObject(ctx, a.imageID)
	})
	if err != nil {
		log.Printf("[Pipeline] failed to delete orphaned image %s: %v", a.imageID, err)
		return
	}
	log.Printf("[Pipeline] deleted orphaned image %s", a.imageID)
	a.imageID = ""
}

func (p *Pipeline) call(ctx context.Context, stage string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	metrics.ObserveStage(stage, err == nil, time.Since(start))
	return err
}

func (p *Pipeline) enter(ownerID string, state State, message string) {
	p.mu.Lock()
	p.state = state
	if message != "" {
		p.message = message
	}
	progress := p.snapshot()
	p.mu.Unlock()

	p.notify(ownerID, progress)
}

func (p *Pipeline) notify(ownerID string, progress Progress) {
	if p.opts.OnProgress != nil {
		p.opts.OnProgress(ownerID, progress)
	}
}

func detail(err error) string {
	var te *model.TransportError
	if errors.As(err, &te) && te.Detail != "" {
		return te.Detail
	}
	return unknownCause
}
