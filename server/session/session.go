package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/ppecam/ppecam/server/aggstore"
	"github.com/ppecam/ppecam/server/detect"
	"github.com/ppecam/ppecam/server/reconcile"
	"github.com/ppecam/ppecam/server/sampler"
)

// Controller drives the sampler → detect → reconcile → store loop for a
// live camera at a fixed wall-clock cadence.
//
// States: Idle (no camera) → CameraReady (camera acquired, loop not
// running) → Analyzing (loop running) → back to CameraReady on manual stop,
// or automatically once the subject has been absent for MissedFrameLimit
// consecutive samples. Teardown releases the camera from any state.

type State string

const (
	StateIdle        State = "idle"
	StateCameraReady State = "cameraReady"
	StateAnalyzing   State = "analyzing"
)

// Detector is the part of detect.Client that the controller needs.
type Detector interface {
	Detect(ctx context.Context, jpeg []byte) (*detect.PersonResponse, *detect.PPEResponse, error)
}

// SourceOpener acquires the live frame source. Injected so that tests can
// run the controller without a physical camera.
type SourceOpener func() (sampler.FrameSource, error)

type Options struct {
	Interval           time.Duration // Sampling period (default 500 ms)
	PresenceConfidence float32       // A person at or above this confidence counts as "subject present" (default 0.6). Distinct from the reconciler's 0.5 floor.
	MissedFrameLimit   int           // Consecutive absent samples before auto-stop (default 5)
}

func DefaultOptions() Options {
	return Options{
		Interval:           500 * time.Millisecond,
		PresenceConfidence: 0.6,
		MissedFrameLimit:   5,
	}
}

type Controller struct {
	log        logs.Log
	detector   Detector
	reconciler *reconcile.Reconciler
	store      *aggstore.Store
	openSource SourceOpener
	opts       Options

	lock        sync.Mutex
	state       State
	source      sampler.FrameSource
	missed      int
	cancel      context.CancelFunc
	loopStopped chan bool

	errLock   sync.Mutex
	lastErrAt time.Time
}

func NewController(logger logs.Log, detector Detector, reconciler *reconcile.Reconciler, store *aggstore.Store, openSource SourceOpener, opts Options) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.PresenceConfidence <= 0 {
		opts.PresenceConfidence = 0.6
	}
	if opts.MissedFrameLimit <= 0 {
		opts.MissedFrameLimit = 5
	}
	return &Controller{
		log:        logger,
		detector:   detector,
		reconciler: reconciler,
		store:      store,
		openSource: openSource,
		opts:       opts,
		state:      StateIdle,
	}
}

func (c *Controller) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// StartCamera acquires the live source. On failure the session stays Idle
// and the error is returned to be surfaced to the user.
func (c *Controller) StartCamera() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.state != StateIdle {
		return fmt.Errorf("Camera is already running (state %v)", c.state)
	}
	source, err := c.openSource()
	if err != nil {
		return err
	}
	c.source = source
	c.state = StateCameraReady
	c.log.Infof("Camera acquired")
	return nil
}

// StartAnalysis begins the sampling loop. Only valid from CameraReady.
// The store is reset: a new analysis run means a fresh accumulation.
func (c *Controller) StartAnalysis() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.state != StateCameraReady {
		return fmt.Errorf("Cannot start analysis in state %v", c.state)
	}
	c.store.Reset()
	c.missed = 0
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.loopStopped = make(chan bool)
	c.state = StateAnalyzing
	go c.run(ctx, c.loopStopped)
	c.log.Infof("Analysis started (every %v)", c.opts.Interval)
	return nil
}

// StopAnalysis cancels the sampling loop and returns to CameraReady.
// In-flight detect calls are not aborted; their results are discarded when
// they land, because the session is no longer Analyzing.
func (c *Controller) StopAnalysis() {
	c.lock.Lock()
	c.stopAnalysisLocked("manual stop")
	c.lock.Unlock()
}

// Teardown stops analysis if running, releases the camera, and returns to
// Idle. This must run on every exit path so the camera device is never leaked.
func (c *Controller) Teardown() {
	c.lock.Lock()
	c.stopAnalysisLocked("teardown")
	loopStopped := c.loopStopped
	source := c.source
	c.source = nil
	c.loopStopped = nil
	c.state = StateIdle
	c.lock.Unlock()

	if loopStopped != nil {
		<-loopStopped
	}
	if source != nil {
		source.Close()
		c.log.Infof("Camera released")
	}
}

func (c *Controller) stopAnalysisLocked(reason string) {
	if c.state != StateAnalyzing {
		return
	}
	c.cancel()
	c.state = StateCameraReady
	c.log.Infof("Analysis stopped (%v)", reason)
}

func (c *Controller) run(ctx context.Context, stopped chan bool) {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(stopped)
			return
		case <-ticker.C:
			// The ticker fires regardless of whether the previous cycle has
			// finished. A slow detect call must not delay the next sample,
			// so overlapping cycles are allowed and tolerated downstream.
			go c.runCycle(ctx)
		}
	}
}

func (c *Controller) runCycle(ctx context.Context) {
	c.lock.Lock()
	source := c.source
	c.lock.Unlock()
	if source == nil {
		return
	}

	frame, err := source.Next(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logErrorRateLimited("Failed to sample frame: %v", err)
			c.recordMiss()
		}
		return
	}

	person, ppe, err := c.detector.Detect(ctx, frame.JPEG)
	if err != nil {
		// Live mode has no abort-on-error path. A failed cycle is skipped,
		// and the next tick tries again.
		if ctx.Err() == nil {
			c.logErrorRateLimited("Detection failed for sample %v: %v", frame.Index, err)
			c.recordMiss()
		}
		return
	}
	personRaws := person.Raw()
	ppeRaws := ppe.Raw()

	// Discard results that land after the session left Analyzing
	c.lock.Lock()
	if c.state != StateAnalyzing {
		c.lock.Unlock()
		return
	}
	c.lock.Unlock()

	res := c.reconciler.Reconcile(personRaws, ppeRaws, frame.Index, c.store.Persons())
	c.store.Append(res)

	present := false
	for _, p := range personRaws {
		if p.Score >= c.opts.PresenceConfidence {
			present = true
			break
		}
	}
	if present {
		c.resetMiss()
	} else {
		c.recordMiss()
	}
}

func (c *Controller) resetMiss() {
	c.lock.Lock()
	c.missed = 0
	c.lock.Unlock()
}

func (c *Controller) recordMiss() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.state != StateAnalyzing {
		return
	}
	c.missed++
	if c.missed >= c.opts.MissedFrameLimit {
		c.log.Infof("No subject for %v consecutive samples", c.missed)
		c.stopAnalysisLocked("subject absent")
	}
}

func (c *Controller) logErrorRateLimited(format string, args ...interface{}) {
	c.errLock.Lock()
	defer c.errLock.Unlock()
	if time.Since(c.lastErrAt) > 15*time.Second {
		c.log.Errorf(format, args...)
		c.lastErrAt = time.Now()
	}
}
