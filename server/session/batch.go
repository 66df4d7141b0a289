package session

import (
	"context"
	"errors"
	"io"

	"github.com/cyclopcam/logs"
	"github.com/ppecam/ppecam/server/aggstore"
	"github.com/ppecam/ppecam/server/reconcile"
	"github.com/ppecam/ppecam/server/sampler"
)

// RunFile drives the full pipeline over a finite file source, strictly
// sequentially: the next frame is not sampled until the previous frame's
// detect+reconcile cycle has completed, so at most one request pair is in
// flight at a time.
//
// A transport failure on either detection service aborts the whole run.
// Malformed responses never do; they degrade to zero detections inside the
// client. Returns the number of frames processed.
func RunFile(ctx context.Context, logger logs.Log, source sampler.FrameSource, detector Detector, reconciler *reconcile.Reconciler, store *aggstore.Store) (int, error) {
	frames := 0
	for {
		frame, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			logger.Infof("Batch analysis complete after %v frames", frames)
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		person, ppe, err := detector.Detect(ctx, frame.JPEG)
		if err != nil {
			logger.Errorf("Aborting batch analysis at sample %v: %v", frame.Index, err)
			return frames, err
		}
		res := reconciler.Reconcile(person.Raw(), ppe.Raw(), frame.Index, store.Persons())
		store.Append(res)
		frames++
	}
}
