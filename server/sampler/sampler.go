package sampler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bmharper/cimg/v2"
	"gocv.io/x/gocv"
)

// Package sampler extracts still frames from a video source and hands them
// downstream as compressed JPEG payloads. Raw pixel buffers never cross the
// package boundary; that bounds both memory and the detection request size.

// DefaultJPEGQuality is the quality of re-encoded sample frames.
const DefaultJPEGQuality = 80

// DefaultFileSampleCount is how many frames we sample from an uploaded
// video: every 10th of a notional 100-frame grid.
const DefaultFileSampleCount = 10

// Frame is one sampled still image.
type Frame struct {
	Index int       // Sample index (not the source frame number)
	Time  time.Time // Wall-clock time the sample was taken
	JPEG  []byte
}

// FrameSource is a pull-based sequence of sampled frames.
// File sources are finite and return io.EOF when exhausted. Camera sources
// run until Close. Next is safe to call from overlapping analysis cycles.
type FrameSource interface {
	Next(ctx context.Context) (*Frame, error)
	Close()
}

// CameraAcquisitionError is a failure to obtain a live camera stream.
type CameraAcquisitionError struct {
	Device int
	Err    error
}

func (e *CameraAcquisitionError) Error() string {
	return fmt.Sprintf("Failed to acquire camera %v: %v", e.Device, e.Err)
}

func (e *CameraAcquisitionError) Unwrap() error {
	return e.Err
}

// videoFileSource samples an on-disk video at evenly spaced frame positions.
type videoFileSource struct {
	lock      sync.Mutex
	cap       *gocv.VideoCapture
	mat       gocv.Mat
	rgb       gocv.Mat
	positions []int
	next      int
	quality   int
}

// NewVideoFileSource opens a video file and prepares sampleCount evenly
// spaced sample positions. This is a coarse grid, not frame-accurate
// seeking: positions are spread over the container's reported frame count.
func NewVideoFileSource(path string, sampleCount, quality int) (FrameSource, error) {
	if sampleCount <= 0 {
		sampleCount = DefaultFileSampleCount
	}
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("Failed to open video %v: %w", path, err)
	}
	frameCount := int(cap.Get(gocv.VideoCaptureFrameCount))
	return &videoFileSource{
		cap:       cap,
		mat:       gocv.NewMat(),
		rgb:       gocv.NewMat(),
		positions: SamplePositions(frameCount, sampleCount),
		quality:   quality,
	}, nil
}

// SamplePositions spreads sampleCount sample positions evenly over
// frameCount frames, starting at frame 0.
func SamplePositions(frameCount, sampleCount int) []int {
	if frameCount <= 0 || sampleCount <= 0 {
		return nil
	}
	if sampleCount > frameCount {
		sampleCount = frameCount
	}
	step := frameCount / sampleCount
	if step < 1 {
		step = 1
	}
	positions := make([]int, 0, sampleCount)
	for i := 0; i < sampleCount; i++ {
		positions = append(positions, i*step)
	}
	return positions
}

func (s *videoFileSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.next >= len(s.positions) {
		return nil, io.EOF
	}
	idx := s.next
	s.cap.Set(gocv.VideoCapturePosFrames, float64(s.positions[idx]))
	if ok := s.cap.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, io.EOF
	}
	jpeg, err := s.encode()
	if err != nil {
		return nil, err
	}
	s.next++
	return &Frame{Index: idx, Time: time.Now(), JPEG: jpeg}, nil
}

func (s *videoFileSource) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rgb.Close()
	s.mat.Close()
	s.cap.Close()
}

func (s *videoFileSource) encode() ([]byte, error) {
	return encodeMat(s.mat, &s.rgb, s.quality)
}

// cameraSource grabs the current frame from a live capture device on
// demand. Cadence is the caller's concern (the session controller ticks at
// a fixed wall-clock period).
type cameraSource struct {
	lock    sync.Mutex
	cap     *gocv.VideoCapture
	mat     gocv.Mat
	rgb     gocv.Mat
	index   int
	quality int
	closed  bool
}

// NewCameraSource acquires a live capture device.
func NewCameraSource(device, quality int) (FrameSource, error) {
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	cap, err := gocv.VideoCaptureDevice(device)
	if err != nil {
		return nil, &CameraAcquisitionError{Device: device, Err: err}
	}
	return &cameraSource{
		cap:     cap,
		mat:     gocv.NewMat(),
		rgb:     gocv.NewMat(),
		quality: quality,
	}, nil
}

func (s *cameraSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, io.EOF
	}
	if ok := s.cap.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, fmt.Errorf("Camera returned an empty frame")
	}
	jpeg, err := encodeMat(s.mat, &s.rgb, s.quality)
	if err != nil {
		return nil, err
	}
	idx := s.index
	s.index++
	return &Frame{Index: idx, Time: time.Now(), JPEG: jpeg}, nil
}

func (s *cameraSource) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.rgb.Close()
	s.mat.Close()
	s.cap.Close()
}

// encodeMat converts a BGR capture mat to RGB and compresses it to JPEG.
func encodeMat(mat gocv.Mat, rgb *gocv.Mat, quality int) ([]byte, error) {
	gocv.CvtColor(mat, rgb, gocv.ColorBGRToRGB)
	pixels, err := rgb.DataPtrUint8()
	if err != nil {
		return nil, err
	}
	img := cimg.WrapImage(rgb.Cols(), rgb.Rows(), cimg.PixelFormatRGB, pixels)
	return cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, quality, 0))
}
