// Package transport streams a byte buffer to a GATT characteristic as a
// sequence of small, evenly spaced writes.
//
// Jobs are queued and drained by a single background worker, so chunks of
// consecutive jobs never interleave. Chunk i of a job is written no earlier
// than submit time + i*interval and no earlier than one interval after the
// worker's previous write, so a job that waited in the queue keeps its spacing.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/bleprint/internal/groutine"
)

const (
	// DefaultChunkSize fits the 20-byte ATT payload of the default MTU.
	DefaultChunkSize = 20

	// DefaultChunkInterval is the spacing between consecutive chunk writes.
	DefaultChunkInterval = 20 * time.Millisecond

	// DefaultQueueSize bounds the number of pending jobs.
	DefaultQueueSize = 16
)

var (
	ErrClosed    = errors.New("transport writer is closed")
	ErrQueueFull = errors.New("transport queue is full")
	ErrNoTarget  = errors.New("transport target is not set")
)

// Target is the negotiated write endpoint.
type Target struct {
	DeviceID           string
	ServiceUUID        string
	CharacteristicUUID string
}

// IsZero reports whether no endpoint is set.
func (t Target) IsZero() bool {
	return t.ServiceUUID == "" || t.CharacteristicUUID == ""
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s/%s", t.DeviceID, t.ServiceUUID, t.CharacteristicUUID)
}

// ValueWriter performs one characteristic write.
type ValueWriter interface {
	WriteValue(deviceID, serviceUUID, characteristicUUID string, data []byte) error
}

// Clock abstracts time for the worker.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Chunk is one scheduled write.
type Chunk struct {
	Offset int           // position of Data within the buffer
	Delay  time.Duration // time after submission at which Data is due
	Data   []byte
}

// Plan slices buf into chunks of at most size bytes, chunk i due at i*interval.
// The concatenation of every Chunk.Data equals buf. A non-positive size
// falls back to DefaultChunkSize.
func Plan(buf []byte, size int, interval time.Duration) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([]Chunk, 0, (len(buf)+size-1)/size)
	for i, off := 0, 0; off < len(buf); i, off = i+1, off+size {
		end := min(off+size, len(buf))
		chunks = append(chunks, Chunk{
			Offset: off,
			Delay:  time.Duration(i) * interval,
			Data:   buf[off:end],
		})
	}
	return chunks
}

// Job is a submitted buffer.
type Job struct {
	Target    Target
	Chunks    []Chunk
	Submitted time.Time

	written atomic.Int32
	failed  atomic.Int32
	done    chan struct{}
}

// Done is closed once every chunk has been attempted or the job was abandoned.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job is done or ctx ends.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Written returns the number of chunks the platform accepted.
func (j *Job) Written() int { return int(j.written.Load()) }

// Failed returns the number of chunks the platform rejected.
func (j *Job) Failed() int { return int(j.failed.Load()) }

// Options tunes a Writer. Zero values take the package defaults.
type Options struct {
	ChunkSize     int
	ChunkInterval time.Duration
	QueueSize     int
	Clock         Clock
}

// Writer owns the job queue and its worker.
type Writer struct {
	out    ValueWriter
	opts   Options
	logger *logrus.Logger

	mu      sync.Mutex
	queue   chan *Job
	started bool
	closed  bool
	cancel  context.CancelFunc
	stopped <-chan struct{}
}

// NewWriter creates a stopped writer. A nil logger falls back to logrus.New().
func NewWriter(out ValueWriter, opts Options, logger *logrus.Logger) *Writer {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkInterval <= 0 {
		opts.ChunkInterval = DefaultChunkInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	return &Writer{
		out:    out,
		opts:   opts,
		logger: logger,
		queue:  make(chan *Job, opts.QueueSize),
	}
}

// Start launches the worker. Calling Start again is a no-op.
func (w *Writer) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.started = true
	w.stopped = groutine.Go(ctx, "transport-writer", w.run)
}

// Submit queues buf for target and returns immediately. The buffer is copied.
func (w *Writer) Submit(target Target, buf []byte) (*Job, error) {
	if target.IsZero() {
		return nil, ErrNoTarget
	}
	data := append([]byte(nil), buf...)
	job := &Job{
		Target:    target,
		Chunks:    Plan(data, w.opts.ChunkSize, w.opts.ChunkInterval),
		Submitted: w.opts.Clock.Now(),
		done:      make(chan struct{}),
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	select {
	case w.queue <- job:
	default:
		return nil, ErrQueueFull
	}

	w.logger.WithFields(logrus.Fields{
		"target": target.String(),
		"bytes":  len(data),
		"chunks": len(job.Chunks),
	}).Debug("Write job queued")
	return job, nil
}

// Close stops accepting jobs, abandons queued ones and waits for the worker.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	cancel, stopped := w.cancel, w.stopped
	w.mu.Unlock()

	if cancel == nil {
		// never started: release anyone waiting on queued jobs
		for job := range w.queue {
			close(job.done)
		}
		return
	}
	cancel()
	<-stopped
}

func (w *Writer) run(ctx context.Context) {
	var lastWrite time.Time
	for job := range w.queue {
		lastWrite = w.send(ctx, job, lastWrite)
	}
}

// send writes the chunks of job and returns the time of its last write attempt.
func (w *Writer) send(ctx context.Context, job *Job, lastWrite time.Time) time.Time {
	defer close(job.done)

	log := w.logger.WithField("target", job.Target.String())
	for i, chunk := range job.Chunks {
		due := job.Submitted.Add(chunk.Delay)
		if !lastWrite.IsZero() {
			if next := lastWrite.Add(w.opts.ChunkInterval); next.After(due) {
				due = next
			}
		}
		if err := w.waitUntil(ctx, due); err != nil {
			log.WithField("remaining", len(job.Chunks)-i).Warn("Write job abandoned")
			return lastWrite
		}
		lastWrite = w.opts.Clock.Now()
		err := w.out.WriteValue(job.Target.DeviceID, job.Target.ServiceUUID, job.Target.CharacteristicUUID, chunk.Data)
		if err != nil {
			// chunk failures are not retried and do not stop the job
			job.failed.Add(1)
			log.WithFields(logrus.Fields{
				"chunk":  i,
				"offset": chunk.Offset,
				"error":  err,
			}).Warn("Chunk write failed")
			continue
		}
		job.written.Add(1)
	}
	log.WithFields(logrus.Fields{
		"written": job.Written(),
		"failed":  job.Failed(),
	}).Debug("Write job finished")
	return lastWrite
}

func (w *Writer) waitUntil(ctx context.Context, due time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wait := due.Sub(w.opts.Clock.Now())
	if wait <= 0 {
		return nil
	}
	select {
	case <-w.opts.Clock.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
