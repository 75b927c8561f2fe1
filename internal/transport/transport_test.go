package transport

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/bleprint/internal/testutils"
)

// fakeClock advances virtual time by exactly the requested wait.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// timedWriter records the virtual time of each write.
type timedWriter struct {
	mu    sync.Mutex
	clock Clock
	at    []time.Time
	data  [][]byte
	fail  map[int]error
}

func (w *timedWriter) WriteValue(_, _, _ string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := len(w.data)
	w.at = append(w.at, w.clock.Now())
	w.data = append(w.data, append([]byte(nil), data...))
	return w.fail[idx]
}

var target = Target{DeviceID: "dev-1", ServiceUUID: "ff00", CharacteristicUUID: "ff02"}

func TestPlan(t *testing.T) {
	tests := []struct {
		name       string
		length     int
		wantChunks int
	}{
		{"empty", 0, 0},
		{"one byte", 1, 1},
		{"exact chunk", 20, 1},
		{"one over", 21, 2},
		{"45 bytes", 45, 3},
		{"large", 1000, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bytes.Repeat([]byte{'x'}, tt.length)
			for i := range buf {
				buf[i] = byte(i)
			}

			chunks := Plan(buf, DefaultChunkSize, DefaultChunkInterval)
			require.Len(t, chunks, tt.wantChunks, "chunk count MUST be ceil(L/20)")

			var joined []byte
			for i, c := range chunks {
				assert.LessOrEqual(t, len(c.Data), DefaultChunkSize)
				assert.Equal(t, i*DefaultChunkSize, c.Offset)
				assert.Equal(t, time.Duration(i)*20*time.Millisecond, c.Delay, "chunk %d MUST be due at 20ms*i", i)
				joined = append(joined, c.Data...)
			}
			assert.Equal(t, len(buf), len(joined))
			assert.True(t, bytes.Equal(buf, joined), "concatenated chunks MUST equal the buffer")
		})
	}
}

func TestPlan_DefaultSize(t *testing.T) {
	chunks := Plan(make([]byte, 41), 0, time.Millisecond)
	assert.Len(t, chunks, 3)
}

func TestTarget(t *testing.T) {
	assert.True(t, Target{}.IsZero())
	assert.True(t, Target{ServiceUUID: "ff00"}.IsZero())
	assert.False(t, target.IsZero())
	assert.Equal(t, "dev-1/ff00/ff02", target.String())
}

type WriterTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
	clock  *fakeClock
	out    *timedWriter
	writer *Writer
}

func (s *WriterTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.clock = newFakeClock()
	s.out = &timedWriter{clock: s.clock, fail: map[int]error{}}
	s.writer = NewWriter(s.out, Options{Clock: s.clock}, s.helper.Logger)
	s.writer.Start(context.Background())
}

func (s *WriterTestSuite) TearDownTest() {
	s.writer.Close()
}

func (s *WriterTestSuite) waitJob(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Require().NoError(job.Wait(ctx), "job MUST complete")
}

func (s *WriterTestSuite) TestSpacing() {
	// GOAL: Chunk i is written at submit + 20ms*i
	//
	// TEST SCENARIO: 45-byte buffer → writes at +0, +20ms, +40ms

	buf := bytes.Repeat([]byte("ab"), 22)
	buf = append(buf, 'z')

	job, err := s.writer.Submit(target, buf)
	s.Require().NoError(err)
	s.waitJob(job)

	s.Require().Len(s.out.at, 3)
	for i, at := range s.out.at {
		s.Equal(time.Duration(i)*20*time.Millisecond, at.Sub(job.Submitted), "chunk %d timing", i)
	}
	s.Equal([]int{20, 20, 5}, []int{len(s.out.data[0]), len(s.out.data[1]), len(s.out.data[2])})
	s.Equal(buf, bytes.Join(s.out.data, nil))
	s.Equal(3, job.Written())
	s.Equal(0, job.Failed())
}

func (s *WriterTestSuite) TestChunkFailureDoesNotStopJob() {
	s.out.fail[1] = errors.New("gatt busy")

	job, err := s.writer.Submit(target, make([]byte, 60))
	s.Require().NoError(err)
	s.waitJob(job)

	s.Len(s.out.data, 3, "later chunks MUST still be attempted")
	s.Equal(2, job.Written())
	s.Equal(1, job.Failed())
}

func (s *WriterTestSuite) TestJobsDoNotInterleave() {
	first, err := s.writer.Submit(target, bytes.Repeat([]byte{'1'}, 40))
	s.Require().NoError(err)
	second, err := s.writer.Submit(target, bytes.Repeat([]byte{'2'}, 40))
	s.Require().NoError(err)

	s.waitJob(first)
	s.waitJob(second)

	s.Equal(append(bytes.Repeat([]byte{'1'}, 40), bytes.Repeat([]byte{'2'}, 40)...), bytes.Join(s.out.data, nil))
}

func (s *WriterTestSuite) TestEmptyBuffer() {
	job, err := s.writer.Submit(target, nil)
	s.Require().NoError(err)
	s.waitJob(job)
	s.Empty(s.out.data)
}

func (s *WriterTestSuite) TestBufferIsCopied() {
	buf := []byte("0123456789")
	job, err := s.writer.Submit(target, buf)
	s.Require().NoError(err)
	copy(buf, "XXXXXXXXXX")
	s.waitJob(job)

	s.Equal([]byte("0123456789"), s.out.data[0])
}

func (s *WriterTestSuite) TestRejections() {
	_, err := s.writer.Submit(Target{}, []byte("x"))
	s.ErrorIs(err, ErrNoTarget)

	s.writer.Close()
	_, err = s.writer.Submit(target, []byte("x"))
	s.ErrorIs(err, ErrClosed)
}

func TestWriterTestSuite(t *testing.T) {
	suite.Run(t, new(WriterTestSuite))
}

func TestWriter_QueuedJobKeepsSpacing(t *testing.T) {
	// GOAL: A job that waited behind another keeps the chunk interval
	//
	// TEST SCENARIO: queue two 40-byte jobs, then start → every write 20ms after the previous

	clock := newFakeClock()
	out := &timedWriter{clock: clock, fail: map[int]error{}}
	w := NewWriter(out, Options{Clock: clock}, testutils.NewTestHelper(t).Logger)
	defer w.Close()

	first, err := w.Submit(target, bytes.Repeat([]byte{'1'}, 40))
	require.NoError(t, err)
	second, err := w.Submit(target, bytes.Repeat([]byte{'2'}, 40))
	require.NoError(t, err)
	w.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, first.Wait(ctx))
	require.NoError(t, second.Wait(ctx))

	out.mu.Lock()
	defer out.mu.Unlock()
	require.Len(t, out.at, 4)
	for i := 1; i < len(out.at); i++ {
		assert.GreaterOrEqual(t, out.at[i].Sub(out.at[i-1]), DefaultChunkInterval,
			"write %d MUST be issued at least one interval after the previous", i)
	}
	assert.Equal(t, append(bytes.Repeat([]byte{'1'}, 40), bytes.Repeat([]byte{'2'}, 40)...), bytes.Join(out.data, nil))
}

func TestWriter_QueueFull(t *testing.T) {
	w := NewWriter(&timedWriter{clock: SystemClock}, Options{QueueSize: 1}, nil)

	first, err := w.Submit(target, []byte("a"))
	require.NoError(t, err)
	_, err = w.Submit(target, []byte("b"))
	assert.ErrorIs(t, err, ErrQueueFull)

	w.Close()
	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("queued job MUST be released on close")
	}
}

func TestWriter_SystemClock(t *testing.T) {
	platform := testutils.NewFakePlatform()
	w := NewWriter(platform, Options{ChunkInterval: 2 * time.Millisecond}, nil)
	w.Start(context.Background())
	defer w.Close()

	buf := bytes.Repeat([]byte("0123456789"), 5)
	start := time.Now()
	job, err := w.Submit(target, buf)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, job.Wait(ctx))

	assert.GreaterOrEqual(t, time.Since(start), 4*time.Millisecond, "third chunk MUST wait two intervals")
	assert.Equal(t, buf, platform.WrittenBytes())
	for _, wr := range platform.Writes() {
		assert.Equal(t, "ff02", wr.CharacteristicUUID)
	}
}
