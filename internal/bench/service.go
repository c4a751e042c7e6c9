/*
 *
 * Copyright 2025 fmq-go authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package bench

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/fastmsgq/fmq-go/internal/fmq"
)

const (
	// DefaultQueueElems is the benchmark queue size: 16K single-byte elements.
	DefaultQueueElems = 16 * 1024

	// PacketSize is the packet used by the ping-pong and timed-write loops.
	PacketSize = 64

	// jobWaitTimeout bounds each blocking queue operation inside a benchmark
	// job; a vanished client must not pin the worker forever.
	jobWaitTimeout = 30 * time.Second
)

var (
	errNotConfigured    = errors.New("bench: queues not configured")
	errBenchmarkRunning = errors.New("bench: a benchmark job is still running")
)

// Service implements the benchmark operations over a pair of shared queues:
// an inbox the client writes into and an outbox the client reads from. All
// benchmark jobs (ping-pong echo, timed writes) run on a single worker
// goroutine fed through a FIFO, so at most one job touches the queues at a
// time while the control channel stays responsive.
type Service struct {
	queueElems uint64

	mu     sync.Mutex
	inbox  *fmq.Queue // client -> service
	outbox *fmq.Queue // service -> client

	sendStamps []int64
	stampsDone chan struct{} // closed when the timed writer finishes

	jobMu    sync.Mutex
	jobs     *queue.Queue
	pending  int // jobs enqueued or running; reconfiguration is refused while nonzero
	jobReady chan struct{}
	quit     chan struct{}
	workerWG sync.WaitGroup

	closeOnce sync.Once
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithQueueElems overrides the benchmark queue capacity in elements.
func WithQueueElems(n uint64) ServiceOption {
	return func(s *Service) { s.queueElems = n }
}

// NewService returns a running service; Close stops its worker and destroys
// any queues it created.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		queueElems: DefaultQueueElems,
		jobs:       queue.New(),
		jobReady:   make(chan struct{}, 1),
		quit:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.workerWG.Add(1)
	go s.runJobs()
	return s
}

// runJobs drains the job FIFO on a single goroutine.
func (s *Service) runJobs() {
	defer s.workerWG.Done()
	for {
		select {
		case <-s.quit:
			return
		case <-s.jobReady:
			for {
				s.jobMu.Lock()
				if s.jobs.Length() == 0 {
					s.jobMu.Unlock()
					break
				}
				job := s.jobs.Remove().(func())
				s.jobMu.Unlock()
				job()
				s.jobMu.Lock()
				s.pending--
				s.jobMu.Unlock()
			}
		}
	}
}

func (s *Service) enqueue(job func()) {
	s.jobMu.Lock()
	s.jobs.Add(job)
	s.pending++
	s.jobMu.Unlock()
	select {
	case s.jobReady <- struct{}{}:
	default:
	}
}

func (s *Service) busy() bool {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	return s.pending > 0
}

// ConfigureClientInbox creates the queue the client reads from (this side's
// outbox) and returns its descriptor. An existing outbox is destroyed first.
// Reconfiguration is refused while a benchmark job is pending: destroying a
// queue unmaps it, and a job still blocked on it would fault.
func (s *Service) ConfigureClientInbox() (fmq.Descriptor, error) {
	if s.busy() {
		return fmq.Descriptor{}, errBenchmarkRunning
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outbox != nil {
		s.outbox.Destroy()
		s.outbox = nil
	}
	q, desc, err := fmq.Create(s.queueElems, 1, fmq.Synchronized)
	if err != nil {
		return fmq.Descriptor{}, fmt.Errorf("bench: create outbox queue: %w", err)
	}
	s.outbox = q
	return desc, nil
}

// ConfigureClientOutbox creates the queue the client writes into (this side's
// inbox) and returns its descriptor. Refused while a benchmark job is pending,
// as for ConfigureClientInbox.
func (s *Service) ConfigureClientOutbox() (fmq.Descriptor, error) {
	if s.busy() {
		return fmq.Descriptor{}, errBenchmarkRunning
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inbox != nil {
		s.inbox.Destroy()
		s.inbox = nil
	}
	q, desc, err := fmq.Create(s.queueElems, 1, fmq.Synchronized)
	if err != nil {
		return fmq.Descriptor{}, fmt.Errorf("bench: create inbox queue: %w", err)
	}
	s.inbox = q
	return desc, nil
}

func (s *Service) queues() (inbox, outbox *fmq.Queue, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inbox == nil || s.outbox == nil {
		return nil, nil, errNotConfigured
	}
	return s.inbox, s.outbox, nil
}

// RequestWrite writes count pattern bytes into the outbox. It reports how
// many bytes were written: count on success, 0 if the queue had no room (the
// expected, retryable outcome).
func (s *Service) RequestWrite(count uint32) (uint32, error) {
	s.mu.Lock()
	outbox := s.outbox
	s.mu.Unlock()
	if outbox == nil {
		return 0, errNotConfigured
	}
	data := make([]byte, count)
	for i := range data {
		data[i] = byte(i)
	}
	err := outbox.Write(data, uint64(count))
	if errors.Is(err, fmq.ErrQueueFull) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// RequestRead reads count bytes from the inbox. It reports how many bytes
// were read: count on success, 0 if the queue had too little data.
func (s *Service) RequestRead(count uint32) (uint32, error) {
	s.mu.Lock()
	inbox := s.inbox
	s.mu.Unlock()
	if inbox == nil {
		return 0, errNotConfigured
	}
	data := make([]byte, count)
	err := inbox.Read(data, uint64(count))
	if errors.Is(err, fmq.ErrQueueEmpty) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// StartPingPong schedules the echo worker: numIter packets read from the
// inbox and written back to the outbox. The call returns once the job is
// queued; the client drives completion by writing and reading packets.
func (s *Service) StartPingPong(numIter uint32) error {
	inbox, outbox, err := s.queues()
	if err != nil {
		return err
	}
	s.enqueue(func() {
		pkt := make([]byte, PacketSize)
		for i := uint32(0); i < numIter; i++ {
			if err := inbox.ReadBlocking(pkt, PacketSize, jobWaitTimeout); err != nil {
				return
			}
			if err := outbox.WriteBlocking(pkt, PacketSize, jobWaitTimeout); err != nil {
				return
			}
		}
	})
	return nil
}

// StartWriteTest schedules the timed writer: numIter packets written to the
// outbox, stamping the send time immediately before each attempt so that a
// retried write carries the freshest stamp rather than the first attempt's.
func (s *Service) StartWriteTest(numIter uint32) error {
	_, outbox, err := s.queues()
	if err != nil {
		return err
	}
	stamps := make([]int64, numIter)
	done := make(chan struct{})
	s.mu.Lock()
	s.sendStamps = stamps
	s.stampsDone = done
	s.mu.Unlock()

	s.enqueue(func() {
		defer close(done)
		pkt := make([]byte, PacketSize)
		for i := uint32(0); i < numIter; i++ {
			for {
				stamps[i] = time.Now().UnixNano()
				err := outbox.Write(pkt, PacketSize)
				if err == nil {
					break
				}
				if !errors.Is(err, fmq.ErrQueueFull) {
					return
				}
			}
		}
	})
	return nil
}

// SendTimeData pairs the client's receive timestamps with the send stamps
// recorded by the last write test and returns the mean write-to-read delay.
func (s *Service) SendTimeData(clientStamps []int64) (time.Duration, error) {
	s.mu.Lock()
	stamps := s.sendStamps
	done := s.stampsDone
	s.mu.Unlock()
	if stamps == nil {
		return 0, errors.New("bench: no write test has been run")
	}
	if len(stamps) == 0 {
		return 0, errors.New("bench: write test recorded no packets")
	}
	if len(clientStamps) != len(stamps) {
		return 0, fmt.Errorf("bench: got %d client stamps, write test recorded %d", len(clientStamps), len(stamps))
	}
	select {
	case <-done:
	case <-time.After(jobWaitTimeout):
		return 0, errors.New("bench: write test still running")
	}

	var accumulated int64
	for i := range stamps {
		accumulated += clientStamps[i] - stamps[i]
	}
	return time.Duration(accumulated / int64(len(stamps))), nil
}

// Close stops the job worker and destroys the service-side queues.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
	})
	s.workerWG.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inbox != nil {
		s.inbox.Destroy()
		s.inbox = nil
	}
	if s.outbox != nil {
		s.outbox.Destroy()
		s.outbox = nil
	}
	return nil
}
