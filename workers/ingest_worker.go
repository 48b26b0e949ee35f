package workers

import (
	"context"
	"errors"
	"sync"

	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
	"github.com/LabyrinthianWebsite/fantastic-waddle/metrics"
	"github.com/LabyrinthianWebsite/fantastic-waddle/services"
	"github.com/google/uuid"
)

var (
	ErrQueueFull        = errors.New("ingest queue is full")
	ErrAlreadyQueued    = errors.New("archive is already queued")
	ErrProcessorStopped = errors.New("ingest processor is stopped")
)

// Ingester is the part of services.IngestionService the workers need
type Ingester interface {
	IngestArchive(ctx context.Context, modelID uint, archivePath string, opts services.IngestOptions) (*services.UploadResult, error)
}

type IngestJob struct {
	ID          string
	ModelID     uint
	ArchivePath string
	KeepArchive bool

	result chan IngestOutcome
}

// IngestOutcome is delivered exactly once per job
type IngestOutcome struct {
	JobID  string
	Result *services.UploadResult
	Err    error
}

// IngestProcessor runs archive ingestions on a fixed pool of workers so HTTP
// handlers never do the heavy lifting themselves.
type IngestProcessor struct {
	JobQueue chan IngestJob
	Ingester Ingester
	Wg       sync.WaitGroup
	Pending  map[string]bool // archive paths queued or running
	Mutex    sync.Mutex
	stopped  bool
}

func NewIngestProcessor(ingester Ingester, queueSize, numWorkers int) *IngestProcessor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	proc := &IngestProcessor{
		JobQueue: make(chan IngestJob, queueSize),
		Ingester: ingester,
		Pending:  make(map[string]bool),
	}
	proc.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go proc.worker(i)
	}
	logging.Info("Started %d ingest worker(s) with queue size %d", numWorkers, queueSize)
	return proc
}

// worker drains the queue until it is closed. Jobs run on a background
// context: once queued, an ingestion is never cancelled.
func (ip *IngestProcessor) worker(id int) {
	defer ip.Wg.Done()

	logging.Debug("Ingest worker %d started", id)
	for job := range ip.JobQueue {
		metrics.IngestQueueDepth.Dec()
		metrics.IngestJobsInFlight.Inc()
		logging.Debug("Worker %d: Received ingest job %s for model %d", id, job.ID, job.ModelID)

		res, err := ip.Ingester.IngestArchive(context.Background(), job.ModelID, job.ArchivePath, services.IngestOptions{
			JobID:       job.ID,
			KeepArchive: job.KeepArchive,
		})
		if err != nil {
			logging.Error("Worker %d: Ingest job %s failed: %v", id, job.ID, err)
		}

		ip.Mutex.Lock()
		delete(ip.Pending, job.ArchivePath)
		ip.Mutex.Unlock()
		metrics.IngestJobsInFlight.Dec()

		job.result <- IngestOutcome{JobID: job.ID, Result: res, Err: err}
	}
	logging.Debug("Ingest worker %d stopping: Job queue closed", id)
}

// Submit queues an archive and returns the job id and a channel that
// receives the outcome. It never blocks: a full queue is an error.
func (ip *IngestProcessor) Submit(modelID uint, archivePath string, keepArchive bool) (string, <-chan IngestOutcome, error) {
	job := IngestJob{
		ID:          uuid.NewString(),
		ModelID:     modelID,
		ArchivePath: archivePath,
		KeepArchive: keepArchive,
		result:      make(chan IngestOutcome, 1),
	}

	ip.Mutex.Lock()
	defer ip.Mutex.Unlock()

	if ip.stopped {
		return "", nil, ErrProcessorStopped
	}
	if ip.Pending[archivePath] {
		return "", nil, ErrAlreadyQueued
	}

	select {
	case ip.JobQueue <- job:
		ip.Pending[archivePath] = true
		metrics.IngestQueueDepth.Inc()
		logging.Debug("Queued ingest job %s for model %d", job.ID, modelID)
		return job.ID, job.result, nil
	default:
		logging.Warn("Ingest job queue full. Failed to queue archive for model %d", modelID)
		return "", nil, ErrQueueFull
	}
}

// IsPending reports whether an archive is queued or being ingested
func (ip *IngestProcessor) IsPending(archivePath string) bool {
	ip.Mutex.Lock()
	defer ip.Mutex.Unlock()
	return ip.Pending[archivePath]
}

// Stop refuses new jobs and waits for queued ones to finish
func (ip *IngestProcessor) Stop() {
	ip.Mutex.Lock()
	if ip.stopped {
		ip.Mutex.Unlock()
		return
	}
	ip.stopped = true
	close(ip.JobQueue)
	ip.Mutex.Unlock()

	logging.Info("Stopping ingest workers, finishing queued jobs...")
	ip.Wg.Wait()
	logging.Info("All ingest workers stopped")
}
