package ampc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fathom-search/fathom/pkg/dht"
)

// ErrUnknownMapper and ErrJobAlreadyRunning let callers (the rpc
// Handler) distinguish ScheduleJob's failure modes without string
// matching.
var (
	ErrUnknownMapper     = errors.New("ampc: mapper not registered")
	ErrJobAlreadyRunning = errors.New("ampc: a job is already running on this worker")
)

// MetaTable and RoundHadChangesKey are the fixed DHT location the
// coordinator inspects between rounds. Every worker's runtime, not each mapper
// author, is responsible for OR-ing into this slot, so a mapper need
// only return whether it changed anything.
const (
	MetaTable          = "_ampc_meta"
	RoundHadChangesKey = "round_had_changes"
)

// WorkerServer runs mapper rounds against a local Worker shard and a
// DHT client, exposing the coordinator/worker round protocol:
// ScheduleJob launches the mapper in its own goroutine — Go's scheduler
// already isolates a blocking mapper from the rest of the process
// without a dedicated OS thread — CurrentJob polls it, and the job is
// cleared from the mutex the instant the goroutine exits.
type WorkerServer struct {
	worker   Worker
	client   *dht.Client
	registry *Registry

	mu      sync.Mutex
	current *runningJob
}

type runningJob struct {
	jobID  string
	round  uint64
	mapper string
	done   bool
	action dht.UpsertAction
	err    error
}

// NewWorkerServer returns a server ready to accept ScheduleJob calls.
func NewWorkerServer(worker Worker, client *dht.Client, registry *Registry) *WorkerServer {
	return &WorkerServer{worker: worker, client: client, registry: registry}
}

// ScheduleJob launches mapperName's round in a new goroutine and
// returns immediately; it errors if a job is already running or the
// mapper is unregistered.
func (s *WorkerServer) ScheduleJob(jobID string, round uint64, mapperName string) error {
	mapper, ok := s.registry.Lookup(mapperName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMapper, mapperName)
	}

	s.mu.Lock()
	if s.current != nil && !s.current.done {
		s.mu.Unlock()
		return fmt.Errorf("%w: job %q round %d", ErrJobAlreadyRunning, s.current.jobID, s.current.round)
	}
	job := &runningJob{jobID: jobID, round: round, mapper: mapperName}
	s.current = job
	s.mu.Unlock()

	go s.runRound(job, mapper)
	return nil
}

func (s *WorkerServer) runRound(job *runningJob, mapper Mapper) {
	action, err := mapper(context.Background(), s.worker, s.client)

	if err == nil && action != dht.UpsertNoChange {
		// A mapper reported a change; OR it into the shared meta table
		// so the coordinator's post-round check sees it regardless of
		// which shard actually changed.
		ctx := context.Background()
		_ = s.client.CreateTable(ctx, MetaTable, 1, dht.MonoidBoolOr)
		_, _ = s.client.Upsert(ctx, MetaTable, RoundHadChangesKey, []byte{1})
	}

	s.mu.Lock()
	job.done = true
	job.action = action
	job.err = err
	s.mu.Unlock()
}

// CurrentJob reports the most recently scheduled round's status. Action
// is only meaningful once running is false.
func (s *WorkerServer) CurrentJob() (round *uint64, mapperName string, running bool, action dht.UpsertAction, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, "", false, dht.UpsertNoChange, nil
	}
	r := s.current.round
	return &r, s.current.mapper, !s.current.done, s.current.action, s.current.err
}
