// Package executor runs batches of transaction tasks in parallel while
// honoring declared read/write-set conflicts: conflicting tasks never run
// concurrently, independent tasks share a bounded worker pool. It applies
// the committed side of the ledger, so task failures are recorded, never
// escalated: one bad transaction must not stall replication.
package executor

import (
    "context"
    "errors"
    "fmt"
    "log"
    "runtime"
    "sync/atomic"
    "time"

    "github.com/google/uuid"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/internal/logutil"
    obsmetrics "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/observability/metrics"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/observability/tracing"
)

// Task is one executable transaction. ReadSet and WriteSet declare the
// keys it touches; the scheduler trusts them for conflict detection and
// guarantees nothing about tasks that under-declare. Higher Priority runs
// earlier when conflicts force ordering.
type Task struct {
    ID       string
    ReadSet  []string
    WriteSet []string
    Priority int
    Body     func(ctx context.Context) error
}

// Failure records one failed task with its cause preserved.
type Failure struct {
    TaskID  string `json:"taskId"`
    Message string `json:"message"`
}

// Result is the immutable account of one batch. SuccessCount plus
// FailedCount always equals the number of submitted tasks; ConflictCount
// is the number of conflict edges the scheduler worked around.
type Result struct {
    BatchID         string    `json:"batchId"`
    SuccessCount    int       `json:"successCount"`
    FailedCount     int       `json:"failedCount"`
    ConflictCount   int       `json:"conflictCount"`
    ExecutionTimeMs int64     `json:"executionTimeMs"`
    TPS             float64   `json:"tps"`
    Failures        []Failure `json:"failures,omitempty"`
}

// Stats is the executor's cumulative accounting across batches.
type Stats struct {
    TotalExecuted int64   `json:"totalExecuted"`
    TotalBatches  int64   `json:"totalBatches"`
    AverageTPS    float64 `json:"averageTps"`
}

const DefaultBatchTimeout = 30 * time.Second

type Options struct {
    // MaxWorkers bounds concurrent task bodies. Defaults to the
    // available parallelism.
    MaxWorkers int
    // BatchTimeout is the whole-batch deadline. Tasks still running when
    // it passes are abandoned, not interrupted: no cancel signal reaches
    // a started body, the scheduler merely stops waiting.
    BatchTimeout time.Duration
    Logger       *log.Logger
}

func (o *Options) Validate() error {
    if o.MaxWorkers == 0 { o.MaxWorkers = runtime.GOMAXPROCS(0) }
    if o.MaxWorkers < 0 { return errors.New("executor: negative worker count") }
    if o.BatchTimeout == 0 { o.BatchTimeout = DefaultBatchTimeout }
    if o.BatchTimeout < 0 { return errors.New("executor: negative batch timeout") }
    return nil
}

// Executor schedules conflict-partitioned batches. Safe for concurrent
// use; cumulative statistics are maintained with atomics.
type Executor struct {
    workers int
    timeout time.Duration
    logger  *log.Logger

    executed atomic.Int64
    batches  atomic.Int64
    busyNS   atomic.Int64
}

func New(opts Options) (*Executor, error) {
    if err := opts.Validate(); err != nil {
        return nil, err
    }
    return &Executor{workers: opts.MaxWorkers, timeout: opts.BatchTimeout, logger: opts.Logger}, nil
}

type outcome struct {
    idx int
    err error
}

// ExecuteParallel runs one batch: tasks are partitioned into conflict-free
// levels, levels run sequentially, level members concurrently on the
// worker pool. A task error or panic marks that task failed and never
// aborts siblings or later levels. When the batch deadline passes,
// finished work is preserved, running tasks are abandoned and everything
// not finished counts as failed.
func (e *Executor) ExecuteParallel(ctx context.Context, tasks []Task) Result {
    ctx, end := tracing.StartSpan(ctx, "executor.batch")
    defer end()
    start := time.Now()
    res := Result{BatchID: uuid.NewString()}
    levels, conflicts := partitionLevels(tasks)
    res.ConflictCount = conflicts

    deadline := time.NewTimer(e.timeout)
    defer deadline.Stop()
    sem := make(chan struct{}, e.workers)
    outcomes := make(chan outcome, len(tasks))

    run := func(idx int) {
        defer func() { <-sem }()
        defer func() {
            if r := recover(); r != nil {
                outcomes <- outcome{idx, fmt.Errorf("panic: %v", r)}
            }
        }()
        outcomes <- outcome{idx, tasks[idx].Body(ctx)}
    }
    fail := func(idx int, msg string) {
        res.FailedCount++
        res.Failures = append(res.Failures, Failure{TaskID: tasks[idx].ID, Message: msg})
    }
    tally := func(o outcome) {
        if o.err != nil {
            fail(o.idx, o.err.Error())
            return
        }
        res.SuccessCount++
    }

    expired := false
    for _, lvl := range levels {
        if expired {
            for _, idx := range lvl { fail(idx, "not started: batch deadline exceeded") }
            continue
        }
        inflight := make(map[int]struct{}, len(lvl))
        for _, idx := range lvl {
            if expired {
                fail(idx, "not started: batch deadline exceeded")
                continue
            }
            select {
            case sem <- struct{}{}:
                inflight[idx] = struct{}{}
                go run(idx)
            case <-deadline.C:
                expired = true
                fail(idx, "not started: batch deadline exceeded")
            }
        }
        for len(inflight) > 0 && !expired {
            select {
            case o := <-outcomes:
                delete(inflight, o.idx)
                tally(o)
            case <-deadline.C:
                expired = true
            }
        }
        if expired && len(inflight) > 0 {
            // Collect whatever finished just under the wire, then write
            // the rest off as abandoned. Their goroutines may keep
            // running; nothing observes them anymore.
            for drained := true; drained && len(inflight) > 0; {
                select {
                case o := <-outcomes:
                    delete(inflight, o.idx)
                    tally(o)
                default:
                    drained = false
                }
            }
            for idx := range inflight { fail(idx, "abandoned at batch deadline") }
        }
    }

    elapsed := time.Since(start)
    res.ExecutionTimeMs = elapsed.Milliseconds()
    if secs := elapsed.Seconds(); secs > 0 {
        res.TPS = float64(res.SuccessCount) / secs
    }

    e.executed.Add(int64(res.SuccessCount))
    e.batches.Add(1)
    e.busyNS.Add(int64(elapsed))

    obsmetrics.ExecutorBatches.Inc()
    obsmetrics.ExecutorTasks.WithLabelValues("success").Add(float64(res.SuccessCount))
    obsmetrics.ExecutorTasks.WithLabelValues("failed").Add(float64(res.FailedCount))
    obsmetrics.ExecutorBatchDuration.Observe(elapsed.Seconds())
    obsmetrics.ExecutorTPS.Set(res.TPS)

    logutil.Infof(e.logger, "executor: batch=%s tasks=%d ok=%d failed=%d conflicts=%d levels=%d in %dms",
        res.BatchID, len(tasks), res.SuccessCount, res.FailedCount, res.ConflictCount, len(levels), res.ExecutionTimeMs)
    return res
}

// Stats reports cumulative executor accounting. AverageTPS relates
// successfully executed tasks to total batch wall time.
func (e *Executor) Stats() Stats {
    s := Stats{TotalExecuted: e.executed.Load(), TotalBatches: e.batches.Load()}
    if busy := time.Duration(e.busyNS.Load()).Seconds(); busy > 0 {
        s.AverageTPS = float64(s.TotalExecuted) / busy
    }
    return s
}
