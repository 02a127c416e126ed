package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    ClusterMembers = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "ledger",
        Name:      "members_total",
        Help:      "Current number of known cluster members",
    })

    IsLeader = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "ledger",
        Name:      "is_leader",
        Help:      "1 if this node is the leader, else 0",
    })

    LeaderChanges = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "ledger",
        Name:      "leader_changes_total",
        Help:      "Total number of observed leader change events",
    })

    CurrentTerm = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "ledger",
        Name:      "current_term",
        Help:      "Current consensus term as seen by this node",
    })

    SubmitRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "ledger",
        Name:      "submit_requests_total",
        Help:      "Total command submissions handled by this node",
    }, []string{"result"})

    JoinRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "ledger",
        Name:      "join_requests_total",
        Help:      "Total peer join requests handled by this node",
    }, []string{"result"})

    // Election metrics
    ElectionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "ledger",
        Subsystem: "election",
        Name:      "started_total",
        Help:      "Total election rounds this node has started",
    })
    ElectionsWon = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "ledger",
        Subsystem: "election",
        Name:      "won_total",
        Help:      "Total election rounds this node has won",
    })
    ElectionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
        Namespace: "ledger",
        Subsystem: "election",
        Name:      "round_duration_seconds",
        Help:      "Duration of election rounds from candidacy to outcome",
        Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
    })

    // Replication metrics
    EntriesAppended = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "ledger",
        Subsystem: "repl",
        Name:      "entries_appended_total",
        Help:      "Total log entries appended by this node as leader",
    })
    EntriesCommitted = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "ledger",
        Subsystem: "repl",
        Name:      "entries_committed_total",
        Help:      "Total log entries whose commit this node observed",
    })
    CommitIndex = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "ledger",
        Subsystem: "repl",
        Name:      "commit_index",
        Help:      "Highest committed log index on this node",
    })
    ReplicationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
        Namespace: "ledger",
        Subsystem: "repl",
        Name:      "roundtrip_seconds",
        Help:      "Append-entries round-trip latency per follower",
        Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
    })
    AppendRejects = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "ledger",
        Subsystem: "repl",
        Name:      "append_rejects_total",
        Help:      "Append-entries requests rejected by this follower, by reason",
    }, []string{"reason"})

    // Executor metrics
    ExecutorBatches = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "ledger",
        Subsystem: "executor",
        Name:      "batches_total",
        Help:      "Total transaction batches executed",
    })
    ExecutorTasks = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "ledger",
        Subsystem: "executor",
        Name:      "tasks_total",
        Help:      "Total transaction tasks executed, by result",
    }, []string{"result"})
    ExecutorBatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
        Namespace: "ledger",
        Subsystem: "executor",
        Name:      "batch_duration_seconds",
        Help:      "Wall time per executed batch",
        Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
    })
    ExecutorTPS = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "ledger",
        Subsystem: "executor",
        Name:      "batch_tps",
        Help:      "Throughput of the most recent batch in tasks per second",
    })

    GRPCConnDials = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "ledger",
        Subsystem: "grpc_conn",
        Name:      "dials_total",
        Help:      "Total number of new gRPC connections dialed",
    })
    GRPCConnReuse = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "ledger",
        Subsystem: "grpc_conn",
        Name:      "reuse_total",
        Help:      "Total number of gRPC connection reuses from cache",
    })
    GRPCConnEvictions = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "ledger",
        Subsystem: "grpc_conn",
        Name:      "evictions_total",
        Help:      "Total number of cached gRPC connections evicted",
    })
    GRPCConnActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "ledger",
        Subsystem: "grpc_conn",
        Name:      "active",
        Help:      "Number of active cached gRPC connections",
    })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(ClusterMembers)
        prometheus.MustRegister(IsLeader)
        prometheus.MustRegister(LeaderChanges)
        prometheus.MustRegister(CurrentTerm)
        prometheus.MustRegister(SubmitRequests)
        prometheus.MustRegister(JoinRequests)
        // election
        prometheus.MustRegister(ElectionsStarted)
        prometheus.MustRegister(ElectionsWon)
        prometheus.MustRegister(ElectionDuration)
        // replication
        prometheus.MustRegister(EntriesAppended)
        prometheus.MustRegister(EntriesCommitted)
        prometheus.MustRegister(CommitIndex)
        prometheus.MustRegister(ReplicationLatency)
        prometheus.MustRegister(AppendRejects)
        // executor
        prometheus.MustRegister(ExecutorBatches)
        prometheus.MustRegister(ExecutorTasks)
        prometheus.MustRegister(ExecutorBatchDuration)
        prometheus.MustRegister(ExecutorTPS)
        // transport
        prometheus.MustRegister(GRPCConnDials)
        prometheus.MustRegister(GRPCConnReuse)
        prometheus.MustRegister(GRPCConnEvictions)
        prometheus.MustRegister(GRPCConnActive)
    })
}
