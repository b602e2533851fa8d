package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    TasksLaunched = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "nnagent",
        Name:      "tasks_launched_total",
        Help:      "Launch requests handled, by role and result",
    }, []string{"role", "result"})

    StatusReports = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "nnagent",
        Name:      "status_reports_total",
        Help:      "Status records sent to the orchestrator, by state",
    }, []string{"state"})

    StatusReportErrors = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "nnagent",
        Name:      "status_report_errors_total",
        Help:      "Status records that could not be delivered",
    })

    NodeState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Namespace: "nnagent",
        Name:      "node_state",
        Help:      "1 for the current lifecycle state of the node, else 0",
    }, []string{"state"})

    ProcessesRunning = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "nnagent",
        Subsystem: "process",
        Name:      "running",
        Help:      "Number of supervised service processes currently running",
    })

    ProcessExits = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "nnagent",
        Subsystem: "process",
        Name:      "exits_total",
        Help:      "Supervised processes that exited, by role and cause",
    }, []string{"role", "cause"})

    Commands = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "nnagent",
        Subsystem: "process",
        Name:      "commands_total",
        Help:      "One-shot commands run, by result",
    }, []string{"result"})

    PollsActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "nnagent",
        Subsystem: "poll",
        Name:      "active",
        Help:      "Number of outstanding readiness polls",
    })

    PollTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "nnagent",
        Subsystem: "poll",
        Name:      "ticks_total",
        Help:      "Readiness poll ticks, by check and outcome",
    }, []string{"check", "outcome"})
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(TasksLaunched)
        prometheus.MustRegister(StatusReports)
        prometheus.MustRegister(StatusReportErrors)
        prometheus.MustRegister(NodeState)
        prometheus.MustRegister(ProcessesRunning)
        prometheus.MustRegister(ProcessExits)
        prometheus.MustRegister(Commands)
        prometheus.MustRegister(PollsActive)
        prometheus.MustRegister(PollTicks)
    })
}
