package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BackupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dbguardian",
		Name:      "backup_total",
		Help:      "backup executions by type and result",
	}, []string{"backup_type", "result"})

	BackupBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dbguardian",
		Name:      "backup_bytes_total",
		Help:      "bytes written to storage targets",
	}, []string{"storage_kind"})

	BackupDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dbguardian",
		Name:      "backup_duration_seconds",
		Help:      "wall time of backup executions",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"backup_type"})

	RestoreTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dbguardian",
		Name:      "restore_total",
		Help:      "restore executions by result",
	}, []string{"result"})

	RunningJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dbguardian",
		Name:      "running_jobs",
		Help:      "backup or restore jobs currently executing",
	})
)

func Register() {
	prometheus.MustRegister(
		BackupTotal,
		BackupBytes,
		BackupDuration,
		RestoreTotal,
		RunningJobs,
	)
}
