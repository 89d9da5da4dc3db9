package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Launcher collects launch-level metrics
type Launcher struct {
	registry *prometheus.Registry

	launchesStarted *prometheus.CounterVec
	launchesFailed  *prometheus.CounterVec
	launchesRunning prometheus.Gauge
	startTimestamp  *prometheus.GaugeVec
}

// NewLauncher creates the launch metric set on its own registry
func NewLauncher() *Launcher {
	m := &Launcher{
		registry: prometheus.NewRegistry(),
		launchesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "symlaunch_launches_started_total",
				Help: "Training launches started, by GPU",
			},
			[]string{"gpu"},
		),
		launchesFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "symlaunch_launches_failed_total",
				Help: "Training launches that failed to spawn",
			},
			[]string{"log_name"},
		),
		launchesRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "symlaunch_launches_running",
				Help: "Training launches currently running",
			},
		),
		startTimestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "symlaunch_launch_start_timestamp_seconds",
				Help: "Unix start time of each launch",
			},
			[]string{"log_name"},
		),
	}

	m.registry.MustRegister(
		m.launchesStarted,
		m.launchesFailed,
		m.launchesRunning,
		m.startTimestamp,
	)
	return m
}

// Registry returns the backing registry for scrape handlers
func (m *Launcher) Registry() *prometheus.Registry {
	return m.registry
}

// LaunchStarted records a successful spawn
func (m *Launcher) LaunchStarted(gpu int, logName string) {
	m.launchesStarted.WithLabelValues(gpuLabel(gpu)).Inc()
	m.launchesRunning.Inc()
	m.startTimestamp.WithLabelValues(logName).SetToCurrentTime()
}

// LaunchFailed records a spawn that never produced a process
func (m *Launcher) LaunchFailed(logName string) {
	m.launchesFailed.WithLabelValues(logName).Inc()
}

// LaunchFinished records a process exit
func (m *Launcher) LaunchFinished() {
	m.launchesRunning.Dec()
}

func gpuLabel(gpu int) string {
	return strconv.Itoa(gpu)
}
