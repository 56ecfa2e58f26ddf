// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package metrics records how a step went, for the Prometheus node exporter's
// textfile collector or any other consumer of the text exposition format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Phases of a step.
const (
	PhaseInstall = "install"
	PhaseRestore = "restore"
	PhaseToken   = "token"
	PhaseCommand = "command"
	PhasePublish = "publish"
	PhaseOutputs = "outputs"
)

// Recorder collects the metrics of one step.
type Recorder struct {
	reg *prometheus.Registry

	phaseDuration *prometheus.GaugeVec
	success       *prometheus.GaugeVec
	hasRelease    *prometheus.GaugeVec
	artifactBytes *prometheus.GaugeVec
	lastRun       *prometheus.GaugeVec
}

// New returns a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		phaseDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "autopub_action",
			Name:      "phase_duration_seconds",
			Help:      "Duration of a step phase in seconds.",
		}, []string{"command", "phase"}),
		success: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "autopub_action",
			Name:      "success",
			Help:      "Whether the step succeeded (1) or failed (0).",
		}, []string{"command"}),
		hasRelease: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "autopub_action",
			Name:      "has_release",
			Help:      "Whether a release is pending after the step.",
		}, []string{"command"}),
		artifactBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "autopub_action",
			Name:      "artifact_bytes",
			Help:      "Size of the uploaded or restored artifact in bytes.",
		}, []string{"command", "direction"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "autopub_action",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the step finished.",
		}, []string{"command"}),
	}
	r.reg.MustRegister(r.phaseDuration, r.success, r.hasRelease, r.artifactBytes, r.lastRun)
	return r
}

// Time runs f and records its duration as phase of command.
func (r *Recorder) Time(command, phase string, f func() error) error {
	start := time.Now()
	err := f()
	r.phaseDuration.WithLabelValues(command, phase).Set(time.Since(start).Seconds())
	return err
}

// Artifact records the size of an artifact moved in direction, "upload" or
// "download".
func (r *Recorder) Artifact(command, direction string, size int) {
	r.artifactBytes.WithLabelValues(command, direction).Set(float64(size))
}

// Finish records the outcome of the step.
func (r *Recorder) Finish(command string, hasRelease bool, err error, now time.Time) {
	r.success.WithLabelValues(command).Set(boolValue(err == nil))
	r.hasRelease.WithLabelValues(command).Set(boolValue(hasRelease))
	r.lastRun.WithLabelValues(command).Set(float64(now.Unix()))
}

// WriteFile writes the metrics to path in the text exposition format. The
// file is replaced atomically.
func (r *Recorder) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
