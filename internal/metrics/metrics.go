// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package metrics exposes regulator state as Prometheus gauges. Values are
// taken from the event bus, so they always show the latest decision.
package metrics

import (
	"context"
	"net/http"

	"thermoreg/internal/control"
	"thermoreg/internal/events"
	"thermoreg/pkg/eventbus"
	"thermoreg/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var statuses = []control.Status{control.Unknown, control.Idle, control.Heating, control.Cooling}

type Metrics struct {
	registry *prometheus.Registry
	bus      *eventbus.Bus
	log      *logger.Logger

	temperature  prometheus.Gauge
	target       prometheus.Gauge
	duty         *prometheus.GaugeVec
	status       *prometheus.GaugeVec
	applied      prometheus.Gauge
	sampleOK     prometheus.Gauge
	lastSample   prometheus.Gauge
	lastDecision prometheus.Gauge
}

func New(bus *eventbus.Bus) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		bus:      bus,
		log:      logger.New("Metrics"),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermoreg_temperature_celsius",
			Help: "Last temperature read by the control loop or the sampler.",
		}),
		target: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermoreg_target_celsius",
			Help: "Target of the last control decision.",
		}),
		duty: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "thermoreg_duty_percent",
			Help: "Commanded PWM duty per output.",
		}, []string{"output"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "thermoreg_status",
			Help: "1 for the status of the last control decision, 0 otherwise.",
		}, []string{"status"}),
		applied: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermoreg_last_decision_applied",
			Help: "1 when the last control decision reached the outputs.",
		}),
		sampleOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermoreg_last_sample_recorded",
			Help: "1 when the last sampling cycle was recorded by every sink.",
		}),
		lastSample: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermoreg_last_sample_timestamp_seconds",
			Help: "Unix time of the last sampling cycle.",
		}),
		lastDecision: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermoreg_last_decision_timestamp_seconds",
			Help: "Unix time of the last control decision.",
		}),
	}

	m.registry.MustRegister(
		m.temperature,
		m.target,
		m.duty,
		m.status,
		m.applied,
		m.sampleOK,
		m.lastSample,
		m.lastDecision,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.duty.WithLabelValues("heat").Set(0)
	m.duty.WithLabelValues("cool").Set(0)
	m.setStatus(control.Unknown.String())
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) setStatus(name string) {
	for _, s := range statuses {
		v := 0.0
		if s.String() == name {
			v = 1
		}
		m.status.WithLabelValues(s.String()).Set(v)
	}
}

func (m *Metrics) observeControl(ev events.ControlUpdate) {
	m.setStatus(ev.Status)
	m.target.Set(ev.TargetC)
	if ev.CurrentC != nil {
		m.temperature.Set(*ev.CurrentC)
	}
	m.duty.WithLabelValues("heat").Set(ev.HeatDuty)
	m.duty.WithLabelValues("cool").Set(ev.CoolDuty)
	if ev.Applied {
		m.applied.Set(1)
	} else {
		m.applied.Set(0)
	}
	m.lastDecision.Set(float64(ev.Time.Unix()))
}

func (m *Metrics) observeSample(ev events.SampleUpdate) {
	if ev.ID != "" {
		m.temperature.Set(ev.ValueC)
	}
	if ev.Recorded {
		m.sampleOK.Set(1)
	} else {
		m.sampleOK.Set(0)
	}
	m.lastSample.Set(float64(ev.Time.Unix()))
}

func (m *Metrics) Run(ctx context.Context) {
	m.log.Info("Running...")
	defer m.log.Info("Stopped.")

	controlEvents, unsubControl := m.bus.Subscribe(ctx, events.TopicControl, true)
	defer unsubControl()
	sampleEvents, unsubSample := m.bus.Subscribe(ctx, events.TopicSample, true)
	defer unsubSample()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-controlEvents:
			if !ok {
				return
			}
			m.observeControl(ev.(events.ControlUpdate))
		case ev, ok := <-sampleEvents:
			if !ok {
				return
			}
			m.observeSample(ev.(events.SampleUpdate))
		}
	}
}
