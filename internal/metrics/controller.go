// Package metrics provides Prometheus metrics for LED controllers.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Instruction results used as the "result" label.
const (
	ResultScheduled = "scheduled"
	ResultExecuted  = "executed"
	ResultCancelled = "cancelled"
	ResultFailed    = "failed"
)

var (
	instructionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mkctl",
		Subsystem: "controller",
		Name:      "instructions_total",
		Help:      "Instructions by outcome",
	}, []string{"controller", "result"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mkctl",
		Subsystem: "controller",
		Name:      "queue_depth",
		Help:      "Instructions waiting in the queue",
	}, []string{"controller"})

	active = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mkctl",
		Subsystem: "controller",
		Name:      "active",
		Help:      "1 while the execution loop is running",
	}, []string{"controller"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mkctl",
		Subsystem: "controller",
		Name:      "errors_total",
		Help:      "Controller errors by code",
	}, []string{"controller", "code"})

	idlePacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mkctl",
		Subsystem: "controller",
		Name:      "idle_packets_total",
		Help:      "Keep-alive packets sent while the queue was empty",
	}, []string{"controller"})

	// Local cache for status reporting.
	controllerCache   = make(map[string]*ControllerMetrics)
	controllerCacheMu sync.RWMutex
)

// ControllerMetrics holds current metric values for a controller.
type ControllerMetrics struct {
	Active      bool
	QueueDepth  int
	Scheduled   uint64
	Executed    uint64
	Cancelled   uint64
	Failed      uint64
	IdlePackets uint64
	Errors      uint64
	LastError   string
}

// RecordInstruction counts one instruction outcome.
func RecordInstruction(name, result string) {
	instructionsTotal.WithLabelValues(name, result).Inc()
	updateCache(name, func(m *ControllerMetrics) {
		switch result {
		case ResultScheduled:
			m.Scheduled++
		case ResultExecuted:
			m.Executed++
		case ResultCancelled:
			m.Cancelled++
		case ResultFailed:
			m.Failed++
		}
	})
}

// SetQueueDepth sets the current queue depth for a controller.
func SetQueueDepth(name string, depth int) {
	queueDepth.WithLabelValues(name).Set(float64(depth))
	updateCache(name, func(m *ControllerMetrics) { m.QueueDepth = depth })
}

// SetActive records whether the execution loop is running.
func SetActive(name string, running bool) {
	v := 0.0
	if running {
		v = 1
	}
	active.WithLabelValues(name).Set(v)
	updateCache(name, func(m *ControllerMetrics) { m.Active = running })
}

// RecordError counts a controller error by code.
func RecordError(name, code, message string) {
	if code == "" {
		code = "UNKNOWN"
	}
	errorsTotal.WithLabelValues(name, code).Inc()
	updateCache(name, func(m *ControllerMetrics) {
		m.Errors++
		m.LastError = message
	})
}

// RecordIdlePacket counts one keep-alive packet.
func RecordIdlePacket(name string) {
	idlePacketsTotal.WithLabelValues(name).Inc()
	updateCache(name, func(m *ControllerMetrics) { m.IdlePackets++ })
}

// DeleteControllerMetrics removes all metrics for a controller.
func DeleteControllerMetrics(name string) {
	instructionsTotal.DeletePartialMatch(prometheus.Labels{"controller": name})
	errorsTotal.DeletePartialMatch(prometheus.Labels{"controller": name})
	queueDepth.DeleteLabelValues(name)
	active.DeleteLabelValues(name)
	idlePacketsTotal.DeleteLabelValues(name)

	controllerCacheMu.Lock()
	delete(controllerCache, name)
	controllerCacheMu.Unlock()
}

// GetControllerMetrics returns current metric values for a controller.
func GetControllerMetrics(name string) *ControllerMetrics {
	controllerCacheMu.RLock()
	defer controllerCacheMu.RUnlock()
	if m, ok := controllerCache[name]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllControllerMetrics returns metrics for all known controllers.
func GetAllControllerMetrics() map[string]*ControllerMetrics {
	controllerCacheMu.RLock()
	defer controllerCacheMu.RUnlock()
	result := make(map[string]*ControllerMetrics, len(controllerCache))
	for name, m := range controllerCache {
		dup := *m
		result[name] = &dup
	}
	return result
}

func updateCache(name string, update func(*ControllerMetrics)) {
	controllerCacheMu.Lock()
	defer controllerCacheMu.Unlock()
	m, ok := controllerCache[name]
	if !ok {
		m = &ControllerMetrics{}
		controllerCache[name] = m
	}
	update(m)
}
