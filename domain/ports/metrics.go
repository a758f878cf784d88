package ports

import (
	"time"

	"github.com/reglet-dev/reglet-script/domain/entities"
)

// MetricsRecorder receives host telemetry. A nil recorder disables recording.
type MetricsRecorder interface {
	// RecordDecision counts one broker decision.
	RecordDecision(c entities.Capability, allowed bool)

	// RecordModuleLoad observes one module cache fetch.
	RecordModuleLoad(kind entities.ModuleKind, outcome string, d time.Duration)

	// RecordHostCall observes one host-call dispatch.
	RecordHostCall(name, status string, d time.Duration)
}
