package progress

// Event kinds emitted by the scenario executor. They are the only externally
// observable signal while a scenario runs.
const (
	EventScenarioStarted      = "scenario_started"
	EventModelStarted         = "model_started"
	EventFullBatteryHeartbeat = "full_battery_heartbeat"
	EventModelCompleted       = "model_completed"
	EventScenarioCompleted    = "scenario_completed"
)

// Event is one structured progress transition.
type Event struct {
	Kind           string
	ScenarioID     string
	Model          string
	HeartbeatCount int
}

// Callback receives executor progress events. Implementations must be cheap;
// the heartbeat worker calls them from its own goroutine.
type Callback func(Event)
