package session

// Phase is the position of the session in the scan-to-read cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseScanning
	PhaseConnecting
	PhaseDiscoveringService
	PhaseServiceReady
	PhaseDiscoveringCharacteristic
	PhaseReading
)

var phaseNames = [...]string{
	PhaseIdle:                      "idle",
	PhaseScanning:                  "scanning",
	PhaseConnecting:                "connecting",
	PhaseDiscoveringService:        "discovering_service",
	PhaseServiceReady:              "service_ready",
	PhaseDiscoveringCharacteristic: "discovering_characteristic",
	PhaseReading:                   "reading",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// transitions lists every edge the state machine may take. Any phase may
// also fall back to Idle on disconnect or error.
var transitions = map[Phase][]Phase{
	PhaseIdle:                      {PhaseScanning, PhaseDiscoveringCharacteristic},
	PhaseScanning:                  {PhaseConnecting},
	PhaseConnecting:                {PhaseDiscoveringService},
	PhaseDiscoveringService:        {PhaseServiceReady},
	PhaseServiceReady:              {PhaseDiscoveringCharacteristic},
	PhaseDiscoveringCharacteristic: {PhaseReading},
	PhaseReading:                   {},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Phase) bool {
	if from == to || to == PhaseIdle {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
