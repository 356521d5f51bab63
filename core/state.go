package core

import (
	"time"
)

// AgentStatus is the lifecycle status of one agent within a request.
type AgentStatus string

const (
	StatusIdle      AgentStatus = "idle"
	StatusWorking   AgentStatus = "working"
	StatusWaiting   AgentStatus = "waiting"
	StatusCompleted AgentStatus = "completed"
	StatusError     AgentStatus = "error"
)

// Retry bounds enforced by the router predicates.
const (
	MaxResearchRetries    = 2
	MaxBudgetRetries      = 2
	MaxGapFillingAttempts = 1
)

// AgentState tracks one agent's status inside a request.
type AgentState struct {
	Status       AgentStatus `json:"status"`
	CurrentTask  string      `json:"current_task,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	LastActivity time.Time   `json:"last_activity"`
}

// ProcessingStep is one entry of the append-only audit log.
type ProcessingStep struct {
	Agent     string                 `json:"agent"`
	Action    string                 `json:"action"`
	Timestamp time.Time              `json:"timestamp"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
}

// State is the canonical shared state for one request. It is owned by
// the request and mutated by stages strictly in sequence; it needs no
// interior locking. A stage reads any bucket but writes only its own
// bucket plus the routing counters, statuses, and queue.
type State struct {
	SessionID   string
	UserID      string
	UserRequest string
	StartTime   time.Time
	SLASeconds  float64 // 0 means no SLA
	Context     map[string]interface{}
	IsFollowUp  bool

	ConversationHistory []map[string]interface{}

	// Data buckets, one per producing stage.
	PlanningData  map[string]interface{}
	ResearchData  map[string]interface{}
	BudgetData    map[string]interface{}
	TripData      map[string]interface{}
	GeoCostData   map[string]interface{}
	OptimizedData map[string]interface{}
	GapData       map[string]interface{}
	FXData        map[string]interface{}
	FinalResponse map[string]interface{}

	ToolPlan []string

	AgentStatuses map[string]*AgentState
	AgentMemories map[string]map[string]interface{}

	MessageQueue   []*Message
	MessageHistory []*Message

	// Routing counters.
	ResearchRetries     int
	BudgetRetries       int
	GapFillingAttempts  int
	GapFillingCompleted bool

	NextAgent    string
	CurrentAgent string

	ProcessingSteps []ProcessingStep
}

// NewState builds the initial state for one request.
func NewState(sessionID, userID, userRequest string) *State {
	return &State{
		SessionID:     sessionID,
		UserID:        userID,
		UserRequest:   userRequest,
		StartTime:     time.Now(),
		Context:       make(map[string]interface{}),
		PlanningData:  make(map[string]interface{}),
		ResearchData:  make(map[string]interface{}),
		BudgetData:    make(map[string]interface{}),
		TripData:      make(map[string]interface{}),
		GeoCostData:   make(map[string]interface{}),
		OptimizedData: make(map[string]interface{}),
		GapData:       make(map[string]interface{}),
		FXData:        make(map[string]interface{}),
		FinalResponse: make(map[string]interface{}),
		AgentStatuses: make(map[string]*AgentState),
		AgentMemories: make(map[string]map[string]interface{}),
	}
}

// SetAgentStatus records an agent's status transition.
func (s *State) SetAgentStatus(agentID string, status AgentStatus, task, errMsg string) {
	s.AgentStatuses[agentID] = &AgentState{
		Status:       status,
		CurrentTask:  task,
		ErrorMessage: errMsg,
		LastActivity: time.Now(),
	}
}

// AgentStatusOf returns the recorded status for an agent, or idle.
func (s *State) AgentStatusOf(agentID string) AgentStatus {
	if st, ok := s.AgentStatuses[agentID]; ok {
		return st.Status
	}
	return StatusIdle
}

// AddStep appends one audit-log entry.
func (s *State) AddStep(agent, action string, detail map[string]interface{}) {
	s.ProcessingSteps = append(s.ProcessingSteps, ProcessingStep{
		Agent:     agent,
		Action:    action,
		Timestamp: time.Now(),
		Detail:    detail,
	})
}

// Elapsed reports wall-clock time since the request started.
func (s *State) Elapsed() time.Duration {
	return time.Since(s.StartTime)
}

// Bucket returns a named data bucket, or nil for unknown names. The
// returned map is the live bucket, not a copy.
func (s *State) Bucket(name string) map[string]interface{} {
	switch name {
	case "planning_data":
		return s.PlanningData
	case "research_data":
		return s.ResearchData
	case "budget_data":
		return s.BudgetData
	case "trip_data":
		return s.TripData
	case "geocost_data":
		return s.GeoCostData
	case "optimized_data":
		return s.OptimizedData
	case "gap_data":
		return s.GapData
	case "fx_data":
		return s.FXData
	case "final_response":
		return s.FinalResponse
	default:
		return nil
	}
}

// AgentsUsed lists the agents that left the idle status, in first-seen
// order of the audit log.
func (s *State) AgentsUsed() []string {
	seen := make(map[string]bool)
	var used []string
	for _, step := range s.ProcessingSteps {
		if !seen[step.Agent] {
			seen[step.Agent] = true
			used = append(used, step.Agent)
		}
	}
	return used
}
