package models

import "time"

// ConversationTurn records one processed query within a session. Immutable once appended.
type ConversationTurn struct {
	TurnID         string               `json:"turn_id"`
	Query          string               `json:"query"`
	Classification ClassificationResult `json:"classification"`
	Domains        []BusinessDomain     `json:"domains,omitempty"`
	Entities       []Entity             `json:"entities,omitempty"`
	Parameters     map[string]string    `json:"parameters,omitempty"`
	Confidence     float64              `json:"confidence"`
	ProcessingTime time.Duration        `json:"processing_time_ns"`
	Timestamp      time.Time            `json:"timestamp"`
}

// ActiveContext is the merged entity and parameter state of a session's recent turns.
// Keys are last-write-wins.
type ActiveContext struct {
	Entities   map[string]Entity `json:"entities,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// ConversationSession is a bounded multi-turn conversation.
type ConversationSession struct {
	SessionID      string             `json:"session_id"`
	UserID         string             `json:"user_id,omitempty"`
	Turns          []ConversationTurn `json:"turns"`
	ActiveContext  ActiveContext      `json:"active_context"`
	DominantIntent QuestionType       `json:"dominant_intent"`
	CreatedAt      time.Time          `json:"created_at"`
	LastActivity   time.Time          `json:"last_activity"`
}

// LastTurn returns the most recent turn and true, or false when the session is empty.
func (s *ConversationSession) LastTurn() (ConversationTurn, bool) {
	if s == nil || len(s.Turns) == 0 {
		return ConversationTurn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}

// Clone returns a deep copy safe to hand to callers outside the store.
func (s *ConversationSession) Clone() *ConversationSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Turns = append([]ConversationTurn(nil), s.Turns...)
	out.ActiveContext = ActiveContext{}
	if len(s.ActiveContext.Entities) > 0 {
		out.ActiveContext.Entities = make(map[string]Entity, len(s.ActiveContext.Entities))
		for k, v := range s.ActiveContext.Entities {
			out.ActiveContext.Entities[k] = v
		}
	}
	if len(s.ActiveContext.Parameters) > 0 {
		out.ActiveContext.Parameters = make(map[string]string, len(s.ActiveContext.Parameters))
		for k, v := range s.ActiveContext.Parameters {
			out.ActiveContext.Parameters[k] = v
		}
	}
	return &out
}
