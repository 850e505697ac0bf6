package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuditAction tags the payload type of an audit entry.
type AuditAction string

const (
	AuditSLAStarted             AuditAction = "SLA_STARTED"
	AuditSLAPaused              AuditAction = "SLA_PAUSED"
	AuditSLAResumed             AuditAction = "SLA_RESUMED"
	AuditEscalationTriggered    AuditAction = "ESCALATION_TRIGGERED"
	AuditEscalationAcknowledged AuditAction = "ESCALATION_ACKNOWLEDGED"
	AuditEscalationResolved     AuditAction = "ESCALATION_RESOLVED"
	AuditAssigned               AuditAction = "ASSIGNED"
	AuditTimerStarted           AuditAction = "TIMER_STARTED"
	AuditTimerStopped           AuditAction = "TIMER_STOPPED"
	AuditTimeLogEdited          AuditAction = "TIME_LOG_EDITED"
)

// AuditPayload is implemented by every typed audit payload.
type AuditPayload interface {
	AuditAction() AuditAction
}

// AuditEntry is an immutable audit trail entry.
type AuditEntry struct {
	ID        string
	Entity    EntityRef
	ActorID   string
	Payload   AuditPayload
	CreatedAt time.Time
}

// Action returns the tag of the entry payload.
func (e AuditEntry) Action() AuditAction {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.AuditAction()
}

type SLAStartedPayload struct {
	StartedAt time.Time `json:"started_at"`
	Deadline  time.Time `json:"deadline"`
	TargetSec int64     `json:"target_seconds"`
}

func (SLAStartedPayload) AuditAction() AuditAction { return AuditSLAStarted }

type SLAPausedPayload struct {
	PausedAt time.Time `json:"paused_at"`
	Reason   string    `json:"reason"`
}

func (SLAPausedPayload) AuditAction() AuditAction { return AuditSLAPaused }

type SLAResumedPayload struct {
	PausedSeconds      int64     `json:"paused_seconds"`
	TotalPausedSeconds int64     `json:"total_paused_seconds"`
	Deadline           time.Time `json:"deadline"`
}

func (SLAResumedPayload) AuditAction() AuditAction { return AuditSLAResumed }

type EscalationTriggeredPayload struct {
	LogID     string           `json:"log_id"`
	RuleID    EscalationRuleID `json:"rule_id"`
	Recipient string           `json:"recipient"`
	Reason    string           `json:"reason"`
}

func (EscalationTriggeredPayload) AuditAction() AuditAction { return AuditEscalationTriggered }

type EscalationAcknowledgedPayload struct {
	LogID string `json:"log_id"`
}

func (EscalationAcknowledgedPayload) AuditAction() AuditAction { return AuditEscalationAcknowledged }

type EscalationResolvedPayload struct {
	LogID string  `json:"log_id"`
	Notes *string `json:"notes,omitempty"`
}

func (EscalationResolvedPayload) AuditAction() AuditAction { return AuditEscalationResolved }

// AssignmentMode tells how an assignee was chosen.
type AssignmentMode string

const (
	AssignmentAuto   AssignmentMode = "AUTO"
	AssignmentManual AssignmentMode = "MANUAL"
)

type AssignedPayload struct {
	Mode         AssignmentMode `json:"mode"`
	From         *string        `json:"from,omitempty"`
	To           string         `json:"to"`
	Utilization  *float64       `json:"utilization,omitempty"`
	Override     bool           `json:"override"`
	AuthorizedBy string         `json:"authorized_by"`
}

func (AssignedPayload) AuditAction() AuditAction { return AuditAssigned }

type TimerStartedPayload struct {
	LogID        string   `json:"log_id"`
	UserID       string   `json:"user_id"`
	ParkedLogIDs []string `json:"parked_log_ids,omitempty"`
}

func (TimerStartedPayload) AuditAction() AuditAction { return AuditTimerStarted }

type TimerStoppedPayload struct {
	LogID           string `json:"log_id"`
	DurationSeconds int64  `json:"duration_seconds"`
	TrackedSeconds  int64  `json:"tracked_seconds"`
}

func (TimerStoppedPayload) AuditAction() AuditAction { return AuditTimerStopped }

type TimeLogEditedPayload struct {
	LogID          string `json:"log_id"`
	Deleted        bool   `json:"deleted"`
	TrackedSeconds int64  `json:"tracked_seconds"`
}

func (TimeLogEditedPayload) AuditAction() AuditAction { return AuditTimeLogEdited }

// EncodeAuditPayload serializes a payload for storage.
func EncodeAuditPayload(p AuditPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("audit payload is nil")
	}
	return json.Marshal(p)
}

// DecodeAuditPayload restores the typed payload stored under action.
func DecodeAuditPayload(action AuditAction, raw []byte) (AuditPayload, error) {
	var target AuditPayload
	switch action {
	case AuditSLAStarted:
		target = &SLAStartedPayload{}
	case AuditSLAPaused:
		target = &SLAPausedPayload{}
	case AuditSLAResumed:
		target = &SLAResumedPayload{}
	case AuditEscalationTriggered:
		target = &EscalationTriggeredPayload{}
	case AuditEscalationAcknowledged:
		target = &EscalationAcknowledgedPayload{}
	case AuditEscalationResolved:
		target = &EscalationResolvedPayload{}
	case AuditAssigned:
		target = &AssignedPayload{}
	case AuditTimerStarted:
		target = &TimerStartedPayload{}
	case AuditTimerStopped:
		target = &TimerStoppedPayload{}
	case AuditTimeLogEdited:
		target = &TimeLogEditedPayload{}
	default:
		return nil, fmt.Errorf("unknown audit action %q", action)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", action, err)
	}
	return derefPayload(target), nil
}

func derefPayload(p AuditPayload) AuditPayload {
	switch v := p.(type) {
	case *SLAStartedPayload:
		return *v
	case *SLAPausedPayload:
		return *v
	case *SLAResumedPayload:
		return *v
	case *EscalationTriggeredPayload:
		return *v
	case *EscalationAcknowledgedPayload:
		return *v
	case *EscalationResolvedPayload:
		return *v
	case *AssignedPayload:
		return *v
	case *TimerStartedPayload:
		return *v
	case *TimerStoppedPayload:
		return *v
	case *TimeLogEditedPayload:
		return *v
	default:
		return p
	}
}
