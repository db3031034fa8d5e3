package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers changes to the access-control lists and the
	// oracle panel. These carry regulatory weight and are never sampled.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers privilege use: emergency listings,
	// administrator transfers, rejected signatures.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine consensus traffic.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	Action    string
	// Actor is the calling account (hex address).
	Actor string
	// Subject is the account the action is about: an oracle or a listed subject.
	Subject   string
	QueryID   string
	Reason    string
	RequestID string
	Details   map[string]string
}

type AuditEvent string

const (
	// Oracle registry
	EventOracleRegistered   AuditEvent = "oracle_registered"
	EventOracleDeregistered AuditEvent = "oracle_deregistered"
	EventOracleActivated    AuditEvent = "oracle_activated"
	EventOracleDeactivated  AuditEvent = "oracle_deactivated"
	EventReputationChanged  AuditEvent = "reputation_changed"
	EventWeightChanged      AuditEvent = "weight_changed"

	// Consensus
	EventQueryCreated      AuditEvent = "query_created"
	EventVoteCast          AuditEvent = "vote_cast"
	EventConsensusResolved AuditEvent = "consensus_resolved"
	EventQueryForced       AuditEvent = "query_force_resolved"
	EventResultApplied     AuditEvent = "consensus_result_applied"
	EventThresholdChanged  AuditEvent = "threshold_changed"
	EventSignatureRejected AuditEvent = "signature_rejected"

	// Lists
	EventWhitelistAdded       AuditEvent = "whitelist_added"
	EventBlacklistAdded       AuditEvent = "blacklist_added"
	EventEmergencyBlacklisted AuditEvent = "emergency_blacklisted"
	EventEntryRemoved         AuditEvent = "entry_removed"
	EventEntryExpired         AuditEvent = "entry_expired"
	EventEmergencyOracleSet   AuditEvent = "emergency_oracle_set"

	// Administration
	EventAdminTransferred AuditEvent = "admin_transferred"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventOracleRegistered:   CategoryCompliance,
	EventOracleDeregistered: CategoryCompliance,
	EventOracleActivated:    CategoryCompliance,
	EventOracleDeactivated:  CategoryCompliance,
	EventReputationChanged:  CategoryCompliance,
	EventWeightChanged:      CategoryCompliance,
	EventConsensusResolved:  CategoryCompliance,
	EventResultApplied:      CategoryCompliance,
	EventWhitelistAdded:     CategoryCompliance,
	EventBlacklistAdded:     CategoryCompliance,
	EventEntryRemoved:       CategoryCompliance,
	EventEntryExpired:       CategoryCompliance,

	EventEmergencyBlacklisted: CategorySecurity,
	EventEmergencyOracleSet:   CategorySecurity,
	EventAdminTransferred:     CategorySecurity,
	EventSignatureRejected:    CategorySecurity,
	EventThresholdChanged:     CategorySecurity,

	EventQueryCreated: CategoryOperations,
	EventVoteCast:     CategoryOperations,
	EventQueryForced:  CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Normalize fills the fields every sink relies on.
func (e *Event) Normalize(now time.Time) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Category == "" {
		e.Category = AuditEvent(e.Action).Category()
	}
}
