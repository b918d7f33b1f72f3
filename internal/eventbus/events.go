package eventbus

// Alert lifecycle event types.
const (
	AlertCreated     = "alert.created"
	AlertUpdated     = "alert.updated"
	AlertTriggered   = "alert.triggered"
	AlertShown       = "alert.shown"
	AlertHandled     = "alert.handled"
	AlertSoftDeleted = "alert.soft_deleted"
	AlertDeleted     = "alert.deleted"
)

// AlertEvent is the Data of every alert.* event.
type AlertEvent struct {
	ID     int64  `json:"id"`
	Realm  string `json:"realm,omitempty"`
	Owner  int64  `json:"ownerId,omitempty"`
	DueAt  int64  `json:"expires,omitempty"`
	Reason string `json:"reason,omitempty"`
}
