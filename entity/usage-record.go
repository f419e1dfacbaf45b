package entity

import "time"

type Action string

const (
	ActionBetaAccess  Action = "beta_access"
	ActionEventAccess Action = "event_access"
	ActionFileUpload  Action = "file_upload"
)

// AccessAction is the entry action recorded when a code of this kind is consumed.
func (k Kind) AccessAction() Action {
	if k == KindEvent {
		return ActionEventAccess
	}
	return ActionBetaAccess
}

// UsageRecord is an append-only audit entry; it is kept even after its code
// is deleted.
type UsageRecord struct {
	Id          string    `json:"id" bson:"id"`
	Kind        Kind      `json:"kind" bson:"kind"`
	CodeId      string    `json:"code_id" bson:"code_id"`
	Code        string    `json:"code" bson:"code"`
	UserId      string    `json:"user_id,omitempty" bson:"user_id,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty" bson:"user_agent,omitempty"`
	IpAddress   string    `json:"ip_address,omitempty" bson:"ip_address,omitempty"`
	Action      Action    `json:"action" bson:"action"`
	UsedAt      time.Time `json:"used_at" bson:"used_at"`
	FileCount   int       `json:"file_count,omitempty" bson:"file_count,omitempty"`
	TableNumber int       `json:"table_number,omitempty" bson:"table_number,omitempty"`
	FileId      string    `json:"file_id,omitempty" bson:"file_id,omitempty"`
	Overshoot   bool      `json:"overshoot,omitempty" bson:"overshoot,omitempty"`
}

// UsageInput is what a caller knows about the action being tracked.
type UsageInput struct {
	UserId      string
	UserAgent   string
	IpAddress   string
	Action      Action
	FileCount   int
	TableNumber int
	FileId      string
}

type UsageStats struct {
	Kind         Kind           `json:"kind"`
	Code         string         `json:"code"`
	CurrentUses  int            `json:"current_uses"`
	CurrentFiles int            `json:"current_files"`
	Records      int            `json:"records"`
	ByAction     map[Action]int `json:"by_action"`
	Files        int            `json:"files"`
	UniqueIps    int            `json:"unique_ips"`
	Overshoots   int            `json:"overshoots"`
	FirstUsedAt  *time.Time     `json:"first_used_at,omitempty"`
	LastUsedAt   *time.Time     `json:"last_used_at,omitempty"`
}
