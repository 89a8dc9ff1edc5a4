package domain

import "time"

// BlockedIP is an entry in the blocked address set.
// Upserted by IP, no history kept.
type BlockedIP struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blockedAt"`
	BlockedBy string    `json:"blockedBy,omitempty"`
}
