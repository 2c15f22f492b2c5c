package model

// Key is a user's time-limited subscription hosted on a remote cluster.
type Key struct {
	ClientID   string `json:"client_id"`
	UserID     int64  `json:"user_id"`
	Email      string `json:"email"`
	ServerID   string `json:"server_id"`
	ExpiryTime int64  `json:"expiry_time"` // epoch milliseconds
	IsFrozen   bool   `json:"is_frozen"`
}

// RenewRequest asks the remote cluster to move a key's expiry to an absolute time.
// Replaying an identical request is safe.
type RenewRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	ServerID       string `json:"server_id"`
	ClientID       string `json:"client_id"`
	Email          string `json:"email"`
	NewExpiryTime  int64  `json:"new_expiry_time"`
}
