package domain

// Pharmacy is the tenant. Every prescription, inventory row and ledger entry
// belongs to exactly one pharmacy.
type Pharmacy struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Address   string `db:"address" json:"address"`
	Location  string `db:"location" json:"location"`
	OwnerID   *int64 `db:"owner_id" json:"owner_id,omitempty"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// Caller is the acting user and the tenant the call is scoped to. Both come
// from the identity layer and are opaque here.
type Caller struct {
	UserID     int64  `json:"user_id"`
	PharmacyID int64  `json:"pharmacy_id"`
	Role       string `json:"role,omitempty"`
}

// Validate rejects callers without an actor or tenant.
func (c Caller) Validate() error {
	if c.UserID <= 0 {
		return invalidArgument("acting user is required")
	}
	if c.PharmacyID <= 0 {
		return invalidArgument("pharmacy is required")
	}
	return nil
}
