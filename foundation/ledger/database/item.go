package database

// Item represents a named resource tracked on the ledger. An item exists the
// first time a transaction references it and is never removed. While an item
// is reserved, every extra request raises its demand and pays a penalty into
// escrow; releasing pays the holder back and resets the item.
type Item struct {
	ItemID   string    `json:"item_id"`
	HolderID AccountID `json:"holder_id,omitempty"`
	Value    float64   `json:"value"`
	Demand   int       `json:"demand"`
	Escrow   float64   `json:"escrow"`
}

// Reserved reports whether the item currently has a holder.
func (it Item) Reserved() bool {
	return it.HolderID != ""
}
