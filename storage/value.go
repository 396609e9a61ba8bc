package storage

import "time"

// Value is a stored string with its optional absolute expiry
type Value struct {
	Data   []byte
	Expiry *time.Time
}

// IsExpiredAt reports whether the value is dead at instant now. A value
// expiring exactly at now is already gone.
func (v *Value) IsExpiredAt(now time.Time) bool {
	return v.Expiry != nil && !now.Before(*v.Expiry)
}
