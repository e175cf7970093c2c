package user

import "time"

// User represents a registered reader.
type User struct {
	ID        int64     // ID is assigned by the store on creation
	Email     string    // Email is the unique address of the user
	Name      string    // Name is the display name of the user
	Age       *int      // Age is optional; nil when not supplied
	CreatedAt time.Time // CreatedAt is set by the store on creation
}
