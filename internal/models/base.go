package models

import (
	"github.com/google/uuid"
)

// ensureID will set a UUID rather than relying on the database default
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
