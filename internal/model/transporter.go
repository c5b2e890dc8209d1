package model

import (
	"time"

	"github.com/google/uuid"
)

// Transporter is a haulage company referenced by allocations. Compliance
// rate is derived from the allocation set on evaluation, never stored here.
type Transporter struct {
	ID     uuid.UUID
	Name   string
	Active bool
}

// Order is the planning side of an allocation: how many trucks were
// promised against which deadline, for the shortfall rule.
type Order struct {
	Ref           string
	Product       string
	PlannedTrucks int
	PlannedTonnes float64
	Deadline      time.Time
}
