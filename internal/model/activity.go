package model

import "time"

// Activity records a change applied to a product by the pipeline.
type Activity struct {
	ID           int64
	ProductID    int64
	Action       string
	Detail       string
	SessionToken string
	Operator     string
	CreatedAt    time.Time
}

// Activity actions.
const (
	ActionImported = "imported"
	ActionUpdated  = "updated"
)

// Actor identifies who applied a change and under which session.
type Actor struct {
	Operator     string
	SessionToken string
}
