package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
	StatusDisputed  Status = "disputed"
)

// validNext is the single source of truth for order lifecycle moves.
// disputed -> paid/confirmed/shipped restores the pre-dispute status when a refund
// request is rejected; disputed -> completed closes a rejected dispute on a
// delivered order.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {StatusConfirmed: true, StatusRefunded: true, StatusDisputed: true},
	StatusConfirmed: {StatusShipped: true, StatusDisputed: true},
	StatusShipped:   {StatusDelivered: true, StatusDisputed: true},
	StatusDelivered: {StatusCompleted: true, StatusDisputed: true},
	StatusDisputed:  {StatusRefunded: true, StatusCompleted: true, StatusPaid: true, StatusConfirmed: true, StatusShipped: true},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusRefunded:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

// Live reports whether the order still counts against stock and buyer limits.
func (s Status) Live() bool {
	return s != StatusCancelled && s != StatusRefunded
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}
