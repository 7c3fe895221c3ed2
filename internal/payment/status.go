package payment

type Status string

const (
	StatusPending           Status = "PENDING"
	StatusAuthorized        Status = "AUTHORIZED"
	StatusCaptured          Status = "CAPTURED"
	StatusFailed            Status = "FAILED"
	StatusCancelled         Status = "CANCELLED"
	StatusRefunded          Status = "REFUNDED"
	StatusPartiallyRefunded Status = "PARTIALLY_REFUNDED"
)

// FAILED -> FAILED legal: retry gateway nambah retry_count.
// CAPTURED hanya bisa maju ke arah refund; CANCELLED/REFUNDED terminal.
var validNext = map[Status]map[Status]bool{
	StatusPending:           {StatusAuthorized: true, StatusCaptured: true, StatusFailed: true, StatusCancelled: true},
	StatusAuthorized:        {StatusCaptured: true, StatusFailed: true, StatusCancelled: true},
	StatusCaptured:          {StatusRefunded: true, StatusPartiallyRefunded: true},
	StatusPartiallyRefunded: {StatusRefunded: true, StatusPartiallyRefunded: true},
	StatusFailed:            {StatusFailed: true},
	StatusCancelled:         {},
	StatusRefunded:          {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

type RefundStatus string

const (
	RefundPending   RefundStatus = "PENDING"
	RefundCompleted RefundStatus = "COMPLETED"
	RefundFailed    RefundStatus = "FAILED"
)
