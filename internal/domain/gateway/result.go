package gateway

import "github.com/wekeepgrowing/bursar/internal/domain/model"

// Customer facing messages. Gateway text never reaches the customer.
const (
	MessageSuccess          = "Success"
	MessagePaidInFull       = "No charge needed, paid in full."
	MessageAlreadyComplete  = "Already complete"
	MessageAlreadyProcessed = "Already processed"
	MessageReleased         = "Authorization released"
	MessageInvalidRequest   = "The payment request is invalid"
	MessageUnsupported      = "This payment method does not support the operation"
)

var failureMessages = map[FailureKind]string{
	FailureDeclined:    "Card declined",
	FailureInvalidCard: "Card details were rejected, please check and try again",
	FailureUnavailable: "The payment service is unavailable, please try again later",
	FailureError:       "The payment could not be processed",
}

// PublicMessage translates a failure kind for the customer.
func PublicMessage(kind FailureKind) string {
	if msg, ok := failureMessages[kind]; ok {
		return msg
	}
	return failureMessages[FailureError]
}

// Result is returned by every processor operation. Callers branch on
// Success; Err carries the typed validation or gateway error when it is
// false.
type Result struct {
	Gateway       string                `json:"gateway"`
	Success       bool                  `json:"success"`
	Message       string                `json:"message"`
	Payment       *model.Payment        `json:"payment,omitempty"`
	Authorization *model.Authorization  `json:"authorization,omitempty"`
	Failure       *model.PaymentFailure `json:"-"`
	Err           error                 `json:"-"`
}
