package api

// Payment method identifiers accepted by the payment API.
const (
	MethodUPI  = "upi"
	MethodCard = "card"
)

// Payment lifecycle statuses reported by the payment API.
const (
	StatusCreated = "created"
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Order is the read-only order view fetched by the checkout surface. Amount is
// an integer in minor currency units.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// PaymentRequest creates a payment against an order. Exactly one
// method-specific field group is populated, selected by Method.
type PaymentRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	Method  string `json:"method" validate:"required,oneof=upi card"`

	VPA string `json:"vpa,omitempty" validate:"required_if=Method upi,excluded_unless=Method upi"`

	CardNumber string `json:"card_number,omitempty" validate:"required_if=Method card,excluded_unless=Method card"`
	CardExpiry string `json:"card_expiry,omitempty" validate:"required_if=Method card,excluded_unless=Method card"`
	CardCVV    string `json:"card_cvv,omitempty" validate:"required_if=Method card,excluded_unless=Method card"`
}

// Payment is the record created by submission and advanced only by the API.
type Payment struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Terminal reports whether the payment has reached a state from which the API
// performs no further automatic transition.
func (p Payment) Terminal() bool {
	return p.Status == StatusSuccess || p.Status == StatusFailed
}

type apiErrorBody struct {
	Error struct {
		Description string `json:"description"`
	} `json:"error"`
}
