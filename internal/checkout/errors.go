package checkout

import "fmt"

// Code stabil per jenis kegagalan supaya presentation layer bisa bedakan
// "coba lagi" vs "benerin cart" vs "pembayaran ditolak".
type Code string

const (
	CodeCartLocked        Code = "CART_LOCKED"        // transient, retryable
	CodeCartExpired       Code = "CART_EXPIRED"       // client harus rebuild cart
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK" // retry setelah edit cart
	CodePaymentFailed     Code = "PAYMENT_FAILED"     // non-retryable
	CodeInternal          Code = "INTERNAL"
)

type Error struct {
	Code      Code
	SKU       string // terisi untuk INSUFFICIENT_STOCK
	Message   string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e.SKU != "" {
		return fmt.Sprintf("checkout: %s (sku=%s): %s", e.Code, e.SKU, e.Message)
	}
	return fmt.Sprintf("checkout: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func errCartLocked(cause error) *Error {
	return &Error{Code: CodeCartLocked, Message: "checkout already in progress for this cart", Retryable: true, cause: cause}
}

func errCartExpired(msg string) *Error {
	if msg == "" {
		msg = "cart is no longer active"
	}
	return &Error{Code: CodeCartExpired, Message: msg}
}

func errInsufficientStock(sku string, cause error) *Error {
	return &Error{Code: CodeInsufficientStock, SKU: sku, Message: "not enough stock", cause: cause}
}

// Pesan gateway boleh diteruskan, raw payload provider jangan.
func errPaymentFailed(msg string, cause error) *Error {
	if msg == "" {
		msg = "payment declined"
	}
	return &Error{Code: CodePaymentFailed, Message: msg, cause: cause}
}

func errInternal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", cause: cause}
}
