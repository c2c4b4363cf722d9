package broker

import "fmt"

// ClientError represents different types of brokerage client errors.
type ClientError struct {
	Type    string // "network", "rate_limit", "auth", "bad_symbol", "provider_error"
	Symbol  string
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error for %s: %s (%v)", e.Type, e.Symbol, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error for %s: %s", e.Type, e.Symbol, e.Message)
}

func (e *ClientError) Unwrap() error { return e.Cause }

func NewNetworkError(symbol, message string, cause error) *ClientError {
	return &ClientError{Type: "network", Symbol: symbol, Message: message, Cause: cause}
}

func NewRateLimitError(symbol, message string) *ClientError {
	return &ClientError{Type: "rate_limit", Symbol: symbol, Message: message}
}

func NewAuthError(message string, cause error) *ClientError {
	return &ClientError{Type: "auth", Message: message, Cause: cause}
}

func NewBadSymbolError(symbol, message string) *ClientError {
	return &ClientError{Type: "bad_symbol", Symbol: symbol, Message: message}
}

func NewProviderError(symbol, message string, cause error) *ClientError {
	return &ClientError{Type: "provider_error", Symbol: symbol, Message: message, Cause: cause}
}
