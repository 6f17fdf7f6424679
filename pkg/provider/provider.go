package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fableworks/taskcore/pkg/types"
)

// Request is one outbound generation call.
type Request struct {
	Provider string
	Model    string
	UserID   string
	Prompt   string
	// Options carries provider-specific knobs (temperature, max tokens)
	// opaque to the core.
	Options json.RawMessage
}

// Response is the content returned by a provider.
type Response struct {
	Content      string
	TokensUsed   int
	FinishReason string
}

// Client is the outbound AI provider contract. Implementations live outside
// the core; failures must surface as *Error so callers can recognize
// quota exhaustion versus transient versus fatal conditions.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Error is a typed provider failure carrying an error class.
type Error struct {
	Provider string
	Model    string
	Class    types.ErrorClass
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s/%s: %s: %s", e.Provider, e.Model, e.Class, e.Message)
}

// ErrorClass exposes the class so types.ClassOf can classify the failure.
func (e *Error) ErrorClass() types.ErrorClass {
	return e.Class
}

// NewError builds a typed provider error.
func NewError(providerName, model string, class types.ErrorClass, msg string) *Error {
	return &Error{Provider: providerName, Model: model, Class: class, Message: msg}
}
