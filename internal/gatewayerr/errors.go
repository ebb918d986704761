// Package gatewayerr defines the gateway's error taxonomy: a single typed
// error threaded through every component boundary, mapped to HTTP status by
// the http surface's one mapping layer.
package gatewayerr

import "fmt"

// Kind discriminates the gateway's error taxonomy.
type Kind string

const (
	KindAuthMissing        Kind = "auth_missing"
	KindAuthInvalid        Kind = "auth_invalid"
	KindAuthForbidden      Kind = "auth_forbidden"
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation"
	KindConflict           Kind = "conflict"
	KindContextLimit       Kind = "context_limit"
	KindModelNotFound      Kind = "model_not_found"
	KindProviderDisabled   Kind = "provider_disabled"
	KindProviderUnavail    Kind = "provider_unavailable"
	KindToolNotFound       Kind = "tool_not_found"
	KindToolUnavailable    Kind = "tool_unavailable"
	KindToolError          Kind = "tool_error"
	KindStoreUnavailable   Kind = "store_unavailable"
	KindInternal           Kind = "internal"
)

// Error is the gateway's single cross-component error type. Internal
// functions return plain errors and wrap with %w; only a component boundary
// produces or consumes an Error.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error target with the same Kind, so
// errors.Is(err, &gatewayerr.Error{Kind: gatewayerr.KindNotFound}) works;
// callers typically use As + check Kind directly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func new_(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NewNotFound(format string, args ...any) *Error { return new_(KindNotFound, format, args...) }

func NewValidation(format string, args ...any) *Error { return new_(KindValidation, format, args...) }

func NewConflict(format string, args ...any) *Error { return new_(KindConflict, format, args...) }

func NewAuthMissing(format string, args ...any) *Error { return new_(KindAuthMissing, format, args...) }

func NewAuthInvalid(format string, args ...any) *Error { return new_(KindAuthInvalid, format, args...) }

func NewAuthForbidden(format string, args ...any) *Error {
	return new_(KindAuthForbidden, format, args...)
}

func NewModelNotFound(model string) *Error {
	return &Error{Kind: KindModelNotFound, Message: fmt.Sprintf("model %q not found", model), Details: map[string]any{"model": model}}
}

func NewProviderDisabled(provider string) *Error {
	return &Error{Kind: KindProviderDisabled, Message: fmt.Sprintf("provider %q disabled", provider), Details: map[string]any{"provider": provider}}
}

func NewProviderUnavailable(provider string, cause error) *Error {
	return &Error{Kind: KindProviderUnavail, Message: fmt.Sprintf("provider %q unavailable", provider), Details: map[string]any{"provider": provider}, Cause: cause}
}

func NewContextLimit(model string, current, limit int) *Error {
	return &Error{
		Kind:    KindContextLimit,
		Message: "conversation context exceeds model limit",
		Details: map[string]any{"model": model, "current_tokens": current, "limit": limit},
	}
}

func NewToolNotFound(name string) *Error {
	return &Error{Kind: KindToolNotFound, Message: fmt.Sprintf("tool %q not found", name), Details: map[string]any{"tool": name}}
}

func NewToolUnavailable(name string) *Error {
	return &Error{Kind: KindToolUnavailable, Message: fmt.Sprintf("tool %q unavailable", name), Details: map[string]any{"tool": name}}
}

func NewToolError(code, message string) *Error {
	return &Error{Kind: KindToolError, Message: message, Details: map[string]any{"code": code}}
}

func NewStoreUnavailable(cause error) *Error {
	return &Error{Kind: KindStoreUnavailable, Message: "store unavailable", Cause: cause}
}

func NewInternal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Cause: cause}
}

// As extracts a *Error from an arbitrary error chain, for the HTTP mapping
// layer and for tests asserting on Kind.
func As(err error) (*Error, bool) {
	var ge *Error
	if err == nil {
		return nil, false
	}
	if e, ok := err.(*Error); ok {
		return e, true
	}
	type unwrapper interface{ Unwrap() error }
	for u, ok := err.(unwrapper); ok; u, ok = err.(unwrapper) {
		err = u.Unwrap()
		if e, ok := err.(*Error); ok {
			ge = e
			return ge, true
		}
	}
	return nil, false
}
