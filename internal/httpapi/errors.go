package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/ragchat/gateway/internal/gatewayerr"
)

// statusForKind is the single error-taxonomy-to-HTTP-status mapping layer
// (SPEC_FULL.md §7). Every handler funnels its errors through writeError,
// which calls this, so the mapping lives in exactly one place.
func statusForKind(k gatewayerr.Kind) int {
	switch k {
	case gatewayerr.KindAuthMissing, gatewayerr.KindAuthInvalid:
		return http.StatusUnauthorized
	case gatewayerr.KindAuthForbidden:
		return http.StatusForbidden
	case gatewayerr.KindNotFound:
		return http.StatusNotFound
	case gatewayerr.KindValidation:
		return http.StatusUnprocessableEntity
	case gatewayerr.KindConflict:
		return http.StatusConflict
	case gatewayerr.KindContextLimit:
		return http.StatusBadRequest
	case gatewayerr.KindModelNotFound, gatewayerr.KindProviderDisabled, gatewayerr.KindProviderUnavail:
		return http.StatusServiceUnavailable
	case gatewayerr.KindToolNotFound, gatewayerr.KindToolUnavailable, gatewayerr.KindToolError:
		return http.StatusBadGateway
	case gatewayerr.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeError translates err into the single wire error shape and status,
// logging internal errors with their cause since those are the only kind a
// client can't self-diagnose from the response body.
func writeError(w http.ResponseWriter, logger hclog.Logger, err error) {
	gerr, ok := gatewayerr.As(err)
	if !ok {
		gerr = gatewayerr.NewInternal(err)
	}
	if gerr.Kind == gatewayerr.KindInternal {
		logger.Error("internal error", "error", gerr.Error())
	}
	writeJSON(w, statusForKind(gerr.Kind), errorBody{Error: errorDetail{
		Type:    string(gerr.Kind),
		Message: gerr.Message,
		Details: gerr.Details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return gatewayerr.NewValidation("malformed JSON body: %v", err)
	}
	return nil
}
