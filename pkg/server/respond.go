package server

import (
	"encoding/json"
	"net/http"

	"github.com/litellm-go/gateway/pkg/apierrors"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err through the error taxonomy's wire envelope
// (spec §7), using its HTTPStatus when err carries one, 500 otherwise.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if apiErr, ok := apierrors.As(err); ok {
		status = apiErr.HTTPStatus()
	} else if toAPIError, ok := err.(interface{ ToAPIError() *apierrors.Error }); ok {
		status = toAPIError.ToAPIError().HTTPStatus()
		writeJSON(w, status, apierrors.ToWire(toAPIError.ToAPIError()))
		return
	}
	writeJSON(w, status, apierrors.ToWire(err))
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apierrors.Wrap(apierrors.BadRequest, err, "invalid request body")
	}
	return nil
}
