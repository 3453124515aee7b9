package api

import (
	"errors"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"github.com/tinywideclouds/go-push-relay/pkg/push"
)

// writeResult relays the upstream status and body byte for byte;
// response.WriteJSON would re-encode the body and escape HTML in it.
func writeResult(w http.ResponseWriter, result *push.DeliveryResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	_, _ = w.Write(result.Body)
}

// writeError resolves a pipeline error into its terminal response.
func writeError(w http.ResponseWriter, err error) {
	status := push.HTTPStatus(err)
	response.WriteJSONError(w, status, errorMessage(err, status))
}

func errorMessage(err error, status int) string {
	var (
		validation *push.ValidationError
		routing    *push.RoutingError
		decryption *push.DecryptionError
		upstream   *push.UpstreamError
	)
	switch {
	case errors.As(err, &validation):
		return validation.Reason
	case errors.As(err, &routing):
		return routing.Reason
	case errors.As(err, &decryption):
		return "Failed to decrypt payload."
	case errors.As(err, &upstream):
		return "Push service unreachable."
	case errors.As(err, new(*push.StorageError)):
		return "Failed to save file."
	case status == http.StatusBadRequest:
		return err.Error()
	default:
		return "Internal server error."
	}
}
