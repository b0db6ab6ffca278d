package utils

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/zhouzirui/narrative-forge/backend/pkg/jsonvalue"
)

// RespondJSON writes payload as the response body.
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("failed to encode response", zap.Int("status", status), zap.Error(err))
	}
}

// RespondError writes {"detail": message}.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, jsonvalue.Object(jsonvalue.Field("detail", jsonvalue.String(message))))
}

// Envelope wraps data in the standard success envelope. A null data value is
// left out.
func Envelope(message string, data jsonvalue.Value) jsonvalue.Value {
	env := jsonvalue.Object(
		jsonvalue.Field("success", jsonvalue.Bool(true)),
		jsonvalue.Field("message", jsonvalue.String(message)),
	)
	if !data.IsNull() {
		env = env.With("data", data)
	}
	return env
}
