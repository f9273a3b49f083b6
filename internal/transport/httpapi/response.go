package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

const maxBodyBytes = 1 << 20

// envelope: общий формат ответа API.
type envelope struct {
	Status  domain.ResultStatus `json:"status"`
	Message string              `json:"message"`
	Kind    domain.FailureKind  `json:"kind,omitempty"`
	Data    any                 `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult отдаёт Result: успех со статусом successStatus, отказ с кодом по классу.
func writeResult[T any](w http.ResponseWriter, successStatus int, res domain.Result[T], data func(T) any) {
	if !res.Succeeded() {
		writeFailure(w, res.Kind, res.Message)
		return
	}
	writeJSON(w, successStatus, envelope{
		Status:  domain.ResultSuccess,
		Message: res.Message,
		Data:    data(res.Value),
	})
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Status: domain.ResultSuccess, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, kind domain.FailureKind, message string) {
	writeJSON(w, statusForKind(kind), envelope{
		Status:  domain.ResultFailure,
		Message: message,
		Kind:    kind,
	})
}

var internalErrorEnvelope = envelope{
	Status:  domain.ResultFailure,
	Message: "internal error",
}

func writeInternalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, internalErrorEnvelope)
}

// internalErrorBody: тело ответа writeInternalError для сохранения в записи идемпотентности.
func internalErrorBody() []byte {
	body, _ := json.Marshal(internalErrorEnvelope)
	return body
}

func statusForKind(kind domain.FailureKind) int {
	switch kind {
	case domain.FailureNotFound:
		return http.StatusNotFound
	case domain.FailureInvalidState, domain.FailureConflict:
		return http.StatusConflict
	case domain.FailureAmountMismatch:
		return http.StatusUnprocessableEntity
	case domain.FailureEmptyInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody читает JSON-тело. Пустое тело допустимо, если allowEmpty.
func decodeBody(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
