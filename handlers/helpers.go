package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Dosada05/talent-vote/backend"
	"github.com/Dosada05/talent-vote/gateway"
	"github.com/Dosada05/talent-vote/services"
)

type jsonResponse map[string]interface{}

const maxBodyBytes = 1_048_576 // 1MB

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBodyBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBodyBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err) // Паника, т.к. это ошибка программиста (передан не указатель)
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

// errorResponse пишет тело ошибки в едином формате {error, message}.
func errorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	env := jsonResponse{"error": code, "message": message}
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.ErrorContext(r.Context(), "failed to write error response",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	message := "the server encountered a problem and could not process your request"
	errorResponse(w, r, http.StatusInternalServerError, "internal_error", message)
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusBadRequest, "bad_request", err.Error())
}

func notFoundResponse(w http.ResponseWriter, r *http.Request, message string) {
	if message == "" {
		message = "the requested resource could not be found"
	}
	errorResponse(w, r, http.StatusNotFound, "not_found", message)
}

func unauthorizedResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusUnauthorized, "unauthorized", message)
}

func forbiddenResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusForbidden, "forbidden", message)
}

// upstreamFailure извлекает статус и сообщение ответа бэкенда или шлюза.
func upstreamFailure(err error) (status int, message string, ok bool) {
	var backendErr *backend.APIError
	if errors.As(err, &backendErr) {
		return backendErr.StatusCode, backendErr.Message, true
	}
	var gatewayErr *gateway.APIError
	if errors.As(err, &gatewayErr) {
		return gatewayErr.StatusCode, gatewayErr.Message, true
	}
	return 0, "", false
}

// upstreamErrorResponse: 4xx апстрима → 400 с его сообщением, остальное → 500.
// Без сообщения клиент получает локализованный текст.
func upstreamErrorResponse(w http.ResponseWriter, r *http.Request, code string, err error) {
	status, message, ok := upstreamFailure(err)
	if message == "" {
		message = services.PaymentFailedMessage
	}
	httpStatus := http.StatusInternalServerError
	if ok && status >= 400 && status < 500 {
		httpStatus = http.StatusBadRequest
	}
	slog.WarnContext(r.Context(), "upstream request failed",
		slog.String("path", r.URL.Path),
		slog.String("code", code),
		slog.Int("upstream_status", status),
		slog.Any("error", err))
	errorResponse(w, r, httpStatus, code, message)
}

// mapServiceErrorToHTTP преобразует ошибки сервисного слоя в HTTP-ответы
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	var voteErr *services.VoteError

	switch {
	case errors.Is(err, services.ErrEventNotFound),
		errors.Is(err, services.ErrNotFound):
		notFoundResponse(w, r, err.Error())

	case errors.Is(err, services.ErrValidationFailed),
		errors.Is(err, services.ErrInvalidWebhookEvent),
		errors.Is(err, services.ErrWebhookMetadataEmpty):
		badRequestResponse(w, r, err)

	case errors.Is(err, services.ErrAuthenticationFailed):
		unauthorizedResponse(w, r, err.Error())
	case errors.Is(err, services.ErrForbiddenOperation):
		forbiddenResponse(w, r, err.Error())

	case errors.As(err, &voteErr):
		upstreamErrorResponse(w, r, strings.ToLower(string(voteErr.State)), err)

	// Бэкенд вернул дерево, которое нельзя показывать.
	case errors.Is(err, services.ErrInvalidPhaseWindow),
		errors.Is(err, backend.ErrMalformedResponse):
		errorResponse(w, r, http.StatusInternalServerError, "upstream_invalid_data", err.Error())

	default:
		if _, _, ok := upstreamFailure(err); ok {
			upstreamErrorResponse(w, r, "upstream_error", err)
			return
		}
		serverErrorResponse(w, r, err)
	}
}

func getIDFromURL(r *http.Request, paramName string) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, paramName))
	if id == "" {
		return "", fmt.Errorf("missing %s in URL path", paramName)
	}
	return id, nil
}

func toInt(raw string, def int) int {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
