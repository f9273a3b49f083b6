package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

const (
	// HeaderIdempotencyKey: заголовок, по которому повторы запроса распознаются как один запрос.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay выставляется на ответах, взятых из кэша.
	HeaderIdempotentReplay = "Idempotent-Replayed"

	defaultIdempotencyTTL = 24 * time.Hour
)

// Idempotency запоминает ответ на запрос с Idempotency-Key и отдаёт его при повторе.
// Запросы без заголовка проходят без изменений.
type Idempotency struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

// NewIdempotency создаёт middleware. ttl <= 0 заменяется на 24 часа.
func NewIdempotency(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Idempotency {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	if logger == nil {
		logger = log.New().WithField("component", "http-idempotency")
	}
	return &Idempotency{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Middleware оборачивает мутирующие запросы.
func (m *Idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderIdempotencyKey)
		if m == nil || m.repo == nil || key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeFailure(w, domain.FailureEmptyInput, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		ctx := r.Context()
		entry := m.logger.WithField("idempotency_key", key)

		record, err := m.repo.CreateProcessing(ctx, key, requestHash(r, body), m.now().Add(m.ttl))
		if err != nil {
			m.replay(w, entry, record, err)
			return
		}

		// Паника обработчика не должна оставлять ключ в Processing до истечения ttl:
		// ключ закрывается как 500, паника уходит дальше в Recoverer.
		defer func() {
			if rec := recover(); rec != nil {
				entry.WithField("panic", rec).Error("handler panicked, idempotency key marked failed")
				if err := m.repo.MarkFailed(ctx, key, internalErrorBody(), http.StatusInternalServerError); err != nil {
					entry.WithError(err).Warn("failed to store idempotent response")
				}
				panic(rec)
			}
		}()

		var captured bytes.Buffer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&captured)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		// Ответ кэшируется даже при 5xx: повтор с тем же ключом вернёт тот же результат.
		store := m.repo.MarkDone
		if status >= http.StatusInternalServerError {
			store = m.repo.MarkFailed
		}
		if err := store(ctx, key, captured.Bytes(), status); err != nil {
			entry.WithError(err).Warn("failed to store idempotent response")
		}
	})
}

func (m *Idempotency) replay(w http.ResponseWriter, entry *log.Entry, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeFailure(w, domain.FailureConflict, "idempotency key is already used with a different request")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			if len(record.ResponseBody) == 0 || record.HTTPStatus == 0 {
				entry.Warn("idempotency record has no stored response")
				writeInternalError(w)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(HeaderIdempotentReplay, "true")
			w.WriteHeader(record.HTTPStatus)
			_, _ = w.Write(record.ResponseBody)
		case domain.IdempotencyStatusProcessing:
			writeFailure(w, domain.FailureConflict, "request with the same idempotency key is already processing")
		default:
			entry.WithField("status", record.Status).Warn("unknown idempotency record status")
			writeInternalError(w)
		}
	case errors.Is(createErr, domain.ErrIdempotencyKeyRequired):
		writeFailure(w, domain.FailureEmptyInput, createErr.Error())
	default:
		entry.WithError(createErr).Error("failed to create idempotency record")
		writeInternalError(w)
	}
}

// requestHash связывает ключ с методом, путём и телом запроса.
func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{' '})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
