package models

import "errors"

// Общая таксономия ошибок ядра. Ошибки валидации и конфликтов
// возвращаются запросившему как есть, до выделения любых ресурсов.
var (
	ErrValidation        = errors.New("validation failed")
	ErrPoolExhausted     = errors.New("address pool exhausted")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateAddress  = errors.New("address already in use")
	ErrInvalidKey        = errors.New("invalid key format")
	ErrKeyCollision      = errors.New("generated key collides with existing peer")
	ErrNotFound          = errors.New("peer not found")
	ErrUnauthorized      = errors.New("operation not permitted")
	// ErrPersistence — хранилище недоступно или сломано. Граница отдаёт
	// его как service-unavailable, а не как внутреннюю ошибку.
	ErrPersistence = errors.New("persistence unavailable")
)
