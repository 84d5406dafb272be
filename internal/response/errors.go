package response

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-engine/internal/examerr"
)

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"
	ErrTokenRevoked  ErrCode = "TOKEN_REVOKED"
	ErrForbidden     ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound            ErrCode = "NOT_FOUND"
	ErrQuestionSetNotFound ErrCode = "QUESTION_SET_NOT_FOUND"
	ErrAttemptNotFound     ErrCode = "ATTEMPT_NOT_FOUND"
	ErrNoQuestions         ErrCode = "NO_QUESTIONS"

	// ─── Attempt engine ────────────────────────────────────────────────
	ErrInvalidConfiguration ErrCode = "INVALID_CONFIGURATION"
	ErrOutOfRange           ErrCode = "OUT_OF_RANGE"
	ErrInvalidState         ErrCode = "INVALID_STATE"
	ErrAlreadyFinished      ErrCode = "ALREADY_FINISHED"
	ErrCorruptState         ErrCode = "CORRUPT_STATE"
	ErrNotSubmitted         ErrCode = "ATTEMPT_NOT_SUBMITTED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrRateLimitExceeded  ErrCode = "RATE_LIMIT_EXCEEDED"
	ErrStorageUnavailable ErrCode = "STORAGE_UNAVAILABLE"
	ErrInternal           ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token percobaan diperlukan."
	case ErrTokenInvalid:
		return "Token percobaan tidak valid."
	case ErrTokenExpired:
		return "Token percobaan sudah kedaluwarsa."
	case ErrTokenRevoked:
		return "Token ini sudah digantikan atau percobaan telah direset."
	case ErrForbidden:
		return "Token ini bukan milik percobaan tersebut."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Data tidak ditemukan."
	case ErrQuestionSetNotFound:
		return "Paket soal tidak ditemukan."
	case ErrAttemptNotFound:
		return "Percobaan tidak ditemukan atau tidak dapat dilanjutkan."
	case ErrNoQuestions:
		return "Paket soal ini tidak memiliki pertanyaan."

	// ─── Attempt engine ────────────────────────────────────────────────
	case ErrInvalidConfiguration:
		return "Konfigurasi ujian tidak valid."
	case ErrOutOfRange:
		return "Nomor soal atau pilihan di luar jangkauan."
	case ErrInvalidState:
		return "Perintah tidak berlaku pada status percobaan saat ini."
	case ErrAlreadyFinished:
		return "Percobaan ini sudah dikumpulkan."
	case ErrCorruptState:
		return "Data percobaan tersimpan rusak. Silakan mulai percobaan baru."
	case ErrNotSubmitted:
		return "Hasil belum tersedia sebelum percobaan dikumpulkan."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."
	case ErrStorageUnavailable:
		return "Penyimpanan sedang tidak tersedia."
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}

// FromError maps an engine or storage error to its HTTP status and code.
func FromError(err error) (int, ErrCode) {
	if errors.Is(err, pgx.ErrNoRows) {
		return http.StatusNotFound, ErrNotFound
	}
	switch examerr.KindOf(err) {
	case examerr.InvalidConfiguration:
		return http.StatusBadRequest, ErrInvalidConfiguration
	case examerr.OutOfRange:
		return http.StatusUnprocessableEntity, ErrOutOfRange
	case examerr.InvalidState:
		return http.StatusConflict, ErrInvalidState
	case examerr.AlreadyFinished:
		return http.StatusConflict, ErrAlreadyFinished
	case examerr.CorruptState:
		return http.StatusUnprocessableEntity, ErrCorruptState
	case examerr.NotFound:
		return http.StatusNotFound, ErrAttemptNotFound
	case examerr.StorageUnavailable:
		return http.StatusServiceUnavailable, ErrStorageUnavailable
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}
