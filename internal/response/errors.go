package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Lesson-specific ───────────────────────────────────────────────
	ErrLessonNotFound    ErrCode = "LESSON_NOT_FOUND"
	ErrLessonMalformed   ErrCode = "LESSON_MALFORMED"
	ErrSessionNotOpen    ErrCode = "SESSION_NOT_OPEN"
	ErrBlockOutOfRange   ErrCode = "BLOCK_OUT_OF_RANGE"
	ErrBlockNotGradable  ErrCode = "BLOCK_NOT_GRADABLE"
	ErrGateAlreadyAnswer ErrCode = "GATE_ALREADY_ANSWERED"
	ErrSectionLocked     ErrCode = "SECTION_LOCKED"
	ErrAnswerRequired    ErrCode = "ANSWER_REQUIRED"
	ErrNothingToRetry    ErrCode = "NOTHING_TO_RETRY"
	ErrAudioUnavailable  ErrCode = "AUDIO_UNAVAILABLE"
	ErrAudioQuizPause    ErrCode = "AUDIO_QUIZ_PAUSE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Lesson-specific ───────────────────────────────────────────────
	case ErrLessonNotFound:
		return "Materi pelajaran tidak ditemukan."
	case ErrLessonMalformed:
		return "Materi pelajaran rusak dan tidak dapat ditampilkan."
	case ErrSessionNotOpen:
		return "Sesi belajar belum dibuka. Muat ulang materi terlebih dahulu."
	case ErrBlockOutOfRange:
		return "Blok materi tidak ditemukan."
	case ErrBlockNotGradable:
		return "Blok ini tidak dapat dinilai."
	case ErrGateAlreadyAnswer:
		return "Kuis ini sudah dijawab."
	case ErrSectionLocked:
		return "Bagian ini masih terkunci. Selesaikan kuis sebelumnya."
	case ErrAnswerRequired:
		return "Jawaban wajib diisi."
	case ErrNothingToRetry:
		return "Blok ini tidak perlu dimuat ulang."
	case ErrAudioUnavailable:
		return "Materi ini tidak memiliki audio."
	case ErrAudioQuizPause:
		return "Jawab kuis terlebih dahulu untuk melanjutkan audio."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}

// IsTerminal reports whether the learner cannot recover by retrying.
// Load failures end the lesson screen with a return action instead.
func IsTerminal(code ErrCode) bool {
	return code == ErrLessonNotFound || code == ErrLessonMalformed
}
