package protocol

import "errors"

var (
	// ErrFraming размер payload не совпадает с прочитанным или ожидаемым.
	ErrFraming = errors.New("framing error")

	// ErrUnexpectedCode код ответа не соответствует отправленному запросу.
	ErrUnexpectedCode = errors.New("unexpected code in header")

	// ErrGenericError сервер ответил GENERIC_ERROR.
	ErrGenericError = errors.New("server responded with generic error")

	// ErrUIDMismatch сервер вернул чужой UID.
	ErrUIDMismatch = errors.New("wrong UID")

	// ErrSizeMismatch сервер подтвердил другой размер файла.
	ErrSizeMismatch = errors.New("wrong file size")

	// ErrNameMismatch сервер подтвердил другое имя файла.
	ErrNameMismatch = errors.New("file name mismatch")
)
