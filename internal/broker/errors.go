package broker

import (
	"errors"
	"fmt"
)

// Категории ошибок брокера. Конкретные ошибки оборачиваются через %w,
// поэтому проверять нужно errors.Is(err, ErrXxx).
var (
	// ErrConnection - не удалось установить/восстановить подключение или поток получения.
	ErrConnection = errors.New("broker connection error")
	// ErrSend - не удалось отправить сообщение.
	ErrSend = errors.New("broker send error")
	// ErrResolution - complete/abandon не прошли (обычно блокировка уже истекла или снята).
	ErrResolution = errors.New("broker resolution error")
	// ErrRenewal - не удалось продлить блокировку.
	ErrRenewal = errors.New("broker lock renewal error")
)

var (
	// ErrNotConnected - на момент вызова подключения нет (fail fast).
	ErrNotConnected = fmt.Errorf("%w: not connected", ErrConnection)
	// ErrClosed - подключение закрыто через Close.
	ErrClosed = fmt.Errorf("%w: connection closed", ErrConnection)
)
