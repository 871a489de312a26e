package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidPayload - базовая (sentinel error) ошибка разбора тела сообщения.
var ErrInvalidPayload = errors.New("payload validation failed")

// PayloadFromJSON - строгий разбор тела сообщения: ровно одно JSON-значение, без хвоста.
// Возвращает разобранное значение и его компактное (каноническое) представление.
// Числа сохраняются без потери точности (json.Number).
func PayloadFromJSON(raw []byte) (any, []byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, nil, fmt.Errorf("%w: invalid json: %w", ErrInvalidPayload, err)
	}
	// гарантируем отсутствие данных после первого значения
	if err := dec.Decode(new(any)); err != io.EOF {
		return nil, nil, fmt.Errorf("%w: invalid json: trailing data", ErrInvalidPayload)
	}

	canonical, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encode: %w", ErrInvalidPayload, err)
	}
	return v, canonical, nil
}
