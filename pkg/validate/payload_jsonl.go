package validate

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Result - статистика разбора входного файла/потока.
type Result struct {
	ValidCount   int
	InvalidCount int
}

func (r Result) String() string {
	return fmt.Sprintf("%d valid / %d invalid", r.ValidCount, r.InvalidCount)
}

// PayloadsFromJSONL - читает JSONL, каждую строку разбирает как отдельное сообщение.
// Возвращает канонические тела валидных строк. Пустые строки пропускаются,
// невалидные считаются и тоже пропускаются.
func PayloadsFromJSONL(ir io.Reader) ([][]byte, Result, error) {
	var (
		res      Result
		payloads [][]byte
	)

	scanner := bufio.NewScanner(ir)
	// запас на большие строки
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	for scanner.Scan() {
		lineBytes := scanner.Bytes()
		if len(strings.TrimSpace(string(lineBytes))) == 0 {
			continue
		}

		_, canonical, err := PayloadFromJSON(lineBytes)
		if err != nil {
			res.InvalidCount++
			continue
		}
		payloads = append(payloads, canonical)
		res.ValidCount++
	}
	if err := scanner.Err(); err != nil {
		return payloads, res, fmt.Errorf("scan: %w", err)
	}
	return payloads, res, nil
}
