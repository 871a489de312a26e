package validate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// InputFormat допустимые значения.
type InputFormat string

const (
	FormatAuto  InputFormat = "auto"
	FormatJSON  InputFormat = "json"
	FormatJSONL InputFormat = "jsonl"
)

// PayloadsFromFile - читает файл как JSON (одно сообщение) или JSONL (сообщение на строку).
// filePath "-" означает stdin.
func PayloadsFromFile(filePath string, format InputFormat) ([][]byte, Result, error) {
	// auto по расширению
	if format == FormatAuto {
		switch strings.ToLower(filepath.Ext(filePath)) {
		case ".jsonl":
			format = FormatJSONL
		default:
			// по умолчанию считаем JSON
			format = FormatJSON
		}
	}

	var ir io.Reader
	if filePath == "-" {
		ir = os.Stdin
	} else {
		file, err := os.Open(filePath)
		if err != nil {
			return nil, Result{}, fmt.Errorf("open file: %w", err)
		}
		defer file.Close()
		ir = file
	}

	switch format {
	case FormatJSON:
		raw, err := io.ReadAll(ir)
		if err != nil {
			return nil, Result{}, fmt.Errorf("read file: %w", err)
		}
		_, canonical, err := PayloadFromJSON(raw)
		if err != nil {
			return nil, Result{InvalidCount: 1}, err
		}
		return [][]byte{canonical}, Result{ValidCount: 1}, nil

	case FormatJSONL:
		return PayloadsFromJSONL(ir)

	default:
		return nil, Result{}, fmt.Errorf("unsupported format: %s", format)
	}
}
