package repo

import (
	"encoding/json"
	"fmt"
)

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullInt64 возвращает nil для nil-указателя или нуля.
func nullInt64(v *int64) *int64 {
	if v == nil || *v == 0 {
		return nil
	}
	return v
}

// marshalJSON кодирует значение для колонки JSONB. nil-map превращается в {}.
func marshalJSON(field string, v map[string]any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", field, err)
	}
	return data, nil
}

// unmarshalJSON декодирует колонку JSONB в map. NULL даёт nil.
func unmarshalJSON(field string, data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", field, err)
	}
	return out, nil
}

// Page — параметры пагинации.
type Page struct {
	Offset int
	Limit  int
}

// DefaultLimit — размер страницы по умолчанию.
const DefaultLimit = 100

// normalize приводит пагинацию к допустимым значениям.
func (p Page) normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 || p.Limit > 1000 {
		p.Limit = DefaultLimit
	}
	return p
}
