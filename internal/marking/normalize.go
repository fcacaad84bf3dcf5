package marking

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Normalize приводит ячейку с кодами маркировки к каноническому виду —
// упорядоченному списку строк. Исторически поле хранилось как попало:
// пустое значение, одиночная строка, список, строковое представление списка.
// Функция тотальна: ошибок не возвращает, для списка идемпотентна.
func Normalize(raw interface{}) []string {
	switch v := raw.(type) {
	case nil:
		return []string{}
	case []string:
		if v == nil {
			return []string{}
		}
		return v
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			} else {
				result = append(result, fmt.Sprint(item))
			}
		}
		return result
	case string:
		if v == "" {
			return []string{}
		}
		// Строка вида "[...]" — возможно, сериализованный список.
		// При неудаче парсинга считаем всю строку одним кодом:
		// настоящий код и сам может содержать скобки
		if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
			var parsed []string
			if err := json.Unmarshal([]byte(v), &parsed); err == nil {
				return parsed
			}
			return []string{v}
		}
		return []string{v}
	default:
		return []string{fmt.Sprint(v)}
	}
}
