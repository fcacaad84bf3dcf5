package marking

import (
	"regexp"
	"strings"
)

// TokenKind результат классификации отсканированной строки
type TokenKind int

const (
	TokenUnrecognized TokenKind = iota
	TokenBarcode                // Штрихкод товара (EAN-13)
	TokenMarking                // Код маркировки (GS1 DataMatrix)
)

// ScanMode определяет, какой ввод сейчас ожидается от оператора.
// Пустой Enter трактуется по-разному: при наборе кодов маркировки это
// "кодов больше нет, продолжаем", в остальных случаях — ошибка ввода.
type ScanMode int

const (
	AwaitingBarcode ScanMode = iota
	AwaitingMarking
)

// Код маркировки: AI 01 + GTIN (14 цифр) + AI 21 + серийник (1-20 печатных
// ASCII) + опционально AI 91 (4 символа) + AI 92 (криптохвост 44-88 символов)
var markingCodeRe = regexp.MustCompile(`^01(\d{14})21([!-~]{1,20}?)(?:91([!-~]{4}))?(?:92([!-~]{44,88}))?$`)

var gtinRe = regexp.MustCompile(`^01(\d{14})`)

// Артефакты неверного регистра при сканировании: сканер с включенным
// Caps Lock отдает фиксированные сегменты кода в нижнем регистре.
// Такой код бесполезен, отсекаем сразу, чтобы оператор пересканировал
var caseCorruptionMarkers = []string{"91ee11", "91ee10"}

// CanonicalBarcode приводит штрихкод к каноническому виду: убирает
// пробелы и дефисы, которые вставляют сканеры и этикетки. В таблице и
// справочнике штрихкоды хранятся только в этом виде
func CanonicalBarcode(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, " ", "")
}

// IsValidBarcode проверяет штрихкод EAN-13 с контрольной суммой
func IsValidBarcode(s string) bool {
	s = CanonicalBarcode(s)

	if len(s) != 13 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	sum := 0
	for i := 0; i < 12; i++ {
		digit := int(s[i] - '0')
		if i%2 == 1 {
			sum += 3 * digit
		} else {
			sum += digit
		}
	}
	check := (10 - sum%10) % 10
	return check == int(s[12]-'0')
}

// IsValidMarkingCode проверяет код маркировки Честного Знака
func IsValidMarkingCode(s string) bool {
	if s == "" {
		return false
	}
	for _, marker := range caseCorruptionMarkers {
		if strings.Contains(s, marker) {
			return false
		}
	}
	// Сканеры вставляют разделители групп GS (0x1D), убираем их перед проверкой
	s = strings.ReplaceAll(s, "\x1d", "")
	return markingCodeRe.MatchString(s)
}

// ExtractGTIN достает GTIN (14 цифр после AI 01) из кода маркировки.
// Пустая строка, если код не начинается с AI 01
func ExtractGTIN(code string) string {
	code = strings.ReplaceAll(code, "\x1d", "")
	m := gtinRe.FindStringSubmatch(code)
	if m == nil {
		return ""
	}
	return m[1]
}

// Classify определяет тип отсканированного токена.
// Пустой ввод в режиме AwaitingMarking классифицируется как TokenMarking:
// для конвейера набора кодов это сигнал "закончить текущую партию",
// а не мусорный ввод. Во всех остальных режимах пустая строка не распознается.
func Classify(s string, mode ScanMode) TokenKind {
	s = strings.TrimSpace(s)
	if s == "" {
		if mode == AwaitingMarking {
			return TokenMarking
		}
		return TokenUnrecognized
	}
	if IsValidBarcode(s) {
		return TokenBarcode
	}
	if IsValidMarkingCode(s) {
		return TokenMarking
	}
	return TokenUnrecognized
}
