package printer

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Printer — контракт печати этикеток. Сам драйвер принтера и рендеринг
// изображений сюда не входят: конвейеру сборки важен только факт
// успешной отправки на печать.
type Printer interface {
	Print(label []byte, format string) error
}

// SpoolPrinter складывает этикетки в каталог, откуда их забирает
// агент печати на рабочем месте оператора
type SpoolPrinter struct {
	dir string
}

// NewSpoolPrinter создает принтер со спул-каталогом
func NewSpoolPrinter(dir string) (*SpoolPrinter, error) {
	if dir == "" {
		dir = "labels"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool dir: %w", err)
	}
	return &SpoolPrinter{dir: dir}, nil
}

// Print записывает этикетку в спул-каталог
func (p *SpoolPrinter) Print(label []byte, format string) error {
	if len(label) == 0 {
		return fmt.Errorf("empty label")
	}
	name := fmt.Sprintf("label_%d.%s", time.Now().UnixNano(), format)
	path := filepath.Join(p.dir, name)
	if err := os.WriteFile(path, label, 0o644); err != nil {
		return fmt.Errorf("failed to write label: %w", err)
	}
	log.Printf("🖨️ Этикетка отправлена на печать: %s (%d байт)", path, len(label))
	return nil
}
