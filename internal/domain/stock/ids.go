package stock

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultPrefix = "MAT"

// NormalizeWorkshop приводит код цеха к виду, который входит в идентификатор.
func NormalizeWorkshop(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", invalid("workshop", "is required")
	}
	if strings.Contains(code, "/") {
		return "", invalid("workshop", "must not contain '/'")
	}
	return code, nil
}

// FormatMaterialID: PREFIX/WORKSHOP/NNNNN (номер дополняется нулями до 5 знаков).
func FormatMaterialID(prefix, workshop string, seq int) string {
	return fmt.Sprintf("%s/%s/%05d", prefix, workshop, seq)
}

// ParseMaterialSeq достаёт порядковый номер из идентификатора этого цеха.
func ParseMaterialSeq(prefix, workshop, id string) (int, bool) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 || parts[0] != prefix || parts[1] != workshop {
		return 0, false
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NewReceiptID — идентификатор группы строк: время + случайный суффикс.
// Не обязан быть последовательным.
func NewReceiptID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "R" + now.Format("20060102150405") + "-" + suffix
}

func newMovementID() string { return uuid.NewString() }
