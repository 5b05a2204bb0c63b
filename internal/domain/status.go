package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Status — итоговое состояние мотоцикла в кадре.
type Status string

const (
	StatusInUse       Status = "em_uso"       // Движется
	StatusStopped     Status = "parada"       // Стоит
	StatusMaintenance Status = "manutencao"   // Выставлено оператором
	StatusOutside     Status = "fora_da_area" // Центр вне геозоны
)

var ErrInvalidStatus = errors.New("invalid status")

// AllStatuses фиксирует порядок статусов для метрик и итогов.
var AllStatuses = []Status{StatusInUse, StatusStopped, StatusMaintenance, StatusOutside}

func (s Status) Valid() bool {
	switch s {
	case StatusInUse, StatusStopped, StatusMaintenance, StatusOutside:
		return true
	}
	return false
}

// Overridable — можно ли выставить статус вручную. fora_da_area выводится
// только из геозоны.
func (s Status) Overridable() bool {
	return s.Valid() && s != StatusOutside
}

// ParseStatus нормализует ввод оператора. Неизвестные значения отклоняются,
// чтобы в снимок не попал статус вне перечисления.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// ParseOverride — ParseStatus для ручных статусов.
func ParseOverride(raw string) (Status, error) {
	s, err := ParseStatus(raw)
	if err != nil {
		return "", err
	}
	if !s.Overridable() {
		return "", fmt.Errorf("%w: %q is derived from the geofence", ErrInvalidStatus, raw)
	}
	return s, nil
}
