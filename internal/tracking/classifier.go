package tracking

import (
	"fmt"
	"math"
	"time"

	"github.com/xela07ax/yardwatch/internal/domain"
)

const (
	DefaultMoveThreshold  = 0.005
	DefaultStillThreshold = 30 * time.Second
	DefaultLowConfidence  = 0.25
)

type ClassifierConfig struct {
	MoveThreshold  float64       // скорость, начиная с которой трек "em_uso"
	StillThreshold time.Duration // простой, после которого появляется заметка
	LowConfidence  float64       // ниже этого порога — флаг низкой уверенности
}

func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		MoveThreshold:  DefaultMoveThreshold,
		StillThreshold: DefaultStillThreshold,
		LowConfidence:  DefaultLowConfidence,
	}
}

// ClassifyInput — все, что классификатор знает о треке в текущем кадре.
type ClassifyInput struct {
	TrackID     int64
	Speed       float64
	Confidence  float64
	Center      domain.Point
	Inside      bool
	Override    domain.Status
	HasOverride bool
	Now         time.Time
}

type Classification struct {
	Status        domain.Status
	Note          string
	LowConfidence bool
}

// Classify определяет статус трека. Порядок правил:
// базовый статус по скорости -> ручной override -> геозона.
// Сброс таймера простоя идет по сырой скорости, а не по итоговому статусу.
func Classify(in ClassifyInput, cfg ClassifierConfig, idle *IdleTracker) Classification {
	moving := in.Speed >= cfg.MoveThreshold

	status := domain.StatusStopped
	if moving {
		status = domain.StatusInUse
	}
	if in.HasOverride && in.Override.Overridable() {
		status = in.Override
	}
	if !in.Inside {
		status = domain.StatusOutside
	}

	if moving {
		idle.MarkMoved(in.TrackID, in.Now)
	}

	var note string
	if status == domain.StatusStopped {
		idle.Touch(in.TrackID, in.Now)
		if elapsed, ok := idle.Elapsed(in.TrackID, in.Now); ok && !moving && elapsed >= cfg.StillThreshold {
			note = idleNote(elapsed)
		}
	}

	return Classification{
		Status:        status,
		Note:          note,
		LowConfidence: in.Confidence < cfg.LowConfidence,
	}
}

func idleNote(elapsed time.Duration) string {
	secs := int64(math.Floor(elapsed.Seconds()))
	return fmt.Sprintf("Parada há %ds", secs)
}
