package domain

// MotoView — одноразовая проекция трека на текущий кадр (не TrackState).
type MotoView struct {
	ID         int64   `json:"id"`
	Status     Status  `json:"status"`
	Confidence float64 `json:"conf"`
	CenterX    float64 `json:"cx"`
	CenterY    float64 `json:"cy"`
	Area       float64 `json:"area"`
	Note       string  `json:"note"`
}

// StatusTotals пересчитываются целиком на каждый кадр.
type StatusTotals struct {
	EmUso      int `json:"em_uso"`
	Parada     int `json:"parada"`
	Manutencao int `json:"manutencao"`
	ForaDaArea int `json:"fora_da_area"`
	Total      int `json:"total"`
}

func (t *StatusTotals) Add(s Status) {
	switch s {
	case StatusInUse:
		t.EmUso++
	case StatusStopped:
		t.Parada++
	case StatusMaintenance:
		t.Manutencao++
	case StatusOutside:
		t.ForaDaArea++
	}
}

func (t StatusTotals) Count(s Status) int {
	switch s {
	case StatusInUse:
		return t.EmUso
	case StatusStopped:
		return t.Parada
	case StatusMaintenance:
		return t.Manutencao
	case StatusOutside:
		return t.ForaDaArea
	}
	return 0
}

// Sum — сумма по статусам; для любого снимка равна Total.
func (t StatusTotals) Sum() int {
	return t.EmUso + t.Parada + t.Manutencao + t.ForaDaArea
}

// Zone — статичная разметка двора для отрисовки на фронте.
type Zone struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
	W float64 `json:"w" mapstructure:"w"`
	H float64 `json:"h" mapstructure:"h"`
}

// Snapshot публикуется атомарно и после публикации не изменяется.
type Snapshot struct {
	Motos  []MotoView   `json:"motos"`
	Alerts []AlertEvent `json:"alerts"`
	Totals StatusTotals `json:"totals"`
	Zones  []Zone       `json:"zones"`
}

// EmptySnapshot — снимок до первого кадра: пустые массивы, а не null.
func EmptySnapshot(zones []Zone) Snapshot {
	z := make([]Zone, len(zones))
	copy(z, zones)
	return Snapshot{
		Motos:  []MotoView{},
		Alerts: []AlertEvent{},
		Zones:  z,
	}
}

const MessageTypeSnapshot = "snapshot"

// SnapshotMessage — конверт широковещательной рассылки.
type SnapshotMessage struct {
	Type    string   `json:"type"`
	Payload Snapshot `json:"payload"`
}
