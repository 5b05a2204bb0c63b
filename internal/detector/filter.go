package detector

import (
	"context"
	"strings"

	"github.com/xela07ax/yardwatch/internal/domain"
)

// Filter оставляет только нужные классы с уверенностью не ниже порога.
// Детекции без класса пропускаются: такие источники фильтруют сами.
type Filter struct {
	next    Source
	classes map[string]struct{}
	minConf float64
}

func NewFilter(next Source, classes []string, minConf float64) (*Filter, error) {
	set := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil, ErrNoClasses
	}
	return &Filter{next: next, classes: set, minConf: minConf}, nil
}

func (f *Filter) Next(ctx context.Context) (domain.Frame, error) {
	frame, err := f.next.Next(ctx)
	if err != nil {
		return frame, err
	}
	kept := frame.Detections[:0:0]
	for _, d := range frame.Detections {
		if f.Accept(d) {
			kept = append(kept, d)
		}
	}
	frame.Detections = kept
	return frame, nil
}

func (f *Filter) Accept(d domain.Detection) bool {
	if d.Class != "" {
		if _, ok := f.classes[strings.ToLower(d.Class)]; !ok {
			return false
		}
	}
	// NaN не проходит сравнение и отбрасывается
	return d.Confidence >= f.minConf
}

// Reset перематывает вложенный источник, если он это умеет.
func (f *Filter) Reset() error {
	if r, ok := f.next.(interface{ Reset() error }); ok {
		return r.Reset()
	}
	return ErrNotRewindable
}

func (f *Filter) Close() error { return f.next.Close() }
