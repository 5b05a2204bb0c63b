package alerts

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/yardwatch/internal/domain"
)

func ev(i int) domain.AlertEvent {
	return domain.AlertEvent{Level: domain.AlertMedium, Title: fmt.Sprintf("a%d", i), TimestampMs: int64(i)}
}

func TestLog_RecentNewestFirst(t *testing.T) {
	l := NewLog(5)
	for i := 1; i <= 3; i++ {
		l.Append(ev(i))
	}

	got := l.Recent(10)
	require.Len(t, got, 3)
	assert.Equal(t, "a3", got[0].Title)
	assert.Equal(t, "a1", got[2].Title)

	assert.Len(t, l.Recent(2), 2)
	assert.Empty(t, l.Recent(0))
	assert.NotNil(t, l.Recent(0))
}

func TestLog_EvictsOldestWhenFull(t *testing.T) {
	l := NewLog(DefaultCapacity)
	for i := 0; i < 250; i++ {
		l.Append(ev(i))
	}

	assert.Equal(t, DefaultCapacity, l.Len())
	got := l.Recent(DefaultCapacity)
	require.Len(t, got, DefaultCapacity)
	assert.Equal(t, "a249", got[0].Title)
	assert.Equal(t, "a50", got[DefaultCapacity-1].Title)

	assert.Len(t, l.Recent(DefaultRecentLimit), DefaultRecentLimit)
}

func TestLog_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewLog(0).Cap())
	assert.Equal(t, 3, NewLog(3).Cap())
}
