package detector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMQTT_PushDecodesFrames(t *testing.T) {
	m := newMQTT(MQTTConfig{Topic: "yard/cam1/detections", Buffer: 1}, zap.NewNop())

	m.push([]byte(`{"seq":9,"ts":1700000000000,"detections":[{"track_id":3,"bbox":[0.1,0.1,0.2,0.2],"confidence":0.7,"class":"motorcycle"}]}`))
	m.push([]byte(`not json`))
	m.push([]byte(`{"seq":10,"detections":[]}`)) // буфер полон, кадр выброшен

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	f, err := m.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), f.Seq)
	assert.Equal(t, time.UnixMilli(1_700_000_000_000), f.At)
	require.Len(t, f.Detections, 1)
	assert.Equal(t, int64(3), *f.Detections[0].TrackID)

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	_, err = m.Next(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, m.Close())
	_, err = m.Next(ctx)
	assert.ErrorIs(t, err, ErrSourceClosed)
}

func TestConnectMQTT_RequiresTopic(t *testing.T) {
	_, err := ConnectMQTT(MQTTConfig{Broker: "tcp://127.0.0.1:1883"}, nil)
	assert.Error(t, err)
}
