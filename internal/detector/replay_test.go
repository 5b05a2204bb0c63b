package detector

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "detections.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReplay_FramesAndGaps(t *testing.T) {
	path := writeCSV(t, `frame,track_id,x1,y1,x2,y2,confidence,class
10,7,0.40,0.40,0.50,0.50,0.91,motorcycle
10,,0.10,0.10,0.20,0.20,0.55,motorcycle
12,7,0.41,0.40,0.51,0.50,0.90,motorcycle
12,oops,0.41,0.40,0.51,0.50,0.90,motorcycle
`)
	r, err := OpenReplay(path, 0)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 1, r.Skipped())

	ctx := context.Background()
	f1, err := r.Next(ctx)
	require.NoError(t, err)
	require.Len(t, f1.Detections, 2)
	require.NotNil(t, f1.Detections[0].TrackID)
	assert.Equal(t, int64(7), *f1.Detections[0].TrackID)
	assert.Nil(t, f1.Detections[1].TrackID)
	assert.InDelta(t, 0.91, f1.Detections[0].Confidence, 1e-9)

	f2, err := r.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, f2.Detections)
	assert.InDelta(t, float64(time.Second/30), float64(f2.At.Sub(f1.At)), float64(time.Microsecond))

	f3, err := r.Next(ctx)
	require.NoError(t, err)
	assert.Len(t, f3.Detections, 1)
	assert.Equal(t, uint64(3), f3.Seq)

	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, r.Reset())
	again, err := r.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), again.Seq)
	assert.True(t, again.At.After(f1.At) || again.At.Equal(f1.At))
}

func TestReplay_PixelCoordinates(t *testing.T) {
	path := writeCSV(t, `frame,track_id,x1,y1,x2,y2,confidence,class,width,height
1,3,0,360,64,400,0.8,motorbike,1280,720
`)
	r, err := OpenReplay(path, 0)
	require.NoError(t, err)

	f, err := r.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, f.Detections, 1)
	assert.InDeltaSlice(t, []float64{0, 0.5, 0.05, 400.0 / 720}, f.Detections[0].BBox[:], 1e-9)
}

func TestReplay_BadFiles(t *testing.T) {
	_, err := OpenReplay(filepath.Join(t.TempDir(), "missing.csv"), 0)
	assert.Error(t, err)

	_, err = OpenReplay(writeCSV(t, "frame,track_id,x1,y1\n1,2,0.1,0.1\n"), 0)
	assert.ErrorContains(t, err, "x2")

	_, err = OpenReplay(writeCSV(t, "frame,x1,y1,x2,y2\n"), 0)
	assert.Error(t, err)
}

func TestReplay_PacedRespectsContext(t *testing.T) {
	path := writeCSV(t, "frame,x1,y1,x2,y2\n1,0.1,0.1,0.2,0.2\n2,0.1,0.1,0.2,0.2\n")
	r, err := OpenReplay(path, 0.5)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = r.Next(ctx)
	require.NoError(t, err)
	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReplay_Closed(t *testing.T) {
	r, err := OpenReplay(writeCSV(t, "frame,x1,y1,x2,y2\n1,0.1,0.1,0.2,0.2\n"), 0)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, ErrSourceClosed)
	assert.ErrorIs(t, r.Reset(), ErrSourceClosed)
}
