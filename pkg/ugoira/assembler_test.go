package ugoira

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "pixivrank/pkg/errors"
	"pixivrank/pkg/logger"
	"pixivrank/pkg/pixiv"
	"pixivrank/pkg/scheduler"
	"pixivrank/pkg/storage"
)

func solid(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// frameArchive writes entries in the given order, which is deliberately not sorted
func frameArchive(t *testing.T, entries map[string][]byte, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(entries[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testArchive(t *testing.T) []byte {
	return frameArchive(t, map[string][]byte{
		"000000.png": solid(8, 6, color.RGBA{255, 0, 0, 255}),
		"000001.png": solid(8, 6, color.RGBA{0, 255, 0, 255}),
		"000002.png": solid(16, 12, color.RGBA{0, 0, 255, 255}),
	}, []string{"000002.png", "000000.png", "000001.png"})
}

var testFrames = []pixiv.UgoiraFrame{
	{File: "000000.png", Delay: 80},
	{File: "000001.png", Delay: 120},
}

type fakeMeta struct {
	meta *pixiv.UgoiraMeta
	err  error
}

func (m fakeMeta) UgoiraMeta(ctx context.Context, id int64) (*pixiv.UgoiraMeta, error) {
	return m.meta, m.err
}

type fakeFetcher struct {
	data []byte
	err  error
	urls []string
}

func (f *fakeFetcher) Stage(ctx context.Context, url, path string) error {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(path, f.data, 0644)
}

type passthrough struct{ weights []int }

func (p *passthrough) Do(ctx context.Context, weight int, task scheduler.Task) error {
	p.weights = append(p.weights, weight)
	return task(ctx)
}

func TestBuildOrdersFramesAndDelays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.zip")
	require.NoError(t, os.WriteFile(path, testArchive(t), 0644))

	anim, err := Build(path, testFrames)
	require.NoError(t, err)

	require.Len(t, anim.Image, 3)
	assert.Equal(t, []int{8, 12, 10}, anim.Delay)
	assert.Equal(t, 0, anim.LoopCount)
	for _, frame := range anim.Image {
		assert.Equal(t, image.Rect(0, 0, 8, 6), frame.Bounds(), "frames share the first frame's size")
	}
}

func TestBuildRejectsBadArchives(t *testing.T) {
	dir := t.TempDir()

	notZip := filepath.Join(dir, "bad.zip")
	require.NoError(t, os.WriteFile(notZip, []byte("not a zip"), 0644))
	_, err := Build(notZip, nil)
	assert.Equal(t, errs.ErrorTypeCodec, errs.TypeOf(err))

	badFrame := filepath.Join(dir, "frame.zip")
	require.NoError(t, os.WriteFile(badFrame, frameArchive(t,
		map[string][]byte{"000000.jpg": []byte("garbage")}, []string{"000000.jpg"}), 0644))
	_, err = Build(badFrame, nil)
	assert.Equal(t, errs.ErrorTypeCodec, errs.TypeOf(err))

	empty := filepath.Join(dir, "empty.zip")
	require.NoError(t, os.WriteFile(empty, frameArchive(t, nil, nil), 0644))
	_, err = Build(empty, nil)
	assert.Equal(t, errs.ErrorTypeCodec, errs.TypeOf(err))
}

func TestAssemble(t *testing.T) {
	out := t.TempDir()
	staging := t.TempDir()
	store, err := storage.NewManager(out)
	require.NoError(t, err)

	sched := &passthrough{}
	fetch := &fakeFetcher{data: testArchive(t)}
	a := NewAssembler(fakeMeta{meta: &pixiv.UgoiraMeta{
		Src:         "https://i.example/1_ugoira600x600.zip",
		OriginalSrc: "https://i.example/1_ugoira1920x1080.zip",
		Frames:      testFrames,
	}}, sched, fetch, store, staging, logger.NewTestLogger())

	dest := storage.NewLayout(out).Ugoira(false, 1)
	require.NoError(t, a.Assemble(context.Background(), 1, dest))

	assert.Equal(t, []string{"https://i.example/1_ugoira1920x1080.zip"}, fetch.urls)
	assert.Equal(t, []int{scheduler.WeightAPI}, sched.weights)

	f, err := os.Open(dest)
	require.NoError(t, err)
	defer f.Close()
	anim, err := gif.DecodeAll(f)
	require.NoError(t, err)
	assert.Len(t, anim.Image, 3)
	assert.Equal(t, 0, anim.LoopCount)

	leftovers, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, leftovers, "staged archive must be removed")
}

func TestAssembleFailuresCleanUp(t *testing.T) {
	out := t.TempDir()
	staging := t.TempDir()
	store, err := storage.NewManager(out)
	require.NoError(t, err)
	meta := fakeMeta{meta: &pixiv.UgoiraMeta{Src: "https://i.example/2.zip", Frames: testFrames}}
	dest := filepath.Join(out, "2.gif")

	t.Run("download", func(t *testing.T) {
		boom := errs.New(errs.ErrorTypeNetwork, 0, "reset")
		a := NewAssembler(meta, &passthrough{}, &fakeFetcher{err: boom}, store, staging, nil)
		err := a.Assemble(context.Background(), 2, dest)
		assert.True(t, errors.Is(err, boom))
	})

	t.Run("decode", func(t *testing.T) {
		a := NewAssembler(meta, &passthrough{}, &fakeFetcher{data: []byte("junk")}, store, staging, nil)
		err := a.Assemble(context.Background(), 2, dest)
		assert.Equal(t, errs.ErrorTypeCodec, errs.TypeOf(err))
	})

	t.Run("metadata", func(t *testing.T) {
		a := NewAssembler(fakeMeta{err: errs.FromStatus(404, "meta")}, &passthrough{}, &fakeFetcher{}, store, staging, nil)
		err := a.Assemble(context.Background(), 2, dest)
		assert.Equal(t, errs.ErrorTypeNotFound, errs.TypeOf(err))
	})

	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
	leftovers, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFrameDelay(t *testing.T) {
	byName := map[string]int{"a.jpg": 40, "zero.jpg": 0, "tiny.jpg": 5}
	assert.Equal(t, 4, frameDelay("a.jpg", 0, byName, nil))
	assert.Equal(t, 10, frameDelay("zero.jpg", 0, byName, nil))
	assert.Equal(t, 1, frameDelay("tiny.jpg", 0, byName, nil))
	assert.Equal(t, 10, frameDelay("missing.jpg", 5, byName, nil))
	assert.Equal(t, 7, frameDelay("other.jpg", 0, nil, []pixiv.UgoiraFrame{{File: "x", Delay: 70}}))
}
