package rasterizer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/pathway"
)

type fakeDoc struct {
	pages   []*image.RGBA
	failAt  int
	closed  bool
	lastDPI float64
}

func (d *fakeDoc) NumPage() int { return len(d.pages) }

func (d *fakeDoc) ImageDPI(n int, dpi float64) (*image.RGBA, error) {
	d.lastDPI = dpi
	if d.failAt > 0 && n+1 == d.failAt {
		return nil, errors.New("corrupt page")
	}
	return d.pages[n], nil
}

func (d *fakeDoc) Close() error {
	d.closed = true
	return nil
}

type memRecorder struct {
	events []pathway.Event
}

func (m *memRecorder) Record(_ context.Context, ev pathway.Event) error {
	m.events = append(m.events, ev)
	return nil
}

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	return img
}

func TestFitScalesAndCropsTall(t *testing.T) {
	out := Fit(solid(200, 400), 100, 60)
	assert.Equal(t, image.Rect(0, 0, 100, 60), out.Bounds())
}

// twoTone is red above split and blue from split down.
func twoTone(w, h, split int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		c := color.RGBA{R: 220, G: 0, B: 0, A: 255}
		if y >= split {
			c = color.RGBA{R: 0, G: 0, B: 220, A: 255}
		}
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func isRed(c color.Color) bool {
	r, _, b, _ := c.RGBA()
	return r>>8 > 180 && b>>8 < 40
}

func isBlue(c color.Color) bool {
	r, _, b, _ := c.RGBA()
	return b>>8 > 180 && r>>8 < 40
}

func TestFitCropKeepsTopRows(t *testing.T) {
	// 200x400 scales to 100x200; the red band covers the first 100 rows.
	out := Fit(twoTone(200, 400, 200), 100, 60)
	require.Equal(t, image.Rect(0, 0, 100, 60), out.Bounds())
	for y := 0; y < 60; y++ {
		for _, x := range []int{0, 50, 99} {
			require.True(t, isRed(out.At(x, y)), "pixel (%d,%d) = %v", x, y, out.At(x, y))
		}
	}
}

func TestFitCropDropsBottomRows(t *testing.T) {
	out := Fit(twoTone(200, 400, 200), 100, 150)
	require.Equal(t, image.Rect(0, 0, 100, 150), out.Bounds())
	assert.True(t, isRed(out.At(50, 10)))
	assert.True(t, isBlue(out.At(50, 140)))

	full := Fit(twoTone(200, 400, 200), 100, 648)
	require.Equal(t, 200, full.Bounds().Dy())
	assert.True(t, isBlue(full.At(50, 199)))
}

func TestFitKeepsShortImages(t *testing.T) {
	out := Fit(solid(400, 100), 200, 648)
	assert.Equal(t, 200, out.Bounds().Dx())
	assert.Equal(t, 50, out.Bounds().Dy())
}

func TestFitUpscalesNarrowPages(t *testing.T) {
	out := Fit(solid(50, 20), 100, 648)
	assert.Equal(t, image.Rect(0, 0, 100, 40), out.Bounds())
}

func setup(t *testing.T, docs map[string]*fakeDoc) (*Rasterizer, *memRecorder, string) {
	t.Helper()
	root := t.TempDir()
	pdfDir := filepath.Join(root, pathway.PDFDir)
	require.NoError(t, os.MkdirAll(pdfDir, 0o755))
	for name := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(pdfDir, name), []byte("%PDF-1.4"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(pdfDir, "notes.txt"), []byte("x"), 0o644))

	rec := &memRecorder{}
	r := New(Options{PDFDir: pdfDir, OutputDir: filepath.Join(root, pathway.ImageDir), TargetWidth: 100, TargetHeight: 60},
		zerolog.New(io.Discard), io.Discard, rec)
	r.open = func(path string) (PageSource, error) {
		d, ok := docs[filepath.Base(path)]
		if !ok {
			return nil, errors.New("unexpected file " + path)
		}
		return d, nil
	}
	return r, rec, root
}

func TestRunWritesPagesPerDocument(t *testing.T) {
	doc := &fakeDoc{pages: []*image.RGBA{solid(200, 400), solid(200, 100)}}
	r, rec, root := setup(t, map[string]*fakeDoc{"Sepsis-v2.pdf": doc})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Pages: 2}, res)
	assert.True(t, doc.closed)
	assert.Equal(t, float64(DefaultDPI), doc.lastDPI)

	f, err := os.Open(filepath.Join(root, pathway.ImageDir, "Sepsis-v2", "pg1.png"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 60), img.Bounds())

	_, err = os.Stat(filepath.Join(root, pathway.ImageDir, "Sepsis-v2", "pg2.png"))
	assert.NoError(t, err)

	require.Len(t, rec.events, 1)
	assert.Equal(t, pathway.OutcomeSuccess, rec.events[0].Outcome)
	assert.Equal(t, "Sepsis-v2", rec.events[0].Document)
}

func TestRunContinuesAfterFailure(t *testing.T) {
	bad := &fakeDoc{pages: []*image.RGBA{solid(10, 10), solid(10, 10)}, failAt: 2}
	good := &fakeDoc{pages: []*image.RGBA{solid(10, 10)}}
	r, rec, _ := setup(t, map[string]*fakeDoc{"a.PDF": bad, "b.pdf": good})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Pages)
	assert.True(t, bad.closed)

	require.Len(t, rec.events, 2)
	assert.Equal(t, pathway.OutcomeFailed, rec.events[0].Outcome)
	assert.Contains(t, rec.events[0].Detail, "render page 2")
}

func TestRunMissingFolder(t *testing.T) {
	r := New(Options{PDFDir: filepath.Join(t.TempDir(), "absent"), OutputDir: t.TempDir()}, zerolog.New(io.Discard), nil, nil)
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestRunStopsOnCancel(t *testing.T) {
	doc := &fakeDoc{pages: []*image.RGBA{solid(10, 10)}}
	r, _, _ := setup(t, map[string]*fakeDoc{"a.pdf": doc})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
