// Package ugoira turns a pixiv frame archive into a looping GIF.
package ugoira

import (
	"archive/zip"
	"context"
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"io"
	"os"
	"sort"

	// frame decoders
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"golang.org/x/image/draw"

	errs "pixivrank/pkg/errors"
	"pixivrank/pkg/logger"
	"pixivrank/pkg/pixiv"
	"pixivrank/pkg/scheduler"
	"pixivrank/pkg/storage"
)

// DefaultDelay is used for frames without a delay, in milliseconds
const DefaultDelay = 100

// MetaSource provides the frame list of an animation
type MetaSource interface {
	UgoiraMeta(ctx context.Context, id int64) (*pixiv.UgoiraMeta, error)
}

// Stager transfers url to a scratch path with the caller's pacing, retries
// and integrity checks
type Stager interface {
	Stage(ctx context.Context, url, path string) error
}

// Submitter runs a task through the request scheduler
type Submitter interface {
	Do(ctx context.Context, weight int, task scheduler.Task) error
}

// Assembler downloads frame archives and encodes them
type Assembler struct {
	meta    MetaSource
	sched   Submitter
	stage   Stager
	store   *storage.Manager
	tempDir string
	log     logger.Logger
}

// NewAssembler creates an assembler. Archives are staged in tempDir, or the
// system temp directory when empty.
func NewAssembler(meta MetaSource, sched Submitter, stage Stager, store *storage.Manager, tempDir string, log logger.Logger) *Assembler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Assembler{
		meta:    meta,
		sched:   sched,
		stage:   stage,
		store:   store,
		tempDir: tempDir,
		log:     log.WithField("component", "ugoira"),
	}
}

// Assemble writes the animation of illust id to dest. The staged archive is
// removed whatever the outcome.
func (a *Assembler) Assemble(ctx context.Context, id int64, dest string) error {
	var meta *pixiv.UgoiraMeta
	err := a.sched.Do(ctx, scheduler.WeightAPI, func(ctx context.Context) error {
		var err error
		meta, err = a.meta.UgoiraMeta(ctx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("ugoira %d metadata: %w", id, err)
	}
	if meta.ArchiveURL() == "" {
		return errs.New(errs.ErrorTypeParsing, 0, "ugoira %d has no archive url", id)
	}

	tmp, err := os.CreateTemp(a.tempDir, fmt.Sprintf("ugoira-%d-*.zip", id))
	if err != nil {
		return fmt.Errorf("failed to stage archive: %w", err)
	}
	archive := tmp.Name()
	tmp.Close()
	defer os.Remove(archive)

	if err := a.stage.Stage(ctx, meta.ArchiveURL(), archive); err != nil {
		return fmt.Errorf("ugoira %d archive: %w", id, err)
	}

	anim, err := Build(archive, meta.Frames)
	if err != nil {
		return fmt.Errorf("ugoira %d: %w", id, err)
	}

	err = a.store.Save(dest, func(w io.Writer) error {
		if err := gif.EncodeAll(w, anim); err != nil {
			return errs.Wrap(errs.ErrorTypeCodec, 0, err, "gif encode failed")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ugoira %d: %w", id, err)
	}

	a.log.DebugWithFields("Ugoira assembled", map[string]interface{}{
		"illust_id": id,
		"frames":    len(anim.Image),
		"path":      dest,
	})
	return nil
}

// Build decodes every frame of the archive at path, in lexicographic entry
// order, and returns an infinitely looping animation. Frame delays come from
// frames by file name, falling back to position, then to DefaultDelay.
func Build(path string, frames []pixiv.UgoiraFrame) (*gif.GIF, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeCodec, 0, err, "failed to open frame archive")
	}
	defer zr.Close()

	entries := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			entries = append(entries, f)
		}
	}
	if len(entries) == 0 {
		return nil, errs.New(errs.ErrorTypeCodec, 0, "frame archive is empty")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	delays := make(map[string]int, len(frames))
	for _, f := range frames {
		delays[f.File] = f.Delay
	}

	anim := &gif.GIF{LoopCount: 0}
	var bounds image.Rectangle
	for i, entry := range entries {
		img, err := decodeEntry(entry)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			bounds = img.Bounds()
		}

		anim.Image = append(anim.Image, quantize(img, bounds))
		anim.Delay = append(anim.Delay, frameDelay(entry.Name, i, delays, frames))
	}
	return anim, nil
}

func decodeEntry(f *zip.File) (image.Image, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeCodec, 0, err, "failed to open frame "+f.Name)
	}
	defer rc.Close()

	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeCodec, 0, err, "failed to decode frame "+f.Name)
	}
	return img, nil
}

// quantize maps img onto the Plan 9 palette with Floyd-Steinberg dithering,
// scaling it first when its size differs from the first frame
func quantize(img image.Image, bounds image.Rectangle) *image.Paletted {
	rect := image.Rect(0, 0, bounds.Dx(), bounds.Dy())
	src := img
	if img.Bounds().Dx() != rect.Dx() || img.Bounds().Dy() != rect.Dy() {
		scaled := image.NewRGBA(rect)
		draw.ApproxBiLinear.Scale(scaled, rect, img, img.Bounds(), draw.Src, nil)
		src = scaled
	}

	out := image.NewPaletted(rect, palette.Plan9)
	draw.FloydSteinberg.Draw(out, rect, src, src.Bounds().Min)
	return out
}

// frameDelay returns the GIF delay in hundredths of a second
func frameDelay(name string, index int, byName map[string]int, frames []pixiv.UgoiraFrame) int {
	ms, ok := byName[name]
	if !ok && index < len(frames) {
		ms, ok = frames[index].Delay, true
	}
	if !ok || ms <= 0 {
		ms = DefaultDelay
	}
	cs := ms / 10
	if cs < 1 {
		cs = 1
	}
	return cs
}
