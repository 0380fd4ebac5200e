package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

const msgNoPagesRecognized = "No se pudo reconocer ninguna página"

// recognize classifies every page with the vision model, then straightens
// the rotated ones.
func (g *Graph) recognize(ctx context.Context, st State) State {
	started := time.Now()
	logCtx := stageLogger(st, models.StageRecognize)
	if len(st.Pages) == 0 {
		logCtx.Warn("Document has no pages, skipping recognition.")
		return st.WithStop()
	}
	r := g.reporter(st, logCtx)

	if err := r.updateStatus(ctx, models.StatusRecognizing, percent(0), nil, models.StatusEvent{}); err != nil {
		return st.WithErr(externalError(models.StageRecognize, "no se pudo actualizar el estado", err))
	}

	// A re-run must not count classifications left over from an earlier run.
	pages := models.ClonePages(st.Pages)
	for i := range pages {
		pages[i].Recognized = nil
	}
	if err := g.classifyPages(ctx, logCtx, r, pages); err != nil {
		return st.WithErr(err)
	}

	recognized := 0
	for _, p := range pages {
		if p.Recognized != nil {
			recognized++
		}
	}
	if recognized == 0 {
		return st.WithErr(fatalError(models.StageRecognize, msgNoPagesRecognized, nil))
	}
	logCtx.Info("Pages classified.", "total", len(pages), "recognized", recognized)

	g.straighten(ctx, logCtx, pages)

	st = st.WithPages(pages, st.TotalPages).WithTiming(models.StageRecognize, time.Since(started).Seconds()).WithProgress(100)
	if err := r.updateStatus(ctx, models.StatusRecognized, percent(100),
		models.Patch{"pages": pages, "processing_time": st.Timing},
		models.StatusEvent{ProcessingTime: st.Timing},
	); err != nil {
		return st.WithErr(externalError(models.StageRecognize, "no se pudo guardar el reconocimiento", err))
	}
	return st
}

// classifyPages fills Recognized on every page it can. Calls are bounded by
// the concurrency limit and a shared rate limiter. Pages that fail keep a nil
// Recognized; only cancellation fails the whole stage.
func (g *Graph) classifyPages(ctx context.Context, logCtx *slog.Logger, r *reporter, pages []models.Page) error {
	limiter := rate.NewLimiter(rate.Limit(g.opts.RecognitionRate), 1)
	total := len(pages)
	every := max(1, total/20)

	var (
		mu           sync.Mutex
		completed    int
		lastReported int
	)
	done := func() {
		mu.Lock()
		defer mu.Unlock()
		completed++
		if completed%every != 0 && completed != total {
			return
		}
		pct := min(completed*100/total, 99)
		if pct > lastReported {
			lastReported = pct
			r.progress(ctx, models.StatusRecognizing, float64(pct))
		}
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.RecognitionConcurrency)
	for i := range pages {
		eg.Go(func() error {
			defer done()
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			info, err := g.recognizePage(gctx, pages[i])
			if err != nil {
				logCtx.Warn("Failed to recognize page.", "page", pages[i].Number, "kind", KindPartialFailure, "error", err)
				return nil
			}
			pages[i].Recognized = info
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fatalError(models.StageRecognize, "reconocimiento cancelado", err)
	}
	return nil
}

func (g *Graph) recognizePage(ctx context.Context, page models.Page) (*models.RecognizedInfo, error) {
	data, err := g.deps.Blobs.Get(ctx, page.ImagePath)
	if err != nil {
		return nil, err
	}
	info, err := g.deps.Vision.RecognizePage(ctx, models.ImagePart{MIMEType: "image/png", Data: data})
	if err != nil {
		return nil, err
	}
	info.OrientationDegrees = models.NormalizeOrientation(info.OrientationDegrees)
	return info, nil
}

// straighten rotates every page whose content is not upright and overwrites
// its image. Failures leave the page as it was.
func (g *Graph) straighten(ctx context.Context, logCtx *slog.Logger, pages []models.Page) {
	for i := range pages {
		ri := pages[i].Recognized
		if ri == nil || ri.Upright() {
			continue
		}
		if pages[i].RotationDegrees == ri.OrientationDegrees {
			continue
		}
		data, err := g.deps.Blobs.Get(ctx, pages[i].ImagePath)
		if err != nil {
			logCtx.Warn("Failed to read page for rotation.", "page", pages[i].Number, "kind", KindPartialFailure, "error", err)
			continue
		}
		rotated, err := g.deps.Raster.Rotate(data, ri.OrientationDegrees)
		if err != nil {
			logCtx.Warn("Failed to rotate page.", "page", pages[i].Number, "kind", KindPartialFailure, "error", err)
			continue
		}
		if err := g.deps.Blobs.Put(ctx, pages[i].ImagePath, rotated, "image/png"); err != nil {
			logCtx.Warn("Failed to store rotated page.", "page", pages[i].Number, "kind", KindPartialFailure, "error", err)
			continue
		}
		pages[i].RotationDegrees = ri.OrientationDegrees
		logCtx.Info("Rotated page.", "page", pages[i].Number, "degrees", ri.OrientationDegrees)
	}
}
