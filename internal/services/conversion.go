package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

// progressStep is the granularity of conversion progress events, in percent.
const progressStep = 10

// msgNoPagesConverted is shown when a non-empty PDF produced no image at all.
const msgNoPagesConverted = "No se pudo procesar ninguna página"

// convert stores the upload, then renders every page to PNG.
func (g *Graph) convert(ctx context.Context, st State) State {
	started := time.Now()
	sum := sha256.Sum256(st.RawBytes)
	fileHash := hex.EncodeToString(sum[:])

	if st.DocumentID == "" {
		id, err := g.deps.Store.Create(ctx, &models.Document{
			Name:       st.Filename,
			Status:     models.StatusQueued,
			UploadDate: started.UTC(),
			UploadedBy: st.Requester.ID,
			FileHash:   fileHash,
			TenantID:   st.TenantID,
		})
		if err != nil {
			return st.WithErr(externalError(models.StageUploadConvert, "no se pudo crear el documento", err))
		}
		st = st.WithDocumentID(id)
	}
	logCtx := stageLogger(st, models.StageUploadConvert)
	logCtx.Info("Starting upload and conversion.", "filename", st.Filename, "tenantId", st.TenantID)
	r := g.reporter(st, logCtx)

	if err := r.updateStatus(ctx, models.StatusUploading, nil, models.Patch{"tenant_id": st.TenantID, "file_hash": fileHash}, models.StatusEvent{}); err != nil {
		return st.WithErr(externalError(models.StageUploadConvert, "no se pudo actualizar el estado", err))
	}
	uploadPath := fmt.Sprintf("%s/pdf_file/%s", g.blobPrefix(st), filepath.Base(st.Filename))
	created, err := g.deps.Blobs.PutIfAbsent(ctx, uploadPath, st.RawBytes, "application/pdf")
	if err != nil {
		return st.WithErr(externalError(models.StageUploadConvert, "no se pudo guardar el archivo", err))
	}
	logCtx.Info("Stored source PDF.", "uploadPath", uploadPath, "created", created)
	if err := r.updateStatus(ctx, models.StatusUploaded, nil, models.Patch{"upload_path": uploadPath}, models.StatusEvent{}); err != nil {
		return st.WithErr(externalError(models.StageUploadConvert, "no se pudo actualizar el estado", err))
	}

	tempDir, err := os.MkdirTemp("", "statement-*")
	if err != nil {
		return st.WithErr(fatalError(models.StageUploadConvert, "no se pudo crear el directorio temporal", err))
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(sourcePath, st.RawBytes, 0o600); err != nil {
		return st.WithErr(fatalError(models.StageUploadConvert, "no se pudo escribir el archivo temporal", err))
	}
	st = st.WithoutRawBytes()

	pageCount, err := g.deps.Raster.Inspect(sourcePath)
	if err != nil {
		return st.WithErr(fatalError(models.StageUploadConvert, "el archivo no es un PDF legible", err))
	}

	if pageCount == 0 {
		logCtx.Warn("PDF has no pages.")
		st = st.WithPages(nil, 0).WithTiming(models.StageUploadConvert, time.Since(started).Seconds()).WithProgress(100)
		if err := r.updateStatus(ctx, models.StatusConverted, percent(100),
			models.Patch{"page_count": 0, "pages": []models.Page{}, "processing_time": st.Timing},
			models.StatusEvent{PageCount: intPtr(0), ProcessingTime: st.Timing},
		); err != nil {
			return st.WithErr(externalError(models.StageUploadConvert, "no se pudo actualizar el estado", err))
		}
		return st
	}

	if err := r.updateStatus(ctx, models.StatusConverting, percent(0), nil, models.StatusEvent{}); err != nil {
		return st.WithErr(externalError(models.StageUploadConvert, "no se pudo actualizar el estado", err))
	}

	pages, err := g.renderPages(ctx, logCtx, r, st, sourcePath, pageCount)
	if err != nil {
		return st.WithErr(err)
	}
	if len(pages) == 0 {
		return st.WithErr(fatalError(models.StageUploadConvert, msgNoPagesConverted, nil))
	}

	st = st.WithPages(pages, pageCount).WithTiming(models.StageUploadConvert, time.Since(started).Seconds()).WithProgress(100)
	if err := r.updateStatus(ctx, models.StatusConverted, percent(100),
		models.Patch{"pages": pages, "page_count": pageCount, "processing_time": st.Timing},
		models.StatusEvent{PageCount: intPtr(pageCount), ProcessingTime: st.Timing},
	); err != nil {
		return st.WithErr(externalError(models.StageUploadConvert, "no se pudo guardar las páginas", err))
	}
	logCtx.Info("Conversion complete.", "pageCount", pageCount, "converted", len(pages))
	return st
}

// renderPages renders pages batch by batch. Rendering is sequential; the
// uploads of a batch run concurrently. Failed pages are logged and skipped.
func (g *Graph) renderPages(ctx context.Context, logCtx *slog.Logger, r *reporter, st State, sourcePath string, pageCount int) ([]models.Page, error) {
	src, err := g.deps.Raster.Open(sourcePath)
	if err != nil {
		return nil, fatalError(models.StageUploadConvert, "no se pudo abrir el PDF", err)
	}
	defer src.Close()

	prefix := g.blobPrefix(st)
	pages := make([]models.Page, 0, pageCount)
	nextThreshold, lastReported := progressStep, 0

	for first := 0; first < pageCount; first += g.opts.RasterBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, fatalError(models.StageUploadConvert, "conversión cancelada", err)
		}
		last := min(first+g.opts.RasterBatchSize, pageCount)
		logCtx.Info("Converting page batch.", "from", first+1, "to", last)

		batch := make([]models.Page, 0, last-first)
		images := make([][]byte, 0, last-first)
		for i := first; i < last; i++ {
			data, err := src.RenderPNG(i)
			if err != nil {
				logCtx.Warn("Failed to render page, skipping it.", "page", i+1, "kind", KindPartialFailure, "error", err)
				continue
			}
			name := fmt.Sprintf("page_%03d.png", i+1)
			batch = append(batch, models.Page{
				ID:        uuid.NewString(),
				Name:      name,
				Number:    i + 1,
				ImagePath: prefix + "/images/" + name,
			})
			images = append(images, data)
		}

		stored := make([]bool, len(batch))
		var eg errgroup.Group
		for j := range batch {
			eg.Go(func() error {
				if err := g.deps.Blobs.Put(ctx, batch[j].ImagePath, images[j], "image/png"); err != nil {
					logCtx.Warn("Failed to store page image, skipping it.", "page", batch[j].Number, "kind", KindPartialFailure, "error", err)
					return nil
				}
				stored[j] = true
				return nil
			})
		}
		_ = eg.Wait()
		for j, p := range batch {
			if stored[j] {
				pages = append(pages, p)
			}
		}

		current := min(last*100/pageCount, 99)
		if current >= nextThreshold && current > lastReported {
			r.progress(ctx, models.StatusConverting, float64(current))
			lastReported = current
			nextThreshold = min(int(math.Ceil(float64(current+1)/progressStep))*progressStep, 100)
		}
	}
	return pages, nil
}
