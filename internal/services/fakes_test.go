package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
	"github.com/Lllllllleong/financialstatementflow/internal/tenant"
)

// memStore keeps documents as JSON, like the Firestore adapter does.
type memStore struct {
	mu        sync.Mutex
	docs      map[string]map[string]any
	nextID    int
	statuses  map[string][]string
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]map[string]any{}, statuses: map[string][]string{}}
}

func (s *memStore) Get(_ context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, models.ErrDocumentNotFound)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	doc.ID = id
	return &doc, nil
}

func (s *memStore) Create(_ context.Context, doc *models.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("doc-%d", s.nextID)
	raw, err := toMap(doc)
	if err != nil {
		return "", err
	}
	s.docs[id] = raw
	s.statuses[id] = append(s.statuses[id], doc.Status)
	return id, nil
}

func (s *memStore) Update(ctx context.Context, id string, patch models.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, models.ErrDocumentNotFound)
	}
	for k, v := range patch {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return err
		}
		raw[k] = decoded
	}
	if status, ok := patch["status"].(string); ok {
		s.statuses[id] = append(s.statuses[id], status)
	}
	return nil
}

// put stores doc under id, replacing what was there.
func (s *memStore) put(t *testing.T, id string, doc *models.Document) {
	t.Helper()
	raw, err := toMap(doc)
	require.NoError(t, err)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = raw
}

func (s *memStore) history(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses[id]...)
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	return out, json.Unmarshal(data, &out)
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}}
}

func (b *memBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) PutIfAbsent(ctx context.Context, key string, data []byte, contentType string) (bool, error) {
	b.mu.Lock()
	_, exists := b.objects[key]
	b.mu.Unlock()
	if exists {
		return false, nil
	}
	return true, b.Put(ctx, key, data, contentType)
}

func (b *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, b.getErr
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return append([]byte(nil), data...), nil
}

type recNotifier struct {
	mu     sync.Mutex
	events []models.StatusEvent
}

func (n *recNotifier) Publish(_ context.Context, _ string, ev models.StatusEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recNotifier) last() models.StatusEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return models.StatusEvent{}
	}
	return n.events[len(n.events)-1]
}

// fakeVision answers by image content. Rendered pages carry "page-N".
type fakeVision struct {
	pages        map[string]models.RecognizedInfo
	recognizeErr map[string]error
	delay        time.Duration

	balance     *models.StatementData
	income      *models.StatementData
	company     *models.CompanyInfo
	balanceErr  error
	incomeErr   error
	companyErr  error
	incomePanic any

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	recognized  atomic.Int32
	extractions atomic.Int32
	companyCall atomic.Int32

	mu            sync.Mutex
	balanceLabels []string
}

func (v *fakeVision) RecognizePage(ctx context.Context, image models.ImagePart) (*models.RecognizedInfo, error) {
	n := v.inFlight.Add(1)
	defer v.inFlight.Add(-1)
	for {
		m := v.maxInFlight.Load()
		if n <= m || v.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	v.recognized.Add(1)
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	key := string(image.Data)
	if err := v.recognizeErr[key]; err != nil {
		return nil, err
	}
	info, ok := v.pages[key]
	if !ok {
		return &models.RecognizedInfo{}, nil
	}
	return &info, nil
}

func (v *fakeVision) ExtractBalance(_ context.Context, _ string, _ []string, images []models.ImagePart) (*models.StatementData, error) {
	v.extractions.Add(1)
	v.mu.Lock()
	for _, img := range images {
		v.balanceLabels = append(v.balanceLabels, img.Label)
	}
	v.mu.Unlock()
	if v.balanceErr != nil {
		return nil, v.balanceErr
	}
	return clone(v.balance), nil
}

func (v *fakeVision) ExtractIncome(_ context.Context, _ string, _ []string, _ []models.ImagePart) (*models.StatementData, error) {
	v.extractions.Add(1)
	if v.incomePanic != nil {
		panic(v.incomePanic)
	}
	if v.incomeErr != nil {
		return nil, v.incomeErr
	}
	return clone(v.income), nil
}

func (v *fakeVision) ExtractCompanyInfo(_ context.Context, _ string, _ []models.ImagePart) (*models.CompanyInfo, error) {
	v.companyCall.Add(1)
	if v.companyErr != nil {
		return nil, v.companyErr
	}
	if v.company == nil {
		return &models.CompanyInfo{}, nil
	}
	c := *v.company
	return &c, nil
}

func clone(d *models.StatementData) *models.StatementData {
	if d == nil {
		return &models.StatementData{}
	}
	c := *d
	c.KeyFigures.Items = append([]models.KeyFigure(nil), d.KeyFigures.Items...)
	return &c
}

// fakeRaster renders page N of any PDF as the bytes "page-N".
type fakeRaster struct {
	pages      int
	inspectErr error
	openErr    error
	failRender map[int]bool
	rotations  atomic.Int32
}

func (r *fakeRaster) Inspect(string) (int, error) {
	return r.pages, r.inspectErr
}

func (r *fakeRaster) Open(string) (PageSource, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	return &fakePages{r: r}, nil
}

func (r *fakeRaster) Rotate(data []byte, degrees int) ([]byte, error) {
	r.rotations.Add(1)
	return []byte(fmt.Sprintf("%s@%d", data, degrees)), nil
}

type fakePages struct{ r *fakeRaster }

func (p *fakePages) RenderPNG(index int) ([]byte, error) {
	if p.r.failRender[index] {
		return nil, errors.New("render failed")
	}
	return []byte(fmt.Sprintf("page-%d", index+1)), nil
}

func (p *fakePages) Close() error { return nil }

type harness struct {
	store    *memStore
	blobs    *memBlobs
	notifier *recNotifier
	vision   *fakeVision
	raster   *fakeRaster
	graph    *Graph
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	registry, err := tenant.NewRegistry(nil, nil)
	require.NoError(t, err)
	h := &harness{
		store:    newMemStore(),
		blobs:    newMemBlobs(),
		notifier: &recNotifier{},
		vision:   &fakeVision{pages: map[string]models.RecognizedInfo{}},
		raster:   &fakeRaster{},
	}
	if opts.RecognitionRate == 0 {
		opts.RecognitionRate = 1000
	}
	h.graph, err = NewGraph(Dependencies{
		Store:    h.store,
		Blobs:    h.blobs,
		Notifier: h.notifier,
		Vision:   h.vision,
		Raster:   h.raster,
		Tenants:  registry,
	}, opts)
	require.NoError(t, err)
	return h
}

// runQueued sends task through a queue and its worker and waits for the result.
func (h *harness) runQueued(t *testing.T, task Task) State {
	t.Helper()
	q := NewQueue()
	w := NewWorker(q, h.graph)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	done := make(chan State, 1)
	task.Done = func(st State) { done <- st }
	require.NoError(t, q.Enqueue(task))
	select {
	case st := <-done:
		return st
	case <-time.After(10 * time.Second):
		t.Fatal("task did not finish")
		return State{}
	}
}

func requester() Requester {
	return Requester{ID: "user-1", Email: "analyst@caucion.com.ar"}
}

func figure(code string, cur, prior float64) models.KeyFigure {
	return models.KeyFigure{ConceptCode: code, CurrentAmount: cur, PriorAmount: prior}
}

func balancedSheet() *models.StatementData {
	return &models.StatementData{
		GeneralInfo: models.GeneralInfo{Company: "ACME SA", CurrentPeriod: "2024-12-31", PriorPeriod: "2023-12-31"},
		KeyFigures: models.KeyFigures{Items: []models.KeyFigure{
			figure("activo_total", 1000, 800),
			figure("activo_corriente", 400, 300),
			figure("activo_no_corriente", 600, 500),
			figure("pasivo_total", 600, 500),
			figure("pasivo_corriente", 200, 200),
			figure("pasivo_no_corriente", 400, 300),
			figure("patrimonio_neto", 400, 300),
			figure("disponibilidades", 100, 50),
			figure("bienes_de_cambio", 150, 100),
		}},
	}
}

func incomeStatement() *models.StatementData {
	return &models.StatementData{
		GeneralInfo: models.GeneralInfo{CurrentPeriod: "2024-12-31", PriorPeriod: "2023-12-31"},
		KeyFigures: models.KeyFigures{Items: []models.KeyFigure{
			figure("ingresos_por_venta", 5000, 4000),
			figure("resultados_antes_de_impuestos", 300, 250),
			figure("resultados_del_ejercicio", 200, 150),
		}},
	}
}

func statusesContain(history []string, want ...string) bool {
	joined := "|" + strings.Join(history, "|") + "|"
	pos := 0
	for _, w := range want {
		i := strings.Index(joined[pos:], "|"+w+"|")
		if i < 0 {
			return false
		}
		pos += i + len(w) + 1
	}
	return true
}
