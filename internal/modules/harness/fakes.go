package harness

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/reusedev/gen-hub/internal/modules/model"
	"github.com/reusedev/gen-hub/internal/modules/provider"
)

// The fakes below implement the same collaborator interfaces production
// uses, so the harness exercises the real orchestrator and ledger rather
// than a parallel mock pipeline.

type FakeProvider struct {
	Cost     float64
	Delay    time.Duration
	FailMode map[consts.Mode]error

	mu      sync.Mutex
	calls   int
	lastJob provider.Job
}

func (p *FakeProvider) Generate(ctx context.Context, job provider.Job) (*provider.Result, error) {
	p.mu.Lock()
	p.calls++
	p.lastJob = job
	p.mu.Unlock()
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := p.FailMode[job.Mode]; ok && err != nil {
		return nil, err
	}
	return &provider.Result{
		Outputs:      []string{"fake://output/" + job.GenerationId},
		Cost:         p.Cost,
		ProcessingMs: 5,
	}, nil
}

func (p *FakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// LastJob returns the most recent job the provider received.
func (p *FakeProvider) LastJob() provider.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastJob
}

type FakeEnhancer struct {
	Err error
}

func (e *FakeEnhancer) Enhance(ctx context.Context, prompt string) (string, error) {
	if e.Err != nil {
		return "", e.Err
	}
	return prompt + ", richly detailed", nil
}

// FakeArtifacts is an in-memory object store.
type FakeArtifacts struct {
	FetchErr error
	PutErr   error

	mu      sync.Mutex
	objects map[string][]byte
	counter int
}

func NewFakeArtifacts() *FakeArtifacts {
	return &FakeArtifacts{objects: make(map[string][]byte)}
}

func (a *FakeArtifacts) Fetch(ctx context.Context, url string) ([]byte, error) {
	if a.FetchErr != nil {
		return nil, a.FetchErr
	}
	return []byte("artifact-bytes:" + url), nil
}

func (a *FakeArtifacts) Put(ctx context.Context, b []byte) (string, error) {
	if a.PutErr != nil {
		return "", a.PutErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counter++
	key := fmt.Sprintf("artifacts/fake-%d.png", a.counter)
	a.objects[key] = b
	return key, nil
}

func (a *FakeArtifacts) PutThumbnail(ctx context.Context, artifactKey string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	key := artifactKey + ".thumb.jpg"
	a.mu.Lock()
	a.objects[key] = b
	a.mu.Unlock()
	return key, nil
}

func (a *FakeArtifacts) URL(key string, expire time.Duration) (string, error) {
	return "https://fake.storage/" + key, nil
}

// Get mirrors the durable-store read used to prove artifact durability.
func (a *FakeArtifacts) Get(key string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.objects[key]
	return b, ok
}

// FakeMetadata is an in-memory relational store.
type FakeMetadata struct {
	CreateRequestErr  error
	SaveGenerationErr error

	mu          sync.Mutex
	requests    map[string]*model.GenerationRequest
	generations map[string]*model.Generation
	gallery     map[string]*model.GalleryItem
}

func NewFakeMetadata() *FakeMetadata {
	return &FakeMetadata{
		requests:    make(map[string]*model.GenerationRequest),
		generations: make(map[string]*model.Generation),
		gallery:     make(map[string]*model.GalleryItem),
	}
}

func (m *FakeMetadata) CreateRequest(req *model.GenerationRequest) error {
	if m.CreateRequestErr != nil {
		return m.CreateRequestErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.GenerationId] = req
	return nil
}

func (m *FakeMetadata) SaveGeneration(gen *model.Generation) error {
	if m.SaveGenerationErr != nil {
		return m.SaveGenerationErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations[gen.GenerationId] = gen
	return nil
}

func (m *FakeMetadata) UpdateGenerationStatus(generationId, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen, ok := m.generations[generationId]; ok {
		gen.RunStatus = status
	}
	return nil
}

func (m *FakeMetadata) CreateGalleryItem(item *model.GalleryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gallery[item.GenerationId] = item
	return nil
}

func (m *FakeMetadata) Generation(generationId string) (*model.Generation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.generations[generationId]
	return gen, ok
}

// MemoryCostStore backs the real ledger in self-checks and tests.
type MemoryCostStore struct {
	mu      sync.Mutex
	records map[string]*model.CostRecord
	limits  map[string]*model.SpendingLimits
}

func NewMemoryCostStore() *MemoryCostStore {
	return &MemoryCostStore{
		records: make(map[string]*model.CostRecord),
		limits:  make(map[string]*model.SpendingLimits),
	}
}

func (s *MemoryCostStore) Create(rec *model.CostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.Id] = &cp
	return nil
}

func (s *MemoryCostStore) ById(id string) (*model.CostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("cost record %s not found", id)
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryCostStore) ByGenerationId(generationId string) (*model.CostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.GenerationId == generationId {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryCostStore) Update(rec *model.CostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Id]; !ok {
		return fmt.Errorf("cost record %s not found", rec.Id)
	}
	cp := *rec
	s.records[rec.Id] = &cp
	return nil
}

func (s *MemoryCostStore) SumSince(userId string, since time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, rec := range s.records {
		if rec.UserId == userId && rec.CountsTowardSpend() && !rec.CreatedAt.Before(since) {
			total += rec.Amount()
		}
	}
	return total, nil
}

func (s *MemoryCostStore) Limits(userId string) (*model.SpendingLimits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limits, ok := s.limits[userId]; ok {
		cp := *limits
		return &cp, nil
	}
	return &model.SpendingLimits{UserId: userId}, nil
}

func (s *MemoryCostStore) SaveLimits(limits *model.SpendingLimits) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *limits
	s.limits[limits.UserId] = &cp
	return nil
}

// RecordCount reports ledger rows for a user, for report assertions.
func (s *MemoryCostStore) RecordCount(userId string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.UserId == userId {
			n++
		}
	}
	return n
}
