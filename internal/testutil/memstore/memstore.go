// Package memstore — хранилище сущностей в памяти для тестов.
//
// Повторяет ограничения схемы PostgreSQL: уникальные ключи, каскадное удаление,
// ON DELETE SET NULL для mappings в pipelines и не более одного RUNNING run
// на pipeline. Ошибки те же, что у internal/repo.
package memstore

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/repo"
)

// Store хранит все сущности под одним мьютексом.
type Store struct {
	mu sync.Mutex

	seq   int64
	order map[uuid.UUID]int64

	projects  map[uuid.UUID]domain.Project
	sources   map[uuid.UUID]domain.Source
	datasets  map[uuid.UUID]domain.Dataset
	mappings  map[uuid.UUID]domain.Mapping
	pipelines map[uuid.UUID]domain.Pipeline
	runs      map[uuid.UUID]domain.Run
	samples   map[uuid.UUID][]domain.RunErrorSample

	saveStageErr error
	finishErr    error
	finishFails  int
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		order:     make(map[uuid.UUID]int64),
		projects:  make(map[uuid.UUID]domain.Project),
		sources:   make(map[uuid.UUID]domain.Source),
		datasets:  make(map[uuid.UUID]domain.Dataset),
		mappings:  make(map[uuid.UUID]domain.Mapping),
		pipelines: make(map[uuid.UUID]domain.Pipeline),
		runs:      make(map[uuid.UUID]domain.Run),
		samples:   make(map[uuid.UUID][]domain.RunErrorSample),
	}
}

func (s *Store) Projects() *Projects   { return &Projects{s} }
func (s *Store) Sources() *Sources     { return &Sources{s} }
func (s *Store) Datasets() *Datasets   { return &Datasets{s} }
func (s *Store) Mappings() *Mappings   { return &Mappings{s} }
func (s *Store) Pipelines() *Pipelines { return &Pipelines{s} }
func (s *Store) Runs() *Runs           { return &Runs{s} }

// FailSaveStage заставляет следующие вызовы Runs.SaveStage возвращать err.
// nil снимает сбой.
func (s *Store) FailSaveStage(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveStageErr = err
}

// FailFinish заставляет следующие n вызовов Runs.Finish возвращать err.
// n < 0 — все последующие вызовы.
func (s *Store) FailFinish(err error, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishErr = err
	s.finishFails = n
}

func (s *Store) track(id uuid.UUID) {
	if _, ok := s.order[id]; !ok {
		s.seq++
		s.order[id] = s.seq
	}
}

// sorted возвращает значения map, отсортированные cmpFn, затем по порядку вставки.
func sorted[T any](s *Store, m map[uuid.UUID]T, id func(T) uuid.UUID, keep func(T) bool, cmpFn func(a, b T) int) []T {
	out := []T{}
	for _, v := range m {
		if keep(v) {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b T) int {
		if c := cmpFn(a, b); c != 0 {
			return c
		}
		return cmp.Compare(s.order[id(a)], s.order[id(b)])
	})
	return out
}

func alreadyExists(constraint string) error {
	return fmt.Errorf("%w: %s", repo.ErrAlreadyExists, constraint)
}

func notFound(constraint string) error {
	return fmt.Errorf("%w: %s", repo.ErrNotFound, constraint)
}

// --- cascades (вызываются под s.mu) ---

func (s *Store) deleteProject(id uuid.UUID) {
	for rid, r := range s.runs {
		if r.ProjectID == id {
			s.deleteRun(rid)
		}
	}
	for pid, p := range s.pipelines {
		if p.ProjectID == id {
			s.deletePipeline(pid)
		}
	}
	for mid, m := range s.mappings {
		if m.ProjectID == id {
			s.deleteMapping(mid)
		}
	}
	for did, d := range s.datasets {
		if d.ProjectID == id {
			s.deleteDataset(did)
		}
	}
	for sid, src := range s.sources {
		if src.ProjectID == id {
			s.deleteSource(sid)
		}
	}
	delete(s.projects, id)
}

func (s *Store) deleteSource(id uuid.UUID) {
	for did, d := range s.datasets {
		if d.SourceID != nil && *d.SourceID == id {
			s.deleteDataset(did)
		}
	}
	delete(s.sources, id)
}

func (s *Store) deleteDataset(id uuid.UUID) {
	for mid, m := range s.mappings {
		if m.FromDatasetID == id || m.ToDatasetID == id {
			s.deleteMapping(mid)
		}
	}
	delete(s.datasets, id)
}

func (s *Store) deleteMapping(id uuid.UUID) {
	for pid, p := range s.pipelines {
		changed := false
		if p.SilverMappingID != nil && *p.SilverMappingID == id {
			p.SilverMappingID = nil
			changed = true
		}
		if p.GoldMappingID != nil && *p.GoldMappingID == id {
			p.GoldMappingID = nil
			changed = true
		}
		if changed {
			s.pipelines[pid] = p
		}
	}
	delete(s.mappings, id)
}

func (s *Store) deletePipeline(id uuid.UUID) {
	for rid, r := range s.runs {
		if r.PipelineID == id {
			s.deleteRun(rid)
		}
	}
	delete(s.pipelines, id)
}

func (s *Store) deleteRun(id uuid.UUID) {
	delete(s.samples, id)
	delete(s.runs, id)
}

// --- copies ---

func ptrCopy[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyDataset(d domain.Dataset) domain.Dataset {
	d.SourceID = ptrCopy(d.SourceID)
	d.Schema = slices.Clone(d.Schema)
	d.PrimaryKey = slices.Clone(d.PrimaryKey)
	if d.PrimaryKey == nil {
		d.PrimaryKey = []string{}
	}
	return d
}

func copyMapping(m domain.Mapping) domain.Mapping {
	m.Transforms.Columns = slices.Clone(m.Transforms.Columns)
	m.Transforms.Filters = slices.Clone(m.Transforms.Filters)
	m.DQRules = slices.Clone(m.DQRules)
	if m.DQRules == nil {
		m.DQRules = []domain.DQRule{}
	}
	return m
}

func copyPipeline(p domain.Pipeline) domain.Pipeline {
	p.SilverMappingID = ptrCopy(p.SilverMappingID)
	p.GoldMappingID = ptrCopy(p.GoldMappingID)
	return p
}

func copyRun(r domain.Run) domain.Run {
	r.CompletedStages = slices.Clone(r.CompletedStages)
	r.Logs = slices.Clone(r.Logs)
	r.DQSummary = maps.Clone(r.DQSummary)
	r.RowsSource = ptrCopy(r.RowsSource)
	r.RowsSourceRejected = ptrCopy(r.RowsSourceRejected)
	r.RowsSilver = ptrCopy(r.RowsSilver)
	r.RowsSilverRejected = ptrCopy(r.RowsSilverRejected)
	r.RowsGold = ptrCopy(r.RowsGold)
	r.BronzeSnapshot = ptrCopy(r.BronzeSnapshot)
	r.SilverSnapshot = ptrCopy(r.SilverSnapshot)
	r.GoldSnapshot = ptrCopy(r.GoldSnapshot)
	r.StartedAt = ptrCopy(r.StartedAt)
	r.FinishedAt = ptrCopy(r.FinishedAt)
	return r
}
