package memstore

import (
	"cmp"
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/repo"
)

// Projects — аналог repo.ProjectRepo.
type Projects struct{ s *Store }

func (r *Projects) Create(ctx context.Context, p *domain.Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.projects {
		if existing.ID == p.ID || existing.Slug == p.Slug {
			return alreadyExists("projects_slug_key")
		}
	}
	s.projects[p.ID] = *p
	s.track(p.ID)
	return nil
}

func (r *Projects) GetByID(_ context.Context, id uuid.UUID) (*domain.Project, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &p, nil
}

func (r *Projects) GetBySlug(_ context.Context, slug string) (*domain.Project, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.projects {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *Projects) List(_ context.Context) ([]domain.Project, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	return sorted(s, s.projects,
		func(p domain.Project) uuid.UUID { return p.ID },
		func(domain.Project) bool { return true },
		func(a, b domain.Project) int { return b.CreatedAt.Compare(a.CreatedAt) },
	), nil
}

func (r *Projects) Delete(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return repo.ErrNotFound
	}
	s.deleteProject(id)
	return nil
}

// Sources — аналог repo.SourceRepo.
type Sources struct{ s *Store }

func (r *Sources) Create(_ context.Context, src *domain.Source) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[src.ProjectID]; !ok {
		return notFound("sources_project_id_fkey")
	}
	if _, ok := s.sources[src.ID]; ok {
		return alreadyExists("sources_pkey")
	}
	if s.sourceNameTaken(src.ProjectID, src.Name, src.ID) {
		return alreadyExists("sources_project_name_key")
	}
	s.sources[src.ID] = *src
	s.track(src.ID)
	return nil
}

func (s *Store) sourceNameTaken(projectID uuid.UUID, name string, self uuid.UUID) bool {
	for _, existing := range s.sources {
		if existing.ID != self && existing.ProjectID == projectID && existing.Name == name {
			return true
		}
	}
	return false
}

func (r *Sources) GetByID(_ context.Context, projectID, id uuid.UUID) (*domain.Source, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[id]
	if !ok || src.ProjectID != projectID {
		return nil, repo.ErrNotFound
	}
	src.Config.HasHeader = ptrCopy(src.Config.HasHeader)
	return &src, nil
}

func (r *Sources) List(_ context.Context, projectID uuid.UUID) ([]domain.Source, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	return sorted(s, s.sources,
		func(v domain.Source) uuid.UUID { return v.ID },
		func(v domain.Source) bool { return v.ProjectID == projectID },
		func(a, b domain.Source) int { return strings.Compare(a.Name, b.Name) },
	), nil
}

func (r *Sources) Update(_ context.Context, src *domain.Source) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sources[src.ID]
	if !ok || existing.ProjectID != src.ProjectID {
		return repo.ErrNotFound
	}
	if s.sourceNameTaken(src.ProjectID, src.Name, src.ID) {
		return alreadyExists("sources_project_name_key")
	}
	existing.Name = src.Name
	existing.URI = src.URI
	existing.Config = src.Config
	existing.UpdatedAt = src.UpdatedAt
	s.sources[src.ID] = existing
	return nil
}

func (r *Sources) Delete(_ context.Context, projectID, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[id]
	if !ok || src.ProjectID != projectID {
		return repo.ErrNotFound
	}
	s.deleteSource(id)
	return nil
}

// Datasets — аналог repo.DatasetRepo.
type Datasets struct{ s *Store }

var layerOrder = map[domain.Layer]int{
	domain.LayerBronze: 0,
	domain.LayerSilver: 1,
	domain.LayerGold:   2,
}

func (s *Store) datasetByKey(projectID uuid.UUID, layer domain.Layer, name string) (domain.Dataset, bool) {
	for _, d := range s.datasets {
		if d.ProjectID == projectID && d.Layer == layer && d.Name == name {
			return d, true
		}
	}
	return domain.Dataset{}, false
}

func (s *Store) checkDatasetRefs(d *domain.Dataset) error {
	if _, ok := s.projects[d.ProjectID]; !ok {
		return notFound("datasets_project_id_fkey")
	}
	if d.SourceID != nil {
		if _, ok := s.sources[*d.SourceID]; !ok {
			return notFound("datasets_source_id_fkey")
		}
	}
	return nil
}

func (r *Datasets) Create(_ context.Context, d *domain.Dataset) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDatasetRefs(d); err != nil {
		return err
	}
	if _, ok := s.datasets[d.ID]; ok {
		return alreadyExists("datasets_pkey")
	}
	if _, ok := s.datasetByKey(d.ProjectID, d.Layer, d.Name); ok {
		return alreadyExists("datasets_project_layer_name_key")
	}
	s.datasets[d.ID] = copyDataset(*d)
	s.track(d.ID)
	return nil
}

func (r *Datasets) Upsert(_ context.Context, d *domain.Dataset) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDatasetRefs(d); err != nil {
		return err
	}
	if existing, ok := s.datasetByKey(d.ProjectID, d.Layer, d.Name); ok {
		existing.SourceID = ptrCopy(d.SourceID)
		existing.Schema = d.Schema
		existing.PrimaryKey = d.PrimaryKey
		existing.UpdatedAt = d.UpdatedAt
		s.datasets[existing.ID] = copyDataset(existing)
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
		return nil
	}
	s.datasets[d.ID] = copyDataset(*d)
	s.track(d.ID)
	return nil
}

func (r *Datasets) GetByID(_ context.Context, projectID, id uuid.UUID) (*domain.Dataset, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.datasets[id]
	if !ok || d.ProjectID != projectID {
		return nil, repo.ErrNotFound
	}
	d = copyDataset(d)
	return &d, nil
}

func (r *Datasets) GetByName(_ context.Context, projectID uuid.UUID, layer domain.Layer, name string) (*domain.Dataset, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.datasetByKey(projectID, layer, name)
	if !ok {
		return nil, repo.ErrNotFound
	}
	d = copyDataset(d)
	return &d, nil
}

func (r *Datasets) GetBySource(_ context.Context, projectID, sourceID uuid.UUID) (*domain.Dataset, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	found := sorted(s, s.datasets,
		func(d domain.Dataset) uuid.UUID { return d.ID },
		func(d domain.Dataset) bool {
			return d.ProjectID == projectID && d.Layer == domain.LayerBronze &&
				d.SourceID != nil && *d.SourceID == sourceID
		},
		func(a, b domain.Dataset) int { return a.CreatedAt.Compare(b.CreatedAt) },
	)
	if len(found) == 0 {
		return nil, repo.ErrNotFound
	}
	d := copyDataset(found[0])
	return &d, nil
}

func (r *Datasets) List(_ context.Context, projectID uuid.UUID, layer domain.Layer) ([]domain.Dataset, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	list := sorted(s, s.datasets,
		func(d domain.Dataset) uuid.UUID { return d.ID },
		func(d domain.Dataset) bool { return d.ProjectID == projectID && (layer == "" || d.Layer == layer) },
		func(a, b domain.Dataset) int {
			if c := cmp.Compare(layerOrder[a.Layer], layerOrder[b.Layer]); c != 0 {
				return c
			}
			return strings.Compare(a.Name, b.Name)
		},
	)
	for i := range list {
		list[i] = copyDataset(list[i])
	}
	return list, nil
}

func (r *Datasets) Update(_ context.Context, d *domain.Dataset) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.datasets[d.ID]
	if !ok || existing.ProjectID != d.ProjectID {
		return repo.ErrNotFound
	}
	if other, ok := s.datasetByKey(d.ProjectID, existing.Layer, d.Name); ok && other.ID != d.ID {
		return alreadyExists("datasets_project_layer_name_key")
	}
	existing.Name = d.Name
	existing.Schema = d.Schema
	existing.PrimaryKey = d.PrimaryKey
	existing.UpdatedAt = d.UpdatedAt
	s.datasets[d.ID] = copyDataset(existing)
	return nil
}

func (r *Datasets) Delete(_ context.Context, projectID, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.datasets[id]
	if !ok || d.ProjectID != projectID {
		return repo.ErrNotFound
	}
	s.deleteDataset(id)
	return nil
}

// Mappings — аналог repo.MappingRepo.
type Mappings struct{ s *Store }

func (s *Store) mappingByPair(projectID, from, to uuid.UUID) (domain.Mapping, bool) {
	for _, m := range s.mappings {
		if m.ProjectID == projectID && m.FromDatasetID == from && m.ToDatasetID == to {
			return m, true
		}
	}
	return domain.Mapping{}, false
}

func (s *Store) checkMappingRefs(m *domain.Mapping) error {
	if _, ok := s.projects[m.ProjectID]; !ok {
		return notFound("mappings_project_id_fkey")
	}
	if _, ok := s.datasets[m.FromDatasetID]; !ok {
		return notFound("mappings_from_dataset_id_fkey")
	}
	if _, ok := s.datasets[m.ToDatasetID]; !ok {
		return notFound("mappings_to_dataset_id_fkey")
	}
	return nil
}

func (r *Mappings) Upsert(_ context.Context, m *domain.Mapping) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMappingRefs(m); err != nil {
		return err
	}
	if existing, ok := s.mappingByPair(m.ProjectID, m.FromDatasetID, m.ToDatasetID); ok {
		existing.Transforms = m.Transforms
		existing.DQRules = m.DQRules
		existing.UpdatedAt = m.UpdatedAt
		s.mappings[existing.ID] = copyMapping(existing)
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
		return nil
	}
	s.mappings[m.ID] = copyMapping(*m)
	s.track(m.ID)
	return nil
}

func (r *Mappings) GetByID(_ context.Context, projectID, id uuid.UUID) (*domain.Mapping, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mappings[id]
	if !ok || m.ProjectID != projectID {
		return nil, repo.ErrNotFound
	}
	m = copyMapping(m)
	return &m, nil
}

func (r *Mappings) List(_ context.Context, projectID uuid.UUID) ([]domain.Mapping, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	list := sorted(s, s.mappings,
		func(m domain.Mapping) uuid.UUID { return m.ID },
		func(m domain.Mapping) bool { return m.ProjectID == projectID },
		func(a, b domain.Mapping) int { return a.CreatedAt.Compare(b.CreatedAt) },
	)
	for i := range list {
		list[i] = copyMapping(list[i])
	}
	return list, nil
}

func (r *Mappings) Update(_ context.Context, m *domain.Mapping) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.mappings[m.ID]
	if !ok || existing.ProjectID != m.ProjectID {
		return repo.ErrNotFound
	}
	if err := s.checkMappingRefs(m); err != nil {
		return err
	}
	if other, ok := s.mappingByPair(m.ProjectID, m.FromDatasetID, m.ToDatasetID); ok && other.ID != m.ID {
		return alreadyExists("mappings_project_from_to_key")
	}
	existing.FromDatasetID = m.FromDatasetID
	existing.ToDatasetID = m.ToDatasetID
	existing.Transforms = m.Transforms
	existing.DQRules = m.DQRules
	existing.UpdatedAt = m.UpdatedAt
	s.mappings[m.ID] = copyMapping(existing)
	return nil
}

func (r *Mappings) Delete(_ context.Context, projectID, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mappings[id]
	if !ok || m.ProjectID != projectID {
		return repo.ErrNotFound
	}
	s.deleteMapping(id)
	return nil
}

// Pipelines — аналог repo.PipelineRepo.
type Pipelines struct{ s *Store }

func (s *Store) checkPipelineRefs(p *domain.Pipeline) error {
	if _, ok := s.projects[p.ProjectID]; !ok {
		return notFound("pipelines_project_id_fkey")
	}
	for _, ref := range []*uuid.UUID{p.SilverMappingID, p.GoldMappingID} {
		if ref == nil {
			continue
		}
		if _, ok := s.mappings[*ref]; !ok {
			return notFound("pipelines_mapping_fkey")
		}
	}
	for _, existing := range s.pipelines {
		if existing.ID != p.ID && existing.ProjectID == p.ProjectID && existing.Name == p.Name {
			return alreadyExists("pipelines_project_name_key")
		}
	}
	return nil
}

func (r *Pipelines) Create(_ context.Context, p *domain.Pipeline) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pipelines[p.ID]; ok {
		return alreadyExists("pipelines_pkey")
	}
	if err := s.checkPipelineRefs(p); err != nil {
		return err
	}
	s.pipelines[p.ID] = copyPipeline(*p)
	s.track(p.ID)
	return nil
}

func (r *Pipelines) GetByID(_ context.Context, projectID, id uuid.UUID) (*domain.Pipeline, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pipelines[id]
	if !ok || p.ProjectID != projectID {
		return nil, repo.ErrNotFound
	}
	p = copyPipeline(p)
	return &p, nil
}

func (r *Pipelines) List(_ context.Context, projectID uuid.UUID) ([]domain.Pipeline, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	list := sorted(s, s.pipelines,
		func(p domain.Pipeline) uuid.UUID { return p.ID },
		func(p domain.Pipeline) bool { return p.ProjectID == projectID },
		func(a, b domain.Pipeline) int { return strings.Compare(a.Name, b.Name) },
	)
	for i := range list {
		list[i] = copyPipeline(list[i])
	}
	return list, nil
}

func (r *Pipelines) Update(_ context.Context, p *domain.Pipeline) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.pipelines[p.ID]
	if !ok || existing.ProjectID != p.ProjectID {
		return repo.ErrNotFound
	}
	if err := s.checkPipelineRefs(p); err != nil {
		return err
	}
	existing.Name = p.Name
	existing.SilverMappingID = p.SilverMappingID
	existing.GoldMappingID = p.GoldMappingID
	existing.UpdatedAt = p.UpdatedAt
	s.pipelines[p.ID] = copyPipeline(existing)
	return nil
}

func (r *Pipelines) Delete(_ context.Context, projectID, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pipelines[id]
	if !ok || p.ProjectID != projectID {
		return repo.ErrNotFound
	}
	s.deletePipeline(id)
	return nil
}
