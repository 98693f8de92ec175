package domain

// Workflow groups the data collections produced by one analysis workflow.
type Workflow struct {
	Name            string           `yaml:"name"`
	DataCollections []DataCollection `yaml:"data_collections,omitempty"`
}

// Project is the root configuration: workflows, project-level collections and
// join definitions.
type Project struct {
	Name            string           `yaml:"name"`
	DefaultWorkflow string           `yaml:"default_workflow,omitempty"`
	Workflows       []Workflow       `yaml:"workflows,omitempty"`
	DataCollections []DataCollection `yaml:"data_collections,omitempty"`
	Joins           []JoinDefinition `yaml:"joins,omitempty"`
}

// Workflow returns the workflow with the given name, or nil.
func (p *Project) Workflow(name string) *Workflow {
	for i := range p.Workflows {
		if p.Workflows[i].Name == name {
			return &p.Workflows[i]
		}
	}
	return nil
}

// Join returns the index of the named join definition, or -1.
func (p *Project) Join(name string) int {
	for i := range p.Joins {
		if p.Joins[i].Name == name {
			return i
		}
	}
	return -1
}

// DataCollectionByID finds a collection anywhere in the project.
func (p *Project) DataCollectionByID(id string) (*DataCollection, bool) {
	for i := range p.Workflows {
		wf := &p.Workflows[i]
		for j := range wf.DataCollections {
			if wf.DataCollections[j].ID == id {
				return &wf.DataCollections[j], true
			}
		}
	}
	for i := range p.DataCollections {
		if p.DataCollections[i].ID == id {
			return &p.DataCollections[i], true
		}
	}
	return nil, false
}

// Bind stamps each workflow collection with its owning workflow name.
// Loaders call it after decoding.
func (p *Project) Bind() {
	for i := range p.Workflows {
		wf := &p.Workflows[i]
		for j := range wf.DataCollections {
			wf.DataCollections[j].Workflow = wf.Name
		}
	}
	for i := range p.DataCollections {
		p.DataCollections[i].Workflow = ""
	}
}

// Clone returns a copy whose slices can be modified without affecting p.
func (p *Project) Clone() *Project {
	out := *p
	out.Workflows = make([]Workflow, len(p.Workflows))
	for i, wf := range p.Workflows {
		wf.DataCollections = append([]DataCollection(nil), wf.DataCollections...)
		out.Workflows[i] = wf
	}
	out.DataCollections = append([]DataCollection(nil), p.DataCollections...)
	out.Joins = make([]JoinDefinition, len(p.Joins))
	for i, j := range p.Joins {
		out.Joins[i] = j.Clone()
	}
	return &out
}

// AddDataCollection appends dc to its workflow (dc.Workflow), or to the
// project-level list when dc.Workflow is empty. It reports false when a
// collection with the same id already exists. A tag already taken in the
// target scope is a ConflictError.
func (p *Project) AddDataCollection(dc DataCollection) (bool, error) {
	if _, ok := p.DataCollectionByID(dc.ID); ok {
		return false, nil
	}
	target := &p.DataCollections
	if dc.Workflow != "" {
		wf := p.Workflow(dc.Workflow)
		if wf == nil {
			return false, ErrNotFound("workflow %q not found in project %s", dc.Workflow, p.Name)
		}
		target = &wf.DataCollections
	}
	if existing := findTag(*target, dc.Tag); existing != nil {
		return false, ErrConflict("tag %q already used by data collection %s", dc.Tag, existing.ID)
	}
	*target = append(*target, dc)
	return true, nil
}

// PutDerived adds a join-derived collection like AddDataCollection, except
// that a joined collection already holding dc.Tag in the target scope is
// replaced by dc. This keeps the derived entry in step with a join whose
// destination id changed. A non-joined holder of the tag is still a
// ConflictError.
func (p *Project) PutDerived(dc DataCollection) (bool, error) {
	if _, ok := p.DataCollectionByID(dc.ID); ok {
		return false, nil
	}
	scope := p.DataCollections
	if dc.Workflow != "" {
		if wf := p.Workflow(dc.Workflow); wf != nil {
			scope = wf.DataCollections
		}
	}
	if existing := findTag(scope, dc.Tag); existing != nil && existing.IsJoined() {
		*existing = dc
		return true, nil
	}
	return p.AddDataCollection(dc)
}

// ReplaceJoin swaps in def for the join of the same name.
func (p *Project) ReplaceJoin(def JoinDefinition) error {
	i := p.Join(def.Name)
	if i < 0 {
		return ErrNotFound("join %q not found in project %s", def.Name, p.Name)
	}
	p.Joins[i] = def
	return nil
}
