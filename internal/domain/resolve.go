package domain

import "strings"

// Resolution is a data collection found by reference, with its owning workflow.
type Resolution struct {
	DataCollection *DataCollection
	Workflow       string
}

// Resolve looks up a collection by reference. Accepted forms, in order:
// an exact collection id, "workflow.tag", or a bare tag. A bare tag is
// searched in the default workflow, then every workflow in project order,
// then the project-level collections. The first match wins.
func (p *Project) Resolve(ref string) (Resolution, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Resolution{}, false
	}
	if dc, ok := p.DataCollectionByID(ref); ok {
		return Resolution{DataCollection: dc, Workflow: dc.Workflow}, true
	}

	if wfName, tag, ok := strings.Cut(ref, "."); ok {
		if wf := p.Workflow(wfName); wf != nil {
			if dc := findTag(wf.DataCollections, tag); dc != nil {
				return Resolution{DataCollection: dc, Workflow: wf.Name}, true
			}
		}
		// Tags may themselves contain dots; fall through to a bare-tag search.
	}

	if p.DefaultWorkflow != "" {
		if wf := p.Workflow(p.DefaultWorkflow); wf != nil {
			if dc := findTag(wf.DataCollections, ref); dc != nil {
				return Resolution{DataCollection: dc, Workflow: wf.Name}, true
			}
		}
	}
	for i := range p.Workflows {
		wf := &p.Workflows[i]
		if dc := findTag(wf.DataCollections, ref); dc != nil {
			return Resolution{DataCollection: dc, Workflow: wf.Name}, true
		}
	}
	if dc := findTag(p.DataCollections, ref); dc != nil {
		return Resolution{DataCollection: dc}, true
	}
	return Resolution{}, false
}

func findTag(dcs []DataCollection, tag string) *DataCollection {
	for i := range dcs {
		if dcs[i].Tag == tag {
			return &dcs[i]
		}
	}
	return nil
}
