package join

import (
	"sort"

	"dclake/internal/domain"
)

// producedRefs returns the references under which the output of def can be
// consumed by another join. wf is the workflow the derived collection is
// expected to land in.
func producedRefs(def domain.JoinDefinition, wf string) []string {
	refs := []string{def.ResultTag()}
	if def.WorkflowName != "" {
		refs = append(refs, def.WorkflowName+"."+def.ResultTag())
	}
	if wf != "" && wf != def.WorkflowName {
		refs = append(refs, wf+"."+def.ResultTag())
	}
	if def.ID != "" {
		refs = append(refs, def.ID)
	}
	if def.Result != nil && def.Result.DataCollectionID != "" {
		refs = append(refs, def.Result.DataCollectionID)
	}
	return refs
}

// producers maps every reference a join's output answers to onto the join name.
func producers(joins []domain.JoinDefinition, wfs map[string]string) map[string]string {
	out := make(map[string]string, len(joins))
	for _, j := range joins {
		for _, ref := range producedRefs(j, wfs[j.Name]) {
			out[ref] = j.Name
		}
	}
	return out
}

// resultWorkflows predicts, per join name, the workflow its derived collection
// is added to. It applies the owningWorkflow rule; a left side that is itself
// produced by a join inherits that join's workflow.
func resultWorkflows(p *domain.Project) map[string]string {
	out := make(map[string]string, len(p.Joins))
	for range p.Joins {
		produced := producers(p.Joins, out)
		changed := false
		for _, j := range p.Joins {
			var leftWF string
			if res, ok := p.Resolve(j.LeftDC); ok {
				leftWF = res.Workflow
			} else if dep, ok := produced[j.LeftDC]; ok && dep != j.Name {
				leftWF = out[dep]
			}
			wf := owningWorkflow(p, j, leftWF)
			if prev, ok := out[j.Name]; !ok || prev != wf {
				out[j.Name] = wf
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return out
}

// ResolveJoinOrder computes a topological ordering of joins using Kahn's
// algorithm: a join that reads another join's result comes in a later level.
// Levels list join names in project order. Returns an error on cycles.
func ResolveJoinOrder(p *domain.Project) ([][]string, error) {
	joins := p.Joins
	if len(joins) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(joins))
	for i, j := range joins {
		if _, dup := index[j.Name]; dup {
			return nil, domain.ErrValidation("duplicate join name: %s", j.Name)
		}
		index[j.Name] = i
	}
	produced := producers(joins, resultWorkflows(p))

	inDegree := make(map[string]int, len(joins))
	dependents := make(map[string][]string)
	for _, j := range joins {
		inDegree[j.Name] += 0
		seen := map[string]bool{}
		for _, ref := range []string{j.LeftDC, j.RightDC} {
			dep, ok := produced[ref]
			if !ok || seen[dep] {
				continue
			}
			if dep == j.Name {
				return nil, domain.ErrValidation("join %s reads its own result", j.Name)
			}
			seen[dep] = true
			dependents[dep] = append(dependents[dep], j.Name)
			inDegree[j.Name]++
		}
	}

	byIndex := func(names []string) {
		sort.Slice(names, func(a, b int) bool { return index[names[a]] < index[names[b]] })
	}

	var levels [][]string
	var queue []string
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}

	processed := 0
	for len(queue) > 0 {
		byIndex(queue)
		level := make([]string, len(queue))
		copy(level, queue)
		levels = append(levels, level)
		processed += len(level)

		var next []string
		for _, name := range queue {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if processed != len(joins) {
		return nil, domain.ErrValidation("cycle detected in join dependencies")
	}
	return levels, nil
}

// upstream returns the joins that name transitively depends on, in no
// particular order, excluding name itself.
func upstream(p *domain.Project, name string) map[string]bool {
	produced := producers(p.Joins, resultWorkflows(p))
	byName := make(map[string]domain.JoinDefinition, len(p.Joins))
	for _, j := range p.Joins {
		byName[j.Name] = j
	}
	out := map[string]bool{}
	stack := []string{name}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		j := byName[cur]
		for _, ref := range []string{j.LeftDC, j.RightDC} {
			dep, ok := produced[ref]
			if !ok || dep == name || out[dep] {
				continue
			}
			out[dep] = true
			stack = append(stack, dep)
		}
	}
	return out
}
