package join

import (
	"context"
	"fmt"
	"strings"

	"dclake/internal/domain"
	"dclake/internal/tablestore"
)

// side is one resolved and, when processed, opened input of a join.
type side struct {
	ref      string
	dc       *domain.DataCollection
	snapshot *tablestore.Snapshot
}

type validation struct {
	result      *domain.JoinValidationResult
	left, right side
	how         domain.JoinHow
}

// Validate checks that both sides of def resolve in p, whether their
// canonical tables exist, and that every key column is present in each
// processed table. Problems are reported in the result; the error return is
// reserved for storage failures.
func (s *Service) Validate(ctx context.Context, p *domain.Project, def domain.JoinDefinition) (*domain.JoinValidationResult, error) {
	v, err := s.validate(ctx, p, def)
	if err != nil {
		return nil, err
	}
	return v.result, nil
}

func (s *Service) validate(ctx context.Context, p *domain.Project, def domain.JoinDefinition) (*validation, error) {
	res := &domain.JoinValidationResult{JoinName: def.Name}
	v := &validation{result: res}

	how, err := domain.ParseJoinHow(def.How)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	}
	v.how = how
	if len(def.OnColumns) == 0 {
		res.Errors = append(res.Errors, "join has no key columns")
	}

	if v.left, res.Left, err = s.validateSide(ctx, p, "left", def.LeftDC, def.OnColumns, res); err != nil {
		return nil, err
	}
	if v.right, res.Right, err = s.validateSide(ctx, p, "right", def.RightDC, def.OnColumns, res); err != nil {
		return nil, err
	}

	res.IsValid = len(res.Errors) == 0
	s.logger.Debug("join validated", "join", def.Name, "valid", res.IsValid,
		"left_processed", res.Left.Processed, "right_processed", res.Right.Processed)
	return v, nil
}

func (s *Service) validateSide(ctx context.Context, p *domain.Project, name, ref string, keys []string, res *domain.JoinValidationResult) (side, domain.SideStatus, error) {
	st := domain.SideStatus{Reference: ref}
	resolved, ok := p.Resolve(ref)
	if !ok {
		rerr := domain.ErrResolution(ref, "%s data collection %q not found in project %s", name, ref, p.Name)
		res.Errors = append(res.Errors, rerr.Error())
		return side{ref: ref}, st, nil
	}
	dc := resolved.DataCollection
	st.Exists = true
	st.DataCollectionID = dc.ID
	st.Workflow = resolved.Workflow
	st.Metatype = dc.Config.Metatype
	out := side{ref: ref, dc: dc}

	snap, err := s.store.Read(ctx, s.sess, dc.ID)
	if err != nil {
		if domain.IsNotFound(err) {
			np := domain.ErrNotProcessed(dc.ID, "%s data collection %s has not been processed yet", name, dc.Ref())
			res.Warnings = append(res.Warnings, np.Error())
			return out, st, nil
		}
		return side{}, st, fmt.Errorf("read %s table %s: %w", name, dc.Ref(), err)
	}
	st.Processed = true
	out.snapshot = snap

	schema, err := snap.Relation.Schema(ctx)
	if err != nil {
		return side{}, st, fmt.Errorf("read %s table %s: %w", name, dc.Ref(), err)
	}
	st.MissingColumns = schema.Missing(keys)
	if len(st.MissingColumns) > 0 {
		res.Errors = append(res.Errors, fmt.Sprintf("%s data collection %s is missing join columns: %s",
			name, dc.Ref(), strings.Join(st.MissingColumns, ", ")))
	}
	return out, st, nil
}
