package declarative

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"

	"dclake/internal/domain"
)

// ValidationError represents a single validation problem.
type ValidationError struct {
	Path    string // e.g. "workflows[wf1].data_collections[raw]" or "joins[j1]"
	Message string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidateProject checks structural consistency of a project. Unknown
// aggregation names are not reported here; they degrade to defaults with a
// warning when the join runs.
func ValidateProject(p *domain.Project) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(p.Name) == "" {
		addErr(&errs, "", "project name is required")
	}

	wfNames := make(map[string]bool, len(p.Workflows))
	for _, wf := range p.Workflows {
		path := fmt.Sprintf("workflows[%s]", wf.Name)
		if wf.Name == "" {
			addErr(&errs, "workflows", "workflow name is required")
		} else if strings.Contains(wf.Name, ".") {
			addErr(&errs, path, "workflow name must not contain '.'")
		}
		if wfNames[wf.Name] {
			addErr(&errs, path, "duplicate workflow name")
		}
		wfNames[wf.Name] = true
	}
	if p.DefaultWorkflow != "" && !wfNames[p.DefaultWorkflow] {
		addErr(&errs, "default_workflow", "workflow %q does not exist", p.DefaultWorkflow)
	}

	ids := map[string]string{}
	checkCollections := func(scope string, dcs []domain.DataCollection) {
		tags := map[string]bool{}
		for _, dc := range dcs {
			path := fmt.Sprintf("%s.data_collections[%s]", scope, dc.Tag)
			validateCollection(path, &dc, &errs)
			if dc.Tag != "" && tags[dc.Tag] {
				addErr(&errs, path, "duplicate tag")
			}
			tags[dc.Tag] = true
			if dc.ID != "" {
				if prev, ok := ids[dc.ID]; ok {
					addErr(&errs, path, "id %q already used by %s", dc.ID, prev)
				}
				ids[dc.ID] = path
			}
		}
	}
	for _, wf := range p.Workflows {
		checkCollections(fmt.Sprintf("workflows[%s]", wf.Name), wf.DataCollections)
	}
	checkCollections("project", p.DataCollections)

	joinNames := map[string]bool{}
	for _, j := range p.Joins {
		path := fmt.Sprintf("joins[%s]", j.Name)
		if j.Name == "" {
			addErr(&errs, "joins", "join name is required")
		}
		if joinNames[j.Name] {
			addErr(&errs, path, "duplicate join name")
		}
		joinNames[j.Name] = true
		if j.LeftDC == "" || j.RightDC == "" {
			addErr(&errs, path, "left_dc and right_dc are required")
		}
		if len(j.OnColumns) == 0 {
			addErr(&errs, path, "on_columns must name at least one column")
		}
		seen := map[string]bool{}
		for _, c := range j.OnColumns {
			if seen[c] {
				addErr(&errs, path, "join column %q listed twice", c)
			}
			seen[c] = true
		}
		if _, err := domain.ParseJoinHow(j.How); err != nil {
			addErr(&errs, path, "%s", err.Error())
		}
		if j.WorkflowName != "" && !wfNames[j.WorkflowName] {
			addErr(&errs, path, "workflow %q does not exist", j.WorkflowName)
		}
		if j.Schedule != "" {
			if _, err := cron.ParseStandard(j.Schedule); err != nil {
				addErr(&errs, path, "invalid schedule %q: %v", j.Schedule, err)
			}
		}
	}
	return errs
}

func validateCollection(path string, dc *domain.DataCollection, errs *[]ValidationError) {
	if dc.ID == "" {
		addErr(errs, path, "id is required")
	} else if strings.ContainsAny(dc.ID, `/\`) {
		addErr(errs, path, "id must not contain path separators")
	}
	if dc.Tag == "" {
		addErr(errs, path, "tag is required")
	}
	if _, err := domain.ParseFormat(string(dc.Config.Format)); err != nil {
		addErr(errs, path, "%s", err.Error())
	}
	if dc.Scan == nil {
		return
	}
	if dc.IsJoined() {
		addErr(errs, path, "joined collections cannot declare a scan spec")
	}
	if dc.Scan.RunTagRegex != "" {
		re, err := regexp.Compile(dc.Scan.RunTagRegex)
		switch {
		case err != nil:
			addErr(errs, path, "invalid run_tag_regex: %v", err)
		case re.NumSubexp() == 0:
			addErr(errs, path, "run_tag_regex must contain a capture group")
		}
	}
}

// addErr appends a formatted validation error.
func addErr(errs *[]ValidationError, path, msg string, args ...any) {
	*errs = append(*errs, ValidationError{
		Path:    path,
		Message: fmt.Sprintf(msg, args...),
	})
}
