package declarative

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"dclake/internal/domain"
)

func validProject() *domain.Project {
	return &domain.Project{
		Name:            "p",
		DefaultWorkflow: "wf",
		Workflows: []domain.Workflow{{
			Name: "wf",
			DataCollections: []domain.DataCollection{
				{ID: "a", Tag: "a", Config: domain.FormatDescriptor{Format: domain.FormatCSV}},
				{ID: "b", Tag: "b", Config: domain.FormatDescriptor{Format: domain.FormatParquet}},
			},
		}},
		Joins: []domain.JoinDefinition{
			{Name: "j", LeftDC: "a", RightDC: "b", OnColumns: []string{"k"}},
		},
	}
}

func TestValidateProject(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *domain.Project)
		wantErr string
	}{
		{name: "valid", mutate: func(*domain.Project) {}},
		{
			name:    "missing default workflow",
			mutate:  func(p *domain.Project) { p.DefaultWorkflow = "zzz" },
			wantErr: `workflow "zzz" does not exist`,
		},
		{
			name:    "duplicate tag",
			mutate:  func(p *domain.Project) { p.Workflows[0].DataCollections[1].Tag = "a" },
			wantErr: "duplicate tag",
		},
		{
			name: "duplicate id across scopes",
			mutate: func(p *domain.Project) {
				p.DataCollections = append(p.DataCollections, domain.DataCollection{ID: "a", Tag: "x", Config: domain.FormatDescriptor{Format: domain.FormatCSV}})
			},
			wantErr: `id "a" already used`,
		},
		{
			name:    "unsupported format",
			mutate:  func(p *domain.Project) { p.Workflows[0].DataCollections[0].Config.Format = "json" },
			wantErr: `unsupported file format "json"`,
		},
		{
			name:    "legacy xls workbook",
			mutate:  func(p *domain.Project) { p.Workflows[0].DataCollections[0].Config.Format = "xls" },
			wantErr: `convert them to "xlsx"`,
		},
		{
			name: "regex without capture group",
			mutate: func(p *domain.Project) {
				p.Workflows[0].DataCollections[0].Scan = &domain.ScanSpec{Paths: []string{"*.csv"}, RunTagRegex: "run_.*"}
			},
			wantErr: "capture group",
		},
		{
			name:   "valid schedule",
			mutate: func(p *domain.Project) { p.Joins[0].Schedule = "*/15 * * * *" },
		},
		{
			name:    "bad schedule",
			mutate:  func(p *domain.Project) { p.Joins[0].Schedule = "every hour" },
			wantErr: "invalid schedule",
		},
		{
			name:    "join without columns",
			mutate:  func(p *domain.Project) { p.Joins[0].OnColumns = nil },
			wantErr: "on_columns",
		},
		{
			name:    "bad join kind",
			mutate:  func(p *domain.Project) { p.Joins[0].How = "cross" },
			wantErr: "unsupported join kind",
		},
		{
			name:    "duplicate join",
			mutate:  func(p *domain.Project) { p.Joins = append(p.Joins, p.Joins[0]) },
			wantErr: "duplicate join name",
		},
		{
			name:    "dotted workflow name",
			mutate:  func(p *domain.Project) { p.Workflows[0].Name = "a.b"; p.DefaultWorkflow = "a.b" },
			wantErr: "must not contain '.'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProject()
			tt.mutate(p)
			errs := ValidateProject(p)
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			var msgs []string
			for _, e := range errs {
				msgs = append(msgs, e.Error())
			}
			assert.Contains(t, strings.Join(msgs, "\n"), tt.wantErr)
		})
	}
}
