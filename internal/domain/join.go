package domain

import (
	"strings"
	"time"
)

// JoinHow is the relational join kind.
type JoinHow string

// Supported join kinds.
const (
	JoinInner JoinHow = "inner"
	JoinOuter JoinHow = "outer"
	JoinLeft  JoinHow = "left"
	JoinRight JoinHow = "right"
)

// ParseJoinHow normalises a join kind. Empty means inner; "full" is an alias for outer.
func ParseJoinHow(s string) (JoinHow, error) {
	switch h := JoinHow(strings.ToLower(strings.TrimSpace(s))); h {
	case "":
		return JoinInner, nil
	case JoinInner, JoinOuter, JoinLeft, JoinRight:
		return h, nil
	case "full", "full_outer":
		return JoinOuter, nil
	default:
		return "", ErrValidation("unsupported join kind %q", s)
	}
}

// SQL returns the join keyword sequence for DuckDB.
func (h JoinHow) SQL() string {
	switch h {
	case JoinOuter:
		return "FULL OUTER JOIN"
	case JoinLeft:
		return "LEFT JOIN"
	case JoinRight:
		return "RIGHT JOIN"
	default:
		return "INNER JOIN"
	}
}

// JoinResultMeta is the execution metadata recorded after a persisted join.
type JoinResultMeta struct {
	DataCollectionID string    `yaml:"dc_id" json:"dc_id"`
	Tag              string    `yaml:"tag" json:"tag"`
	Location         string    `yaml:"location" json:"location"`
	ExecutedAt       time.Time `yaml:"executed_at" json:"executed_at"`
	Rows             int64     `yaml:"rows" json:"rows"`
	Columns          int       `yaml:"columns" json:"columns"`
	SizeBytes        int64     `yaml:"size_bytes" json:"size_bytes"`
}

// JoinDefinition describes how two data collections combine.
type JoinDefinition struct {
	Name         string           `yaml:"name"`
	Description  string           `yaml:"description,omitempty"`
	LeftDC       string           `yaml:"left_dc"`
	RightDC      string           `yaml:"right_dc"`
	OnColumns    []string         `yaml:"on_columns"`
	How          string           `yaml:"how,omitempty"`
	WorkflowName string           `yaml:"workflow_name,omitempty"`
	Granularity  *GranularitySpec `yaml:"granularity,omitempty"`
	ID           string           `yaml:"id,omitempty"`
	Persist      bool             `yaml:"persist"`
	// Schedule is an optional cron expression for unattended runs.
	Schedule string          `yaml:"schedule,omitempty"`
	Result   *JoinResultMeta `yaml:"result,omitempty"`
}

// ResultTag is the tag given to the derived collection: the join name.
func (j *JoinDefinition) ResultTag() string {
	return j.Name
}

// Clone returns a deep copy of the definition.
func (j JoinDefinition) Clone() JoinDefinition {
	j.OnColumns = append([]string(nil), j.OnColumns...)
	if j.Granularity != nil {
		g := j.Granularity.Clone()
		j.Granularity = &g
	}
	if j.Result != nil {
		r := *j.Result
		j.Result = &r
	}
	return j
}

// WithResult returns a copy of j carrying the given execution metadata.
// The receiver is left untouched.
func (j JoinDefinition) WithResult(meta JoinResultMeta) JoinDefinition {
	out := j.Clone()
	out.Result = &meta
	return out
}

// SideStatus is the per-side outcome of join validation.
type SideStatus struct {
	Reference        string   `json:"reference"`
	Exists           bool     `json:"exists"`
	Processed        bool     `json:"processed"`
	DataCollectionID string   `json:"dc_id,omitempty"`
	Workflow         string   `json:"workflow,omitempty"`
	Metatype         string   `json:"metatype,omitempty"`
	MissingColumns   []string `json:"missing_columns,omitempty"`
}

// JoinValidationResult summarises join preconditions.
type JoinValidationResult struct {
	JoinName string     `json:"join_name"`
	IsValid  bool       `json:"is_valid"`
	Left     SideStatus `json:"left"`
	Right    SideStatus `json:"right"`
	Errors   []string   `json:"errors,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
}

// BothProcessed reports whether both canonical tables exist.
func (r *JoinValidationResult) BothProcessed() bool {
	return r.Left.Processed && r.Right.Processed
}

// JoinMetadata describes one join execution.
type JoinMetadata struct {
	LeftRows           int64    `json:"left_rows"`
	LeftColumns        int      `json:"left_columns"`
	RightRows          int64    `json:"right_rows"`
	RightColumns       int      `json:"right_columns"`
	ResultRows         int64    `json:"result_rows"`
	ResultColumns      int      `json:"result_columns"`
	JoinColumns        []string `json:"join_columns"`
	CastColumns        []string `json:"cast_columns,omitempty"`
	DroppedColumns     []string `json:"dropped_columns,omitempty"`
	How                JoinHow  `json:"how"`
	GranularityApplied bool     `json:"granularity_applied"`
	AggregatedSide     string   `json:"aggregated_side,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
}

// JoinPreviewResult holds key-overlap statistics and a bounded sample.
type JoinPreviewResult struct {
	JoinName          string           `json:"join_name"`
	Metadata          JoinMetadata     `json:"metadata"`
	LeftDistinctKeys  int64            `json:"left_distinct_keys"`
	RightDistinctKeys int64            `json:"right_distinct_keys"`
	OverlapKeys       int64            `json:"overlap_keys"`
	Columns           []string         `json:"columns"`
	Sample            []map[string]any `json:"sample"`
	Warnings          []string         `json:"warnings,omitempty"`
}

// JoinPersistResult is returned after a successful persist.
type JoinPersistResult struct {
	Definition JoinDefinition `json:"-"`
	// Project is the updated project: Definition in place and the derived
	// collection appended.
	Project  *Project       `json:"-"`
	Result   JoinResultMeta `json:"result"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Batch statuses.
const (
	BatchSuccess = "success"
	BatchPartial = "partial"
)

// JoinBatchEntry is one line of a batch report.
type JoinBatchEntry struct {
	Name     string             `json:"name"`
	Message  string             `json:"message,omitempty"`
	Result   *JoinResultMeta    `json:"result,omitempty"`
	Preview  *JoinPreviewResult `json:"preview,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
}

// JoinBatchReport is the partial-success report of a project-wide join run.
type JoinBatchReport struct {
	Status    string           `json:"status"`
	Processed []JoinBatchEntry `json:"processed"`
	Skipped   []JoinBatchEntry `json:"skipped"`
	Errors    []JoinBatchEntry `json:"errors"`
}
