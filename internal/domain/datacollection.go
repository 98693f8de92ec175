package domain

import (
	"fmt"
	"strings"
)

// Format identifies the on-disk format of a data collection's raw files.
type Format string

// Supported raw file formats.
const (
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
	FormatParquet Format = "parquet"
	FormatFeather Format = "feather"
	FormatXLSX    Format = "xlsx"
)

// FormatXLS is the legacy binary workbook format. It is recognised only to
// reject it with a conversion hint.
const FormatXLS Format = "xls"

// ParseFormat normalises a format tag. Unknown tags are a SchemaMismatchError.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatTSV, FormatParquet, FormatFeather, FormatXLSX:
		return f, nil
	case "arrow", "ipc":
		return FormatFeather, nil
	case FormatXLS:
		return "", ErrSchemaMismatch("", "legacy %q workbooks are not supported, convert them to %q", FormatXLS, FormatXLSX)
	default:
		return "", ErrSchemaMismatch("", "unsupported file format %q", s)
	}
}

// IsSpreadsheet reports whether the format must be decoded eagerly as a workbook.
func (f Format) IsSpreadsheet() bool {
	return f == FormatXLSX
}

// MetatypeMetadata marks a collection holding per-run metadata rather than measurements.
const MetatypeMetadata = "Metadata"

// Collection sources.
const (
	SourceRaw    = ""
	SourceJoined = "joined"
)

// ReadOptions are per-format reader options.
type ReadOptions struct {
	Delimiter   string            `yaml:"delimiter,omitempty"`
	Header      *bool             `yaml:"header,omitempty"`
	SkipRows    int               `yaml:"skip_rows,omitempty"`
	NullValues  []string          `yaml:"null_values,omitempty"`
	ColumnTypes map[string]string `yaml:"column_types,omitempty"`
	Sheet       string            `yaml:"sheet,omitempty"`
}

// HasHeader returns the header flag, defaulting to true.
func (o ReadOptions) HasHeader() bool {
	return o.Header == nil || *o.Header
}

// FormatDescriptor describes how a collection's files are read.
type FormatDescriptor struct {
	Format      Format      `yaml:"format"`
	ReadOptions ReadOptions `yaml:"read_options,omitempty"`
	Metatype    string      `yaml:"metatype,omitempty"`
	Joined      bool        `yaml:"joined,omitempty"`
}

// ScanSpec tells the catalog where a collection's raw files live.
// RunTagRegex, when set, must contain one capture group (or a group named "run")
// that extracts the run tag from each matched path.
type ScanSpec struct {
	Paths       []string `yaml:"paths"`
	RunTagRegex string   `yaml:"run_tag_regex,omitempty"`
}

// DataCollection is a named, typed source of tabular data, raw or derived.
type DataCollection struct {
	ID          string           `yaml:"id"`
	Tag         string           `yaml:"tag"`
	Type        string           `yaml:"type,omitempty"`
	Source      string           `yaml:"source,omitempty"`
	Description string           `yaml:"description,omitempty"`
	Config      FormatDescriptor `yaml:"config"`
	Scan        *ScanSpec        `yaml:"scan,omitempty"`

	// Workflow is the owning workflow name; empty for project-level collections.
	Workflow string `yaml:"-"`
}

// IsMetadata reports whether the collection is metadata-typed.
func (dc *DataCollection) IsMetadata() bool {
	return strings.EqualFold(dc.Config.Metatype, MetatypeMetadata)
}

// IsJoined reports whether the collection is the product of a join.
func (dc *DataCollection) IsJoined() bool {
	return dc.Source == SourceJoined || dc.Config.Joined
}

// Ref returns the fully qualified "workflow.tag" reference, or the bare tag for
// project-level collections.
func (dc *DataCollection) Ref() string {
	if dc.Workflow == "" {
		return dc.Tag
	}
	return dc.Workflow + "." + dc.Tag
}

// File is a raw file belonging to a data collection.
type File struct {
	Location string `json:"location"`
	RunTag   string `json:"run_tag,omitempty"`
	Format   Format `json:"format"`
}

func (f File) String() string {
	if f.RunTag == "" {
		return f.Location
	}
	return fmt.Sprintf("%s (run %s)", f.Location, f.RunTag)
}
