package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agis/gridcal/internal/contract"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FileSource reads a JSON or YAML document holding either a list of event
// records or an object with an "events" list.
type FileSource struct {
	path   string
	format Format
	opts   Options
}

func NewFileSource(path string, format Format, opts Options) *FileSource {
	return &FileSource{path: path, format: format, opts: opts}
}

func (s *FileSource) Name() string { return filepath.Base(s.path) }
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Doctor(ctx context.Context) ([]contract.DoctorCheck, error) {
	checks := []contract.DoctorCheck{}
	if _, err := os.Stat(s.path); err != nil {
		checks = append(checks, contract.DoctorCheck{Name: "source_file", Status: "fail", Message: err.Error()})
		return checks, err
	}
	checks = append(checks, contract.DoctorCheck{Name: "source_file", Status: "ok", Message: s.path})

	records, err := s.readRecords(ctx)
	if err != nil {
		checks = append(checks, contract.DoctorCheck{Name: "source_parse", Status: "fail", Message: err.Error()})
		return checks, err
	}
	checks = append(checks, contract.DoctorCheck{Name: "source_parse", Status: "ok", Message: fmt.Sprintf("%d records (%s)", len(records), s.format)})

	_, skipped, _ := resolveRecords(records, s.opts.location(), s.Name(), false)
	if len(skipped) > 0 {
		checks = append(checks, contract.DoctorCheck{Name: "source_records", Status: "warn", Message: fmt.Sprintf("%d records cannot be resolved", len(skipped))})
	} else {
		checks = append(checks, contract.DoctorCheck{Name: "source_records", Status: "ok", Message: "all records resolve"})
	}
	return checks, nil
}

func (s *FileSource) ListEvents(ctx context.Context, f Filter) (Listing, error) {
	started := time.Now()
	records, err := s.readRecords(ctx)
	if err != nil {
		return Listing{}, err
	}
	events, skipped, err := resolveRecords(records, s.opts.location(), s.Name(), s.opts.Strict)
	if err != nil {
		return Listing{}, err
	}
	out := applyFilter(events, f)
	s.opts.logger().Debug("source read",
		"source", s.path,
		"format", s.format,
		"records", len(records),
		"skipped", len(skipped),
		"matched", len(out),
		"elapsed", time.Since(started),
	)
	return Listing{Events: out, Skipped: skipped}, nil
}

func (s *FileSource) readRecords(ctx context.Context) ([]record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	switch s.format {
	case FormatYAML:
		return decodeYAMLRecords(raw)
	default:
		return decodeJSONRecords(raw)
	}
}

type recordDocument struct {
	Events []record `json:"events" yaml:"events"`
}

func decodeJSONRecords(raw []byte) ([]record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var records []record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode json events: %w", err)
		}
		return records, nil
	}
	var doc recordDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decode json events: %w", err)
	}
	return doc.Events, nil
}

func decodeYAMLRecords(raw []byte) ([]record, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("decode yaml events: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		var records []record
		if err := node.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode yaml events: %w", err)
		}
		return records, nil
	}
	var doc recordDocument
	if err := node.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode yaml events: %w", err)
	}
	return doc.Events, nil
}
