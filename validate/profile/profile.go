// Package profile implements bag profiles: a YAML-described policy of which
// top-level files and bag-info tags a bag must, may, or must not contain,
// checked against a loaded bag in addition to the structural checks the Bag
// Engine always performs. It is modeled on the file/tag specification style
// of BagIt validation configs used outside the reference implementation,
// adapted to express presence rules declaratively rather than in code.
package profile

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/srerickson/bagit-go/report"
)

// Presence classifies whether a file or tag must, may, or must not appear.
type Presence string

const (
	Required  Presence = "required"
	Optional  Presence = "optional"
	Forbidden Presence = "forbidden"
)

// FileSpec constrains one top-level (non-payload) file by name.
type FileSpec struct {
	Presence Presence `yaml:"presence"`
}

// TagSpec constrains one bag-info tag by name.
type TagSpec struct {
	Presence Presence `yaml:"presence"`
	EmptyOK  bool     `yaml:"emptyOk"`
}

// Profile is a bag validation policy: which top-level files and bag-info
// tags are required, optional, or forbidden, and whether files not named by
// FileSpecs are tolerated.
type Profile struct {
	Name                   string              `yaml:"name"`
	FileSpecs              map[string]FileSpec `yaml:"fileSpecs"`
	TagSpecs               map[string]TagSpec  `yaml:"tagSpecs"`
	AllowMiscTopLevelFiles bool                `yaml:"allowMiscTopLevelFiles"`
}

// Load parses a Profile from YAML.
func Load(r io.Reader) (*Profile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	p := &Profile{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return p, nil
}

// Check evaluates topLevelFiles (the names of the files present at the bag
// root, e.g. "bag-info.txt") and tagValues (bag-info tag name,
// case-preserved, to its list of values) against the profile, returning one
// Problem per violation. bagit.txt and manifest-*/tagmanifest-* files are
// never reported as files not permitted by the profile.
func (p *Profile) Check(topLevelFiles []string, tagValues map[string][]string) report.List {
	var problems report.List

	present := make(map[string]bool, len(topLevelFiles))
	for _, f := range topLevelFiles {
		present[f] = true
	}
	names := make([]string, 0, len(p.FileSpecs))
	for name := range p.FileSpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		spec := p.FileSpecs[name]
		switch {
		case spec.Presence == Required && !present[name]:
			problems.Addf(report.ProfileViolation, name, "required file missing")
		case spec.Presence == Forbidden && present[name]:
			problems.Addf(report.ProfileViolation, name, "forbidden file present")
		}
	}
	if !p.AllowMiscTopLevelFiles {
		for _, f := range topLevelFiles {
			if f == "bagit.txt" || strings.HasPrefix(f, "manifest-") || strings.HasPrefix(f, "tagmanifest-") {
				continue
			}
			if _, known := p.FileSpecs[f]; !known {
				problems.Addf(report.ProfileViolation, f, "file not permitted by profile")
			}
		}
	}

	tagNames := make([]string, 0, len(p.TagSpecs))
	for name := range p.TagSpecs {
		tagNames = append(tagNames, name)
	}
	sort.Strings(tagNames)
	for _, name := range tagNames {
		spec := p.TagSpecs[name]
		values := tagValues[name]
		switch {
		case spec.Presence == Required && len(values) == 0:
			problems.Addf(report.ProfileViolation, name, "required tag missing")
		case spec.Presence == Forbidden && len(values) > 0:
			problems.Addf(report.ProfileViolation, name, "forbidden tag present")
		}
		if !spec.EmptyOK {
			for _, v := range values {
				if v == "" {
					problems.Addf(report.ProfileViolation, name, "tag value must not be empty")
				}
			}
		}
	}
	return problems
}
