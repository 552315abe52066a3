// Package lockfile persists the outcome of a full resolution so later runs
// can rebuild the dependency graph without any fetches. The file is YAML,
// schema-versioned, and tolerant of unknown future fields.
package lockfile

import (
	"fmt"
	"os"
	"sort"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/apm-labs/apm/internal/ref"
)

// SchemaVersion is the current lockfile schema version.
const SchemaVersion = "1"

// DefaultName is the lockfile name at the project root.
const DefaultName = "apm.lock"

// Record is one resolved dependency snapshot. Name, kind, and categories
// are persisted so a restore rebuilds the same manifest identity the
// original resolution classified, without refetching.
type Record struct {
	Key            string   `yaml:"key"`
	Name           string   `yaml:"name,omitempty"`
	RepoURL        string   `yaml:"repo_url"`
	Host           string   `yaml:"host,omitempty"`
	Subpath        string   `yaml:"virtual_path,omitempty"`
	ResolvedCommit string   `yaml:"resolved_commit"`
	ResolvedRef    string   `yaml:"resolved_ref,omitempty"`
	Version        string   `yaml:"version,omitempty"`
	Kind           string   `yaml:"kind,omitempty"`
	Categories     []string `yaml:"categories,omitempty"`
	Depth          int      `yaml:"depth"`
	ResolvedBy     []string `yaml:"resolved_by,omitempty"`
}

// Reference rebuilds the dependency reference this record was resolved
// from, with the locked ref as its constraint.
func (r Record) Reference() (ref.Reference, error) {
	host := r.Host
	if host == "" {
		host = ref.DefaultHost
	}
	parsed, err := ref.ParseWithHost(r.RepoURL, host)
	if err != nil {
		return ref.Reference{}, fmt.Errorf("lock record %s: %w", r.Key, err)
	}
	parsed.Subpath = r.Subpath
	parsed.Constraint = r.ResolvedRef
	return parsed, nil
}

// File is a versioned lockfile document.
type File struct {
	SchemaVersion string   `yaml:"lockfile_version"`
	GeneratedAt   string   `yaml:"generated_at"`
	ToolVersion   string   `yaml:"apm_version,omitempty"`
	Records       []Record `yaml:"dependencies"`

	byKey map[string]int
}

// New returns an empty lockfile stamped with the current time and tool
// version.
func New(toolVersion string) *File {
	return &File{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		ToolVersion:   toolVersion,
	}
}

// Add inserts or replaces the record for its key.
func (f *File) Add(rec Record) {
	f.index()
	if i, ok := f.byKey[rec.Key]; ok {
		f.Records[i] = rec
		return
	}
	f.byKey[rec.Key] = len(f.Records)
	f.Records = append(f.Records, rec)
}

// Lookup returns the record for key.
func (f *File) Lookup(key string) (Record, bool) {
	if f == nil {
		return Record{}, false
	}
	f.index()
	i, ok := f.byKey[key]
	if !ok {
		return Record{}, false
	}
	return f.Records[i], true
}

// Len returns the number of records.
func (f *File) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Records)
}

// DependentsOf returns the records whose resolved_by set names key,
// ordered by depth then key. Used to rebuild graph edges on a lockfile
// restore without fetching.
func (f *File) DependentsOf(key string) []Record {
	if f == nil {
		return nil
	}
	var out []Record
	for _, rec := range f.Records {
		for _, parent := range rec.ResolvedBy {
			if parent == key {
				out = append(out, rec)
				break
			}
		}
	}
	sortRecords(out)
	return out
}

// Sorted returns records ordered by depth then key.
func (f *File) Sorted() []Record {
	out := make([]Record, len(f.Records))
	copy(out, f.Records)
	sortRecords(out)
	return out
}

func sortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Depth != recs[j].Depth {
			return recs[i].Depth < recs[j].Depth
		}
		return recs[i].Key < recs[j].Key
	})
}

func (f *File) index() {
	if f.byKey != nil {
		return
	}
	f.byKey = make(map[string]int, len(f.Records))
	for i, rec := range f.Records {
		f.byKey[rec.Key] = i
	}
}

// Marshal serializes the lockfile with records in deterministic order.
func (f *File) Marshal() ([]byte, error) {
	out := *f
	out.Records = f.Sorted()
	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("marshaling lockfile: %w", err)
	}
	return data, nil
}

// Write persists the lockfile to path.
func (f *File) Write(path string) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing lockfile %s: %w", path, err)
	}
	return nil
}

// Parse deserializes lockfile bytes. Unknown fields are ignored so newer
// tools can extend the schema without breaking older readers.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing lockfile: %w", err)
	}
	if f.SchemaVersion == "" {
		f.SchemaVersion = SchemaVersion
	}
	return &f, nil
}

// Load reads the lockfile at path. A missing file returns (nil, nil);
// a corrupt file returns an error so the caller can decide whether to
// warn and re-resolve.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading lockfile %s: %w", path, err)
	}
	return Parse(data)
}
