package drafts

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cuappdev/clicker-backend/internal/models"
)

const maxDrafts = 200

//go:embed samples/*.yaml
var samplesFS embed.FS

// file is the YAML layout of a draft import:
//
//	drafts:
//	  - text: Capital of France?
//	    type: single_choice
//	    options: [Paris, Rome]
//	    correctAnswer: 0
type file struct {
	Drafts []models.PollDraft `yaml:"drafts"`
}

// Parse reads a YAML draft file and validates every draft in it.
func Parse(r io.Reader) ([]models.PollDraft, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", models.ErrInvalidDraft)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidDraft, err)
	}
	if len(f.Drafts) == 0 {
		return nil, fmt.Errorf("%w: no drafts", models.ErrInvalidDraft)
	}
	if len(f.Drafts) > maxDrafts {
		return nil, fmt.Errorf("%w: at most %d drafts per import", models.ErrInvalidDraft, maxDrafts)
	}
	for i, d := range f.Drafts {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("draft %d: %w", i+1, err)
		}
	}
	return f.Drafts, nil
}

// Samples returns the built-in example drafts, keyed by file name.
func Samples() (map[string][]models.PollDraft, error) {
	entries, err := fs.Glob(samplesFS, "samples/*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	out := make(map[string][]models.PollDraft, len(entries))
	for _, name := range entries {
		f, err := samplesFS.Open(name)
		if err != nil {
			return nil, err
		}
		ds, err := Parse(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", name, err)
		}
		out[name[len("samples/"):len(name)-len(".yaml")]] = ds
	}
	return out, nil
}
