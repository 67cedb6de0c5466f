package pipeline

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/qbank-cli/internal/model"
)

// Institution is one catalog entry. Aliases are matched as
// case-insensitive substrings of the filename.
type Institution struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// Catalog resolves institutions from filenames.
type Catalog struct {
	entries []alias
}

type alias struct {
	needle string
	name   string
}

// defaultInstitutions covers the residency exams most often imported.
var defaultInstitutions = []Institution{
	{Name: "USP", Aliases: []string{"FMUSP", "USP-SP", "USP RP", "USP"}},
	{Name: "UNIFESP", Aliases: []string{"UNIFESP"}},
	{Name: "UNICAMP", Aliases: []string{"UNICAMP"}},
	{Name: "UNESP", Aliases: []string{"UNESP", "Botucatu"}},
	{Name: "SUS-SP", Aliases: []string{"SUS-SP", "SUS SP", "SUSSP"}},
	{Name: "Santa Casa SP", Aliases: []string{"Santa Casa", "SCMSP"}},
	{Name: "Einstein", Aliases: []string{"Einstein", "HIAE"}},
	{Name: "Sírio-Libanês", Aliases: []string{"Sirio", "Sírio"}},
	{Name: "IAMSPE", Aliases: []string{"IAMSPE"}},
	{Name: "ENARE", Aliases: []string{"ENARE", "EBSERH"}},
	{Name: "PSU-MG", Aliases: []string{"PSU-MG", "PSU MG", "PSUMG"}},
	{Name: "AMRIGS", Aliases: []string{"AMRIGS"}},
	{Name: "HCPA", Aliases: []string{"HCPA"}},
	{Name: "UFRJ", Aliases: []string{"UFRJ"}},
	{Name: "UERJ", Aliases: []string{"UERJ"}},
	{Name: "UFPR", Aliases: []string{"UFPR"}},
	{Name: "SES-DF", Aliases: []string{"SES-DF", "SES DF", "SESDF"}},
	{Name: "SURCE", Aliases: []string{"SURCE"}},
	{Name: "AMP-PR", Aliases: []string{"AMP-PR", "AMP PR"}},
}

// NewCatalog builds a catalog. Longer aliases are tried first so that
// "FMUSP" wins over "USP".
func NewCatalog(institutions []Institution) *Catalog {
	c := &Catalog{}
	for _, inst := range institutions {
		name := strings.TrimSpace(inst.Name)
		if name == "" {
			continue
		}
		needles := inst.Aliases
		if len(needles) == 0 {
			needles = []string{name}
		}
		for _, n := range needles {
			n = strings.ToLower(strings.TrimSpace(n))
			if n != "" {
				c.entries = append(c.entries, alias{needle: n, name: name})
			}
		}
	}
	sort.SliceStable(c.entries, func(i, j int) bool {
		return len(c.entries[i].needle) > len(c.entries[j].needle)
	})
	return c
}

// DefaultCatalog returns the built-in institution catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultInstitutions)
}

type catalogFile struct {
	Institutions []Institution `yaml:"institutions"`
}

// LoadCatalog reads an institution catalog from a yaml file. An empty path
// returns the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "metadata: read catalog %s", path)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "metadata: parse catalog %s", path)
	}
	if len(f.Institutions) == 0 {
		return nil, eris.Errorf("metadata: catalog %s has no institutions", path)
	}
	return NewCatalog(f.Institutions), nil
}

// Match returns the institution named in s, or "".
func (c *Catalog) Match(s string) string {
	if c == nil {
		return ""
	}
	lower := strings.ToLower(s)
	for _, e := range c.entries {
		if strings.Contains(lower, e.needle) {
			return e.name
		}
	}
	return ""
}

var (
	yearPattern      = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)[0-9]{2})(?:[^0-9]|$)`)
	simulatedPattern = regexp.MustCompile(`(?i)simulad[oa]`)
	lessonPattern    = regexp.MustCompile(`(?i)aula|apostila`)
)

// InferMetadata derives the document title and metadata from a filename.
func InferMetadata(filename string, catalog *Catalog) (string, model.DocumentMeta) {
	base := filepath.Base(filename)
	meta := model.DocumentMeta{
		Type:        model.DocumentTypeExam,
		Institution: catalog.Match(base),
	}
	if m := yearPattern.FindStringSubmatch(base); m != nil {
		meta.Year, _ = strconv.Atoi(m[1])
	}
	switch {
	case simulatedPattern.MatchString(base):
		meta.Type = model.DocumentTypeSimulated
	case lessonPattern.MatchString(base):
		meta.Type = model.DocumentTypeLesson
	}
	return DocumentTitle(base), meta
}

// DocumentTitle is the filename stem with separators replaced by spaces.
func DocumentTitle(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}
