package credential

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog holds the enumerated domains a credential row is checked against.
// Matching is case-insensitive; accepted values are normalized to the
// catalog's spelling.
type Catalog struct {
	Colleges     []string `yaml:"colleges"`
	Departments  []string `yaml:"departments"`
	Programs     []string `yaml:"programs"`
	ProgramTypes []string `yaml:"programTypes"`
	Statuses     []string `yaml:"statuses"`
	Genders      []string `yaml:"genders"`
}

// departmentsByCollege is the registrar's default college/department tree.
var departmentsByCollege = []struct {
	college     string
	departments []string
}{
	{"Engineering and Technology", []string{
		"Computer Science", "Mechanical Engineering", "Electrical Engineering", "Civil Engineering",
	}},
	{"Business and Economics", []string{
		"Accounting and Finance", "Banking and Finance", "Economics", "Marketing Management",
		"Management", "Public Administration", "Hotel and Tourism Management",
	}},
	{"Health Science", []string{
		"Nursing", "Pharmacy", "Public Health", "Midwifery",
	}},
	{"Social Science", []string{
		"English Language and Literature", "History and Heritage Management",
		"Geography and Environmental Studies", "Curriculum and Instruction", "Psychology",
		"Special Needs and Inclusive Education", "Law", "Sociology", "Civics and Ethical Studies",
		"Political Science and International Relations",
	}},
	{"Agriculture and Natural Resource", []string{
		"Animal Science", "Agro Economics", "Natural Resource Management",
		"Soil and Water Conservation", "Horticulture", "Plant Science", "Forestry",
		"Veterinary Medicine", "Coffee Science and Technology",
	}},
	{"Natural and Computational Science", []string{
		"Mathematics", "Physics", "Chemistry", "Biology", "Statistics", "Geology", "Sports Science",
	}},
}

// DefaultCatalog returns the built-in enumerated domains.
func DefaultCatalog() Catalog {
	c := Catalog{
		Programs:     []string{"BSc", "MSc", "PhD"},
		ProgramTypes: []string{"regular", "weekend", "extension", "summer", "distance", "night"},
		Statuses:     []string{"verified", "pending", "suspended"},
		Genders:      []string{"male", "female"},
	}
	for _, entry := range departmentsByCollege {
		c.Colleges = append(c.Colleges, entry.college)
		c.Departments = append(c.Departments, entry.departments...)
	}
	return c
}

// LoadCatalog reads a YAML catalog file. Sections left out of the file keep
// their default values. An empty path returns the default catalog.
func LoadCatalog(path string) (Catalog, error) {
	c := DefaultCatalog()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}

	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	c.merge(override)
	if err := c.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) merge(o Catalog) {
	if len(o.Colleges) > 0 {
		c.Colleges = o.Colleges
	}
	if len(o.Departments) > 0 {
		c.Departments = o.Departments
	}
	if len(o.Programs) > 0 {
		c.Programs = o.Programs
	}
	if len(o.ProgramTypes) > 0 {
		c.ProgramTypes = o.ProgramTypes
	}
	if len(o.Statuses) > 0 {
		c.Statuses = o.Statuses
	}
	if len(o.Genders) > 0 {
		c.Genders = o.Genders
	}
}

// Validate checks that every domain has at least one non-blank value.
func (c Catalog) Validate() error {
	var errs []string
	domains := []struct {
		name   string
		values []string
	}{
		{"colleges", c.Colleges},
		{"departments", c.Departments},
		{"programs", c.Programs},
		{"programTypes", c.ProgramTypes},
		{"statuses", c.Statuses},
		{"genders", c.Genders},
	}
	for _, d := range domains {
		if len(d.values) == 0 {
			errs = append(errs, d.name+" is empty")
			continue
		}
		for _, v := range d.values {
			if strings.TrimSpace(v) == "" {
				errs = append(errs, d.name+" contains a blank value")
				break
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid catalog: %s", strings.Join(errs, "; "))
	}
	return nil
}

// lookup returns the catalog spelling of value if it is a case-insensitive
// member of domain.
func lookup(domain []string, value string) (string, bool) {
	for _, v := range domain {
		if strings.EqualFold(v, value) {
			return v, true
		}
	}
	return "", false
}
