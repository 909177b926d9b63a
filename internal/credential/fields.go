package credential

import "strings"

// Canonical column names.
const (
	ColIdentifier  = "certificateID"
	ColFirstName   = "firstName"
	ColMiddleName  = "middleName"
	ColLastName    = "lastName"
	ColDepartment  = "department"
	ColCollege     = "college"
	ColGender      = "gender"
	ColScore       = "cgpa"
	ColProgram     = "program"
	ColProgramType = "programType"
	ColStatus      = "gstatus"
	ColStartDate   = "startDate"
	ColEndDate     = "endDate"
	ColPhoto       = "photo"
)

// FieldSpec describes one column of the upload contract.
type FieldSpec struct {
	Name     string   // canonical column name
	Aliases  []string // other accepted header spellings
	Required bool     // column must exist and be filled in the first data row
}

// FieldSpecs is the upload column contract, in template order.
var FieldSpecs = []FieldSpec{
	{Name: ColIdentifier, Aliases: []string{"identifier", "id"}, Required: true},
	{Name: ColFirstName, Required: true},
	{Name: ColMiddleName, Required: true},
	{Name: ColLastName, Required: true},
	{Name: ColDepartment, Required: true},
	{Name: ColCollege, Required: true},
	{Name: ColGender, Aliases: []string{"sex"}, Required: true},
	{Name: ColScore, Aliases: []string{"score", "gpa"}, Required: true},
	{Name: ColProgram, Required: true},
	{Name: ColProgramType, Required: true},
	{Name: ColStatus, Aliases: []string{"status"}, Required: true},
	{Name: ColStartDate, Aliases: []string{"periodStart"}, Required: true},
	{Name: ColEndDate, Aliases: []string{"periodEnd"}, Required: true},
	{Name: ColPhoto, Aliases: []string{"displayAsset"}},
}

// columnLookup maps a normalized header spelling to its canonical name.
var columnLookup = buildColumnLookup(FieldSpecs)

func buildColumnLookup(specs []FieldSpec) map[string]string {
	m := make(map[string]string)
	for _, spec := range specs {
		m[headerKey(spec.Name)] = spec.Name
		for _, alias := range spec.Aliases {
			m[headerKey(alias)] = spec.Name
		}
	}
	return m
}

// CanonicalColumn returns the canonical column name for a raw header cell.
func CanonicalColumn(header string) (string, bool) {
	name, ok := columnLookup[headerKey(header)]
	return name, ok
}

// RequiredColumns returns the canonical names of all required columns.
func RequiredColumns() []string {
	var cols []string
	for _, spec := range FieldSpecs {
		if spec.Required {
			cols = append(cols, spec.Name)
		}
	}
	return cols
}

// headerKey folds case and drops separators so "Start Date", "start_date"
// and "startDate" compare equal.
func headerKey(s string) string {
	s = strings.ToLower(CleanCell(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\t':
			return -1
		}
		return r
	}, s)
}
