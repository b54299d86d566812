package core

// schema.go defines the import file layout: the columns a file may carry,
// which of them are required, and the type/length rules each one follows.
// Validation, template generation and export all read from this table so
// that an exported file can be imported again unchanged.

import "strings"

// Column names as they appear (normalised) in import headers.
const (
	ColSiteName        = "site_name"
	ColCellName        = "cell_name"
	ColCellType        = "cell_type"
	ColEquipmentName   = "equipment_name"
	ColTagID           = "tag_id"
	ColDescription     = "description"
	ColMake            = "make"
	ColModel           = "model"
	ColIPAddress       = "ip_address"
	ColFirmwareVersion = "firmware_version"
	ColEquipmentType   = "equipment_type"
	ColTags            = "tags"
)

// FieldType categorizes how a column value is checked.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldIP
	FieldList
)

// FieldSpec describes one import column.
type FieldSpec struct {
	Name       string
	Type       FieldType
	Required   bool
	MinLen     int // 0 means no lower bound
	MaxLen     int // 0 means unbounded
	EnumValues []string
	EnumError  string // message used when an enum value is not allowed
}

// EquipmentTypes is the allowed set for equipment_type.
var EquipmentTypes = []string{
	"PLC", "HMI", "DRIVE", "IO_MODULE", "ROBOT",
	"SAFETY_CONTROLLER", "NETWORK_SWITCH", "OTHER",
}

// CellTypes is the allowed set for cell_type.
var CellTypes = []string{
	"PRODUCTION", "ASSEMBLY", "PACKAGING", "QUALITY", "WAREHOUSE", "UTILITY",
}

// ImportFields lists every recognised column in template order.
var ImportFields = []FieldSpec{
	{Name: ColSiteName, Type: FieldText, Required: true, MaxLen: 100},
	{Name: ColCellName, Type: FieldText, Required: true, MaxLen: 100},
	{Name: ColCellType, Type: FieldEnum, EnumValues: CellTypes, EnumError: "Invalid cell type"},
	{Name: ColEquipmentName, Type: FieldText, Required: true, MaxLen: 100},
	{Name: ColTagID, Type: FieldText, Required: true, MinLen: 3, MaxLen: 100},
	{Name: ColDescription, Type: FieldText, Required: true, MaxLen: 255},
	{Name: ColMake, Type: FieldText, Required: true, MaxLen: 100},
	{Name: ColModel, Type: FieldText, Required: true, MaxLen: 100},
	{Name: ColIPAddress, Type: FieldIP},
	{Name: ColFirmwareVersion, Type: FieldText, MaxLen: 50},
	{Name: ColEquipmentType, Type: FieldEnum, EnumValues: EquipmentTypes, EnumError: "Invalid equipment type"},
	{Name: ColTags, Type: FieldList},
}

// RequiredHeaders returns the column names every import file must carry.
func RequiredHeaders() []string {
	var out []string
	for _, f := range ImportFields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// ImportColumnNames returns every recognised column in template order.
func ImportColumnNames() []string {
	out := make([]string, len(ImportFields))
	for i, f := range ImportFields {
		out[i] = f.Name
	}
	return out
}

// NormalizeHeader converts a raw header cell to lower snake case:
// "Site Name" and "site-name" both become "site_name".
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range h {
		switch {
		case r == ' ' || r == '-' || r == '_' || r == '\t':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		default:
			b.WriteRune(r)
			lastUnderscore = false
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// canonicalEnum returns the allowed spelling of v, matching case-insensitively.
func canonicalEnum(v string, allowed []string) (string, bool) {
	for _, a := range allowed {
		if strings.EqualFold(a, v) {
			return a, true
		}
	}
	return "", false
}

// splitTags splits a tags cell on ';' or ',' and drops blanks and repeats.
func splitTags(v string) []string {
	parts := strings.FieldsFunc(v, func(r rune) bool { return r == ';' || r == ',' })
	seen := make(map[string]bool, len(parts))
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
