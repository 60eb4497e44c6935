package dataset

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// Alias maps a source header onto a canonical column name
type Alias struct {
	Header    string
	Canonical string
}

// Aliases is the ordered alias table. When several aliases of the same
// canonical column are present the first one listed here wins.
var Aliases = []Alias{
	{"Temperature ⁰C", models.ColumnTemp},
	{"Temperature °C", models.ColumnTemp},
	{"Temperature", models.ColumnTemp},
	{"Conductivity (μmhos/cm)", models.ColumnConductivity},
	{"Nitrate N (mg/L)", models.ColumnNitrate},
	{"Faecal Coliform (MPN/100ml)", models.ColumnFecalColiform},
	{"Fecal Coliform (MPN/100ml)", models.ColumnFecalColiform},
	{"Total Coliform (MPN/100ml)", models.ColumnTotalColiform},
	{"Total Dissolved Solids (mg/L)", models.ColumnTDS},
	{"Fluoride (mg/L)", models.ColumnFluoride},
}

// aliasesFor returns the normalized alias headers of a canonical column in table order
func aliasesFor(canonical string) []string {
	var out []string
	for _, a := range Aliases {
		if a.Canonical == canonical {
			out = append(out, NormalizeHeader(a.Header))
		}
	}
	return out
}

// NormalizeHeader folds a header into the form used for matching: NFKC
// (so the micro sign and Greek mu compare equal), no byte order mark, trimmed,
// with internal whitespace runs collapsed to one space.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = norm.NFKC.String(h)
	return strings.Join(strings.Fields(h), " ")
}
