package pipeline

import (
	"strings"

	"exteroid/internal"
)

type aliasGroup struct {
	Field   internal.SemanticField
	Aliases []string
}

// columnAliases is matched in declaration order; the first group with a
// substring hit wins.
var columnAliases = []aliasGroup{
	{Field: internal.FieldPhone, Aliases: []string{"phone", "mobile", "contact", "cell", "telephone", "mobile no", "contact number", "whatsapp"}},
	{Field: internal.FieldName, Aliases: []string{"name", "full name", "customer name", "person name", "client name", "nama"}},
	{Field: internal.FieldEmail, Aliases: []string{"email", "mail", "e-mail", "email address"}},
	{Field: internal.FieldAddress, Aliases: []string{"address", "location", "addr", "full address", "alamat"}},
	{Field: internal.FieldDate, Aliases: []string{"date", "timestamp", "created", "modified", "dob"}},
	{Field: internal.FieldCity, Aliases: []string{"city", "district", "town"}},
	{Field: internal.FieldState, Aliases: []string{"state", "province", "region"}},
	{Field: internal.FieldPincode, Aliases: []string{"pincode", "pin", "zip", "postal", "zipcode"}},
}

type Classification struct {
	Field internal.SemanticField
	Label string
	Key   string
}

// ClassifyHeader maps a raw header to a semantic field. Unmatched headers are
// Other and keep their own text as label.
func ClassifyHeader(header string) Classification {
	h := strings.ToLower(strings.TrimSpace(header))
	for _, g := range columnAliases {
		if containsAny(h, g.Aliases) {
			label := string(g.Field)
			return Classification{Field: g.Field, Label: label, Key: groupKey(label)}
		}
	}
	return Classification{Field: internal.FieldOther, Label: header, Key: groupKey(header)}
}

func groupKey(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), "_")
}

func containsAny(s string, needles []string) bool {
	for _, p := range needles {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
