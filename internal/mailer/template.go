package mailer

import "strings"

// RenderTemplate substitutes {{key}} tokens in the template with the
// corresponding values in a single pass, so values that themselves contain
// tokens are left as typed. Unknown tokens are kept.
func RenderTemplate(tmpl string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
