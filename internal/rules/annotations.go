package rules

import (
	"regexp"
	"strings"

	"github.com/ternarybob/dronebutler/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\{(build|stage|step)\.([a-z_.]+)\}`)

// Interpolate replaces {element.attribute} placeholders in an annotation
// with values resolved from the context, e.g. "branch {build.ref} is
// invalid". Unresolvable placeholders are left verbatim.
func Interpolate(template string, ctx *models.AnalysisContext) string {
	if ctx == nil || !strings.Contains(template, "{") {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(placeholder string) string {
		parts := placeholderPattern.FindStringSubmatch(placeholder)
		value, ok := lookup(ctx, parts[1], strings.Split(parts[2], "."))
		if !ok || len(value) == 0 {
			return placeholder
		}
		return strings.Join(value, "\n")
	})
}
