package rules

import (
	"strconv"
	"strings"

	"github.com/ternarybob/dronebutler/internal/models"
)

// Context elements addressable by a condition.
const (
	ElementBuild = "build"
	ElementStage = "stage"
	ElementStep  = "step"
)

// validPaths is the fixed attribute surface the rule DSL may reference,
// per context element. Unknown paths are rejected at construction time.
var validPaths = map[string]map[string]bool{
	ElementBuild: {
		"id": true, "number": true, "status": true, "event": true,
		"link": true, "message": true, "ref": true, "source": true,
		"target": true, "author_login": true, "author_name": true,
		"author_email": true, "sender": true,
	},
	ElementStage: {
		"id": true, "number": true, "name": true, "kind": true,
		"type": true, "status": true, "exit_code": true,
		"machine": true, "os": true, "arch": true,
	},
	ElementStep: {
		"id": true, "number": true, "name": true, "status": true,
		"exit_code": true, "output.lines": true, "output.message": true,
		"output.text": true,
	},
}

func validElement(element string) bool {
	_, ok := validPaths[element]
	return ok
}

func validPath(element string, path []string) bool {
	attrs, ok := validPaths[element]
	if !ok {
		return false
	}
	return attrs[strings.Join(path, ".")]
}

// lookup resolves a dot-path against the context, returning the value
// canonicalized to a string list. The second return is false when the
// element is absent from the context or a path segment is missing.
func lookup(ctx *models.AnalysisContext, element string, path []string) ([]string, bool) {
	attr := strings.Join(path, ".")

	switch element {
	case ElementBuild:
		if ctx.Build == nil {
			return nil, false
		}
		return lookupBuild(ctx.Build, attr)
	case ElementStage:
		if ctx.Stage == nil {
			return nil, false
		}
		return lookupStage(ctx.Stage, attr)
	case ElementStep:
		if ctx.Step == nil {
			return nil, false
		}
		return lookupStep(ctx.Step, attr)
	}
	return nil, false
}

func lookupBuild(b *models.Build, attr string) ([]string, bool) {
	switch attr {
	case "id":
		return one(strconv.Itoa(b.ID)), true
	case "number":
		return one(strconv.Itoa(b.Number)), true
	case "status":
		return one(b.Status), true
	case "event":
		return one(b.Event), true
	case "link":
		return one(b.Link), true
	case "message":
		return one(b.Message), true
	case "ref":
		return one(b.Ref), true
	case "source":
		return one(b.Source), true
	case "target":
		return one(b.Target), true
	case "author_login":
		return one(b.AuthorLogin), true
	case "author_name":
		return one(b.AuthorName), true
	case "author_email":
		return one(b.AuthorEmail), true
	case "sender":
		return one(b.Sender), true
	}
	return nil, false
}

func lookupStage(s *models.Stage, attr string) ([]string, bool) {
	switch attr {
	case "id":
		return one(strconv.Itoa(s.ID)), true
	case "number":
		return one(strconv.Itoa(s.Number)), true
	case "name":
		return one(s.Name), true
	case "kind":
		return one(s.Kind), true
	case "type":
		return one(s.Type), true
	case "status":
		return one(s.Status), true
	case "exit_code":
		return one(strconv.Itoa(s.ExitCode)), true
	case "machine":
		return one(s.Machine), true
	case "os":
		return one(s.OS), true
	case "arch":
		return one(s.Arch), true
	}
	return nil, false
}

func lookupStep(s *models.Step, attr string) ([]string, bool) {
	switch attr {
	case "id":
		return one(strconv.Itoa(s.ID)), true
	case "number":
		return one(strconv.Itoa(s.Number)), true
	case "name":
		return one(s.Name), true
	case "status":
		return one(s.Status), true
	case "exit_code":
		return one(strconv.Itoa(s.ExitCode)), true
	case "output.lines":
		if s.Output == nil {
			return nil, false
		}
		return s.Output.LineTexts(), true
	case "output.message":
		if s.Output == nil {
			return nil, false
		}
		return one(s.Output.Message), true
	case "output.text":
		if s.Output == nil {
			return nil, false
		}
		return one(s.Output.Text()), true
	}
	return nil, false
}

func one(v string) []string { return []string{v} }
