package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// documentSchema is the CUE schema the raw document is checked against before
// the typed document is built. It constrains structure only; reference and
// behavior semantics are validated later with real context.
const documentSchema = `
#Document: {
	name: string & !=""
	inet: string & !=""
	images?: {[!~":"]: {...}}
	builds?: {[!~":"]: {...}} | [...]
	include?: string | [...string]
	auto?: {...}
	mirror?: {...}
	...
}
`

// ValidateSchema unifies the raw document with the embedded CUE schema and
// reports the first structural violation.
func ValidateSchema(raw *Value) error {
	cctx := cuecontext.New()

	schema := cctx.CompileString(documentSchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("internal: compile document schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Document"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("internal: lookup document schema: %w", err)
	}

	doc := cctx.Encode(raw.ToGo())
	if err := doc.Err(); err != nil {
		return fmt.Errorf("encode document for schema check: %w", err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Final()); err != nil {
		return fmt.Errorf("document schema violation: %s", cueerrors.Details(err, nil))
	}
	return nil
}
