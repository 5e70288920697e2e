package manifest

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/chazu/kestrel/stdlib"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schema     cue.Value
	schemaErr  error
)

// loadSchema compiles the configuration schema once, closing the set of
// module names over the standard registry.
func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		names := stdlib.Registry().Names()
		quoted := make([]string, len(names))
		for i, n := range names {
			quoted[i] = strconv.Quote(n)
		}
		src := schemaSource + "\n#ModuleName: " + strings.Join(quoted, " | ") + "\n"

		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(src, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compiling schema: %w", err)
			return
		}
		schema = v.LookupPath(cue.ParsePath("#Config"))
		schemaErr = schema.Err()
	})
	return schemaCtx, schema, schemaErr
}

// Validate checks a decoded kestrel.toml document against the schema.
// Unknown sections and keys are rejected.
func Validate(doc map[string]any) error {
	ctx, s, err := loadSchema()
	if err != nil {
		return err
	}
	v := s.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}
