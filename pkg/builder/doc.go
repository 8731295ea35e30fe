// Package builder compiles a merged configuration document into a build
// plan: it flattens reference chains, allocates service addresses, resolves
// ${...} variables, compiles behavior statements into DNS configuration
// fragments and zone records, and runs hook scripts between stages.
//
// The entry point is Pipeline:
//
//	doc, _ := loader.Load("file:///lab/main.yml")
//	plan, err := builder.NewPipeline(doc).Run(ctx)
//
// The resulting BuildPlan is deterministic for a fixed document, environment
// and label source, which makes it cacheable by content digest.
package builder
