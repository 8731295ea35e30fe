// Package hooks runs user-supplied Starlark scripts at the compile stages
// that allow them: setup scripts rewrite the document before resolution,
// modify scripts adjust one service's definition after substitution, and
// validate scripts accept or reject the compiled plan.
//
// Scripts are either inline text or a URI loaded through the fsio router.
// Each script sees its inputs as predeclared globals and communicates back
// through a top-level "result" assignment; mutating the config global in
// place works too.
package hooks
