// Package artifact turns a compiled build plan into files on disk: one
// directory per service holding a Dockerfile and its mounted configuration,
// plus a docker-compose.yml tying the topology together.
//
// The writer copies every declared volume into the service's contents
// directory, renders zone files and the generated include file from the
// plan, and injects include directives into the main configuration so the
// server picks up generated content without manual edits. The rendered
// compose descriptor is validated with the compose-spec loader before it is
// written.
//
//	w := artifact.NewWriter(fsio.NewRouter(),
//		artifact.WithBaseDir(filepath.Dir(configPath)),
//		artifact.WithMirror(doc.Mirror),
//	)
//	if err := w.Write(ctx, plan); err != nil {
//		...
//	}
package artifact
