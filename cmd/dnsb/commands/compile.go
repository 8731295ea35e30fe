package commands

import (
	"context"
	"os"
	gopath "path"

	"github.com/rs/zerolog/log"

	"github.com/kie-chi/dnsbuilder/pkg/builder"
	"github.com/kie-chi/dnsbuilder/pkg/config"
	"github.com/kie-chi/dnsbuilder/pkg/fsio"
	"github.com/kie-chi/dnsbuilder/pkg/hooks"
	"github.com/kie-chi/dnsbuilder/pkg/telemetry"
)

// newRouter builds the filesystem router with every backend the CLI can
// reach. sftp credentials come from the environment so documents can pull
// includes and volumes from lab hosts without flags on every command.
func newRouter() *fsio.Router {
	fs := fsio.NewRouter()
	fs.Mount(fsio.ProtoGit, fsio.NewGitFS())
	if user := os.Getenv("DNSB_SFTP_USER"); user != "" {
		fs.Mount(fsio.ProtoSFTP, fsio.NewSFTPFS(fsio.SFTPConfig{
			User:     user,
			Password: os.Getenv("DNSB_SFTP_PASSWORD"),
			KeyFile:  os.Getenv("DNSB_SFTP_KEY"),
		}))
	}
	return fs
}

// loadDocument reads and validates the configuration document at uri,
// include chain merged and comprehensions expanded.
func loadDocument(fs *fsio.Router, uri string) (*config.Document, error) {
	return config.NewLoader(fs).Load(uri)
}

// baseDirOf returns the directory origin-relative volume sources resolve
// against: the directory of the configuration document for local files.
func baseDirOf(uri string) string {
	p, err := fsio.Parse(uri)
	if err != nil || p.Protocol != fsio.ProtoFile {
		return ""
	}
	return gopath.Dir(p.Path)
}

// compile runs the full pipeline for a loaded document.
func compile(ctx context.Context, fs *fsio.Router, doc *config.Document, tel *telemetry.Telemetry, opts ...builder.Option) (*builder.BuildPlan, error) {
	runner := hooks.NewEngine(fs, hooks.WithLogger(tel.Logger.NewComponentLogger("hooks")))
	base := []builder.Option{
		builder.WithHooks(runner),
		builder.WithTelemetry(tel),
	}
	plan, err := builder.NewPipeline(doc, append(base, opts...)...).Run(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("project", plan.Project).Int("services", len(plan.Order)).Msg("Compile finished")
	return plan, nil
}
