package artifact

import (
	"context"
	"fmt"
	"os"
	gopath "path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kie-chi/dnsbuilder/pkg/builder"
	"github.com/kie-chi/dnsbuilder/pkg/config"
	"github.com/kie-chi/dnsbuilder/pkg/fsio"
	"github.com/kie-chi/dnsbuilder/pkg/telemetry"
)

const (
	// contentsDir holds a service's mounted files under its build context.
	contentsDir = "contents"

	// zonesSubdir holds generated zone data under the contents directory.
	zonesSubdir = "zones"

	// generatedConfName is the include file assembled from behavior
	// fragments.
	generatedConfName = "generated_zones.conf"

	// generatedConfPath is where the include file is mounted inside the
	// container.
	generatedConfPath = "/usr/local/etc/generated_zones.conf"

	// includeComment marks lines the writer injected into a main
	// configuration file.
	includeComment = "# Auto-Include by DNS Builder"
)

// Writer materializes a compiled plan into an output tree:
//
//	<out>/<project>/docker-compose.yml
//	<out>/<project>/<service>/Dockerfile
//	<out>/<project>/<service>/contents/...
//	<out>/<project>/<service>/contents/zones/...
//
// Mounted configuration files are copied into each service's contents
// directory so the whole tree is self-contained and can be moved or
// committed as-is.
type Writer struct {
	fs      *fsio.Router
	out     fsio.Path
	baseDir string
	mirror  *config.Value
	now     func() time.Time
	log     *telemetry.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithOutput overrides the output root, default "output" under the working
// directory.
func WithOutput(p fsio.Path) WriterOption {
	return func(w *Writer) { w.out = p }
}

// WithBaseDir anchors origin-relative volume sources at the directory of the
// configuration document.
func WithBaseDir(dir string) WriterOption {
	return func(w *Writer) { w.baseDir = dir }
}

// WithMirror applies package mirror overrides to generated Dockerfiles.
func WithMirror(mirror *config.Value) WriterOption {
	return func(w *Writer) { w.mirror = mirror }
}

// WithWriterClock overrides the time source used for zone file serials.
func WithWriterClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// WithWriterLogger overrides the default logger.
func WithWriterLogger(log *telemetry.Logger) WriterOption {
	return func(w *Writer) { w.log = log }
}

// NewWriter returns a writer emitting through the given filesystem router.
func NewWriter(fs *fsio.Router, opts ...WriterOption) *Writer {
	w := &Writer{
		fs:  fs,
		out: fsio.Path{Protocol: fsio.ProtoFile, Path: "output"},
		now: time.Now,
		log: telemetry.NewDefaultLogger(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// ProjectDir returns the output directory a plan's project renders into.
func (w *Writer) ProjectDir(project string) fsio.Path {
	return w.out.Join(project)
}

// Write renders the whole plan: one directory per service plus the compose
// descriptor. Any previous output for the same project is replaced.
func (w *Writer) Write(ctx context.Context, plan *builder.BuildPlan) error {
	root := w.ProjectDir(plan.Project)
	log := w.log.WithRunID(plan.RunID)

	if err := w.clearProject(root); err != nil {
		return err
	}
	if err := w.fs.MkdirAll(root); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", root, err)
	}

	services := make(map[string]composeService, len(plan.Order))
	for _, name := range plan.Order {
		sp := plan.Service(name)
		if sp == nil || sp.Image == nil {
			continue
		}
		svc, err := w.writeService(root, plan, sp, log.WithService(name))
		if err != nil {
			return err
		}
		services[name] = svc
	}

	content, err := renderCompose(plan, services)
	if err != nil {
		return err
	}
	if err := validateCompose(ctx, plan.Project, content); err != nil {
		return err
	}
	if err := w.fs.WriteBytes(root.Join("docker-compose.yml"), content); err != nil {
		return fmt.Errorf("failed to write compose descriptor: %w", err)
	}

	log.Infof("wrote %d services to %s", len(services), root)
	return nil
}

// clearProject removes a previous render of the same project. Only the disk
// backend supports recursive deletion; in-memory outputs are overwritten in
// place.
func (w *Writer) clearProject(root fsio.Path) error {
	if root.Protocol != fsio.ProtoFile {
		return nil
	}
	ok, err := w.fs.Exists(root)
	if err != nil || !ok {
		return err
	}
	if err := os.RemoveAll(filepath.FromSlash(root.Path)); err != nil {
		return fmt.Errorf("failed to clear previous output %s: %w", root, err)
	}
	return nil
}

// writeService renders one service directory and returns its compose entry.
func (w *Writer) writeService(root fsio.Path, plan *builder.BuildPlan, sp *builder.ServicePlan, log *telemetry.Logger) (composeService, error) {
	svcDir := root.Join(sp.Name)
	contents := svcDir.Join(contentsDir)
	if err := w.fs.MkdirAll(contents); err != nil {
		return composeService{}, fmt.Errorf("failed to create %s: %w", contents, err)
	}

	svc := composeService{
		ContainerName: plan.Project + "-" + sp.Name,
		Hostname:      sp.Name,
		Networks:      map[string]serviceNetwork{networkName: {IPv4Address: sp.Address}},
		CapAdd:        capAddOf(sp.Definition),
		Extra:         passthroughKeys(sp.Definition),
	}
	if sp.Image.Internal {
		dockerfile, err := RenderDockerfile(sp.Image, w.mirror)
		if err != nil {
			return composeService{}, err
		}
		if err := w.fs.WriteText(svcDir.Join("Dockerfile"), dockerfile); err != nil {
			return composeService{}, fmt.Errorf("failed to write Dockerfile for %s: %w", sp.Name, err)
		}
		svc.Build = "./" + sp.Name
		log.WithImage(sp.Image.Name, sp.Image.Software).Debug("wrote Dockerfile")
	} else {
		svc.Image = sp.Image.Reference()
	}

	var volumes []string
	mainConf, err := w.copyVolumes(sp, contents, &volumes)
	if err != nil {
		return composeService{}, err
	}
	if err := w.writeGeneratedFiles(sp, contents, &volumes); err != nil {
		return composeService{}, err
	}
	if err := w.writeZoneFiles(sp, contents, &volumes); err != nil {
		return composeService{}, err
	}
	if err := w.writeFragments(sp, contents, mainConf, &volumes); err != nil {
		return composeService{}, err
	}

	sort.Strings(volumes)
	svc.Volumes = dedupe(volumes)
	return svc, nil
}

// copyVolumes copies every declared volume into the contents directory and
// returns the path of the main configuration file, the first mounted .conf.
// Further .conf mounts get an include line injected into the main file so
// the server actually loads them.
func (w *Writer) copyVolumes(sp *builder.ServicePlan, contents fsio.Path, volumes *[]string) (fsio.Path, error) {
	var mainConf fsio.Path
	haveMain := false

	for _, v := range sp.Volumes {
		filename := gopath.Base(v.Target)
		dst := contents.Join(filename)

		src, err := w.volumeSource(v)
		if err != nil {
			return fsio.Path{}, fmt.Errorf("service %s: %w", sp.Name, err)
		}
		ok, err := w.fs.Exists(src)
		if err != nil {
			return fsio.Path{}, fmt.Errorf("service %s: failed to check volume source %s: %w", sp.Name, src, err)
		}
		if !ok {
			return fsio.Path{}, fmt.Errorf("service %s: volume source %s does not exist", sp.Name, src)
		}
		if err := w.fs.Copy(src, dst); err != nil {
			return fsio.Path{}, fmt.Errorf("service %s: failed to copy volume %s: %w", sp.Name, src, err)
		}

		if strings.HasSuffix(v.Target, ".conf") && isDNSSoftware(sp.Image.Software) {
			if !haveMain {
				mainConf = dst
				haveMain = true
			} else if err := w.includeInMainConf(mainConf, v.Target, sp.Image.Software); err != nil {
				return fsio.Path{}, fmt.Errorf("service %s: %w", sp.Name, err)
			}
		}

		*volumes = append(*volumes, w.mountString(sp.Name, contentsDir+"/"+filename, v.Target, v.Mode))
	}
	return mainConf, nil
}

// volumeSource resolves a volume placement to a readable path.
func (w *Writer) volumeSource(v builder.VolumePlacement) (fsio.Path, error) {
	if v.Resource {
		return fsio.Path{Protocol: fsio.ProtoRes, Path: "/" + strings.TrimPrefix(v.Source, "/")}, nil
	}
	base := ""
	if v.Origin {
		base = w.baseDir
	}
	p, err := fsio.Resolve(v.Source, base)
	if err != nil {
		return fsio.Path{}, fmt.Errorf("invalid volume source %q: %w", v.Source, err)
	}
	return p, nil
}

// writeGeneratedFiles emits auxiliary files such as root hints.
func (w *Writer) writeGeneratedFiles(sp *builder.ServicePlan, contents fsio.Path, volumes *[]string) error {
	if len(sp.Files) == 0 {
		return nil
	}
	zonesDir := contents.Join(zonesSubdir)
	if err := w.fs.MkdirAll(zonesDir); err != nil {
		return fmt.Errorf("service %s: failed to create %s: %w", sp.Name, zonesDir, err)
	}
	for _, f := range sp.Files {
		if err := w.fs.WriteText(zonesDir.Join(f.Name), f.Content); err != nil {
			return fmt.Errorf("service %s: failed to write %s: %w", sp.Name, f.Name, err)
		}
		*volumes = append(*volumes, w.mountString(sp.Name, contentsDir+"/"+zonesSubdir+"/"+f.Name, f.ContainerPath, ""))
	}
	return nil
}

// writeZoneFiles renders authoritative zone data compiled from master
// statements. Files land where the behavior fragments reference them.
func (w *Writer) writeZoneFiles(sp *builder.ServicePlan, contents fsio.Path, volumes *[]string) error {
	if sp.Zones.Len() == 0 {
		return nil
	}
	zonesDir := contents.Join(zonesSubdir)
	if err := w.fs.MkdirAll(zonesDir); err != nil {
		return fmt.Errorf("service %s: failed to create %s: %w", sp.Name, zonesDir, err)
	}
	containerDir := builder.ZoneDir(sp.Image.Software)
	for _, zone := range sp.Zones.Zones() {
		name := builder.ZoneFileName(zone)
		content := builder.RenderZoneFile(zone, sp.Zones.Records(zone), sp.Address, w.now())
		if err := w.fs.WriteText(zonesDir.Join(name), content); err != nil {
			return fmt.Errorf("service %s: failed to write zone file %s: %w", sp.Name, name, err)
		}
		*volumes = append(*volumes, w.mountString(sp.Name, contentsDir+"/"+zonesSubdir+"/"+name, containerDir+"/"+name, ""))
	}
	return nil
}

// writeFragments assembles behavior fragments into the generated include
// file and hooks it into the main configuration.
func (w *Writer) writeFragments(sp *builder.ServicePlan, contents fsio.Path, mainConf fsio.Path, volumes *[]string) error {
	if len(sp.Fragments) == 0 {
		return nil
	}
	if mainConf.Protocol == "" {
		return fmt.Errorf("service %s has behavior statements but no main .conf volume to include them from", sp.Name)
	}

	body := renderFragments(sp.Image.Software, sp.Fragments)
	if strings.TrimSpace(body) == "" {
		return nil
	}
	content := fmt.Sprintf("# Auto-generated by DNS Builder for '%s'\n\n%s\n", sp.Name, strings.TrimRight(body, "\n"))
	if err := w.fs.WriteText(contents.Join(generatedConfName), content); err != nil {
		return fmt.Errorf("service %s: failed to write %s: %w", sp.Name, generatedConfName, err)
	}
	*volumes = append(*volumes, w.mountString(sp.Name, contentsDir+"/"+generatedConfName, generatedConfPath, ""))
	if err := w.includeInMainConf(mainConf, generatedConfPath, sp.Image.Software); err != nil {
		return fmt.Errorf("service %s: %w", sp.Name, err)
	}
	return nil
}

// includeInMainConf appends an include directive to the main configuration
// file unless it already references the container path.
func (w *Writer) includeInMainConf(mainConf fsio.Path, containerPath, software string) error {
	content, err := w.fs.ReadText(mainConf)
	if err != nil {
		return fmt.Errorf("failed to read main configuration %s: %w", mainConf, err)
	}
	if strings.Contains(content, containerPath) {
		return nil
	}
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += includeLine(software, containerPath)
	if err := w.fs.WriteText(mainConf, content); err != nil {
		return fmt.Errorf("failed to update main configuration %s: %w", mainConf, err)
	}
	return nil
}

// includeLine renders the include directive in the target format.
func includeLine(software, containerPath string) string {
	if software == builder.SoftwareUnbound {
		return fmt.Sprintf("\n%s\ninclude: \"%s\"\n", includeComment, containerPath)
	}
	return fmt.Sprintf("%s\ninclude \"%s\";\n", includeComment, containerPath)
}

// renderFragments joins configuration fragments into one include file body.
// Unbound groups server options under a single server: clause with its
// toplevel blocks after it; bind has a flat grammar so fragments concatenate
// directly, toplevel blocks first.
func renderFragments(software string, frags []builder.Fragment) string {
	var server, toplevel []string
	for _, f := range frags {
		if f.Section == builder.SectionServer {
			server = append(server, f.Text)
		} else {
			toplevel = append(toplevel, f.Text)
		}
	}

	if software == builder.SoftwareUnbound {
		var b strings.Builder
		if len(server) > 0 {
			b.WriteString("server:\n")
			for _, text := range server {
				for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
					b.WriteString("\t")
					b.WriteString(line)
					b.WriteString("\n")
				}
			}
		}
		if len(toplevel) > 0 {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(strings.Join(toplevel, "\n\n"))
		}
		return b.String()
	}

	return strings.Join(append(toplevel, server...), "\n")
}

// mountString renders one compose volume entry, host side relative to the
// project output directory.
func (w *Writer) mountString(service, rel, target, mode string) string {
	s := "./" + service + "/" + rel + ":" + target
	if mode != "" {
		s += ":" + mode
	}
	return s
}

func isDNSSoftware(software string) bool {
	return software == builder.SoftwareBind || software == builder.SoftwareUnbound
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
