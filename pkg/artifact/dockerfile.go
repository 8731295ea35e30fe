package artifact

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/kie-chi/dnsbuilder/pkg/builder"
	"github.com/kie-chi/dnsbuilder/pkg/config"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var dockerfileTemplates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// dockerfileVars feeds the per-software Dockerfile template.
type dockerfileVars struct {
	Name         string
	Version      string
	BaseImage    string
	DepPackages  string
	UtilPackages string
	PipInstall   string
	AptMirror    string
	PipMirror    string
}

// RenderDockerfile produces the Dockerfile for an internal image. Package
// lists are sorted so the output is stable regardless of definition order.
// Python-ecosystem dependencies (python3-<pkg>) are installed through pip
// instead of apt so the build works on slim bases too.
func RenderDockerfile(img *builder.Image, mirror *config.Value) (string, error) {
	if img == nil || !img.Internal {
		return "", fmt.Errorf("image %s is external, nothing to build", imageName(img))
	}

	vars := dockerfileVars{
		Name:      img.Name,
		Version:   img.Version,
		BaseImage: img.From,
	}

	deps := append([]string(nil), img.Dependencies...)
	utils := append([]string(nil), img.Utils...)
	sort.Strings(deps)
	sort.Strings(utils)

	switch img.Software {
	case builder.SoftwareBind:
		deps, vars.PipInstall = splitPipPackages(deps, "pip3")
		vars.DepPackages = strings.Join(deps, " ")
		vars.UtilPackages = strings.Join(utils, " ")
		vars.PipMirror = pipMirrorLine(mirror, "pip3")
	case builder.SoftwareUnbound:
		vars.DepPackages = strings.Join(deps, " ")
		vars.UtilPackages = strings.Join(utils, " ")
	case builder.SoftwarePython:
		// The interpreter ships with the base image; everything python3-*
		// from the util list goes through pip.
		utils, vars.PipInstall = splitPipPackages(utils, "pip")
		vars.UtilPackages = strings.Join(utils, " ")
		vars.PipMirror = pipMirrorLine(mirror, "pip")
	default:
		return "", fmt.Errorf("image %s has unsupported software %s", img.Name, img.Software)
	}
	vars.AptMirror = aptMirrorLine(mirror)

	var buf strings.Builder
	name := "Dockerfile." + img.Software + ".tmpl"
	if err := dockerfileTemplates.ExecuteTemplate(&buf, name, vars); err != nil {
		return "", fmt.Errorf("failed to render Dockerfile for image %s: %w", img.Name, err)
	}
	return buf.String(), nil
}

// splitPipPackages separates python3-<pkg> entries from an apt package list
// and turns them into a single pip install instruction. python3 itself and
// python3-pip stay on the apt side since pip needs them to exist.
func splitPipPackages(packages []string, pipCmd string) ([]string, string) {
	var apt, pip []string
	for _, pkg := range packages {
		if pkg == "python3" || pkg == "python3-pip" {
			apt = append(apt, pkg)
			continue
		}
		if name, ok := strings.CutPrefix(pkg, "python3-"); ok {
			pip = append(pip, name)
			continue
		}
		apt = append(apt, pkg)
	}
	if len(pip) == 0 {
		return apt, ""
	}
	if pipCmd == "pip" {
		return apt, "RUN pip install --no-cache-dir " + strings.Join(pip, " ")
	}
	return apt, "RUN " + pipCmd + " install " + strings.Join(pip, " ")
}

// aptMirrorLine rewrites the stock apt sources to the configured mirror.
func aptMirrorLine(mirror *config.Value) string {
	host := mirrorValue(mirror, "apt")
	if host == "" {
		return ""
	}
	host = strings.TrimSuffix(stripScheme(host), "/")
	return fmt.Sprintf("RUN sed -i 's|archive.ubuntu.com|%s|g; s|security.ubuntu.com|%s|g; s|deb.debian.org|%s|g' /etc/apt/sources.list", host, host, host)
}

// pipMirrorLine points pip at the configured index.
func pipMirrorLine(mirror *config.Value, pipCmd string) string {
	url := mirrorValue(mirror, "pip")
	if url == "" {
		return ""
	}
	if !strings.Contains(url, "://") {
		url = "https://" + strings.TrimSuffix(url, "/") + "/simple"
	}
	return fmt.Sprintf("RUN %s config set global.index-url %s", pipCmd, url)
}

func mirrorValue(mirror *config.Value, key string) string {
	if mirror == nil {
		return ""
	}
	v, ok := mirror.Get(key)
	if !ok || v.Kind() != config.KindScalar {
		return ""
	}
	return v.Text()
}

func stripScheme(s string) string {
	if i := strings.Index(s, "://"); i >= 0 {
		return s[i+3:]
	}
	return s
}

func imageName(img *builder.Image) string {
	if img == nil {
		return "<nil>"
	}
	return img.Name
}
