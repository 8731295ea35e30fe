package builder

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/kie-chi/dnsbuilder/pkg/telemetry"
)

// Behavior statement kinds.
const (
	BehaviorForward = "forward"
	BehaviorHint    = "hint"
	BehaviorStub    = "stub"
	BehaviorMaster  = "master"
)

// defaultRecordTTL is used when a master statement omits or mangles its TTL.
const defaultRecordTTL = 3600

// Statement is one parsed behavior line.
type Statement struct {
	// Line is the 1-based line number in the behavior text.
	Line int

	// Raw is the original line, for diagnostics.
	Raw string

	// Zone is the normalized zone name the statement applies to.
	Zone string

	// Kind is one of the behavior kinds.
	Kind string

	// Targets are the statement targets: service names, addresses, or owner
	// names depending on the kind.
	Targets []string

	// RName and RType describe the record of a master statement.
	RName string
	RType string

	// TTL is the record time to live of a master statement.
	TTL int
}

// ParseBehavior splits a behavior text into statements. Blank lines and
// "#" comments are skipped.
func ParseBehavior(text string) ([]Statement, error) {
	var stmts []Statement
	for i, line := range strings.Split(text, "\n") {
		raw := strings.TrimSpace(line)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		stmt, err := parseStatement(i+1, raw)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func parseStatement(line int, raw string) (Statement, error) {
	fields := strings.Fields(raw)
	if len(fields) < 2 {
		return Statement{}, NewBehaviorError("statement needs a zone and a kind: "+raw, nil).WithLine(line)
	}
	stmt := Statement{
		Line: line,
		Raw:  raw,
		Zone: normalizeZone(fields[0]),
		Kind: fields[1],
	}

	switch stmt.Kind {
	case BehaviorForward, BehaviorStub:
		stmt.Targets = splitTargets(fields[2:])
		if len(stmt.Targets) == 0 {
			return Statement{}, NewBehaviorError(stmt.Kind+" statement needs at least one target: "+raw, nil).WithLine(line)
		}
	case BehaviorHint:
		stmt.Targets = splitTargets(fields[2:])
		if len(stmt.Targets) != 1 {
			return Statement{}, NewBehaviorError("hint statement needs exactly one target: "+raw, nil).WithLine(line)
		}
	case BehaviorMaster:
		if len(fields) < 5 {
			return Statement{}, NewBehaviorError("master statement needs a name, type and target: "+raw, nil).WithLine(line)
		}
		stmt.RName = fields[2]
		stmt.RType = strings.ToUpper(fields[3])
		stmt.TTL = defaultRecordTTL
		rest := fields[4:]
		if len(rest) >= 2 {
			if ttl, err := strconv.Atoi(rest[0]); err == nil {
				if ttl > 0 {
					stmt.TTL = ttl
				}
				rest = rest[1:]
			}
		}
		stmt.Targets = splitTargets(rest)
	default:
		return Statement{}, NewBehaviorError("unknown behavior kind "+stmt.Kind+": "+raw, nil).WithLine(line)
	}
	return stmt, nil
}

// splitTargets expands comma-separated target lists. A statement may carry
// its targets as "ns1,ns2" in one token or spread across several.
func splitTargets(tokens []string) []string {
	var out []string
	for _, tok := range tokens {
		for _, part := range strings.Split(tok, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// BehaviorResult is the output of compiling one service's behavior text.
type BehaviorResult struct {
	// Fragments are configuration fragments in statement order.
	Fragments []Fragment

	// Files are generated auxiliary files such as root hints.
	Files []GeneratedFile

	// Zones holds records from master statements.
	Zones *ZoneRecordSet
}

// BehaviorCompiler turns behavior statements into configuration fragments
// for one service's DNS software.
type BehaviorCompiler struct {
	service   string
	software  string
	addresses map[string]string
	labels    LabelSource
	log       *telemetry.Logger

	result      *BehaviorResult
	masterZones map[string]struct{}
}

// NewBehaviorCompiler prepares a compiler for one service. addresses maps
// service names to their allocated IPv4 addresses and is used for target
// resolution.
func NewBehaviorCompiler(service, software string, addresses map[string]string, labels LabelSource, log *telemetry.Logger) *BehaviorCompiler {
	if labels == nil {
		labels = RandomLabels()
	}
	if log == nil {
		log = telemetry.NewDefaultLogger().WithService(service)
	}
	return &BehaviorCompiler{
		service:   service,
		software:  software,
		addresses: addresses,
		labels:    labels,
		log:       log,
	}
}

// Compile parses and compiles the behavior text.
func (c *BehaviorCompiler) Compile(text string) (*BehaviorResult, error) {
	stmts, err := ParseBehavior(text)
	if err != nil {
		return nil, err
	}
	c.result = &BehaviorResult{Zones: NewZoneRecordSet()}
	c.masterZones = make(map[string]struct{})

	if len(stmts) > 0 && c.software != SoftwareBind && c.software != SoftwareUnbound {
		return nil, NewBehaviorError("behavior is only supported for bind and unbound, got software "+strconv.Quote(c.software), nil).WithService(c.service)
	}

	for _, stmt := range stmts {
		var err error
		switch stmt.Kind {
		case BehaviorForward:
			err = c.compileForward(stmt)
		case BehaviorHint:
			err = c.compileHint(stmt)
		case BehaviorStub:
			err = c.compileStub(stmt)
		case BehaviorMaster:
			err = c.compileMaster(stmt)
		}
		if err != nil {
			var be *BuildError
			if errors.As(err, &be) {
				be.WithService(c.service)
			}
			return nil, err
		}
	}
	return c.result, nil
}

// resolveAddr resolves a target to an IPv4 address: known service names map
// to their allocated address, literals pass through.
func (c *BehaviorCompiler) resolveAddr(stmt Statement, target string) (string, error) {
	if addr, ok := c.addresses[target]; ok {
		return addr, nil
	}
	if _, err := netip.ParseAddr(target); err == nil {
		return target, nil
	}
	return "", NewBehaviorError(fmt.Sprintf("target %q is neither a service nor an address", target), nil).WithLine(stmt.Line)
}

func (c *BehaviorCompiler) compileForward(stmt Statement) error {
	addrs, err := c.resolveAddrs(stmt)
	if err != nil {
		return err
	}
	switch c.software {
	case SoftwareBind:
		c.addFragment(SectionToplevel, fmt.Sprintf("zone %q { type forward; forwarders { %s; }; };",
			stmt.Zone, strings.Join(addrs, "; ")))
	case SoftwareUnbound:
		var b strings.Builder
		fmt.Fprintf(&b, "forward-zone:\n\tname: %q", stmt.Zone)
		for _, a := range addrs {
			fmt.Fprintf(&b, "\n\tforward-addr: %s", a)
		}
		c.addFragment(SectionToplevel, b.String())
	}
	return nil
}

func (c *BehaviorCompiler) compileStub(stmt Statement) error {
	addrs, err := c.resolveAddrs(stmt)
	if err != nil {
		return err
	}
	switch c.software {
	case SoftwareBind:
		c.addFragment(SectionToplevel, fmt.Sprintf("zone %q { type stub; masters { %s; }; };",
			stmt.Zone, strings.Join(addrs, "; ")))
	case SoftwareUnbound:
		var b strings.Builder
		fmt.Fprintf(&b, "stub-zone:\n\tname: %q", stmt.Zone)
		for _, a := range addrs {
			fmt.Fprintf(&b, "\n\tstub-addr: %s", a)
		}
		c.addFragment(SectionToplevel, b.String())
	}
	return nil
}

func (c *BehaviorCompiler) compileHint(stmt Statement) error {
	target := stmt.Targets[0]
	addr, err := c.resolveAddr(stmt, target)
	if err != nil {
		return err
	}
	name := target
	if _, isService := c.addresses[target]; !isService {
		name = "root-ns"
	}

	file := fmt.Sprintf("gen_%s_root.hints", c.service)
	path := c.zoneDir() + "/" + file
	content := fmt.Sprintf(".\t3600000\tIN\tNS\t%s.\n%s.\t3600000\tIN\tA\t%s\n", name, name, addr)
	c.result.Files = append(c.result.Files, GeneratedFile{
		Name:          file,
		ContainerPath: path,
		Content:       content,
	})

	switch c.software {
	case SoftwareBind:
		c.addFragment(SectionToplevel, fmt.Sprintf("zone %q { type hint; file %q; };", stmt.Zone, path))
	case SoftwareUnbound:
		c.addFragment(SectionServer, fmt.Sprintf("root-hints: %q", path))
	}
	return nil
}

func (c *BehaviorCompiler) compileMaster(stmt Statement) error {
	switch stmt.RType {
	case "A", "AAAA":
		for _, target := range stmt.Targets {
			addr, err := c.resolveAddr(stmt, target)
			if err != nil {
				return err
			}
			c.addRecord(stmt, Record{
				Name: qualifyName(stmt.RName, stmt.Zone),
				TTL:  stmt.TTL,
				Type: stmt.RType,
				Data: addr,
			})
		}
	case "NS":
		for _, target := range stmt.Targets {
			if err := c.compileNS(stmt, target); err != nil {
				return err
			}
		}
	case "CNAME", "TXT":
		for _, target := range stmt.Targets {
			c.addRecord(stmt, Record{
				Name: qualifyName(stmt.RName, stmt.Zone),
				TTL:  stmt.TTL,
				Type: stmt.RType,
				Data: qualifyName(target, stmt.Zone),
			})
		}
	default:
		return NewBehaviorError("unsupported record type "+stmt.RType, nil).WithLine(stmt.Line)
	}
	return nil
}

// compileNS emits a delegation. Service targets get a synthesized name server
// label under the current zone plus a glue address record; anything else is
// taken as an external name server name.
func (c *BehaviorCompiler) compileNS(stmt Statement, target string) error {
	addr, isService := c.addresses[target]
	if !isService {
		if _, err := netip.ParseAddr(target); err == nil {
			return NewBehaviorError("NS target must be a service or a name, got address "+target, nil).WithLine(stmt.Line)
		}
		c.addRecord(stmt, Record{
			Name: qualifyName(stmt.RName, stmt.Zone),
			TTL:  stmt.TTL,
			Type: "NS",
			Data: qualifyName(target, stmt.Zone),
		})
		return nil
	}

	nsName := absolute(qualifyName(c.labels.Label(target), stmt.Zone))
	c.addRecord(stmt, Record{
		Name: qualifyName(stmt.RName, stmt.Zone),
		TTL:  stmt.TTL,
		Type: "NS",
		Data: nsName,
	})
	c.addRecord(stmt, Record{
		Name: nsName,
		TTL:  stmt.TTL,
		Type: "A",
		Data: addr,
	})
	return nil
}

// addRecord stores a record and emits the zone's configuration entry on
// first use.
func (c *BehaviorCompiler) addRecord(stmt Statement, r Record) {
	if _, seen := c.masterZones[stmt.Zone]; !seen {
		c.masterZones[stmt.Zone] = struct{}{}
		path := c.zoneDir() + "/db." + zoneFileKey(stmt.Zone)
		switch c.software {
		case SoftwareBind:
			c.addFragment(SectionToplevel, fmt.Sprintf("zone %q { type master; file %q; };", stmt.Zone, path))
		case SoftwareUnbound:
			c.addFragment(SectionToplevel, fmt.Sprintf("auth-zone:\n\tname: %q\n\tzonefile: %q", stmt.Zone, path))
		}
	}
	c.result.Zones.Add(stmt.Zone, r)
	c.log.WithZone(stmt.Zone).Debugf("record %s %s %s", r.Name, r.Type, r.Data)
}

func (c *BehaviorCompiler) resolveAddrs(stmt Statement) ([]string, error) {
	addrs := make([]string, 0, len(stmt.Targets))
	for _, target := range stmt.Targets {
		addr, err := c.resolveAddr(stmt, target)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (c *BehaviorCompiler) addFragment(section, text string) {
	c.result.Fragments = append(c.result.Fragments, Fragment{Section: section, Text: text})
}

// zoneDir returns the container directory generated zone data lives in.
func (c *BehaviorCompiler) zoneDir() string {
	return ZoneDir(c.software)
}

// ZoneDir returns the container directory generated zone data lives in for
// the given DNS software. Behavior fragments reference files under this
// directory, so the artifact writer must mount zone files at the same place.
func ZoneDir(software string) string {
	if software == SoftwareUnbound {
		return "/usr/local/etc/unbound/zones"
	}
	return "/usr/local/etc/zones"
}

// absolute ensures a name carries a trailing dot.
func absolute(name string) string {
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}
