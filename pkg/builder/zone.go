package builder

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SOA timing constants for generated zones, in seconds.
const (
	zoneDefaultTTL = 86400
	zoneRecordTTL  = 3600
	soaRefresh     = 7200
	soaRetry       = 3600
	soaExpire      = 1209600
	soaMinimum     = 3600
)

// Record is one resource record in a generated zone.
type Record struct {
	// Name is the owner name as qualified against the zone.
	Name string `json:"name"`

	// TTL is the record time to live in seconds.
	TTL int `json:"ttl"`

	// Type is the record type, uppercase.
	Type string `json:"type"`

	// Data is the record data in presentation format.
	Data string `json:"data"`
}

// ZoneRecordSet accumulates records per zone, keeping zones in first-seen
// order and records in statement order.
type ZoneRecordSet struct {
	order   []string
	records map[string][]Record
}

// NewZoneRecordSet returns an empty record set.
func NewZoneRecordSet() *ZoneRecordSet {
	return &ZoneRecordSet{records: make(map[string][]Record)}
}

// Add appends a record to a zone, registering the zone on first use.
func (z *ZoneRecordSet) Add(zone string, r Record) {
	if _, ok := z.records[zone]; !ok {
		z.order = append(z.order, zone)
	}
	z.records[zone] = append(z.records[zone], r)
}

// Zones returns the zone names in first-seen order.
func (z *ZoneRecordSet) Zones() []string {
	if z == nil {
		return nil
	}
	return z.order
}

// Records returns the records of one zone in statement order.
func (z *ZoneRecordSet) Records(zone string) []Record {
	if z == nil {
		return nil
	}
	return z.records[zone]
}

// zoneRecords is the serialized form of one zone's records.
type zoneRecords struct {
	Zone    string   `json:"zone"`
	Records []Record `json:"records"`
}

// MarshalJSON keeps zone order stable in the serialized form.
func (z *ZoneRecordSet) MarshalJSON() ([]byte, error) {
	out := make([]zoneRecords, 0, len(z.order))
	for _, zone := range z.order {
		out = append(out, zoneRecords{Zone: zone, Records: z.records[zone]})
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the ordered record set.
func (z *ZoneRecordSet) UnmarshalJSON(data []byte) error {
	var in []zoneRecords
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	z.order = nil
	z.records = make(map[string][]Record, len(in))
	for _, zr := range in {
		z.order = append(z.order, zr.Zone)
		z.records[zr.Zone] = zr.Records
	}
	return nil
}

// Len returns the total record count across all zones.
func (z *ZoneRecordSet) Len() int {
	if z == nil {
		return 0
	}
	n := 0
	for _, recs := range z.records {
		n += len(recs)
	}
	return n
}

// normalizeZone strips a trailing dot from non-root zone names so "tld" and
// "tld." address the same zone.
func normalizeZone(zone string) string {
	if zone == "." {
		return "."
	}
	return strings.TrimSuffix(zone, ".")
}

// zoneFileKey returns the identifier used in zone file names.
func zoneFileKey(zone string) string {
	if zone == "." {
		return "root"
	}
	return zone
}

// ZoneFileName returns the file name a zone's records are rendered into,
// "db.root" for the root zone and "db.<zone>" otherwise.
func ZoneFileName(zone string) string {
	return "db." + zoneFileKey(zone)
}

// fqdnOf returns the absolute form of a zone name.
func fqdnOf(zone string) string {
	if zone == "." {
		return "."
	}
	return zone + "."
}

// qualifyName resolves an owner name against its zone. "@" means the zone
// apex, a trailing dot means the name is already absolute, and anything else
// is qualified under the zone.
func qualifyName(name, zone string) string {
	switch {
	case name == "@":
		return zone
	case strings.HasSuffix(name, "."):
		return name
	case zone == ".":
		return name + "."
	default:
		return name + "." + zone
	}
}

// compressOwner rewrites an owner name relative to the zone origin for the
// rendered zone file: the apex becomes "@" and in-zone names lose the zone
// suffix.
func compressOwner(name, zone string) string {
	fqdn := fqdnOf(zone)
	if name == "@" || name == zone || name == fqdn {
		return "@"
	}
	if zone == "." {
		if strings.HasSuffix(name, ".") && strings.Count(name, ".") == 1 {
			return strings.TrimSuffix(name, ".")
		}
		return name
	}
	if rel, ok := strings.CutSuffix(name, "."+fqdn); ok {
		return rel
	}
	if rel, ok := strings.CutSuffix(name, "."+zone); ok {
		return rel
	}
	return name
}

// zoneNS returns the absolute default name server name for a zone.
func zoneNS(zone string) string {
	if zone == "." {
		return "ns."
	}
	return "ns." + zone + "."
}

// zoneAdmin returns the absolute SOA responsible-party name for a zone.
func zoneAdmin(zone string) string {
	if zone == "." {
		return "admin."
	}
	return "admin." + zone + "."
}

// RenderZoneFile renders one zone in master file format. The SOA serial is
// derived from now, and serviceAddr backs the default name server's address
// record.
func RenderZoneFile(zone string, records []Record, serviceAddr string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "$ORIGIN %s\n", fqdnOf(zone))

	ns := zoneNS(zone)
	soa := fmt.Sprintf("%s %s %d %d %d %d %d",
		ns, zoneAdmin(zone), now.Unix(), soaRefresh, soaRetry, soaExpire, soaMinimum)
	writeRecord(&b, zone, Record{Name: "@", TTL: zoneDefaultTTL, Type: "SOA", Data: soa})
	writeRecord(&b, zone, Record{Name: "@", TTL: zoneRecordTTL, Type: "NS", Data: ns})
	writeRecord(&b, zone, Record{Name: ns, TTL: zoneRecordTTL, Type: "A", Data: serviceAddr})

	for _, r := range records {
		writeRecord(&b, zone, r)
	}
	return b.String()
}

func writeRecord(b *strings.Builder, zone string, r Record) {
	fmt.Fprintf(b, "%-24s%-8d%-8s%-8s%s\n", compressOwner(r.Name, zone), r.TTL, "IN", r.Type, r.Data)
}
