// Package probe samples API endpoints and checks what they actually return
// against the endpoint catalog.
//
// The probe is a bootstrapping and drift-detection aid: it fetches a bounded
// sample of records, infers per-field logical types, and reports fields the
// catalog is missing, catalog columns absent from the API, and type
// disagreements. All inference is best-effort and bounded in memory; a probe
// run never loads full datasets.
package probe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"jaffle/internal/extract"
	"jaffle/internal/registry"
)

// distinctCap bounds per-field distinct counting so high-cardinality fields
// (ids, timestamps) cannot grow the probe's memory without limit.
const distinctCap = 10000

// Options control sampling.
type Options struct {
	// MaxPages bounds how many pages are sampled per endpoint. <= 0 means 1.
	MaxPages int
	// MaxRecords bounds how many records are examined. <= 0 means 1000.
	MaxRecords int
}

// FieldStat describes one field observed in the sample.
type FieldStat struct {
	// Name is the snake-cased field name.
	Name string
	// Type is the inferred logical type: text, real, boolean, or timestamptz.
	Type string
	// Present counts records where the field had a non-nil value.
	Present int
	// Distinct is the bounded distinct-value count.
	Distinct int
	// Capped reports that distinct counting hit its bound.
	Capped bool
}

// Report is the outcome of probing one endpoint.
type Report struct {
	Endpoint string
	Records  int
	Requests int

	// Fields lists observed fields in name order.
	Fields []FieldStat

	// MissingFromAPI lists catalog columns never seen in the sample.
	MissingFromAPI []string
	// ExtraInAPI lists sampled fields the catalog does not load.
	ExtraInAPI []string
	// TypeMismatches maps field name -> "catalog=<t> sample=<t>".
	TypeMismatches map[string]string
}

// Clean reports whether the sample agrees with the catalog.
func (r Report) Clean() bool {
	return len(r.MissingFromAPI) == 0 && len(r.ExtraInAPI) == 0 && len(r.TypeMismatches) == 0
}

// Run samples one endpoint and diffs it against the catalog schema.
//
// Behavior:
//   - Pages are fetched sequentially starting at 1; an empty page stops
//     sampling early.
//   - Audit columns are excluded from the diff; they are stamped at load time
//     and never appear in API responses.
//
// Errors:
//   - Fetch errors abort the probe and propagate unmodified.
func Run(ctx context.Context, fetch extract.FetchFn, ep registry.Endpoint, opts Options) (Report, error) {
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	maxRecords := opts.MaxRecords
	if maxRecords <= 0 {
		maxRecords = 1000
	}

	rep := Report{Endpoint: ep.Name, TypeMismatches: map[string]string{}}

	stats := map[string]*fieldAccum{}
	for page := 1; page <= maxPages && rep.Records < maxRecords; page++ {
		records, err := fetch(ctx, ep, page)
		rep.Requests++
		if err != nil {
			return rep, err
		}
		if len(records) == 0 {
			break
		}
		for _, rec := range records {
			if rep.Records >= maxRecords {
				break
			}
			rep.Records++
			observe(stats, rec)
		}
	}

	rep.Fields = finalize(stats)
	diffAgainstCatalog(&rep, ep)
	return rep, nil
}

// fieldAccum accumulates per-field observations during sampling.
type fieldAccum struct {
	present  int
	distinct map[string]struct{}
	capped   bool

	// type votes
	reals, bools, times, texts int
}

func observe(stats map[string]*fieldAccum, rec map[string]any) {
	for k, v := range rec {
		if v == nil {
			continue
		}
		name := snakeCase(k)
		acc := stats[name]
		if acc == nil {
			acc = &fieldAccum{distinct: map[string]struct{}{}}
			stats[name] = acc
		}
		acc.present++

		switch t := v.(type) {
		case float64:
			acc.reals++
			acc.add(fmt.Sprintf("%g", t))
		case bool:
			acc.bools++
			if t {
				acc.add("true")
			} else {
				acc.add("false")
			}
		case string:
			if _, err := time.Parse(time.RFC3339, t); err == nil {
				acc.times++
			} else {
				acc.texts++
			}
			acc.add(t)
		default:
			acc.texts++
			acc.add(fmt.Sprint(t))
		}
	}
}

func (a *fieldAccum) add(v string) {
	if a.capped {
		return
	}
	a.distinct[v] = struct{}{}
	if len(a.distinct) >= distinctCap {
		a.capped = true
		a.distinct = nil
	}
}

// inferredType resolves the type votes: a field is only non-text when every
// observed value agreed on the narrower type.
func (a *fieldAccum) inferredType() string {
	switch {
	case a.reals == a.present:
		return "real"
	case a.bools == a.present:
		return "boolean"
	case a.times == a.present:
		return "timestamptz"
	default:
		return "text"
	}
}

func finalize(stats map[string]*fieldAccum) []FieldStat {
	out := make([]FieldStat, 0, len(stats))
	for name, acc := range stats {
		distinct := len(acc.distinct)
		if acc.capped {
			distinct = distinctCap
		}
		out = append(out, FieldStat{
			Name:     name,
			Type:     acc.inferredType(),
			Present:  acc.present,
			Distinct: distinct,
			Capped:   acc.capped,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func diffAgainstCatalog(rep *Report, ep registry.Endpoint) {
	observed := make(map[string]FieldStat, len(rep.Fields))
	for _, f := range rep.Fields {
		observed[f.Name] = f
	}

	catalog := make(map[string]string, len(ep.Columns))
	for _, c := range ep.Columns {
		if c.Name == registry.LoadedAtColumn || c.Name == registry.LoadIDColumn {
			continue
		}
		catalog[c.Name] = c.Type

		f, ok := observed[c.Name]
		if !ok {
			rep.MissingFromAPI = append(rep.MissingFromAPI, c.Name)
			continue
		}
		if !typesCompatible(c.Type, f.Type) {
			rep.TypeMismatches[c.Name] = fmt.Sprintf("catalog=%s sample=%s", c.Type, f.Type)
		}
	}

	for _, f := range rep.Fields {
		if _, ok := catalog[f.Name]; !ok {
			rep.ExtraInAPI = append(rep.ExtraInAPI, f.Name)
		}
	}

	sort.Strings(rep.MissingFromAPI)
	sort.Strings(rep.ExtraInAPI)
}

// typesCompatible tolerates the catalog's deliberate widenings: currency and
// id fields are declared text even when samples look numeric, and timestamp
// text is text.
func typesCompatible(catalog, sample string) bool {
	if catalog == sample {
		return true
	}
	if catalog == "text" {
		return true
	}
	if catalog == "timestamptz" && sample == "text" {
		return true
	}
	return false
}

// FormatReport renders a report for terminal output.
func FormatReport(r Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "endpoint %s: %d records in %d requests\n", r.Endpoint, r.Records, r.Requests)
	if r.Records == 0 {
		b.WriteString("  no records sampled\n")
		return strings.TrimRight(b.String(), "\n")
	}

	fmt.Fprintf(&b, "  %-20s %-12s %-8s %-9s capped\n", "field", "type", "present", "distinct")
	for _, f := range r.Fields {
		fmt.Fprintf(&b, "  %-20s %-12s %-8d %-9d %t\n", f.Name, f.Type, f.Present, f.Distinct, f.Capped)
	}

	if r.Clean() {
		b.WriteString("  schema: matches catalog\n")
	}
	if len(r.MissingFromAPI) > 0 {
		fmt.Fprintf(&b, "  missing from API: %s\n", strings.Join(r.MissingFromAPI, ", "))
	}
	if len(r.ExtraInAPI) > 0 {
		fmt.Fprintf(&b, "  not loaded by catalog: %s\n", strings.Join(r.ExtraInAPI, ", "))
	}
	for _, name := range sortedKeys(r.TypeMismatches) {
		fmt.Fprintf(&b, "  type mismatch %s: %s\n", name, r.TypeMismatches[name])
	}

	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// snakeCase canonicalizes a source field name the same way the normalize
// stage does, so probe output lines up with destination columns.
func snakeCase(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}
