// Package roster loads the internal broker roster and indexes people by
// canonical firm and region so attribution can hit them before any paid call.
package roster

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/benefitscout/leadgen-cli/internal/fetcher"
	"github.com/benefitscout/leadgen-cli/internal/firm"
	"github.com/benefitscout/leadgen-cli/internal/model"
)

// RegionWest is the synthetic region key for west-coast coverage rows.
const RegionWest = "WEST_REGION"

var westStates = map[string]bool{
	"CA": true, "OR": true, "WA": true, "NV": true, "AZ": true, "ID": true,
	"UT": true, "CO": true, "MT": true, "WY": true, "NM": true, "AK": true,
	"HI": true,
}

// Entry is one raw roster row as uploaded.
type Entry struct {
	PersonName string `json:"person_name"`
	Firm       string `json:"firm"`
	City       string `json:"city"`
	State      string `json:"state"`
	Role       string `json:"role"`
}

// PersonRef is a roster person resolved to a canonical firm.
type PersonRef struct {
	Name      string
	Title     string
	Canonical string
	City      string
	State     string
}

// Index holds the loaded roster keyed by (canonical_firm, region_key).
type Index struct {
	firms     *firm.Normalizer
	threshold float64
	byKey     map[string][]PersonRef
	firmNames []rosterFirm // unique raw firms, for the fuzzy pass
}

type rosterFirm struct {
	normalized string
	canonical  string
}

// New indexes roster entries. Entries whose firm cannot be canonicalized are
// dropped with a warning.
func New(entries []Entry, firms *firm.Normalizer, fuzzyThreshold float64) *Index {
	idx := &Index{
		firms:     firms,
		threshold: fuzzyThreshold,
		byKey:     make(map[string][]PersonRef),
	}
	seenFirms := make(map[string]bool)
	for _, e := range entries {
		canonical, ok := firms.Canonical(e.Firm)
		if !ok {
			zap.L().Warn("roster: firm not canonicalizable, entry dropped",
				zap.String("firm", e.Firm),
				zap.String("person", e.PersonName),
			)
			continue
		}
		ref := PersonRef{
			Name:      strings.TrimSpace(e.PersonName),
			Title:     strings.TrimSpace(e.Role),
			Canonical: canonical,
			City:      strings.ToUpper(strings.TrimSpace(e.City)),
			State:     strings.ToUpper(strings.TrimSpace(e.State)),
		}
		if ref.Name == "" {
			continue
		}
		for _, rk := range RegionKeys(ref.City, ref.State) {
			k := key(canonical, rk)
			idx.byKey[k] = append(idx.byKey[k], ref)
		}

		norm := model.NormalizeEntityName(e.Firm)
		if norm != "" && !seenFirms[norm] {
			seenFirms[norm] = true
			idx.firmNames = append(idx.firmNames, rosterFirm{normalized: norm, canonical: canonical})
		}
	}
	// Stable fuzzy scan order regardless of input order.
	sort.Slice(idx.firmNames, func(i, j int) bool {
		return idx.firmNames[i].normalized < idx.firmNames[j].normalized
	})
	return idx
}

// Load reads a roster file, dispatching on extension. JSON is the native
// format; CSV and XLSX uploads use header synonyms.
func Load(path string, firms *firm.Normalizer, fuzzyThreshold float64) (*Index, error) {
	var (
		entries []Entry
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		entries, err = loadJSON(path)
	case ".csv":
		entries, err = loadCSV(path)
	case ".xlsx":
		entries, err = loadXLSX(path)
	default:
		return nil, eris.Errorf("roster: unsupported file type %s", path)
	}
	if err != nil {
		return nil, err
	}
	zap.L().Info("roster loaded", zap.String("path", path), zap.Int("entries", len(entries)))
	return New(entries, firms, fuzzyThreshold), nil
}

// RegionKeys returns the region keys an entry is reachable under, most
// specific first.
func RegionKeys(city, state string) []string {
	var keys []string
	city = strings.ToUpper(strings.TrimSpace(city))
	state = strings.ToUpper(strings.TrimSpace(state))
	if city != "" {
		keys = append(keys, city)
	}
	if state != "" {
		keys = append(keys, state)
	}
	if westStates[state] {
		keys = append(keys, RegionWest)
	}
	return keys
}

// Exact returns the people under the first region key that has any, or nil.
func (idx *Index) Exact(canonical string, regionKeys ...string) []PersonRef {
	for _, rk := range regionKeys {
		if refs := idx.byKey[key(canonical, strings.ToUpper(rk))]; len(refs) > 0 {
			return refs
		}
	}
	return nil
}

// FuzzyFirm compares a raw firm string against every roster firm and returns
// the canonical token of the best match at or above the threshold.
func (idx *Index) FuzzyFirm(raw string) (canonical string, ratio float64, ok bool) {
	norm := model.NormalizeEntityName(raw)
	if norm == "" {
		return "", 0, false
	}
	best := -1.0
	for _, rf := range idx.firmNames {
		r := Similarity(norm, rf.normalized)
		if r > best {
			best = r
			canonical = rf.canonical
		}
	}
	if best < idx.threshold {
		return "", best, false
	}
	return canonical, best, true
}

// Similarity is a sequence-similarity ratio in [0,1] over the longest common
// subsequence of the two strings.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	lcs := prev[len(b)]
	return 2 * float64(lcs) / float64(len(a)+len(b))
}

func key(canonical, regionKey string) string {
	return canonical + "|" + regionKey
}

func loadJSON(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "roster: read %s", path)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrap(err, "roster: parse json")
	}
	return entries, nil
}

func loadCSV(path string) ([]Entry, error) {
	rows, err := fetcher.ReadCSVFile(path)
	if err != nil {
		return nil, err
	}
	return entriesFromRows(rows)
}

func loadXLSX(path string) ([]Entry, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, err
	}
	return entriesFromRows(rows)
}

// Header synonyms for uploaded roster tables.
var (
	nameHeaders  = []string{"PERSON_NAME", "NAME", "PRODUCER", "BROKER", "CONTACT"}
	firmHeaders  = []string{"FIRM", "ACCOUNT", "AGENCY"}
	cityHeaders  = []string{"CITY"}
	stateHeaders = []string{"STATE", "REGION"}
	roleHeaders  = []string{"ROLE", "TITLE"}
)

func entriesFromRows(rows [][]string) ([]Entry, error) {
	if len(rows) == 0 {
		return nil, eris.New("roster: empty table")
	}
	header := rows[0]
	find := func(synonyms []string) int {
		for _, syn := range synonyms {
			for i, h := range header {
				if strings.Contains(strings.ToUpper(strings.TrimSpace(h)), syn) {
					return i
				}
			}
		}
		return -1
	}
	nameIdx, firmIdx := find(nameHeaders), find(firmHeaders)
	if nameIdx < 0 || firmIdx < 0 {
		return nil, eris.Errorf("roster: header lacks name or firm column: %v", header)
	}
	cityIdx, stateIdx, roleIdx := find(cityHeaders), find(stateHeaders), find(roleHeaders)

	get := func(row []string, idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var entries []Entry
	for _, row := range rows[1:] {
		e := Entry{
			PersonName: get(row, nameIdx),
			Firm:       get(row, firmIdx),
			City:       get(row, cityIdx),
			State:      get(row, stateIdx),
			Role:       get(row, roleIdx),
		}
		if e.PersonName == "" && e.Firm == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
