package taxonomy

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
)

// Rule file names looked up in a rules directory.
const (
	AliasesFile   = "aliases.yaml"
	BlacklistFile = "blacklist.yaml"
	GroupMapFile  = "group_map.yaml"
)

var (
	nameColumns  = map[string]bool{"canonical": true, "name": true, "service": true, "service_full_name": true, "label": true}
	aliasColumns = map[string]bool{"aliases": true, "alias": true, "aka": true}
	codeColumns  = map[string]bool{"service_code": true, "code": true}
)

// Load reads a taxonomy CSV and, if rulesDir is non-empty, the rule files in
// it. Either source may be empty, but not both.
//
// The CSV needs a header row. The name column is the first one titled
// canonical, name, service, service_full_name or label (else the first
// column); the optional alias column is titled aliases, alias or aka and
// holds "|"-separated aliases. An optional service_code or code column gives
// the service's short code. Missing rule files are skipped. Malformed input and conflicting
// aliases fail with apperr.ErrConfiguration.
func Load(csvPath, rulesDir string, opts ...Option) (*Taxonomy, error) {
	if csvPath == "" && rulesDir == "" {
		return nil, apperr.Configf("no taxonomy source given")
	}

	var entries []Entry
	if csvPath != "" {
		f, err := os.Open(csvPath)
		if err != nil {
			return nil, fmt.Errorf("%w: open taxonomy: %v", apperr.ErrConfiguration, err)
		}
		defer f.Close()

		entries, err = ReadCSV(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", csvPath, err)
		}
	}

	var rules Rules
	if rulesDir != "" {
		var err error
		rules, err = LoadRules(rulesDir)
		if err != nil {
			return nil, err
		}
	}

	return New(entries, rules, opts...)
}

// ReadCSV parses taxonomy entries from CSV with a header row.
func ReadCSV(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperr.Configf("taxonomy CSV is empty")
		}
		return nil, fmt.Errorf("%w: taxonomy header: %v", apperr.ErrConfiguration, err)
	}

	nameCol, aliasCol, codeCol := 0, -1, -1
	for i, h := range header {
		if nameColumns[strings.ToLower(strings.TrimSpace(h))] {
			nameCol = i
			break
		}
	}
	for i, h := range header {
		if aliasColumns[strings.ToLower(strings.TrimSpace(h))] {
			aliasCol = i
			break
		}
	}
	for i, h := range header {
		if codeColumns[strings.ToLower(strings.TrimSpace(h))] {
			codeCol = i
			break
		}
	}

	var entries []Entry
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: taxonomy row: %v", apperr.ErrConfiguration, err)
		}
		if nameCol >= len(rec) {
			continue
		}

		e := Entry{Canonical: strings.TrimSpace(rec[nameCol])}
		if e.Canonical == "" {
			continue
		}
		if aliasCol >= 0 && aliasCol < len(rec) {
			for _, a := range strings.Split(rec[aliasCol], "|") {
				if a = strings.TrimSpace(a); a != "" {
					e.Aliases = append(e.Aliases, a)
				}
			}
		}
		if codeCol >= 0 && codeCol < len(rec) {
			e.Code = strings.ToLower(strings.TrimSpace(rec[codeCol]))
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// LoadRules reads aliases.yaml, blacklist.yaml and group_map.yaml from dir.
// Absent files leave the corresponding rule empty; a missing directory is a
// configuration error.
func LoadRules(dir string) (Rules, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Rules{}, fmt.Errorf("%w: rules directory: %v", apperr.ErrConfiguration, err)
	}
	if !info.IsDir() {
		return Rules{}, apperr.Configf("rules path %s is not a directory", dir)
	}

	var rules Rules
	for _, name := range []string{AliasesFile, BlacklistFile, GroupMapFile} {
		var part Rules
		ok, err := readYAML(filepath.Join(dir, name), &part)
		if err != nil {
			return Rules{}, err
		}
		if !ok {
			continue
		}
		switch name {
		case AliasesFile:
			rules.Aliases = part.Aliases
		case BlacklistFile:
			rules.Blacklist = part.Blacklist
		case GroupMapFile:
			rules.GroupMap = part.GroupMap
		}
	}
	return rules, nil
}

// readYAML decodes path into out. It reports false if the file does not exist.
func readYAML(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: read %s: %v", apperr.ErrConfiguration, path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: parse %s: %v", apperr.ErrConfiguration, path, err)
	}
	return true, nil
}
