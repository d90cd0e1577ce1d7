package index

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ironsheep/icon-autolabel/internal/imaging"
)

// defaultIconSize is assumed when a file name carries no size suffix.
const defaultIconSize = 32

var (
	reIconPrefix = regexp.MustCompile(`(?i)^(arch|res)(-category)?_`)
	reIconSize   = regexp.MustCompile(`_(\d+)`)
	reIconTheme  = regexp.MustCompile(`(?i)_(light|dark)$`)
)

// IconFile is a reference image found on disk.
type IconFile struct {
	Path     string
	Label    string
	Category string
	Size     int
}

// ParseIconName derives a raw label and pixel size from an icon file name.
//
// Vendor icon-pack prefixes (Arch_, Res_, Arch-Category_) and theme suffixes
// (_Light, _Dark) are dropped, the first _<digits> group is the size and
// everything before it is the name. Dashes and underscores in the name become
// spaces: "Arch_Amazon-EC2_48.png" yields ("Amazon EC2", 48).
func ParseIconName(filename string) (string, int) {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	stem = reIconPrefix.ReplaceAllString(stem, "")
	stem = reIconTheme.ReplaceAllString(stem, "")

	size := defaultIconSize
	if loc := reIconSize.FindStringSubmatchIndex(stem); loc != nil {
		if n, err := strconv.Atoi(stem[loc[2]:loc[3]]); err == nil {
			size = n
		}
		stem = stem[:loc[0]]
	}

	words := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	return strings.Join(words, " "), size
}

// ScanIcons lists the supported images under dir in lexical path order.
//
// Category is the first directory below dir, if any. When largestOnly is
// set, only the largest file per label (case-insensitive) is kept; equal
// sizes keep the first in path order.
func ScanIcons(dir string, largestOnly bool) ([]IconFile, error) {
	var files []IconFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !imaging.IsSupported(path) {
			return nil
		}

		label, size := ParseIconName(path)
		if label == "" {
			return nil
		}
		f := IconFile{Path: path, Label: label, Size: size}
		if rel, err := filepath.Rel(dir, path); err == nil {
			if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) > 1 {
				f.Category = parts[0]
			}
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !largestOnly {
		return files, nil
	}

	best := make(map[string]int)
	for i, f := range files {
		key := strings.ToLower(f.Label)
		if j, ok := best[key]; !ok || f.Size > files[j].Size {
			best[key] = i
		}
	}
	kept := make([]IconFile, 0, len(best))
	for i, f := range files {
		if best[strings.ToLower(f.Label)] == i {
			kept = append(kept, f)
		}
	}
	return kept, nil
}
