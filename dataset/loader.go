// Package dataset reads a category-per-directory image tree into memory and
// prepares it for training.
//
// The layout contract is: every immediate subdirectory of the data directory
// whose name is made only of decimal digits holds the images of the category
// with that ID. Other entries are ignored. A numeric name outside
// [0, NumCategories) is an error.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"traffic/config"
	"traffic/util"
)

// Sample is one decoded image with its category and source file.
type Sample struct {
	Image Image
	Label int
	Path  string
}

// Load returns parallel image and label sequences for every image under dir.
func Load(dir string, cfg config.Config) ([]Image, []int, error) {
	samples, err := LoadSamples(dir, cfg)
	if err != nil {
		return nil, nil, err
	}

	images := make([]Image, len(samples))
	labels := make([]int, len(samples))
	for i, s := range samples {
		images[i] = s.Image
		labels[i] = s.Label
	}
	return images, labels, nil
}

func LoadSamples(dir string, cfg config.Config) ([]Sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{Path: dir, Kind: ErrFilesystem, Err: err}
	}

	samples := []Sample{}
	skipped := 0
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if !entry.IsDir() {
			util.Logger.Debug("skipping non-directory entry", "path", path)
			continue
		}

		category, ok, err := ParseCategory(entry.Name(), cfg.NumCategories)
		if err != nil {
			return nil, &LoadError{Path: path, Kind: ErrCategory, Err: err}
		}
		if !ok {
			util.Logger.Debug("skipping non-numeric directory", "path", path)
			continue
		}

		loaded, n, err := loadCategory(path, category, cfg)
		if err != nil {
			return nil, err
		}
		skipped += n
		util.Logger.Info("loaded category", "category", category, "images", len(loaded))
		samples = append(samples, loaded...)
	}

	if skipped > 0 {
		util.Logger.Warn("skipped undecodable images", "count", skipped)
	}
	util.Logger.Info("loaded dataset", "dir", dir, "samples", len(samples))
	return samples, nil
}

func loadCategory(dir string, category int, cfg config.Config) ([]Sample, int, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, &LoadError{Path: dir, Kind: ErrFilesystem, Err: err}
	}

	var samples []Sample
	skipped := 0
	for _, file := range files {
		path := filepath.Join(dir, file.Name())
		if file.IsDir() || strings.HasPrefix(file.Name(), ".") {
			util.Logger.Debug("skipping entry in category directory", "path", path)
			continue
		}

		img, err := DecodeFile(path, cfg.ImageWidth, cfg.ImageHeight)
		if err != nil {
			if cfg.SkipInvalidImages {
				util.Logger.Warn("skipping image", "path", path, "error", err)
				skipped++
				continue
			}
			return nil, 0, err
		}
		samples = append(samples, Sample{Image: img, Label: category, Path: path})
	}
	return samples, skipped, nil
}

// ParseCategory maps a directory name to a category ID. ok is false when the
// name is not purely decimal digits; err is set when it is numeric but not in
// [0, numCategories).
func ParseCategory(name string, numCategories int) (category int, ok bool, err error) {
	if name == "" {
		return 0, false, nil
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return 0, false, nil
		}
	}

	category, err = strconv.Atoi(name)
	if err != nil {
		return 0, true, err
	}
	if category >= numCategories {
		return 0, true, fmt.Errorf("category %d not in [0, %d)", category, numCategories)
	}
	return category, true, nil
}

// Counts returns the number of samples per category.
func Counts(labels []int, numCategories int) []int {
	counts := make([]int, numCategories)
	for _, l := range labels {
		if l >= 0 && l < numCategories {
			counts[l]++
		}
	}
	return counts
}
