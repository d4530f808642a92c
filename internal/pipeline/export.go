package pipeline

import (
	"os"
	"path/filepath"

	"congreso/internal/dataset"
	"congreso/internal/util"
)

// export writes t as <OutputDir>/<name>.csv, plus an .xlsx copy when
// ExportXLSX is set. It returns the written paths.
func (s *Service) export(t *dataset.Table, name string) ([]string, error) {
	if s.cfg.OutputDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return nil, err
	}

	base := filepath.Join(s.cfg.OutputDir, util.SanitizeFilename(name))
	paths := []string{base + ".csv"}
	if s.cfg.ExportXLSX {
		paths = append(paths, base+".xlsx")
	}
	for _, p := range paths {
		if err := dataset.WriteFile(p, t); err != nil {
			return nil, err
		}
	}
	return paths, nil
}
