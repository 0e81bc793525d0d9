package spec

import (
	"github.com/cloudhand/cloudhand/internal/config"
	"github.com/cloudhand/cloudhand/internal/errors"
	"github.com/cloudhand/cloudhand/internal/graph"
)

// Sync compiles the project's last scan into a fresh spec and persists it,
// replacing any existing spec wholesale. It returns the compiled spec.
func Sync(root, provider string) (*DesiredStateSpec, error) {
	paths := config.NewPaths(root)

	g, err := graph.Load(paths.ScanFile())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfiguration,
			"no scan found for project; run a scan first")
	}

	s := Compile(g, provider)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := s.Save(paths.SpecFile()); err != nil {
		return nil, err
	}
	return s, nil
}
