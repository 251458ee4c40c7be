package kinematics

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// ModuleIndex maps a drive module name to its position in the configured module list.
type ModuleIndex map[string]int

// NewModuleIndex builds the index for modules. Names must be unique.
func NewModuleIndex(modules []DriveModule) (ModuleIndex, error) {
	names := lo.Map(modules, func(m DriveModule, _ int) string { return m.Name })
	if dupes := lo.FindDuplicates(names); len(dupes) > 0 {
		return nil, errors.Errorf("duplicate drive module names %v", dupes)
	}
	return lo.SliceToMap(lo.Range(len(names)), func(i int) (string, int) { return names[i], i }), nil
}

// Lookup returns the position of the named module.
func (idx ModuleIndex) Lookup(name string) (int, error) {
	i, ok := idx[name]
	if !ok {
		return 0, NewUnknownModuleError(name)
	}
	return i, nil
}
