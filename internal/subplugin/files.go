package subplugin

import (
	"os"
	"path"
)

// FileStore is the file area storage used by plugins.
type FileStore interface {
	List(dir string) ([]string, error)
	Open(name string) (*os.File, error)
	DeleteDir(dir string) error
}

// AreaPath returns the storage directory of a plugin file area. An empty itemID addresses the whole area.
func AreaPath(contextID, component, area, itemID string) string {
	if itemID == "" {
		return path.Join(contextID, component, area)
	}
	return path.Join(contextID, component, area, itemID)
}

// ComponentPath returns the storage directory holding every area of a component in a context.
func ComponentPath(contextID, component string) string {
	return path.Join(contextID, component)
}
