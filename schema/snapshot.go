package schema

import "sort"

// Snapshot is an immutable, read-only view of one SchemaVersion and all
// entities it owns. Snapshots are safe for unsynchronized concurrent
// reads: the maps are never exposed and accessors return copies. The
// storage layer publishes the active snapshot through a single
// atomically swapped pointer, so no reader ever observes a mix of two
// versions.
type Snapshot struct {
	version     SchemaVersion
	objectTypes map[string]ObjectType
	linkTypes   map[string]LinkType
	actionTypes map[string]ActionType
}

// NewSnapshot builds an immutable snapshot from fully loaded entities.
// The inputs are copied; callers may discard or reuse their slices.
func NewSnapshot(version SchemaVersion, objectTypes []ObjectType, linkTypes []LinkType, actionTypes []ActionType) *Snapshot {
	s := &Snapshot{
		version:     version,
		objectTypes: make(map[string]ObjectType, len(objectTypes)),
		linkTypes:   make(map[string]LinkType, len(linkTypes)),
		actionTypes: make(map[string]ActionType, len(actionTypes)),
	}
	for _, ot := range objectTypes {
		ot.Properties = append([]Property(nil), ot.Properties...)
		s.objectTypes[ot.Name] = ot
	}
	for _, lt := range linkTypes {
		s.linkTypes[lt.Name] = lt
	}
	for _, at := range actionTypes {
		s.actionTypes[at.Name] = at
	}
	return s
}

// Version returns the SchemaVersion this snapshot was built from.
func (s *Snapshot) Version() SchemaVersion {
	return s.version
}

// VersionID returns the owning SchemaVersion id.
func (s *Snapshot) VersionID() int64 {
	return s.version.ID
}

// ObjectType returns a copy of the named object type.
func (s *Snapshot) ObjectType(name string) (ObjectType, bool) {
	ot, ok := s.objectTypes[name]
	if !ok {
		return ObjectType{}, false
	}
	ot.Properties = append([]Property(nil), ot.Properties...)
	return ot, true
}

// LinkType returns the named link type.
func (s *Snapshot) LinkType(name string) (LinkType, bool) {
	lt, ok := s.linkTypes[name]
	return lt, ok
}

// HasAction reports whether the named action type is declared.
func (s *Snapshot) HasAction(name string) bool {
	_, ok := s.actionTypes[name]
	return ok
}

// ObjectTypes returns all object types sorted by name.
func (s *Snapshot) ObjectTypes() []ObjectType {
	out := make([]ObjectType, 0, len(s.objectTypes))
	for _, ot := range s.objectTypes {
		ot.Properties = append([]Property(nil), ot.Properties...)
		out = append(out, ot)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// LinkTypes returns all link types sorted by name.
func (s *Snapshot) LinkTypes() []LinkType {
	out := make([]LinkType, 0, len(s.linkTypes))
	for _, lt := range s.linkTypes {
		out = append(out, lt)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// ActionTypes returns all action type names sorted.
func (s *Snapshot) ActionTypes() []string {
	out := make([]string, 0, len(s.actionTypes))
	for name := range s.actionTypes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ResolveProperty looks up a "Type.property" reference.
func (s *Snapshot) ResolveProperty(typeName, propName string) (Property, bool) {
	ot, ok := s.objectTypes[typeName]
	if !ok {
		return Property{}, false
	}
	return ot.Property(propName)
}
