package engine

import "github.com/qualtrack/qualtrack/pkg/model"

// copyEntityUserData carries user-entered entity annotations forward from the
// baseline sources onto freshly collected sources, mutating the incoming
// sources in place. Sources are paired positionally.
//
// The operation is idempotent: migrating already-migrated sources again
// changes nothing.
func copyEntityUserData(baseline, incoming []*model.SourceResult) {
	for i, old := range baseline {
		if i >= len(incoming) {
			break
		}
		migrateSourceUserData(old, incoming[i])
	}
}

func migrateSourceUserData(old, fresh *model.SourceResult) {
	presentKeys := make(map[string]bool, len(fresh.Entities))
	// Entity keys sometimes need to change, e.g. when a key scheme turns out
	// not to be unique. An entity's old_key maps its previous key to the new
	// one so annotations can move with it.
	renamedKeys := make(map[string]string)
	for _, e := range fresh.Entities {
		presentKeys[e.Key] = true
		if e.OldKey != "" {
			renamedKeys[e.OldKey] = e.Key
		}
	}

	for key, attributes := range old.EntityUserData {
		if newKey, ok := renamedKeys[key]; ok {
			setEntityUserData(fresh, newKey, attributes)
		} else if presentKeys[key] {
			setEntityUserData(fresh, key, attributes)
		}
		// Otherwise the entity no longer exists; its annotations are dropped.
	}
}

func setEntityUserData(s *model.SourceResult, key string, attributes map[string]any) {
	if s.EntityUserData == nil {
		s.EntityUserData = make(map[string]map[string]any)
	}
	s.EntityUserData[key] = attributes
}
