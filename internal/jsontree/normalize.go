package jsontree

// StripKeys returns a normalizer that removes the given keys from objects at
// any depth, including objects nested inside arrays. The tree is modified in place.
func StripKeys(keys ...string) func(any) any {
	if len(keys) == 0 {
		return func(tree any) any { return tree }
	}

	keySet := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		keySet[key] = struct{}{}
	}

	return func(tree any) any {
		stripKeys(tree, keySet)
		return tree
	}
}

// Normalize applies normalizers to tree in order.
func Normalize(tree any, normalizers ...func(any) any) any {
	for _, normalizer := range normalizers {
		if normalizer != nil {
			tree = normalizer(tree)
		}
	}
	return tree
}

func stripKeys(value any, keySet map[string]struct{}) {
	switch v := value.(type) {
	case map[string]any:
		for key := range keySet {
			delete(v, key)
		}
		for _, child := range v {
			stripKeys(child, keySet)
		}
	case []any:
		for _, elem := range v {
			stripKeys(elem, keySet)
		}
	}
}
