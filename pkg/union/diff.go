package union

// MissingColumns compares two column-name lists. rightMissing holds the names
// left has and right lacks; leftMissing holds the names right has and left lacks.
// Each result keeps the order of first appearance in its source list, and a
// repeated name is reported once.
func MissingColumns(leftNames, rightNames []string) (rightMissing, leftMissing []string) {
	return difference(leftNames, rightNames), difference(rightNames, leftNames)
}

func difference(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, name := range b {
		inB[name] = struct{}{}
	}

	var out []string
	seen := make(map[string]struct{}, len(a))
	for _, name := range a {
		if _, ok := inB[name]; ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
