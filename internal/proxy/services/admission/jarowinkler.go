package admission

// JaroWinkler returns the Jaro-Winkler similarity of s1 and s2 in [0, 1],
// comparing by rune.
func JaroWinkler(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}
	r1, r2 := []rune(s1), []rune(s2)
	l1, l2 := len(r1), len(r2)

	// May be negative for very short strings, which leaves no window at all.
	window := max(l1, l2)/2 - 1

	matched1 := make([]bool, l1)
	matched2 := make([]bool, l2)
	m := 0
	for i := 0; i < l1; i++ {
		lo := max(0, i-window)
		hi := min(l2, i+window+1)
		for j := lo; j < hi; j++ {
			if !matched2[j] && r1[i] == r2[j] {
				matched1[i] = true
				matched2[j] = true
				m++
				break
			}
		}
	}
	if m == 0 {
		return 0.0
	}

	mismatched := 0
	k := 0
	for i := 0; i < l1; i++ {
		if !matched1[i] {
			continue
		}
		for !matched2[k] {
			k++
		}
		if r1[i] != r2[k] {
			mismatched++
		}
		k++
	}
	t := float64(mismatched) / 2

	mf := float64(m)
	jaro := (mf/float64(l1) + mf/float64(l2) + (mf-t)/mf) / 3.0

	prefix := 0
	for i := 0; i < min(l1, l2) && prefix < 4; i++ {
		if r1[i] != r2[i] {
			break
		}
		prefix++
	}
	return jaro + 0.1*float64(prefix)*(1-jaro)
}
