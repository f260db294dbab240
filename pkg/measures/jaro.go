package measures

// Jaro is 1 minus the Jaro similarity.
type Jaro struct{}

func (Jaro) Name() string     { return "jaro" }
func (Jaro) Normalised() bool { return true }

func (Jaro) Distance(a, b string) (float64, error) {
	return 1 - jaroSimilarity([]rune(a), []rune(b)), nil
}

// JaroWinkler is 1 minus the Jaro-Winkler similarity (prefix of up to 4, scaling 0.1).
type JaroWinkler struct{}

func (JaroWinkler) Name() string     { return "jaro_winkler" }
func (JaroWinkler) Normalised() bool { return true }

func (JaroWinkler) Distance(a, b string) (float64, error) {
	ra, rb := []rune(a), []rune(b)
	jaro := jaroSimilarity(ra, rb)

	prefixLen := 0
	for i := 0; i < len(ra) && i < len(rb) && i < 4; i++ {
		if ra[i] != rb[i] {
			break
		}
		prefixLen++
	}

	return 1 - (jaro + float64(prefixLen)*0.1*(1.0-jaro)), nil
}

func jaroSimilarity(a, b []rune) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	if string(a) == string(b) {
		return 1.0
	}

	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}
