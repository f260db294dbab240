package measures

import "math"

// JensenShannon is the square root of the Jensen-Shannon divergence (base 2) between the
// character bigram distributions of the two values. Values are padded so single characters
// still produce bigrams. The result is a metric in [0,1].
type JensenShannon struct{}

func (JensenShannon) Name() string     { return "jensen_shannon" }
func (JensenShannon) Normalised() bool { return true }

func (JensenShannon) Distance(a, b string) (float64, error) {
	if a == b {
		return 0, nil
	}

	p, pn := bigrams(a)
	q, qn := bigrams(b)

	var divergence float64
	for g, pc := range p {
		pi := pc / pn
		qi := q[g] / qn
		divergence += pi * math.Log2(2*pi/(pi+qi))
	}
	for g, qc := range q {
		qi := qc / qn
		pi := p[g] / pn
		divergence += qi * math.Log2(2*qi/(pi+qi))
	}

	d := math.Sqrt(math.Max(0, divergence/2))
	return math.Min(1, d), nil
}

func bigrams(s string) (map[string]float64, float64) {
	runes := append(append([]rune{'\x02'}, []rune(s)...), '\x03')
	counts := make(map[string]float64, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		counts[string(runes[i:i+2])]++
	}
	return counts, float64(len(runes) - 1)
}
