package evaluate

import (
	"fmt"
	"io"
	"strings"
)

// ClassMetrics holds precision, recall and F1 for one class or an average.
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report is the evaluation summary. Matrix is indexed [truth][predicted] in
// Classes order.
type Report struct {
	Classes     []string       `json:"classes"`
	Matrix      [2][2]int      `json:"confusion_matrix"`
	PerClass    []ClassMetrics `json:"per_class"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
	Total       int            `json:"total"`
	Skipped     []string       `json:"skipped,omitempty"`
}

// NewReport builds the matrix and per-class scores. Undefined ratios are 0.
func NewReport(truth, pred []int) *Report {
	r := &Report{Total: len(truth)}
	for _, c := range Classes {
		r.Classes = append(r.Classes, string(c))
	}
	for i := range truth {
		r.Matrix[truth[i]][pred[i]]++
	}

	correct := 0
	for c := range Classes {
		tp := r.Matrix[c][c]
		predicted := r.Matrix[0][c] + r.Matrix[1][c]
		support := r.Matrix[c][0] + r.Matrix[c][1]
		correct += tp

		m := ClassMetrics{
			Label:     r.Classes[c],
			Precision: ratio(tp, predicted),
			Recall:    ratio(tp, support),
			Support:   support,
		}
		m.F1 = f1(m.Precision, m.Recall)
		r.PerClass = append(r.PerClass, m)
	}
	r.Accuracy = ratio(correct, r.Total)

	r.MacroAvg = ClassMetrics{Label: "macro avg", Support: r.Total}
	r.WeightedAvg = ClassMetrics{Label: "weighted avg", Support: r.Total}
	for _, m := range r.PerClass {
		n := float64(len(r.PerClass))
		r.MacroAvg.Precision += m.Precision / n
		r.MacroAvg.Recall += m.Recall / n
		r.MacroAvg.F1 += m.F1 / n

		if r.Total > 0 {
			w := float64(m.Support) / float64(r.Total)
			r.WeightedAvg.Precision += m.Precision * w
			r.WeightedAvg.Recall += m.Recall * w
			r.WeightedAvg.F1 += m.F1 * w
		}
	}
	return r
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func f1(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Format writes the matrix and a four-digit classification table.
func Format(w io.Writer, r *Report) error {
	var b strings.Builder

	b.WriteString("Confusion Matrix:\n")
	fmt.Fprintf(&b, "%14s %8s %8s\n", "", "pred "+r.Classes[0], "pred "+r.Classes[1])
	for i, c := range r.Classes {
		fmt.Fprintf(&b, "%14s %8d %8d\n", "true "+c, r.Matrix[i][0], r.Matrix[i][1])
	}
	fmt.Fprintf(&b, "(True Neg: %d, False Pos: %d)\n", r.Matrix[0][0], r.Matrix[0][1])
	fmt.Fprintf(&b, "(False Neg: %d, True Pos: %d)\n", r.Matrix[1][0], r.Matrix[1][1])

	b.WriteString("\nClassification Report:\n")
	fmt.Fprintf(&b, "%14s %10s %10s %10s %10s\n", "", "precision", "recall", "f1-score", "support")
	for _, m := range r.PerClass {
		writeRow(&b, m)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%14s %10s %10s %10.4f %10d\n", "accuracy", "", "", r.Accuracy, r.Total)
	writeRow(&b, r.MacroAvg)
	writeRow(&b, r.WeightedAvg)

	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, "\nSkipped %d undecodable image(s)\n", len(r.Skipped))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeRow(b *strings.Builder, m ClassMetrics) {
	fmt.Fprintf(b, "%14s %10.4f %10.4f %10.4f %10d\n", m.Label, m.Precision, m.Recall, m.F1, m.Support)
}
