package training

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/streetmatch/pkg/features"
	"github.com/bastiangx/streetmatch/pkg/model"
)

// ClassMetrics are the one-vs-rest scores of a single label.
type ClassMetrics struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report summarizes predictions against known labels.
type Report struct {
	Total    int
	Accuracy float64
	// Confusion[expected][predicted]
	Confusion [model.NumClasses][model.NumClasses]int
	Classes   [model.NumClasses]ClassMetrics
}

// Evaluate predicts every example and scores the predictions.
func Evaluate(clf model.Classifier, ext *features.Extractor, examples []Example) (Report, error) {
	var r Report
	for _, ex := range examples {
		got, err := clf.Predict(ext.Extract(ex.Name1, ex.Name2).Vector)
		if err != nil {
			return Report{}, fmt.Errorf("evaluate %q + %q: %w", ex.Name1, ex.Name2, err)
		}
		r.Confusion[ex.Label][got]++
	}
	r.score()
	return r, nil
}

func (r *Report) score() {
	correct := 0
	for k := 0; k < model.NumClasses; k++ {
		var predicted, support int
		for j := 0; j < model.NumClasses; j++ {
			support += r.Confusion[k][j]
			predicted += r.Confusion[j][k]
		}
		tp := r.Confusion[k][k]
		correct += tp
		r.Total += support

		m := ClassMetrics{Support: support}
		if predicted > 0 {
			m.Precision = float64(tp) / float64(predicted)
		}
		if support > 0 {
			m.Recall = float64(tp) / float64(support)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes[k] = m
	}
	if r.Total > 0 {
		r.Accuracy = float64(correct) / float64(r.Total)
	}
}

// String renders the report as a small table.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "accuracy %.2f over %d pairs\n", r.Accuracy, r.Total)
	fmt.Fprintf(&b, "%-10s %9s %9s %9s %9s\n", "", "precision", "recall", "f1", "support")
	for k, m := range r.Classes {
		fmt.Fprintf(&b, "%-10s %9.2f %9.2f %9.2f %9d\n", model.Label(k), m.Precision, m.Recall, m.F1, m.Support)
	}
	b.WriteString("confusion (rows expected, cols predicted)\n")
	for _, row := range r.Confusion {
		fmt.Fprintf(&b, "  %v\n", row)
	}
	return b.String()
}

// Log writes the report at info level.
func (r Report) Log(name string) {
	if r.Total == 0 {
		log.Infof("%s: no examples", name)
		return
	}
	log.Infof("%s:\n%s", name, r)
}
