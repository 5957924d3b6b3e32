// Package scoring computes audit scores over a category -> subcategory ->
// question tree. All functions are pure.
//
// Three different numbers come out of the same tree and must not be mixed:
// SubcategoryScore and CategoryScore are local averages for display, while
// TotalWeightedScore is the persisted grade and is computed from raw
// approved/answered counts, never by composing the other two.
package scoring

import "math"

// Question is a snapshot question with its current answer. Passed is nil
// when the question has not been answered.
type Question struct {
	ID     string `json:"id"`
	Passed *bool  `json:"passed"`
}

type Subcategory struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

type Category struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Weight        float64       `json:"weight"`
	Subcategories []Subcategory `json:"subcategories"`
}

func tally(qs []Question) (answered, approved int) {
	for _, q := range qs {
		if q.Passed == nil {
			continue
		}
		answered++
		if *q.Passed {
			approved++
		}
	}
	return answered, approved
}

func tallyCategory(c Category) (answered, approved int) {
	for _, sub := range c.Subcategories {
		a, p := tally(sub.Questions)
		answered += a
		approved += p
	}
	return answered, approved
}

// SubcategoryScore is the mean of 100 (passed) / 0 (failed) over answered
// questions only. A subcategory without answers scores 0.
func SubcategoryScore(sub Subcategory) float64 {
	answered, approved := tally(sub.Questions)
	if answered == 0 {
		return 0
	}
	return float64(approved) * 100 / float64(answered)
}

// CategoryScore is the plain mean of SubcategoryScore over every
// subcategory, including unanswered ones which count as 0.
func CategoryScore(c Category) float64 {
	if len(c.Subcategories) == 0 {
		return 0
	}
	sum := 0.0
	for _, sub := range c.Subcategories {
		sum += SubcategoryScore(sub)
	}
	return sum / float64(len(c.Subcategories))
}

// Compliance returns approved/answered*100 for a category and whether the
// category has any answer at all.
func Compliance(c Category) (float64, bool) {
	answered, approved := tallyCategory(c)
	if answered == 0 {
		return 0, false
	}
	return float64(approved) / float64(answered) * 100, true
}

// TotalWeightedScore is the final compliance grade, rounded to an integer.
// Categories without answers are left out of both the weighted sum and the
// weight total. With no answers anywhere the score is 0.
func TotalWeightedScore(categories []Category) int {
	var contribution, weights float64
	for _, c := range categories {
		pct, ok := Compliance(c)
		if !ok {
			continue
		}
		contribution += pct * c.Weight / 100
		weights += c.Weight
	}
	if weights <= 0 {
		return 0
	}
	return int(math.Round(contribution / weights * 100))
}
