package scoring

type SubcategorySummary struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Questions int     `json:"questions"`
	Answered  int     `json:"answered"`
	Approved  int     `json:"approved"`
	Score     float64 `json:"score"`
}

type CategorySummary struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Weight        float64              `json:"weight"`
	Questions     int                  `json:"questions"`
	Answered      int                  `json:"answered"`
	Approved      int                  `json:"approved"`
	Score         float64              `json:"score"`
	Compliance    float64              `json:"compliance"`
	Counted       bool                 `json:"counted"`
	Subcategories []SubcategorySummary `json:"subcategories"`
}

// Summary is the per-category breakdown shown next to the final grade.
type Summary struct {
	Total      int               `json:"total"`
	Questions  int               `json:"questions"`
	Answered   int               `json:"answered"`
	Categories []CategorySummary `json:"categories"`
}

// Summarize evaluates every score function over the tree.
func Summarize(categories []Category) Summary {
	out := Summary{
		Total:      TotalWeightedScore(categories),
		Categories: make([]CategorySummary, 0, len(categories)),
	}
	for _, c := range categories {
		cs := CategorySummary{
			ID:            c.ID,
			Name:          c.Name,
			Weight:        c.Weight,
			Score:         CategoryScore(c),
			Subcategories: make([]SubcategorySummary, 0, len(c.Subcategories)),
		}
		cs.Compliance, cs.Counted = Compliance(c)
		for _, sub := range c.Subcategories {
			answered, approved := tally(sub.Questions)
			cs.Subcategories = append(cs.Subcategories, SubcategorySummary{
				ID:        sub.ID,
				Name:      sub.Name,
				Questions: len(sub.Questions),
				Answered:  answered,
				Approved:  approved,
				Score:     SubcategoryScore(sub),
			})
			cs.Questions += len(sub.Questions)
			cs.Answered += answered
			cs.Approved += approved
		}
		out.Questions += cs.Questions
		out.Answered += cs.Answered
		out.Categories = append(out.Categories, cs)
	}
	return out
}
