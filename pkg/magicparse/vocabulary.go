package magicparse

// Vocabulary translates category and condition tags into display labels.
// It copies its tables on construction and exposes no way to change them.
type Vocabulary struct {
	categories map[string]string
	conditions map[string]string
}

// NewVocabulary builds a vocabulary from tag-to-label tables.
func NewVocabulary(categories, conditions map[string]string) Vocabulary {
	return Vocabulary{
		categories: copyTable(categories),
		conditions: copyTable(conditions),
	}
}

// DefaultVocabulary returns the Hebrew display labels.
func DefaultVocabulary() Vocabulary {
	return NewVocabulary(
		map[string]string{
			"Vehicles":    "רכב",
			"RealEstate":  "נדל\"ן",
			"Electronics": "אלקטרוניקה",
			"General":     "כללי",
			"Furniture":   "ריהוט",
			"Fashion":     "אופנה",
			"Baby":        "מוצרי תינוקות",
			"Sports":      "ספורט",
			"Appliances":  "מוצרי חשמל",
			"Pets":        "בעלי חיים",
			"Garden":      "גינה",
		},
		map[string]string{
			"new":         "חדש",
			"like_new":    "כמו חדש",
			"used":        "משומש",
			"refurbished": "מחודש",
			"for_parts":   "לחלקים",
		},
	)
}

// With returns a copy of v with extra labels layered on top.
func (v Vocabulary) With(categories, conditions map[string]string) Vocabulary {
	out := NewVocabulary(v.categories, v.conditions)
	for tag, label := range categories {
		out.categories[tag] = label
	}
	for tag, label := range conditions {
		out.conditions[tag] = label
	}
	return out
}

// CategoryLabel returns the label for a category tag, or the tag itself.
func (v Vocabulary) CategoryLabel(tag string) string {
	if label, ok := v.categories[tag]; ok {
		return label
	}
	return tag
}

// ConditionLabel returns the label for a condition tag, or the tag itself.
func (v Vocabulary) ConditionLabel(tag string) string {
	if label, ok := v.conditions[tag]; ok {
		return label
	}
	return tag
}

func copyTable(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
