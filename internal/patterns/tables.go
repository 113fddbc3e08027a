package patterns

// builtinCategoryKeywords is in tie-break order. Keywords are in normalized
// form: lowercase, ASCII quotes.
func builtinCategoryKeywords() []CategoryKeywords {
	return []CategoryKeywords{
		{Category: CategoryVehicles, Keywords: []string{
			"רכב", "רכבים", "מכונית", "מכוניות", "אופנוע", "קטנוע", "טרקטורון", "משאית", "ואן",
			"טנדר", "ג'יפון", "טסט", "ק\"מ", "קמ", "קילומטראז'", "קילומטר", "קילומטרים", "גיר",
			"סמ\"ק", "בעלות", "ליסינג",
			"car", "vehicle", "motorcycle", "scooter", "sedan", "suv", "hatchback", "km", "mileage",
		}},
		{Category: CategoryRealEstate, Keywords: []string{
			"דירה", "דירת", "דירות", "חדרים", "חד'", "קומה", "מ\"ר", "מרפסת", "מעלית", "ממ\"ד",
			"פנטהאוז", "פנטהאוס", "דופלקס", "קוטג'", "בית פרטי", "וילה", "יחידת דיור", "סטודיו",
			"להשכרה", "שכירות", "שכ\"ד", "ארנונה", "ועד בית", "מחסן", "משכנתא",
			"apartment", "flat", "rent", "penthouse", "duplex", "sqm", "rooms", "bedroom",
		}},
		{Category: CategoryElectronics, Keywords: []string{
			"אייפון", "סמסונג", "גלקסי", "שיאומי", "מחשב", "מחשב נייד", "לפטופ", "מקבוק", "אייפד",
			"טאבלט", "טלוויזיה", "טלויזיה", "מסך", "אוזניות", "רמקול", "פלייסטיישן", "קונסולה",
			"מצלמה", "סמארטפון", "טלפון נייד", "שעון חכם", "מדפסת", "כרטיס מסך", "מעבד",
			"iphone", "samsung", "galaxy", "xiaomi", "laptop", "macbook", "ipad", "tablet", "tv",
			"monitor", "airpods", "headphones", "playstation", "ps4", "ps5", "xbox", "nintendo",
			"camera", "smartphone", "gpu", "cpu",
		}},
	}
}

// builtinConditionKeywords weights condition phrases. Longer phrases carry
// more weight so "כמו חדש" beats the "חדש" inside it.
func builtinConditionKeywords() []ConditionKeyword {
	var out []ConditionKeyword
	add := func(c Condition, weight float64, phrases ...string) {
		for _, p := range phrases {
			out = append(out, ConditionKeyword{Condition: c, Weight: weight, Phrase: p})
		}
	}

	add(ConditionForParts, 3.5,
		"לחלקים", "לפירוק", "לא עובד", "לא עובדת", "תקול", "תקולה", "מקולקל", "מקולקלת",
		"for parts", "parts only", "not working", "broken")
	add(ConditionLikeNew, 3.2,
		"כמו חדש", "כמו חדשה", "כמו חדשים", "כמו חדשות", "כחדש", "כחדשה", "במצב חדש",
		"במצב של חדש", "כמעט חדש", "כמעט חדשה", "like new", "as new", "mint", "mint condition")
	add(ConditionNew, 3.0,
		"חדש באריזה", "חדשה באריזה", "חדשים באריזה", "באריזה סגורה", "באריזה מקורית",
		"לא נפתח", "new in box", "brand new", "sealed", "nib")
	add(ConditionRefurbished, 3.0,
		"מחודש", "מחודשת", "מחודשים", "מחודשות", "refurbished", "renewed")
	add(ConditionNew, 2.0,
		"חדש", "חדשה", "חדשים", "חדשות", "new")
	// "anew", not "new": shadows the prefixed "חדש"
	add("", 2.5, "מחדש", "מהחדש")
	add(ConditionUsed, 1.0,
		"משומש", "משומשת", "משומשים", "משומשות", "יד שניה", "יד שנייה", "used", "pre-owned", "second hand")
	return out
}
