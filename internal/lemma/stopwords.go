package lemma

// englishFunctionWords approximates the English functional parts of speech
// (INTJ|PREP|CONJ) spec.md §4.3d asks to filter before stemming. No
// part-of-speech tagger exists in the retrieved pack, so this curated list
// substitutes for one (see DESIGN.md Open Question #3).
var englishFunctionWords = []string{
	"a", "an", "the",
	"and", "or", "but", "nor", "yet", "so",
	"of", "in", "on", "at", "by", "for", "with", "about", "against",
	"between", "into", "through", "during", "before", "after", "above",
	"below", "to", "from", "up", "down", "over", "under", "again",
	"further", "then", "once",
	"oh", "ah", "wow", "hey", "alas", "oops", "ouch", "hmm",
}

// russianFunctionWords approximates the Russian МЕЖД|ПРЕДЛ|СОЮЗ classes.
var russianFunctionWords = []string{
	"и", "а", "но", "да", "или", "либо", "ни", "то",
	"в", "на", "с", "со", "к", "ко", "у", "о", "об", "обо", "от", "до",
	"из", "за", "под", "над", "про", "без", "для", "перед", "при", "через",
	"между", "среди",
	"ах", "ох", "эх", "ой", "увы", "ура", "эй",
}
