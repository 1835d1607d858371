package categorize

import "strings"

// Schema is the closed set of category tags. The AI stage is constrained
// to it and anything outside falls through to the keyword stage.
var Schema = []string{
	"music", "classical", "opera", "dance", "theater", "comedy", "cabaret",
	"musical", "literature", "reading", "cinema", "exhibition", "art",
	"museum", "history", "lecture", "workshop", "education", "science",
	"politics", "religion", "market", "flea_market", "christmas_market",
	"fair", "festival", "folk_festival", "carnival", "party", "nightlife",
	"food", "culinary", "wine", "beer", "sport", "running", "soccer",
	"winter_sport", "hiking", "cycling", "swimming", "family", "kids",
	"youth", "seniors", "health", "wellness", "nature", "garden",
	"animals", "craft", "diy", "technology", "gaming", "charity",
	"community", "open_day", "guided_tour", "networking", "business",
	"other",
}

var schemaSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Schema))
	for _, c := range Schema {
		m[c] = struct{}{}
	}
	return m
}()

// InSchema reports whether a tag belongs to the closed schema.
func InSchema(category string) bool {
	_, ok := schemaSet[category]
	return ok
}

// keywords maps categories to weighted terms, German and English mixed
// because the sources are. Weights reward the specific term over the
// generic one.
var keywords = map[string]map[string]int{
	"music": {
		"konzert": 2, "concert": 2, "musik": 2, "music": 2, "band": 1,
		"rock": 1, "jazz": 1, "punk": 1, "live": 1, "unplugged": 1,
	},
	"classical": {
		"sinfonie": 2, "symphonie": 2, "philharmonie": 2, "orchester": 2,
		"kammermusik": 2, "klavierabend": 2,
	},
	"opera": {"oper": 2, "operette": 2, "arie": 1},
	"dance": {"tanz": 2, "ballett": 2, "tanzabend": 2, "salsa": 1, "tango": 1},
	"theater": {
		"theater": 2, "schauspiel": 2, "premiere": 1, "bühne": 1,
		"inszenierung": 2, "performance": 1,
	},
	"comedy": {"comedy": 2, "kabarett": 2, "satire": 1, "stand-up": 2},
	"literature": {"lesung": 2, "autor": 1, "literatur": 2, "buchvorstellung": 2},
	"cinema": {"kino": 2, "film": 2, "filmabend": 2, "open-air-kino": 2},
	"exhibition": {
		"ausstellung": 2, "vernissage": 2, "galerie": 1, "exhibition": 2,
		"finissage": 2,
	},
	"lecture": {"vortrag": 2, "lecture": 2, "diskussion": 1, "podium": 1},
	"workshop": {"workshop": 2, "kurs": 1, "seminar": 1},
	"market": {
		"markt": 2, "wochenmarkt": 2, "bauernmarkt": 2, "market": 2,
	},
	"flea_market": {"flohmarkt": 3, "trödelmarkt": 3},
	"christmas_market": {"weihnachtsmarkt": 3, "adventsmarkt": 3, "christkindlmarkt": 3},
	"festival": {"festival": 2, "festspiele": 2, "open air": 1},
	"folk_festival": {
		"volksfest": 3, "schützenfest": 3, "kirchweih": 3, "kerwa": 3,
		"stadtfest": 2, "dorffest": 2,
	},
	"carnival": {"fasching": 3, "karneval": 3, "umzug": 1},
	"party": {"party": 2, "feier": 1, "dj": 1, "tanzparty": 2},
	"food": {"kulinarisch": 2, "streetfood": 2, "schlachtschüssel": 2},
	"wine": {"weinfest": 3, "weinprobe": 3, "wein": 1},
	"beer": {"bierfest": 3, "bockbier": 2, "brauerei": 1, "anstich": 2},
	"sport": {
		"sport": 2, "turnier": 2, "meisterschaft": 2, "wettkampf": 2,
	},
	"running": {"lauf": 2, "marathon": 3, "volkslauf": 3},
	"soccer": {"fußball": 3, "heimspiel": 2},
	"hiking": {"wanderung": 3, "wandern": 2},
	"family": {"familie": 2, "familienfest": 3, "family": 2},
	"kids": {"kinder": 2, "kinderfest": 3, "puppentheater": 2, "mitmach": 1},
	"nature": {"natur": 2, "naturführung": 3},
	"guided_tour": {"führung": 2, "stadtführung": 3, "rundgang": 2},
	"open_day": {"tag der offenen tür": 3},
	"charity": {"benefiz": 3, "spende": 1, "charity": 3},
	"religion": {"gottesdienst": 3, "andacht": 2, "gemeindefest": 2},
	"health": {"gesundheit": 2, "blutspende": 2, "yoga": 1},
	"technology": {"technik": 2, "repair café": 3, "maker": 1},
}

// Keyword scores a title and description against the keyword table and
// returns the best category with a confidence derived from match
// strength. It is deterministic and network-free: whatever state the AI
// stage is in, this stage always completes. A zero score means no match;
// the caller maps that to the default assignment.
func Keyword(title, description string) (string, float64) {
	text := " " + strings.ToLower(title+" "+description) + " "

	bestCategory := ""
	bestScore := 0
	for _, category := range Schema {
		terms, ok := keywords[category]
		if !ok {
			continue
		}
		score := 0
		for term, weight := range terms {
			if strings.Contains(text, term) {
				score += weight
			}
		}
		if score > bestScore {
			bestScore = score
			bestCategory = category
		}
	}

	if bestScore == 0 {
		return "", 0
	}

	// Saturating confidence: one weak hit scores 1/3, a richly matched
	// title approaches 1.
	confidence := float64(bestScore) / float64(bestScore+2)
	return bestCategory, confidence
}
