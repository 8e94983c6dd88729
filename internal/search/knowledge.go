package search

import (
	"fmt"
	"strings"
	"time"
)

type fact struct {
	key  string
	text string
}

// Ordered: the first matching key wins.
var capitals = []fact{
	{"nicaragua", "Managua"},
	{"france", "Paris"},
	{"germany", "Berlin"},
	{"japan", "Tokyo"},
	{"brazil", "Brasília"},
	{"australia", "Canberra"},
	{"canada", "Ottawa"},
	{"italy", "Rome"},
	{"spain", "Madrid"},
	{"russia", "Moscow"},
	{"china", "Beijing"},
	{"india", "New Delhi"},
	{"mexico", "Mexico City"},
	{"argentina", "Buenos Aires"},
	{"egypt", "Cairo"},
	{"south africa", "Cape Town, Pretoria, and Bloemfontein"},
	{"united kingdom", "London"},
	{"united states", "Washington, D.C."},
	{"uk", "London"},
	{"usa", "Washington, D.C."},
}

var aviationFacts = []fact{
	{"ge90", "The GE90 is a family of turbofan engines. The GE90-115B variant produces up to 115,300 pounds of thrust, making it one of the most powerful jet engines in the world. It powers the Boeing 777-300ER and 777-200LR aircraft."},
	{"boeing 777", "The Boeing 777 is a wide-body airliner powered by engines like the GE90, Pratt & Whitney PW4000, or Rolls-Royce Trent 800 series."},
	{"airbus a380", "The Airbus A380 is powered by either Rolls-Royce Trent 900 or Engine Alliance GP7200 engines."},
	{"jet engine", "Jet engines work by compressing air, mixing it with fuel, igniting it, and expelling the exhaust to create thrust."},
	{"turbofan", "A turbofan engine uses a fan to accelerate air around the engine core, providing most of the thrust efficiently."},
}

// Science keys match when every word of the key appears in the query.
var scienceFacts = []fact{
	{"speed of light", "The speed of light in vacuum is approximately 299,792,458 meters per second."},
	{"boiling point water", "Water boils at 100°C (212°F) at standard atmospheric pressure."},
	{"freezing point water", "Water freezes at 0°C (32°F) at standard atmospheric pressure."},
	{"value of pi", "Pi (π) is approximately 3.14159265359..."},
	{"gravity earth", "Earth's gravity is approximately 9.8 m/s²."},
	{"distance earth sun", "The average distance from Earth to the Sun is about 150 million kilometers (93 million miles)."},
	{"mount everest", "Mount Everest is 8,848.86 meters (29,031.7 feet) tall."},
	{"speed of sound", "The speed of sound in air at room temperature is approximately 343 meters per second (1,125 feet per second)."},
}

// Technology keys match on the whole phrase or any single word of it.
var techFacts = []fact{
	{"artificial intelligence", "AI is a field of computer science focused on creating systems that can perform tasks typically requiring human intelligence."},
	{"machine learning", "Machine learning is a subset of AI where algorithms learn from data to make predictions or decisions."},
	{"neural network", "Neural networks are computing systems inspired by biological neural networks, used in machine learning."},
	{"internet", "The Internet is a global network of interconnected computers that communicate using standardized protocols."},
}

// KnowledgeBase is the static offline fact table used when no search
// provider is available or every variant failed under the
// knowledge_base policy.
type KnowledgeBase struct {
	now func() time.Time
}

// NewKnowledgeBase creates a knowledge base. now supplies the current
// date for "today" queries; nil means time.Now.
func NewKnowledgeBase(now func() time.Time) *KnowledgeBase {
	if now == nil {
		now = time.Now
	}
	return &KnowledgeBase{now: now}
}

// Lookup matches query case-insensitively against each category in
// turn. The second result reports whether anything matched; on a miss
// the text explains which topics are covered.
func (kb *KnowledgeBase) Lookup(query string) (string, bool) {
	q := strings.ToLower(query)

	if strings.Contains(q, "capital") {
		for _, f := range capitals {
			if strings.Contains(q, f.key) {
				return fmt.Sprintf("The capital of %s is %s.", titleCase(f.key), f.text), true
			}
		}
	}

	for _, f := range aviationFacts {
		if strings.Contains(q, f.key) {
			return f.text, true
		}
	}

	for _, f := range scienceFacts {
		if containsAll(q, strings.Fields(f.key)) {
			return f.text, true
		}
	}

	for _, f := range techFacts {
		if strings.Contains(q, f.key) || containsAny(q, strings.Fields(f.key)) {
			return f.text, true
		}
	}

	if strings.Contains(q, "today") || strings.Contains(q, "current date") {
		return fmt.Sprintf("Today's date is %s.", kb.now().Format("January 02, 2006")), true
	}

	return fmt.Sprintf("I don't have specific information about '%s' in my knowledge base. "+
		"Try asking about geography, science, aviation, or technology topics.", query), false
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// titleCase upper-cases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
