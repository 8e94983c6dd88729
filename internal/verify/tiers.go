package verify

import (
	"fmt"
	"strings"
)

// Tier is the number of independent verification passes a claim
// requires before it may be stated as a final answer.
type Tier int

// Verification tiers.
const (
	TierNone   Tier = 0
	TierSingle Tier = 1
	TierDouble Tier = 2
)

// TierRule describes which claims fall into a tier.
type TierRule struct {
	Tier     Tier
	Title    string
	Examples []string
}

// Rules is the tier table, highest-risk tier last.
var Rules = []TierRule{
	{
		Tier:  TierSingle,
		Title: "SINGLE VERIFICATION (verify once, then proceed)",
		Examples: []string{
			"Numbers, measurements, statistics, percentages, quantities",
			"Technical specifications (engine power, performance data, dimensions)",
			"Historical dates, events, timelines",
			"Scientific data, research findings, formulas",
		},
	},
	{
		Tier:  TierDouble,
		Title: "DOUBLE VERIFICATION (verify twice for critical accuracy)",
		Examples: []string{
			"Medical information, drug dosages, health claims",
			"Legal information, regulations, laws, court cases",
			"Financial data, investment advice, tax information",
			"Safety information, warnings, hazards, emergency procedures",
		},
	},
	{
		Tier:  TierNone,
		Title: "NO VERIFICATION needed for",
		Examples: []string{
			"Simple greetings, basic conversations",
			"Well-known general knowledge",
			"Simple calculations with calculator tool",
		},
	},
}

// Guidelines renders the tier table for the system prompt.
func Guidelines() string {
	var b strings.Builder
	b.WriteString("VERIFICATION GUIDELINES:\n")
	for _, r := range Rules {
		fmt.Fprintf(&b, "%s:\n", r.Title)
		for _, ex := range r.Examples {
			fmt.Fprintf(&b, "- %s\n", ex)
		}
		b.WriteString("\n")
	}
	b.WriteString("IMPORTANT: After completing the required verifications, accept the results and provide your final answer. ")
	b.WriteString("Do not continue verifying beyond the specified level.\n")
	return b.String()
}
