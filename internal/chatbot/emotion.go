package chatbot

import "strings"

const (
	Overwhelmed = "overwhelmed"
	Frustrated  = "frustrated"
	Anxious     = "anxious"
	Stuck       = "stuck"
	Rejected    = "rejected"
	Hyperfocus  = "hyperfocus"
	TimeBlind   = "timeBlind"
	Neutral     = "neutral"
)

type pattern struct {
	emotion  string
	keywords []string
}

// patterns are checked in order; the first category with a hit wins.
var patterns = []pattern{
	{Overwhelmed, []string{"overwhelmed", "too much", "can't handle", "stressed", "drowning"}},
	{Frustrated, []string{"frustrated", "annoyed", "irritated", "angry", "mad"}},
	{Anxious, []string{"anxious", "worried", "scared", "nervous", "afraid"}},
	{Stuck, []string{"stuck", "can't start", "procrastinating", "don't know how"}},
	{Rejected, []string{"rejected", "failure", "not good enough", "disappointed"}},
	{Hyperfocus, []string{"can't stop", "hours passed", "forgot to eat", "lost track"}},
	{TimeBlind, []string{"time", "late", "forgot", "didn't realize"}},
}

// DetectEmotion classifies message by lower-cased substring match.
func DetectEmotion(message string) string {
	m := strings.ToLower(message)
	// curly apostrophes from mobile keyboards
	m = strings.ReplaceAll(m, "’", "'")
	for _, p := range patterns {
		for _, k := range p.keywords {
			if strings.Contains(m, k) {
				return p.emotion
			}
		}
	}
	return Neutral
}
