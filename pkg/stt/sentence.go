package stt

import (
	"strings"
	"unicode"
)

// Fragment completeness for the local bridge: whisper finals arrive on chunk
// boundaries, often before terminal punctuation, so we guess whether a
// fragment stands on its own. Trades recall for responsiveness; best-effort
// on purpose.

// coordinating conjunctions in English and Portuguese; a fragment trailing
// one of these is mid-thought.
var trailingConjunctions = map[string]struct{}{
	"and": {}, "or": {}, "but": {}, "so": {}, "because": {},
	"e": {}, "mas": {}, "ou": {}, "portanto": {}, "porque": {},
}

var verbLexicon = map[string]struct{}{
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"do": {}, "does": {}, "did": {}, "have": {}, "has": {}, "had": {},
	"can": {}, "could": {}, "will": {}, "would": {}, "should": {},
	"go": {}, "goes": {}, "went": {}, "think": {}, "know": {}, "want": {},
	"é": {}, "são": {}, "foi": {}, "era": {}, "ser": {}, "estar": {},
	"está": {}, "estão": {}, "tem": {}, "têm": {}, "faz": {}, "fazem": {},
	"pode": {}, "quer": {}, "acha": {}, "sabe": {}, "vai": {}, "vão": {},
}

var verbSuffixes = []string{"ing", "ed", "ar", "er", "ir", "ou", "am", "em", "ando", "endo", "indo"}

// function words that never count as noun-like
var functionWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "to": {}, "in": {}, "on": {},
	"at": {}, "it": {}, "he": {}, "she": {}, "we": {}, "they": {}, "you": {}, "i": {},
	"o": {}, "os": {}, "as": {}, "um": {}, "uma": {}, "de": {}, "do": {},
	"da": {}, "no": {}, "na": {}, "em": {}, "que": {}, "se": {}, "eu": {},
	"ele": {}, "ela": {}, "nós": {}, "você": {},
}

type FragmentAnalysis struct {
	Complete  bool
	WordCount int
	HasVerb   bool
	HasNoun   bool
}

// AnalyzeFragment decides whether a transcript fragment reads as a complete
// clause: terminal punctuation not trailing a conjunction, or a verb-like
// plus noun-like token with at least four words and no trailing conjunction.
func AnalyzeFragment(text string) FragmentAnalysis {
	text = strings.TrimSpace(text)
	if text == "" {
		return FragmentAnalysis{}
	}

	words := strings.Fields(text)
	a := FragmentAnalysis{WordCount: len(words)}

	for _, w := range words {
		w = normalizeWord(w)
		if w == "" {
			continue
		}
		if !a.HasVerb && isVerbLike(w) {
			a.HasVerb = true
		}
		if !a.HasNoun && isNounLike(w) {
			a.HasNoun = true
		}
	}

	runes := []rune(text)
	endsTerminal := strings.ContainsRune(".?!", runes[len(runes)-1])
	last := normalizeWord(words[len(words)-1])
	_, trailingConj := trailingConjunctions[last]

	if endsTerminal && !trailingConj {
		a.Complete = true
	} else if a.HasVerb && a.HasNoun && !trailingConj && a.WordCount >= 4 {
		a.Complete = true
	}
	return a
}

func normalizeWord(w string) string {
	return strings.TrimFunc(strings.ToLower(w), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func isVerbLike(w string) bool {
	if _, ok := verbLexicon[w]; ok {
		return true
	}
	if len(w) < 4 {
		return false
	}
	for _, suffix := range verbSuffixes {
		if strings.HasSuffix(w, suffix) {
			return true
		}
	}
	return false
}

func isNounLike(w string) bool {
	if len(w) < 3 {
		return false
	}
	if _, ok := functionWords[w]; ok {
		return false
	}
	if _, ok := trailingConjunctions[w]; ok {
		return false
	}
	return true
}
