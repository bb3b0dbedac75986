package extractor

import (
	"context"
	"slices"
	"strings"
	"unicode"

	"github.com/kalambet/archai/internal/requirements"
	"github.com/kalambet/archai/internal/stage"
)

// RuleExtractor is the stage-indexed baseline: each message answers the field
// of the current stage. It never calls a model and never fails.
type RuleExtractor struct {
	script *Script
}

// NewRuleExtractor creates a RuleExtractor speaking the given script.
func NewRuleExtractor(script *Script) *RuleExtractor {
	return &RuleExtractor{script: script}
}

func (e *RuleExtractor) Extract(_ context.Context, in Input) (Result, error) {
	msg := strings.TrimSpace(in.Message)

	if in.Stage == stage.Confirmation {
		return e.confirm(in, msg), nil
	}

	if msg == "" || e.isGreeting(msg) {
		return e.greet(in), nil
	}

	target, ok := stage.Field(in.Stage)
	if !ok {
		target, ok = in.Record.FirstUnset()
	}
	if !ok {
		// Introduction with nothing left to ask.
		return Result{Reply: e.script.ConfirmWithSummary(in.Record), Intent: IntentGreeting, NextStage: stage.Confirmation}, nil
	}

	delta := requirements.Delta{target: msg}
	updated := mustApply(in.Record, delta)
	next, _ := stage.Advance(in.Stage, stage.FieldAccepted, updated)
	return Result{
		Reply:     e.ask(next, updated, len(in.History)),
		Delta:     delta,
		Intent:    IntentAnswer,
		NextStage: next,
		Field:     target,
	}, nil
}

func (e *RuleExtractor) confirm(in Input, msg string) Result {
	if e.isAffirmation(msg) {
		return Result{Reply: e.script.Affirmed, Intent: IntentAffirm, NextStage: stage.Generation}
	}
	if e.isGreeting(msg) {
		return Result{Reply: e.script.ConfirmWithSummary(in.Record), Intent: IntentGreeting, NextStage: stage.Confirmation}
	}
	named := e.namedField(msg)
	next, _ := stage.Sequencer{}.Advance(stage.Confirmation, stage.Event{Outcome: stage.Declined, Named: named}, in.Record)
	return Result{
		Reply:     e.ask(next, in.Record, 0),
		Intent:    IntentDecline,
		NextStage: next,
		Field:     named,
	}
}

func (e *RuleExtractor) greet(in Input) Result {
	reply := e.script.GreetingReply
	if f, ok := in.Record.FirstUnset(); ok {
		reply += " " + e.script.Question(f)
	}
	return Result{Reply: reply, Intent: IntentGreeting, NextStage: in.Stage}
}

// ask phrases the reply for the stage the conversation is heading to.
func (e *RuleExtractor) ask(next stage.Stage, rec requirements.Record, n int) string {
	if next == stage.Confirmation {
		return e.script.ConfirmWithSummary(rec)
	}
	if f, ok := stage.Field(next); ok {
		if ack := e.script.acknowledge(n); ack != "" {
			return ack + " " + e.script.Question(f)
		}
		return e.script.Question(f)
	}
	return e.script.GreetingReply
}

// isAffirmation looks for an affirmation token that is not negated. A
// message opening with a negation declines outright, as does an
// affirmation with a negation among the two words before it ("not
// correct", "isn't quite right"). Negations elsewhere leave the answer
// alone: "yes, no changes needed" still confirms.
func (e *RuleExtractor) isAffirmation(msg string) bool {
	words := strings.FieldsFunc(strings.ToLower(msg), notWordRune)
	if len(words) == 0 {
		return false
	}
	negate := make(map[string]bool, len(e.script.Tokens.Negate))
	for _, n := range e.script.Tokens.Negate {
		negate[n] = true
	}
	if negate[words[0]] {
		return false
	}
	for _, a := range e.script.Tokens.Affirm {
		for _, at := range phraseIndexes(words, strings.Fields(a)) {
			negated := false
			for _, w := range words[max(0, at-2):at] {
				if negate[w] {
					negated = true
				}
			}
			if !negated {
				return true
			}
		}
	}
	return false
}

// isGreeting matches short messages made only of greeting tokens and the
// words that address someone ("hi there"). "hey modern" is an answer.
func (e *RuleExtractor) isGreeting(msg string) bool {
	words := strings.FieldsFunc(strings.ToLower(msg), notWordRune)
	if len(words) == 0 || len(words) > 4 {
		return false
	}
	addressee := make(map[string]bool, len(e.script.Tokens.Addressee))
	for _, a := range e.script.Tokens.Addressee {
		addressee[a] = true
	}
	greeted := false
	for i := 0; i < len(words); {
		if n := e.greetingAt(words[i:]); n > 0 {
			greeted = true
			i += n
			continue
		}
		if !addressee[words[i]] {
			return false
		}
		i++
	}
	return greeted
}

// greetingAt returns the word length of the greeting token words starts
// with, or zero.
func (e *RuleExtractor) greetingAt(words []string) int {
	for _, g := range e.script.Tokens.Greeting {
		gw := strings.Fields(g)
		if len(gw) <= len(words) && slices.Equal(words[:len(gw)], gw) {
			return len(gw)
		}
	}
	return 0
}

// namedField finds the first collected field whose key or label appears in
// the message.
func (e *RuleExtractor) namedField(msg string) requirements.Field {
	lower := strings.ToLower(msg)
	for _, f := range requirements.CollectedFields {
		if containsPhrase(lower, strings.ToLower(f.Label())) || containsPhrase(lower, strings.ToLower(string(f))) {
			return f
		}
	}
	for _, alias := range fieldAliases {
		if containsPhrase(lower, alias.word) {
			return alias.field
		}
	}
	return ""
}

var fieldAliases = []struct {
	word  string
	field requirements.Field
}{
	{"size", requirements.SquareFootage},
	{"square feet", requirements.SquareFootage},
	{"sq ft", requirements.SquareFootage},
	{"lot", requirements.LotSize},
	{"bedroom", requirements.Rooms},
	{"bathroom", requirements.Rooms},
	{"price", requirements.Budget},
	{"cost", requirements.Budget},
	{"style", requirements.ArchitecturalStyle},
	{"lifestyle", requirements.LifestyleNeeds},
	{"accessibility", requirements.SpecialRequirements},
	{"material", requirements.MaterialPreferences},
	{"aesthetic", requirements.AestheticPreferences},
	{"look", requirements.AestheticPreferences},
}

func mustApply(rec requirements.Record, d requirements.Delta) requirements.Record {
	out, err := rec.Apply(d)
	if err != nil {
		return rec
	}
	return out
}

func notWordRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
}

// phraseIndexes returns every index in words where phrase starts.
func phraseIndexes(words, phrase []string) []int {
	if len(phrase) == 0 {
		return nil
	}
	var out []int
	for i := 0; i+len(phrase) <= len(words); i++ {
		if slices.Equal(words[i:i+len(phrase)], phrase) {
			out = append(out, i)
		}
	}
	return out
}

// containsPhrase reports whether phrase occurs in s on word boundaries.
func containsPhrase(s, phrase string) bool {
	if phrase == "" {
		return false
	}
	for i := 0; ; {
		j := strings.Index(s[i:], phrase)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(phrase)
		before := start == 0 || notWordRune(rune(s[start-1]))
		after := end == len(s) || notWordRune(rune(s[end]))
		if before && after {
			return true
		}
		i = start + 1
	}
}
