package extractor

import (
	"context"
	"strings"
	"testing"

	"github.com/kalambet/archai/internal/requirements"
	"github.com/kalambet/archai/internal/stage"
)

func newRules(t *testing.T) *RuleExtractor {
	t.Helper()
	s, err := DefaultScript()
	if err != nil {
		t.Fatalf("DefaultScript: %v", err)
	}
	return NewRuleExtractor(s)
}

func fullRecord(t *testing.T) requirements.Record {
	t.Helper()
	d := requirements.Delta{}
	for _, f := range requirements.CollectedFields {
		d[f] = "answer for " + string(f)
	}
	r, err := requirements.Record{}.Apply(d)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// drive feeds one message through the extractor and sequencer the way the
// session controller does.
func drive(t *testing.T, e Extractor, rec requirements.Record, cur stage.Stage, msg string) (requirements.Record, stage.Stage, Result) {
	t.Helper()
	res, err := e.Extract(context.Background(), Input{Record: rec, Stage: cur, Message: msg})
	if err != nil {
		t.Fatalf("Extract(%q): %v", msg, err)
	}
	next, err := rec.Apply(res.Delta)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	st, err := stage.Sequencer{RefinementPasses: 2}.Advance(cur, stage.Event{Outcome: res.Outcome(), Named: res.Field}, next)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	return next, st, res
}

func TestRules_LinearConversationReachesConfirmation(t *testing.T) {
	e := newRules(t)
	var rec requirements.Record
	cur := stage.Introduction

	answers := map[requirements.Field]string{}
	for i := 0; cur != stage.Confirmation; i++ {
		if i > 20 {
			t.Fatal("conversation did not reach confirmation")
		}
		target, ok := stage.Field(cur)
		if !ok {
			target = requirements.Vision
		}
		msg := "my " + string(target) + " answer"
		answers[target] = msg
		rec, cur, _ = drive(t, e, rec, cur, msg)
	}

	for _, f := range requirements.CollectedFields {
		got, _ := rec.Get(f).Value()
		if got != answers[f] {
			t.Errorf("%s = %q, want %q", f, got, answers[f])
		}
	}
}

func TestRules_GreetingChangesNothing(t *testing.T) {
	e := newRules(t)
	rec, _ := requirements.Record{}.Apply(requirements.Delta{requirements.Vision: "cabin"})

	for _, msg := range []string{"hello", "Hi there!", "good morning"} {
		next, st, res := drive(t, e, rec, stage.SquareFootage, msg)
		if len(res.Delta) != 0 {
			t.Errorf("%q produced delta %v", msg, res.Delta)
		}
		if st != stage.SquareFootage {
			t.Errorf("%q moved stage to %s", msg, st)
		}
		if next.Summary() != rec.Summary() {
			t.Errorf("%q changed the record", msg)
		}
		if !strings.Contains(res.Reply, e.script.Question(requirements.SquareFootage)) {
			t.Errorf("reply does not re-ask the first unset field: %q", res.Reply)
		}
	}
}

func TestRules_AnswerOpeningWithGreetingIsKept(t *testing.T) {
	e := newRules(t)
	rec, _ := requirements.Record{}.Apply(requirements.Delta{requirements.Vision: "cabin"})

	for _, msg := range []string{"hey modern", "hi, craftsman please"} {
		next, st, res := drive(t, e, rec, stage.ArchitecturalStyle, msg)
		if res.Field != requirements.ArchitecturalStyle {
			t.Errorf("%q: field = %q, want architecturalStyle", msg, res.Field)
		}
		if v, _ := next.Get(requirements.ArchitecturalStyle).Value(); v != msg {
			t.Errorf("%q: style = %q", msg, v)
		}
		if st == stage.ArchitecturalStyle {
			t.Errorf("%q did not advance the stage", msg)
		}
	}

	for _, msg := range []string{"hey", "Hello there!", "hi everyone", "what's up", "good evening, archai"} {
		if !e.isGreeting(msg) {
			t.Errorf("isGreeting(%q) = false", msg)
		}
	}
}

func TestRules_IntroductionAnswerFillsVision(t *testing.T) {
	e := newRules(t)
	rec, st, res := drive(t, e, requirements.Record{}, stage.Introduction, "A cozy lake house with big windows")
	if v, _ := rec.Get(requirements.Vision).Value(); v != "A cozy lake house with big windows" {
		t.Errorf("vision = %q", v)
	}
	if st != stage.SquareFootage {
		t.Errorf("stage = %s, want squareFootage", st)
	}
	if !strings.Contains(res.Reply, e.script.Question(requirements.SquareFootage)) {
		t.Errorf("reply = %q", res.Reply)
	}
}

func TestRules_AffirmationAtConfirmation(t *testing.T) {
	e := newRules(t)
	cases := []struct {
		msg  string
		want stage.Stage
	}{
		{"yes", stage.Generation},
		{"Looks correct!", stage.Generation},
		{"YES please", stage.Generation},
		{"okay, go ahead", stage.Generation},
		{"Yes, no changes needed", stage.Generation},
		{"yes that's correct, don't change anything", stage.Generation},
		{"Looks good, nothing wrong", stage.Generation},
		{"no, change the budget", stage.Budget},
		{"nope", stage.Vision},
		{"that's not right", stage.Vision},
		{"it isn't quite right", stage.Vision},
		{"eyes on the budget", stage.Budget},
	}
	for _, tc := range cases {
		_, st, _ := drive(t, e, fullRecord(t), stage.Confirmation, tc.msg)
		if st != tc.want {
			t.Errorf("%q -> %s, want %s", tc.msg, st, tc.want)
		}
	}
}

func TestRules_NegativeAtConfirmationRewinds(t *testing.T) {
	e := newRules(t)

	// With a gap, the first unset field wins regardless of what is named.
	partial := fullRecord(t).Clear(requirements.LotSize)
	_, st, _ := drive(t, e, partial, stage.Confirmation, "no, change the budget")
	if st != stage.LotSize {
		t.Errorf("stage = %s, want lotSize", st)
	}

	// Without gaps, the named field is re-collected.
	_, st, res := drive(t, e, fullRecord(t), stage.Confirmation, "that's not correct, the budget is wrong")
	if st != stage.Budget || res.Field != requirements.Budget {
		t.Errorf("stage = %s, field = %s; want budget", st, res.Field)
	}

	// Nothing named falls back to vision.
	_, st, _ = drive(t, e, fullRecord(t), stage.Confirmation, "hmm, not quite")
	if st != stage.Vision {
		t.Errorf("stage = %s, want vision", st)
	}
}

func TestRules_ReanswerReturnsToConfirmation(t *testing.T) {
	e := newRules(t)
	rec, st, _ := drive(t, e, fullRecord(t), stage.Confirmation, "no, the lot size is wrong")
	if st != stage.LotSize {
		t.Fatalf("stage = %s, want lotSize", st)
	}
	rec, st, res := drive(t, e, rec, st, "half an acre")
	if st != stage.Confirmation {
		t.Errorf("stage = %s, want confirmation", st)
	}
	if v, _ := rec.Get(requirements.LotSize).Value(); v != "half an acre" {
		t.Errorf("lotSize = %q", v)
	}
	if !strings.Contains(res.Reply, "Lot Size: half an acre") {
		t.Errorf("confirmation reply lacks summary: %q", res.Reply)
	}
}

func TestContainsPhrase(t *testing.T) {
	cases := []struct {
		s, phrase string
		want      bool
	}{
		{"yes please", "yes", true},
		{"eyes open", "yes", false},
		{"looks good!", "looks good", true},
		{"ok", "ok", true},
		{"book", "ok", false},
	}
	for _, tc := range cases {
		if got := containsPhrase(tc.s, tc.phrase); got != tc.want {
			t.Errorf("containsPhrase(%q, %q) = %v", tc.s, tc.phrase, got)
		}
	}
}
