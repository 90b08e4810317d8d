package engine

import (
	"context"
	"testing"

	"github.com/promptgrid/api/internal/model"
)

func TestResolve_PromptAndOutput(t *testing.T) {
	e, st := newTestEngine(t, &fakeProvider{}, nil, Config{})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "write a haiku", Output: "an old silent pond"})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "B1", Prompt: "Task: {{A1}}. Result: {{output:A1}}."})

	got := e.Resolve(context.Background(), getCell(t, st, "Main", "B1"))
	want := "Task: write a haiku. Result: an old silent pond."
	if got != want {
		t.Errorf("resolved = %q, want %q", got, want)
	}
}

func TestResolve_BareRefIgnoresStoredOutput(t *testing.T) {
	e, st := newTestEngine(t, &fakeProvider{}, nil, Config{})
	// a completed cell keeps its output, but the bare form still reads
	// the prompt; output needs the explicit output: form
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "hi", Output: "HI THERE", Status: model.StatusCompleted})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "B1", Prompt: "{{A1}}/{{output:A1}}"})

	got := e.Resolve(context.Background(), getCell(t, st, "Main", "B1"))
	if got != "hi/HI THERE" {
		t.Errorf("resolved = %q", got)
	}
}

func TestResolve_MissingCellEmpty(t *testing.T) {
	e, st := newTestEngine(t, &fakeProvider{}, nil, Config{})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "B1", Prompt: "before {{A1}} after {{output:Z9}} end"})

	got := e.Resolve(context.Background(), getCell(t, st, "Main", "B1"))
	if got != "before  after  end" {
		t.Errorf("resolved = %q", got)
	}
}

func TestResolve_CrossSheet(t *testing.T) {
	e, st := newTestEngine(t, &fakeProvider{}, nil, Config{})
	seedCell(t, st, &model.Cell{Sheet: "Research", Ref: "A1", Prompt: "topic brief", Output: "summary text"})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "B1", Prompt: "{{Research!A1}} / {{output:Research!A1}}"})

	got := e.Resolve(context.Background(), getCell(t, st, "Main", "B1"))
	if got != "topic brief / summary text" {
		t.Errorf("resolved = %q", got)
	}
}

func TestResolve_NestedPromptSubstitution(t *testing.T) {
	e, st := newTestEngine(t, &fakeProvider{}, nil, Config{})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "C1", Prompt: "base", Output: "grounded"})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "use {{output:C1}} facts"})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "B1", Prompt: "[{{A1}}]"})

	got := e.Resolve(context.Background(), getCell(t, st, "Main", "B1"))
	if got != "[use grounded facts]" {
		t.Errorf("resolved = %q", got)
	}
}

func TestResolve_CycleDegradesToEmpty(t *testing.T) {
	e, st := newTestEngine(t, &fakeProvider{}, nil, Config{})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "a({{B1}})"})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "B1", Prompt: "b({{A1}})"})

	got := e.Resolve(context.Background(), getCell(t, st, "Main", "A1"))
	if got != "a(b())" {
		t.Errorf("resolved = %q, want cycle edge to collapse to empty", got)
	}
}

func TestResolve_SelfReferenceEmpty(t *testing.T) {
	e, st := newTestEngine(t, &fakeProvider{}, nil, Config{})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "me: {{A1}}"})

	got := e.Resolve(context.Background(), getCell(t, st, "Main", "A1"))
	if got != "me: " {
		t.Errorf("resolved = %q", got)
	}
}

func TestResolve_Generations(t *testing.T) {
	e, st := newTestEngine(t, &fakeProvider{}, nil, Config{})
	seedCell(t, st, &model.Cell{
		Sheet: "Main", Ref: "A1", Prompt: "p",
		Generations: []model.Generation{
			{Output: "first"},
			{Output: "second"},
			{Output: "third"},
		},
	})

	tests := []struct {
		prompt string
		want   string
	}{
		{"{{A1-2}}", "second"},
		{"{{A1-1}}", "first"},
		{"{{A1:1-2}}", "first\nsecond"},
		{"{{A1:2-3}}", "second\nthird"},
		{"{{A1:1-9}}", "first\nsecond\nthird"}, // range clamps to history
		{"{{A1-9}}", ""},                       // out of range
		{"{{A1:3-1}}", ""},                     // inverted range
	}
	for _, tt := range tests {
		cell := &model.Cell{Sheet: "Main", Ref: "B1", Prompt: tt.prompt}
		if got := e.Resolve(context.Background(), cell); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestResolve_ConditionalBranches(t *testing.T) {
	e, st := newTestEngine(t, &fakeProvider{}, nil, Config{})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "gate", Output: "ready"})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "B1", Prompt: "deep dive", Output: "long form"})

	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{
			name:   "then branch",
			prompt: "{{if:A1==ready}}then:go{{else:wait}}",
			want:   "go",
		},
		{
			name:   "else branch",
			prompt: "{{if:A1==blocked}}then:go{{else:wait}}",
			want:   "wait",
		},
		{
			name:   "false without else is empty",
			prompt: "x{{if:A1==blocked}}then:go",
			want:   "x",
		},
		{
			name:   "chosen branch resolves nested references",
			prompt: "{{if:A1==ready}}then:use {{output:B1}}{{else:skip}}",
			want:   "use long form",
		},
		{
			name:   "condition on missing cell takes else",
			prompt: "{{if:Z9==x}}then:a{{else:b}}",
			want:   "b",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cell := &model.Cell{Sheet: "Main", Ref: "C1", Prompt: tt.prompt}
			if got := e.Resolve(context.Background(), cell); got != tt.want {
				t.Errorf("resolved = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolve_MalformedTokensEmpty(t *testing.T) {
	e, st := newTestEngine(t, &fakeProvider{}, nil, Config{})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "B1", Prompt: "keep {{not a ref}} going"})

	got := e.Resolve(context.Background(), getCell(t, st, "Main", "B1"))
	if got != "keep  going" {
		t.Errorf("resolved = %q", got)
	}
}

func TestResolve_PlainTextUntouched(t *testing.T) {
	e, _ := newTestEngine(t, &fakeProvider{}, nil, Config{})
	cell := &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "no references here"}
	if got := e.Resolve(context.Background(), cell); got != "no references here" {
		t.Errorf("resolved = %q", got)
	}
}
