package shell

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "   ", want: nil},
		{in: "list", want: []string{"list"}},
		{in: "schedule 2:30PM Send dad joke", want: []string{"schedule", "2:30PM", "Send", "dad", "joke"}},
		{in: `schedule 2:30PM "multi word prompt"`, want: []string{"schedule", "2:30PM", "multi word prompt"}},
		{in: `periodic 60 'single quoted'`, want: []string{"periodic", "60", "single quoted"}},
		{in: "config model\tsonnet", want: []string{"config", "model", "sonnet"}},
		{in: `run a\ b`, want: []string{"run", "a b"}},
		{in: `say "it's fine"`, want: []string{"say", "it's fine"}},
		{in: `say \"hi\"`, want: []string{"say", `"hi"`}},
		{in: "--allow lookout:,Bash", want: []string{"--allow", "lookout:,Bash"}},
	}
	for _, tc := range tests {
		if got := Tokenize(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Tokenize(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestTokenizeUnterminatedQuote(t *testing.T) {
	t.Parallel()

	got := Tokenize(`say "unfinished business`)
	want := []string{"say", "unfinished business"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %#v, want %#v", got, want)
	}
}
