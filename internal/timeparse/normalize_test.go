package timeparse

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"  remind   me in10mins ", "remind me in 10 mins"},
		{"in1h30m", "in 1 h 30 m"},
		{"tonight", "today at 9pm"},
		{"This Evening", "today at 7pm"},
		{"this afternoon", "today at 3pm"},
		{"this morning", "today at 9am"},
		{"tomorrow night", "tomorrow at 9pm"},
		{"tomorrow evening", "tomorrow at 7pm"},
		{"tomorrow noon", "tomorrow 12pm"},
		{"midnight", "12am"},
		// explicit time ahead: leave the phrase alone
		{"tonight at 8pm", "tonight at 8 pm"},
		{"tonight 8:30", "tonight 8:30"},
		{"tomorrow morning at 7", "tomorrow morning at 7"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}
