package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-narrator/internal/dice"
)

func TestParse(t *testing.T) {
	tcs := []struct {
		name string
		raw  string
		want Parsed
	}{
		{
			name: "narration",
			raw:  "She lights a cigarette.",
			want: Parsed{Command: Narration{Text: "She lights a cigarette."}},
		},
		{
			name: "slash inside a word is narration",
			raw:  "see http://example.com/stat for details",
			want: Parsed{Command: Narration{Text: "see http://example.com/stat for details"}},
		},
		{
			name: "simple roll defaults",
			raw:  "/roll 5",
			want: Parsed{Command: SimpleRoll{Pool: 5, Difficulty: dice.DefaultDifficulty}},
		},
		{
			name: "simple roll with prefix and options",
			raw:  "Fires twice /roll 5 difficulty 7 specialty",
			want: Parsed{Command: SimpleRoll{Prefix: "Fires twice", Pool: 5, Difficulty: 7, Specialty: true}},
		},
		{
			name: "keywords are case insensitive",
			raw:  "/ROLL 3 Difficulty 8 TRUE",
			want: Parsed{Command: SimpleRoll{Pool: 3, Difficulty: 8, Specialty: true}},
		},
		{
			name: "explicit false flag",
			raw:  "/roll 3 false",
			want: Parsed{Command: SimpleRoll{Pool: 3, Difficulty: 6}},
		},
		{
			name: "stat roll",
			raw:  "/stat Dexterity + Firearms",
			want: Parsed{Command: StatRoll{
				Parts:      []dice.StatPart{{Name: "Dexterity"}, {Name: "Firearms"}},
				Difficulty: 6,
			}},
		},
		{
			name: "stat roll with multi word stat and literal",
			raw:  "/stat Melee Weapons + 2 difficulty 7",
			want: Parsed{Command: StatRoll{
				Parts:      []dice.StatPart{{Name: "Melee Weapons"}, {Value: 2}},
				Difficulty: 7,
			}},
		},
		{
			name: "extended roll",
			raw:  "Picks the lock /extended 6 target 10 max_rolls 4 difficulty 7",
			want: Parsed{Command: ExtendedRoll{Prefix: "Picks the lock", Pool: 6, Target: 10, Difficulty: 7, MaxRolls: 4}},
		},
		{
			name: "extended roll unbounded",
			raw:  "/extended 6 target 10",
			want: Parsed{Command: ExtendedRoll{Pool: 6, Target: 10, Difficulty: 6}},
		},
		{
			name: "repeated rolls",
			raw:  "/rolls 3 rolls @ 5 difficulty 7",
			want: Parsed{Command: RepeatedRolls{Rolls: 3, Pool: 5, Difficulty: 7}},
		},
		{
			name: "trailing narration after a roll is dropped",
			raw:  "I swing /roll 5 at the guard",
			want: Parsed{Command: SimpleRoll{Prefix: "I swing", Pool: 5, Difficulty: 6}},
		},
		{
			name: "trailing narration after options",
			raw:  "/roll 5 difficulty 7 specialty, then duck behind the bar!",
			want: Parsed{Command: SimpleRoll{Pool: 5, Difficulty: 7, Specialty: true}},
		},
		{
			name: "trailing narration after an extended roll",
			raw:  "/extended 6 target 10 while the guards sleep",
			want: Parsed{Command: ExtendedRoll{Pool: 6, Target: 10, Difficulty: 6}},
		},
		{
			name: "trailing narration after repeated rolls",
			raw:  "/rolls 3 rolls @ 5 to hold the door",
			want: Parsed{Command: RepeatedRolls{Rolls: 3, Pool: 5, Difficulty: 6}},
		},
		{
			name: "willpower before the token stays in the prefix",
			raw:  "#WP /roll 4",
			want: Parsed{Command: SimpleRoll{Prefix: "#WP", Pool: 4, Difficulty: 6}, WillpowerSpend: true},
		},
		{
			name: "willpower after the token is removed from the arguments",
			raw:  "Dodges /roll 4 #WP",
			want: Parsed{Command: SimpleRoll{Prefix: "Dodges", Pool: 4, Difficulty: 6}, WillpowerSpend: true},
		},
		{
			name: "multi point willpower",
			raw:  "Holds the line /roll 4 #WP3",
			want: Parsed{Command: SimpleRoll{Prefix: "Holds the line", Pool: 4, Difficulty: 6}, ExtraWillpower: 3},
		},
		{
			name: "bare and multi point willpower add up",
			raw:  "#WP #WP2 steels herself #WP1",
			want: Parsed{Command: Narration{Text: "#WP #WP2 steels herself #WP1"}, WillpowerSpend: true, ExtraWillpower: 3},
		},
		{
			name: "willpower token needs a word boundary",
			raw:  "#WPX and #WP1234",
			want: Parsed{Command: Narration{Text: "#WPX and #WP1234"}},
		},
		{
			name: "willpower on narration",
			raw:  "Grits her teeth #WP",
			want: Parsed{Command: Narration{Text: "Grits her teeth #WP"}, WillpowerSpend: true},
		},
		{
			name: "storyteller escalation",
			raw:  "  @Storyteller can I climb the wall? #WP",
			want: Parsed{Command: StorytellerEscalation{Text: "can I climb the wall? #WP"}},
		},
		{
			name: "mention of storyteller elsewhere is narration",
			raw:  "Waves at @storyteller",
			want: Parsed{Command: Narration{Text: "Waves at @storyteller"}},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	tcs := []struct {
		raw     string
		command string
	}{
		{raw: "/roll", command: "roll"},
		{raw: "/roll five", command: "roll"},
		{raw: "/roll 5 max_rolls 3", command: "roll"},
		{raw: "/stat", command: "stat"},
		{raw: "/stat Strength +", command: "stat"},
		{raw: "/stat Strength + Brawl, then runs", command: "stat"},
		{raw: "/stat Strength difficulty 6 at the guard", command: "stat"},
		{raw: "/extended 5", command: "extended"},
		{raw: "/extended 5 target", command: "extended"},
		{raw: "/rolls 3 @ 5", command: "rolls"},
		{raw: "/rolls 3 rolls 5", command: "rolls"},
	}

	for _, tc := range tcs {
		t.Run(tc.raw, func(t *testing.T) {
			_, err := Parse(tc.raw)
			var syntax *SyntaxError
			require.True(t, errors.As(err, &syntax), "got %v", err)
			assert.Equal(t, tc.command, syntax.Command)
			assert.Contains(t, err.Error(), "/"+tc.command)
		})
	}
}

func TestWillpowerPoints(t *testing.T) {
	assert.Zero(t, Parsed{}.WillpowerPoints())
	assert.Equal(t, 1, Parsed{WillpowerSpend: true}.WillpowerPoints())
	assert.Equal(t, 4, Parsed{WillpowerSpend: true, ExtraWillpower: 3}.WillpowerPoints())
}

func TestNormalizeQuotes(t *testing.T) {
	in := "“It’s late,” she said. ‘Fine’ ＂x＂ 6′ 2″"
	want := `"It's late," she said. 'Fine' "x" 6' 2"`

	got := NormalizeQuotes(in)
	assert.Equal(t, want, got)
	assert.Equal(t, got, NormalizeQuotes(got))
}

func TestNormalizeQuotesLeavesMarkupAlone(t *testing.T) {
	in := `<script>alert('x')</script>`
	assert.Equal(t, in, NormalizeQuotes(in))
}
