package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Vasu1712/scenyx-narrator/internal/dice"
)

var (
	// rollToken finds the first roll command that starts a word.
	rollToken = regexp.MustCompile(`(?i)(?:^|\s)/(extended|rolls|roll|stat)\b`)

	// willpowerToken is a bare #WP or a multi-point #WP<n> of up to three digits.
	willpowerToken = regexp.MustCompile(`#WP([0-9]{1,3})?\b`)

	escalationToken = regexp.MustCompile(`(?i)^@storyteller\b`)
)

var usage = map[string]string{
	"roll":     "/roll <dice> [difficulty <n>] [specialty]",
	"stat":     "/stat <Stat> [+ <Stat>|<n>]... [difficulty <n>] [specialty]",
	"extended": "/extended <dice> target <n> [difficulty <n>] [max_rolls <n>] [specialty]",
	"rolls":    "/rolls <n> rolls @ <dice> [difficulty <n>] [specialty]",
}

// SyntaxError reports a roll token whose arguments do not fit its grammar.
type SyntaxError struct {
	Command string
	Err     error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("The command /%s must be: %s", e.Command, usage[e.Command])
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Parse interprets raw as a command. Only the first roll token in the message
// is honored; text before it becomes the roll's prefix. A malformed roll is a
// *SyntaxError, never narration.
func Parse(raw string) (Parsed, error) {
	text := strings.TrimSpace(raw)
	if loc := escalationToken.FindStringIndex(text); loc != nil {
		return Parsed{Command: StorytellerEscalation{Text: strings.TrimSpace(text[loc[1]:])}}, nil
	}

	parsed := Parsed{}
	for _, m := range willpowerToken.FindAllStringSubmatch(raw, -1) {
		if m[1] == "" {
			parsed.WillpowerSpend = true
			continue
		}
		points, _ := strconv.Atoi(m[1])
		parsed.ExtraWillpower += points
	}

	loc := rollToken.FindStringSubmatchIndex(raw)
	if loc == nil {
		parsed.Command = Narration{Text: raw}
		return parsed, nil
	}

	name := strings.ToLower(raw[loc[2]:loc[3]])
	prefix := strings.TrimSpace(raw[:loc[2]-1])
	args := willpowerToken.ReplaceAllString(raw[loc[3]:], " ")

	cmd, err := parseRoll(name, prefix, args)
	if err != nil {
		return Parsed{}, err
	}
	parsed.Command = cmd
	return parsed, nil
}

func parseRoll(name, prefix, args string) (Command, error) {
	fail := func(err error) (Command, error) {
		return nil, &SyntaxError{Command: name, Err: err}
	}

	switch name {
	case "roll":
		parsed, err := rollParser.ParseString("", args)
		if err != nil {
			return fail(err)
		}
		opts, err := collectOptions(parsed.Options, false)
		if err != nil {
			return fail(err)
		}
		return SimpleRoll{Prefix: prefix, Pool: parsed.Pool, Difficulty: opts.difficulty, Specialty: opts.specialty}, nil

	case "stat":
		parsed, err := statParser.ParseString("", args)
		if err != nil {
			return fail(err)
		}
		opts, err := collectOptions(parsed.Options, false)
		if err != nil {
			return fail(err)
		}
		parts := make([]dice.StatPart, 0, len(parsed.Terms))
		for _, term := range parsed.Terms {
			if term.Number != nil {
				parts = append(parts, dice.StatPart{Value: *term.Number})
				continue
			}
			parts = append(parts, dice.StatPart{Name: strings.Join(term.Words, " ")})
		}
		return StatRoll{Prefix: prefix, Parts: parts, Difficulty: opts.difficulty, Specialty: opts.specialty}, nil

	case "extended":
		parsed, err := extendedParser.ParseString("", args)
		if err != nil {
			return fail(err)
		}
		opts, err := collectOptions(parsed.Options, true)
		if err != nil {
			return fail(err)
		}
		return ExtendedRoll{
			Prefix:     prefix,
			Pool:       parsed.Pool,
			Target:     parsed.Target,
			Difficulty: opts.difficulty,
			Specialty:  opts.specialty,
			MaxRolls:   opts.maxRolls,
		}, nil

	case "rolls":
		parsed, err := repeatedParser.ParseString("", args)
		if err != nil {
			return fail(err)
		}
		opts, err := collectOptions(parsed.Options, false)
		if err != nil {
			return fail(err)
		}
		return RepeatedRolls{Prefix: prefix, Rolls: parsed.Rolls, Pool: parsed.Pool, Difficulty: opts.difficulty, Specialty: opts.specialty}, nil
	}
	return fail(fmt.Errorf("unknown roll command %q", name))
}

type options struct {
	difficulty int
	specialty  bool
	maxRolls   int
}

func collectOptions(parsed []*rollOption, allowMaxRolls bool) (options, error) {
	opts := options{difficulty: dice.DefaultDifficulty}
	for _, opt := range parsed {
		switch {
		case opt.Difficulty != nil:
			opts.difficulty = *opt.Difficulty
		case opt.MaxRolls != nil:
			if !allowMaxRolls {
				return options{}, fmt.Errorf("max_rolls is only valid for /extended")
			}
			opts.maxRolls = *opt.MaxRolls
		case opt.Flag != nil:
			opts.specialty = strings.ToLower(*opt.Flag) != "false"
		}
	}
	return opts, nil
}
