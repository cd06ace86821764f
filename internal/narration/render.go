package narration

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Vasu1712/scenyx-narrator/internal/command"
	"github.com/Vasu1712/scenyx-narrator/internal/dice"
	"github.com/Vasu1712/scenyx-narrator/internal/models"
)

const willpowerToken = "#WP"

// render turns a parsed message into the text stored on the post. Dice are
// rolled here; willpower grants its automatic success only to simple and
// stat rolls.
func render(src dice.Source, parsed command.Parsed, character *models.Character, willpower bool) (string, error) {
	switch cmd := parsed.Command.(type) {
	case command.Narration:
		return cmd.Text, nil

	case command.SimpleRoll:
		result, err := dice.Simple(src, dice.RollSpec{
			Pool:       cmd.Pool,
			Difficulty: cmd.Difficulty,
			Specialty:  cmd.Specialty,
			Willpower:  willpower,
		})
		if err != nil {
			return "", err
		}
		body := fmt.Sprintf("roll of %d dice at difficulty %d%s: %s",
			cmd.Pool, cmd.Difficulty, specialtySuffix(cmd.Specialty), result.Summary())
		return join(rollPrefix(cmd.Prefix, parsed), body), nil

	case command.StatRoll:
		result, err := dice.Stat(src, cmd.Parts, character.Stat, dice.RollSpec{
			Difficulty: cmd.Difficulty,
			Specialty:  cmd.Specialty,
			Willpower:  willpower,
		})
		if err != nil {
			return "", err
		}
		body := fmt.Sprintf("roll of %s = %d dice at difficulty %d%s: %s",
			describePool(result.Parts), result.Roll.Spec.Pool, cmd.Difficulty, specialtySuffix(cmd.Specialty), result.Roll.Summary())
		return join(rollPrefix(cmd.Prefix, parsed), body), nil

	case command.ExtendedRoll:
		result, err := dice.Extended(src, dice.ExtendedSpec{
			Pool:       cmd.Pool,
			Target:     cmd.Target,
			Difficulty: cmd.Difficulty,
			Specialty:  cmd.Specialty,
			MaxRolls:   cmd.MaxRolls,
		})
		if err != nil {
			return "", err
		}
		body := fmt.Sprintf("extended roll of %d dice at difficulty %d targeting %d successes%s: %s",
			cmd.Pool, cmd.Difficulty, cmd.Target, specialtySuffix(cmd.Specialty), result.Summary())
		return join(rollPrefix(cmd.Prefix, parsed), body), nil

	case command.RepeatedRolls:
		result, err := dice.Repeated(src, dice.RepeatedSpec{
			Rolls:      cmd.Rolls,
			Pool:       cmd.Pool,
			Difficulty: cmd.Difficulty,
			Specialty:  cmd.Specialty,
		})
		if err != nil {
			return "", err
		}
		body := fmt.Sprintf("%d rolls of %d dice at difficulty %d%s: %s",
			cmd.Rolls, cmd.Pool, cmd.Difficulty, specialtySuffix(cmd.Specialty), result.Summary())
		return join(rollPrefix(cmd.Prefix, parsed), body), nil
	}
	return "", fmt.Errorf("unhandled command %T", parsed.Command)
}

func describePool(parts []dice.ResolvedPart) string {
	title := cases.Title(language.English)
	terms := make([]string, len(parts))
	for i, part := range parts {
		if part.Literal {
			terms[i] = strconv.Itoa(part.Value)
			continue
		}
		terms[i] = fmt.Sprintf("%s (%d)", title.String(part.Name), part.Value)
	}
	return strings.Join(terms, " + ")
}

func specialtySuffix(specialty bool) string {
	if specialty {
		return " with relevant specialty"
	}
	return ""
}

// rollPrefix keeps willpower tokens visible ahead of the roll.
func rollPrefix(prefix string, parsed command.Parsed) string {
	if parsed.WillpowerPoints() == 0 || strings.Contains(prefix, willpowerToken) {
		return prefix
	}
	var tags []string
	if parsed.WillpowerSpend {
		tags = append(tags, willpowerToken)
	}
	if parsed.ExtraWillpower > 0 {
		tags = append(tags, willpowerToken+strconv.Itoa(parsed.ExtraWillpower))
	}
	return strings.TrimSpace(strings.Join(tags, " ") + " " + prefix)
}

func join(prefix, body string) string {
	if prefix == "" {
		return body
	}
	return prefix + ": " + body
}
