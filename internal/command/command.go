// Package command interprets the command language embedded in scene chat
// messages: dice roll tokens, willpower spends and storyteller escalations.
package command

import "github.com/Vasu1712/scenyx-narrator/internal/dice"

// Command is one interpretation of a chat message. The concrete types below
// are the complete set; switch over them exhaustively.
type Command interface {
	command()
}

// Narration is plain text with no roll token.
type Narration struct {
	Text string
}

// SimpleRoll is "/roll <pool> [difficulty <d>] [specialty]".
type SimpleRoll struct {
	Prefix     string
	Pool       int
	Difficulty int
	Specialty  bool
}

// StatRoll is "/stat <Stat> [+ <Stat>|<N>]... [difficulty <d>] [specialty]".
type StatRoll struct {
	Prefix     string
	Parts      []dice.StatPart
	Difficulty int
	Specialty  bool
}

// ExtendedRoll is "/extended <pool> target <t> [difficulty <d>] [max_rolls <n>] [specialty]".
// MaxRolls of zero means unbounded.
type ExtendedRoll struct {
	Prefix     string
	Pool       int
	Target     int
	Difficulty int
	Specialty  bool
	MaxRolls   int
}

// RepeatedRolls is "/rolls <n> rolls @ <pool> [difficulty <d>] [specialty]".
type RepeatedRolls struct {
	Prefix     string
	Rolls      int
	Pool       int
	Difficulty int
	Specialty  bool
}

// StorytellerEscalation is a message starting with "@storyteller". It flags
// the scene for the storyteller and never becomes a post.
type StorytellerEscalation struct {
	Text string
}

func (Narration) command()             {}
func (SimpleRoll) command()            {}
func (StatRoll) command()              {}
func (ExtendedRoll) command()          {}
func (RepeatedRolls) command()         {}
func (StorytellerEscalation) command() {}

// Parsed is a message after interpretation. Willpower composes with any
// command except an escalation.
type Parsed struct {
	Command Command
	// WillpowerSpend is set by a bare #WP: one point and one automatic success.
	WillpowerSpend bool
	// ExtraWillpower sums the points of every #WP<n>. They grant no success.
	ExtraWillpower int
}

// WillpowerPoints is the number of points the message asks to spend.
func (p Parsed) WillpowerPoints() int {
	points := p.ExtraWillpower
	if p.WillpowerSpend {
		points++
	}
	return points
}
