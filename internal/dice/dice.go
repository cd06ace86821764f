// Package dice implements the ten-sided dice pool rules used in scene
// narration: simple rolls, stat-derived pools, extended rolls and repeated
// rolls.
//
// Every function takes its randomness from a Source, so results are fully
// determined by the faces the source yields.
package dice

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"github.com/Vasu1712/scenyx-narrator/internal/random"
)

const (
	// Sides is the face count of every die in a pool.
	Sides = 10

	DefaultDifficulty = 6
	MinDifficulty     = 2
	MaxDifficulty     = 10

	MaxPool          = 50
	MaxTarget        = 1000
	MaxRepeatedRolls = 20
)

var (
	// ErrInvalidPool indicates a pool outside 1..MaxPool.
	ErrInvalidPool = fmt.Errorf("dice pool must be between 1 and %d", MaxPool)

	// ErrInvalidDifficulty indicates a difficulty outside MinDifficulty..MaxDifficulty.
	ErrInvalidDifficulty = fmt.Errorf("difficulty must be between %d and %d", MinDifficulty, MaxDifficulty)

	// ErrInvalidTarget indicates an extended roll target outside 1..MaxTarget.
	ErrInvalidTarget = fmt.Errorf("target must be between 1 and %d", MaxTarget)

	// ErrInvalidMaxRolls indicates a negative roll bound.
	ErrInvalidMaxRolls = errors.New("max rolls must not be negative")

	// ErrInvalidRollCount indicates a repeated roll count outside 1..MaxRepeatedRolls.
	ErrInvalidRollCount = fmt.Errorf("number of rolls must be between 1 and %d", MaxRepeatedRolls)
)

// Source yields die faces. Intn must return a value in [0, n).
// *rand.Rand satisfies it.
type Source interface {
	Intn(n int) int
}

// RollSpec describes a single pool roll.
type RollSpec struct {
	Pool       int
	Difficulty int
	Specialty  bool // A 10 counts as two successes
	Willpower  bool // One automatic success that 1s cannot cancel
}

// RollResult is the outcome of one pool roll.
type RollResult struct {
	Spec RollSpec
	// Faces are the dice in the order they were rolled.
	Faces []int
	// Hits counts successes before 1s cancel them (10s count twice with a specialty).
	Hits int
	Ones int
	// Successes is the net total, never negative.
	Successes int
	// Botch is set when no die met the difficulty and at least one showed 1.
	Botch bool
}

// Summary renders the faces and the net result, e.g. "8, 3, 10, 1, 6: 2 successes".
func (r RollResult) Summary() string {
	return joinFaces(r.Faces) + ": " + r.outcome()
}

func (r RollResult) outcome() string {
	if r.Botch {
		return "botch"
	}
	text := pluralSuccesses(r.Successes)
	switch {
	case r.willpowerCancelledBotch():
		text += " (willpower cancelled a botch)"
	case r.Spec.Willpower:
		text += " (including 1 from willpower)"
	}
	return text
}

// willpowerCancelledBotch reports whether willpower was spent on a roll that
// would otherwise have botched. Such a roll scores nothing.
func (r RollResult) willpowerCancelledBotch() bool {
	return r.Spec.Willpower && r.Hits == 0 && r.Ones > 0
}

// Simple rolls spec.Pool dice against spec.Difficulty.
//
// Each die at or above the difficulty is a success, a 10 counts twice with a
// specialty, and every 1 cancels one success. A roll with no successes and at
// least one 1 is a botch. Willpower adds one success after cancellation, or
// turns a botch into zero successes.
func Simple(src Source, spec RollSpec) (RollResult, error) {
	if err := validatePool(spec.Pool); err != nil {
		return RollResult{}, err
	}
	if err := validateDifficulty(spec.Difficulty); err != nil {
		return RollResult{}, err
	}

	faces := make([]int, spec.Pool)
	for i := range faces {
		faces[i] = rollDie(src)
	}
	return Evaluate(faces, spec), nil
}

// Evaluate scores already rolled faces under spec. Pool is taken from faces.
func Evaluate(faces []int, spec RollSpec) RollResult {
	spec.Pool = len(faces)
	result := RollResult{Spec: spec, Faces: faces}
	for _, face := range faces {
		switch {
		case face == 1:
			result.Ones++
		case face >= spec.Difficulty:
			result.Hits++
			if spec.Specialty && face == Sides {
				result.Hits++
			}
		}
	}

	net := result.Hits - result.Ones
	if result.Hits == 0 && result.Ones > 0 {
		result.Botch = true
	}
	if net < 0 {
		net = 0
	}
	result.Successes = net

	if spec.Willpower {
		if result.Botch {
			result.Botch = false
		} else {
			result.Successes++
		}
	}
	return result
}

// StatPart is one term of a stat expression: a named stat, or a literal when
// Name is empty.
type StatPart struct {
	Name  string
	Value int
}

// ResolvedPart is a StatPart after lookup.
type ResolvedPart struct {
	Name    string // Empty for literals
	Value   int
	Literal bool
}

// StatLookup resolves a stat name against the acting character.
type StatLookup func(name string) (int, bool)

// UnknownStatError reports a stat name the acting character does not have.
type UnknownStatError struct {
	Name string
}

func (e *UnknownStatError) Error() string {
	return fmt.Sprintf("Stat '%s' not found on character", e.Name)
}

// StatResult is a stat-derived pool roll.
type StatResult struct {
	Parts []ResolvedPart
	Roll  RollResult
}

// Stat resolves parts into a pool and rolls it. spec.Pool is ignored. The
// first unknown stat fails the whole roll with an *UnknownStatError.
func Stat(src Source, parts []StatPart, lookup StatLookup, spec RollSpec) (StatResult, error) {
	resolved := make([]ResolvedPart, 0, len(parts))
	pool := 0
	for _, part := range parts {
		if part.Name == "" {
			resolved = append(resolved, ResolvedPart{Value: part.Value, Literal: true})
			pool += part.Value
			continue
		}
		value, ok := lookup(part.Name)
		if !ok {
			return StatResult{}, &UnknownStatError{Name: part.Name}
		}
		resolved = append(resolved, ResolvedPart{Name: part.Name, Value: value})
		pool += value
	}

	spec.Pool = pool
	roll, err := Simple(src, spec)
	if err != nil {
		return StatResult{}, err
	}
	return StatResult{Parts: resolved, Roll: roll}, nil
}

// Outcome is the terminal state of an extended roll.
type Outcome int

const (
	OutcomeIncomplete Outcome = iota
	OutcomeSuccess
	OutcomeBotch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeBotch:
		return "BOTCH"
	default:
		return "INCOMPLETE"
	}
}

// ExtendedSpec describes an extended roll. MaxRolls of zero means unbounded.
type ExtendedSpec struct {
	Pool       int
	Target     int
	Difficulty int
	Specialty  bool
	MaxRolls   int
}

// ExtendedResult holds every roll of an extended action and how it ended.
type ExtendedResult struct {
	Spec    ExtendedSpec
	Rolls   []RollResult
	Total   int
	Outcome Outcome
}

// Extended rerolls a fixed pool, accumulating net successes until the
// target is met, a single roll botches, or MaxRolls is exhausted. A botch
// halts the action without reducing the accumulated total.
func Extended(src Source, spec ExtendedSpec) (ExtendedResult, error) {
	if spec.Target < 1 || spec.Target > MaxTarget {
		return ExtendedResult{}, ErrInvalidTarget
	}
	if spec.MaxRolls < 0 {
		return ExtendedResult{}, ErrInvalidMaxRolls
	}
	roll := RollSpec{Pool: spec.Pool, Difficulty: spec.Difficulty, Specialty: spec.Specialty}

	result := ExtendedResult{Spec: spec}
	for spec.MaxRolls == 0 || len(result.Rolls) < spec.MaxRolls {
		r, err := Simple(src, roll)
		if err != nil {
			return ExtendedResult{}, err
		}
		result.Rolls = append(result.Rolls, r)
		if r.Botch {
			result.Outcome = OutcomeBotch
			return result, nil
		}
		result.Total += r.Successes
		if result.Total >= spec.Target {
			result.Outcome = OutcomeSuccess
			return result, nil
		}
	}
	result.Outcome = OutcomeIncomplete
	return result, nil
}

// Summary renders the audit trail: one "Roll N" line per roll followed by
// the terminal status.
func (r ExtendedResult) Summary() string {
	var b strings.Builder
	b.WriteString("Extended Roll:")
	total := 0
	for i, roll := range r.Rolls {
		total += roll.Successes
		fmt.Fprintf(&b, "\nRoll %d: %s, Total: %d", i+1, roll.Summary(), total)
	}
	b.WriteString("\n")
	switch r.Outcome {
	case OutcomeBotch:
		b.WriteString("BOTCH! Extended action failed catastrophically.")
	case OutcomeSuccess:
		fmt.Fprintf(&b, "SUCCESS! Target of %d reached in %d rolls.", r.Spec.Target, len(r.Rolls))
	default:
		fmt.Fprintf(&b, "INCOMPLETE: Only %d/%d successes after %d rolls.", r.Total, r.Spec.Target, len(r.Rolls))
	}
	return b.String()
}

// RepeatedSpec describes a series of independent rolls of the same pool.
type RepeatedSpec struct {
	Rolls      int
	Pool       int
	Difficulty int
	Specialty  bool
}

// RepeatedResult holds the rolls of a series in order.
type RepeatedResult struct {
	Spec  RepeatedSpec
	Rolls []RollResult
}

// Repeated rolls the pool spec.Rolls times. A roll with zero net successes
// raises the next roll's difficulty by one, up to MaxDifficulty; a botch
// ends the series.
func Repeated(src Source, spec RepeatedSpec) (RepeatedResult, error) {
	if spec.Rolls < 1 || spec.Rolls > MaxRepeatedRolls {
		return RepeatedResult{}, ErrInvalidRollCount
	}
	difficulty := spec.Difficulty
	result := RepeatedResult{Spec: spec}
	for range spec.Rolls {
		r, err := Simple(src, RollSpec{Pool: spec.Pool, Difficulty: difficulty, Specialty: spec.Specialty})
		if err != nil {
			return RepeatedResult{}, err
		}
		result.Rolls = append(result.Rolls, r)
		if r.Botch {
			break
		}
		if r.Successes == 0 && difficulty < MaxDifficulty {
			difficulty++
		}
	}
	return result, nil
}

// Summary renders one line per roll, noting difficulty increases.
func (r RepeatedResult) Summary() string {
	var b strings.Builder
	b.WriteString("Rolls:")
	for i, roll := range r.Rolls {
		b.WriteString("\n" + roll.Summary())
		last := i == len(r.Rolls)-1
		if !roll.Botch && roll.Successes == 0 && roll.Spec.Difficulty < MaxDifficulty && !last {
			fmt.Fprintf(&b, ": difficulty increased to %d", roll.Spec.Difficulty+1)
		}
	}
	return b.String()
}

// Roller serializes access to a Source so one generator can serve every
// connection.
type Roller struct {
	mu  sync.Mutex
	src Source
}

// NewRoller wraps src.
func NewRoller(src Source) *Roller {
	return &Roller{src: src}
}

// NewSeededRoller returns a Roller backed by math/rand seeded from crypto/rand.
func NewSeededRoller() (*Roller, error) {
	seed, err := random.NewSeed()
	if err != nil {
		return nil, err
	}
	return NewRoller(rand.New(rand.NewSource(seed))), nil
}

// Intn implements Source under the Roller's lock.
func (r *Roller) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Intn(n)
}

func rollDie(src Source) int {
	return src.Intn(Sides) + 1
}

func validatePool(pool int) error {
	if pool < 1 || pool > MaxPool {
		return ErrInvalidPool
	}
	return nil
}

func validateDifficulty(difficulty int) error {
	if difficulty < MinDifficulty || difficulty > MaxDifficulty {
		return ErrInvalidDifficulty
	}
	return nil
}

func joinFaces(faces []int) string {
	parts := make([]string, len(faces))
	for i, face := range faces {
		parts[i] = strconv.Itoa(face)
	}
	return strings.Join(parts, ", ")
}

func pluralSuccesses(n int) string {
	if n == 1 {
		return "1 success"
	}
	return strconv.Itoa(n) + " successes"
}
