package command

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// argsLexer tokenizes the arguments that follow a roll token. Other catches
// the punctuation of trailing narration.
var argsLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `(?i)\b(?:target|difficulty|max_rolls|rolls|true|false|specialty)\b`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}_']*`},
	{Name: "Punct", Pattern: `[+@]`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Other", Pattern: `\S`},
})

type rollArgs struct {
	Pool     int           `parser:"@Int"`
	Options  []*rollOption `parser:"@@*"`
	Trailing []string      `parser:"( @Ident | @Int | @Punct | @Keyword | @Other )*"`
}

type statArgs struct {
	Terms   []*statTerm   `parser:"@@ ( \"+\" @@ )*"`
	Options []*rollOption `parser:"@@*"`
}

type statTerm struct {
	Number *int     `parser:"  @Int"`
	Words  []string `parser:"| @Ident+"`
}

type extendedArgs struct {
	Pool     int           `parser:"@Int"`
	Target   int           `parser:"\"target\" @Int"`
	Options  []*rollOption `parser:"@@*"`
	Trailing []string      `parser:"( @Ident | @Int | @Punct | @Keyword | @Other )*"`
}

type repeatedArgs struct {
	Rolls    int           `parser:"@Int \"rolls\" \"@\""`
	Pool     int           `parser:"@Int"`
	Options  []*rollOption `parser:"@@*"`
	Trailing []string      `parser:"( @Ident | @Int | @Punct | @Keyword | @Other )*"`
}

type rollOption struct {
	Difficulty *int    `parser:"  \"difficulty\" @Int"`
	MaxRolls   *int    `parser:"| \"max_rolls\" @Int"`
	Flag       *string `parser:"| @( \"true\" | \"false\" | \"specialty\" )"`
}

func buildParser[G any]() *participle.Parser[G] {
	return participle.MustBuild[G](
		participle.Lexer(argsLexer),
		participle.Elide("Whitespace"),
		participle.CaseInsensitive("Keyword"),
	)
}

var (
	rollParser     = buildParser[rollArgs]()
	statParser     = buildParser[statArgs]()
	extendedParser = buildParser[extendedArgs]()
	repeatedParser = buildParser[repeatedArgs]()
)
