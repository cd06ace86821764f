package command

import "strings"

var quoteReplacer = strings.NewReplacer(
	// Single quotes, apostrophes and primes.
	"‘", "'", "’", "'", "‚", "'", "‛", "'",
	"′", "'", "ʹ", "'", "ʻ", "'", "ʼ", "'",
	"ʽ", "'", "❛", "'", "❜", "'", "＇", "'",
	"´", "'", "`", "'",
	// Double quotes and double primes.
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
	"″", `"`, "ʺ", `"`, "❝", `"`, "❞", `"`,
	"＂", `"`,
)

// NormalizeQuotes replaces typographic quotes and primes with ASCII ' and ".
// It is idempotent.
func NormalizeQuotes(s string) string {
	return quoteReplacer.Replace(s)
}
