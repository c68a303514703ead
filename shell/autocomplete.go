package shell

import (
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/domino14/bjsim/config"
	"github.com/domino14/bjsim/deck"
)

// ShellCompleter provides context-aware autocomplete for shell commands
type ShellCompleter struct {
	sc *ShellController
}

func NewShellCompleter(sc *ShellController) *ShellCompleter {
	return &ShellCompleter{sc: sc}
}

// CommandMetadata holds autocomplete information for a command
type CommandMetadata struct {
	Options []string // Available options for this command (e.g., "-hands", "-threads")
	Args    []string // Possible argument values (for non-option arguments)
}

var commandMetadata = map[string]CommandMetadata{
	"ev": {
		Options: []string{"-hands", "-remove", "-decks"},
	},
	"insurance": {
		Options: []string{"-remove", "-decks"},
	},
	"dealer": {
		Options: []string{"-remove", "-decks"},
		Args:    upcards(),
	},
	"sim": {
		Options: []string{"-method", "-threads", "-rounds", "-duration", "-seed"},
		Args:    []string{"stop", "show", "histogram", "top"},
	},
	"help": {
		Args: []string{"ev", "insurance", "dealer", "sim", "script"},
	},
}

var commandNames = []string{
	"help", "ev", "insurance", "dealer", "sim", "chart", "rules", "cache",
	"script", "exit",
}

func upcards() []string {
	var out []string
	for _, r := range deck.Ranks {
		out = append(out, r.String())
	}
	return out
}

// Do implements the readline.AutoComplete interface
func (c *ShellCompleter) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line[:pos])

	fields, err := shellquote.Split(text)
	if err != nil {
		fields = strings.Fields(text)
	}

	endsWithSpace := len(text) > 0 && text[len(text)-1] == ' '

	var prefix string
	var completions []string

	if len(fields) == 0 || (len(fields) == 1 && !endsWithSpace) {
		if len(fields) == 1 {
			prefix = fields[0]
		}
		completions = commandNames
	} else {
		cmdName := fields[0]

		if !endsWithSpace {
			prefix = fields[len(fields)-1]
		}

		var lastCompleteField string
		if endsWithSpace {
			lastCompleteField = fields[len(fields)-1]
		} else if len(fields) > 1 {
			lastCompleteField = fields[len(fields)-2]
		}

		if strings.HasPrefix(lastCompleteField, "-") {
			switch strings.TrimPrefix(lastCompleteField, "-") {
			case "method":
				completions = config.Methods
			case "decks":
				completions = []string{"1", "2", "4", "6", "8"}
			}
		}

		if completions == nil {
			if metadata, exists := commandMetadata[cmdName]; exists {
				if strings.HasPrefix(prefix, "-") || len(metadata.Args) == 0 {
					completions = metadata.Options
				} else {
					completions = metadata.Args
				}
			}
		}
	}

	var matches [][]rune
	for _, completion := range completions {
		if strings.HasPrefix(completion, prefix) {
			// Return only the part that needs to be added
			matches = append(matches, []rune(completion[len(prefix):]))
		}
	}

	return matches, len(prefix)
}
