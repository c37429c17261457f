package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/patchguard/internal/edu"
	"github.com/ppiankov/patchguard/internal/model"
)

var explainFormat string

func init() {
	rootCmd.AddCommand(explainCmd)
	explainCmd.Flags().StringVarP(&explainFormat, "format", "f", "markdown", "Output format (markdown|json)")
}

var explainCmd = &cobra.Command{
	Use:   "explain [violation-type]",
	Short: "Explain a violation type",
	Long:  "Prints why a violation type is dangerous, vulnerable and safe examples,\nbest practices, and further reading. Without arguments, lists all types.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExplain,
}

func runExplain(cmd *cobra.Command, args []string) error {
	lib := edu.NewLibrary()
	if len(args) == 0 {
		listTypes(os.Stdout, lib)
		return nil
	}

	t := model.ViolationType(args[0])
	if !t.Valid() {
		return fmt.Errorf("unknown violation type %q (run 'patchguard explain' for the list)", args[0])
	}
	content := lib.Content(t)

	switch explainFormat {
	case "json":
		out, err := json.MarshalIndent(content, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal content: %w", err)
		}
		fmt.Println(string(out))
	default:
		fmt.Print(renderMarkdown(contentMarkdown(content)))
	}
	return nil
}

func listTypes(w io.Writer, lib *edu.Library) {
	for _, t := range model.AllViolationTypes {
		fmt.Fprintf(w, "  %-32s %s\n", t, lib.Title(t))
	}
}

func contentMarkdown(c model.EducationalContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n`%s`\n\n%s\n\n", c.Title, c.Type, c.Explanation)

	for i, ex := range c.Examples {
		fmt.Fprintf(&b, "## Example %d\n\nUnsafe:\n\n```js\n%s\n```\n\nSafe:\n\n```js\n%s\n```\n\n", i+1, ex.Unsafe, ex.Safe)
		if ex.Explanation != "" {
			fmt.Fprintf(&b, "%s\n\n", ex.Explanation)
		}
	}
	writeList(&b, "Best practices", c.BestPractices)
	writeList(&b, "Common mistakes", c.CommonMistakes)
	writeList(&b, "Further reading", c.FurtherReading)
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}
