package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/patchguard/internal/audit"
)

var (
	auditTailCount int
	auditTailJSON  bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd, auditTailCmd)
	auditTailCmd.Flags().IntVarP(&auditTailCount, "lines", "n", 10, "Number of recent validations to show")
	auditTailCmd.Flags().BoolVar(&auditTailJSON, "json", false, "Print raw entries as JSON")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the validation audit log",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Check the hash chain of a validation audit log",
	Long: `Recomputes the SHA-256 of every entry and compares it with the prev_hash
of the entry after it. Exits 1 when an entry was edited, dropped or inserted.`,
	Args: cobra.ExactArgs(1),
	RunE: runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show the most recent validations",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	res := audit.Verify(args[0])
	if !res.Valid {
		fmt.Fprintf(os.Stderr, "chain broken at entry %d: %s\n", res.ErrorLine, res.Error)
		return errRejected
	}
	fmt.Printf("chain intact: %d validations\n", res.Lines)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	res, err := audit.Replay(args[0], audit.ReplayFilter{})
	if err != nil {
		return err
	}

	entries := res.Entries
	if auditTailCount >= 0 && len(entries) > auditTailCount {
		entries = entries[len(entries)-auditTailCount:]
	}

	if auditTailJSON {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal entries: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	for _, e := range entries {
		verdict := "accept"
		if !e.Valid {
			verdict = "reject"
		}
		line := fmt.Sprintf("%s  %s  %-6s risk %.2f (%s)", e.Timestamp, e.RequestID, verdict, e.RiskScore, e.Tier)
		if e.Scenario != "" {
			line += "  scenario=" + e.Scenario
		}
		if e.CacheHit {
			line += "  cached"
		}
		fmt.Println(line)
		if len(e.Violations) > 0 {
			fmt.Printf("    %s\n", strings.Join(e.Violations, ", "))
		}
	}
	return nil
}
