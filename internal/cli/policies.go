package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/writepolicybench/internal/baseline"
	"github.com/rcliao/writepolicybench/internal/policy"
)

func init() {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List registered baseline policies per track",
		Run:   runPolicies,
	}

	RootCmd.AddCommand(cmd)
}

func runPolicies(cmd *cobra.Command, args []string) {
	out := map[string][]string{
		policy.Unprivileged.String(): baseline.IDs(policy.Unprivileged),
		policy.Privileged.String():   baseline.IDs(policy.Privileged),
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
