package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sunblaze-ucb/cybergym-server/pkg/api"
	"github.com/sunblaze-ucb/cybergym-server/pkg/client"
	"github.com/sunblaze-ucb/cybergym-server/pkg/task"
	"github.com/sunblaze-ucb/cybergym-server/pkg/types"
)

const defaultServerURL = "http://127.0.0.1:8666"

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a PoC file to a running server",
	Long: `Submit a PoC file against the vulnerable build of a task, or
against the patched build with --fix. The submission checksum is
computed from the task and agent IDs unless --checksum is given.`,
	RunE: runSubmit,
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "List PoC records held by a running server",
	RunE:  runQuery,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify every PoC an agent has submitted",
	RunE:  runVerify,
}

var checksumCmd = &cobra.Command{
	Use:   "checksum",
	Short: "Print the submission checksum for a task and agent",
	RunE:  runChecksum,
}

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate a fresh API key",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(api.GenerateAPIKey())
	},
}

func init() {
	for _, c := range []*cobra.Command{submitCmd, queryCmd, verifyCmd} {
		c.Flags().String("server", defaultServerURL, "Base URL of the server")
		c.Flags().String("api_key", "", "API key for the operator endpoints")
		c.Flags().String("api_key_name", api.DefaultAPIKeyName, "Header the API key is sent in")
	}

	submitCmd.Flags().String("task", "", "Task ID the PoC targets")
	submitCmd.Flags().String("agent", "", "Agent ID making the submission")
	submitCmd.Flags().String("poc", "", "Path of the PoC file to upload")
	submitCmd.Flags().Bool("fix", false, "Run against the patched build instead of the vulnerable one")
	submitCmd.Flags().Bool("require_flag", false, "Ask for the flag when the PoC crashes the target")
	submitCmd.Flags().String("salt", task.DefaultSalt, "Salt used to compute the checksum")
	submitCmd.Flags().String("checksum", "", "Submission checksum (computed from task and agent when empty)")
	_ = submitCmd.MarkFlagRequired("task")
	_ = submitCmd.MarkFlagRequired("agent")
	_ = submitCmd.MarkFlagRequired("poc")

	queryCmd.Flags().String("agent", "", "Only records for this agent ID")
	queryCmd.Flags().String("task", "", "Only records for this task ID")
	queryCmd.Flags().Bool("json", false, "Print records as JSON")

	verifyCmd.Flags().String("agent", "", "Agent ID whose PoCs to verify")
	_ = verifyCmd.MarkFlagRequired("agent")

	checksumCmd.Flags().String("task", "", "Task ID")
	checksumCmd.Flags().String("agent", "", "Agent ID")
	checksumCmd.Flags().String("salt", task.DefaultSalt, "Salt used to compute the checksum")
	_ = checksumCmd.MarkFlagRequired("task")
	_ = checksumCmd.MarkFlagRequired("agent")
}

func clientFromFlags(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	apiKey, _ := cmd.Flags().GetString("api_key")
	apiKeyName, _ := cmd.Flags().GetString("api_key_name")

	opts := []client.Option{client.WithAPIKeyName(apiKeyName)}
	if apiKey != "" {
		opts = append(opts, client.WithAPIKey(apiKey))
	}
	return client.NewClient(server, opts...)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	taskID, _ := cmd.Flags().GetString("task")
	agentID, _ := cmd.Flags().GetString("agent")
	pocPath, _ := cmd.Flags().GetString("poc")
	fix, _ := cmd.Flags().GetBool("fix")
	requireFlag, _ := cmd.Flags().GetBool("require_flag")
	salt, _ := cmd.Flags().GetString("salt")
	checksum, _ := cmd.Flags().GetString("checksum")

	data, err := os.ReadFile(pocPath)
	if err != nil {
		return fmt.Errorf("failed to read PoC file: %w", err)
	}
	if checksum == "" {
		checksum = task.Checksum(taskID, agentID, salt)
	}

	payload := &types.Payload{
		TaskID:      taskID,
		AgentID:     agentID,
		Checksum:    checksum,
		RequireFlag: requireFlag,
		Data:        data,
	}

	c := clientFromFlags(cmd)
	var resp *types.SubmitResponse
	if fix {
		resp, err = c.SubmitFix(cmd.Context(), payload)
	} else {
		resp, err = c.SubmitVul(cmd.Context(), payload)
	}
	if err != nil {
		return err
	}

	fmt.Printf("✓ PoC submitted (%d bytes)\n", len(data))
	fmt.Printf("  poc_id:    %s\n", resp.PocID)
	fmt.Printf("  task_id:   %s\n", resp.TaskID)
	fmt.Printf("  exit code: %d\n", resp.ExitCode)
	if resp.Flag != "" {
		fmt.Printf("  flag:      %s\n", resp.Flag)
	}
	if resp.Output != "" {
		fmt.Printf("--- output ---\n%s\n", resp.Output)
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	agentID, _ := cmd.Flags().GetString("agent")
	taskID, _ := cmd.Flags().GetString("task")
	asJSON, _ := cmd.Flags().GetBool("json")

	c := clientFromFlags(cmd)
	records, err := c.Query(cmd.Context(), &types.PocQuery{AgentID: agentID, TaskID: taskID})
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	for _, r := range records {
		fmt.Printf("%s  agent=%s task=%s vul=%s fix=%s %d bytes\n",
			r.PocID, r.AgentID, r.TaskID,
			fmtExit(r.VulExitCode), fmtExit(r.FixExitCode), r.PocLength)
	}
	fmt.Printf("%d record(s)\n", len(records))
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	agentID, _ := cmd.Flags().GetString("agent")

	c := clientFromFlags(cmd)
	result, err := c.VerifyAgent(cmd.Context(), agentID)
	if err != nil {
		return err
	}

	fmt.Printf("✓ %s\n", result.Message)
	for _, id := range result.PocIDs {
		fmt.Printf("  %s\n", id)
	}
	return nil
}

func runChecksum(cmd *cobra.Command, args []string) error {
	taskID, _ := cmd.Flags().GetString("task")
	agentID, _ := cmd.Flags().GetString("agent")
	salt, _ := cmd.Flags().GetString("salt")

	fmt.Println(task.Checksum(taskID, agentID, salt))
	return nil
}

// fmtExit renders a stored exit code, or "-" when the mode has not run.
func fmtExit(code *int) string {
	if code == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *code)
}
