package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/LENAX/workflow-orchestrator/pkg/api/dto"
	"github.com/LENAX/workflow-orchestrator/pkg/cli/output"
)

var (
	executionWorkflow string
	executionStatus   string
	executionLimit    int
	cancelReason      string
)

// executionCmd execution子命令
var executionCmd = &cobra.Command{
	Use:   "execution",
	Short: "执行记录管理命令",
	Long:  `查看工作流执行状态、列出执行记录和取消执行。`,
}

// executionListCmd 列出执行记录
var executionListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出执行记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().ListExecutions(executionWorkflow, executionStatus, executionLimit, 0)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Items) == 0 {
			output.Info("暂无执行记录")
			return nil
		}

		table := output.NewTable([]string{"EXECUTION_ID", "WORKFLOW", "STATUS", "PROGRESS", "CREATED", "DURATION"})
		for _, e := range result.Items {
			duration := "-"
			if e.Duration != "" {
				duration = e.Duration
			}
			table.AddRow([]string{
				e.ID,
				e.WorkflowID,
				output.Status(e.Status),
				fmt.Sprintf("%.0f%%", e.Progress),
				e.CreatedAt.Format("2006-01-02 15:04:05"),
				duration,
			})
		}
		table.Render()
		if result.HasMore {
			output.Info("共 %d 条，仅显示前 %d 条", result.Total, len(result.Items))
		}
		return nil
	},
}

// executionStatusCmd 查看执行状态
var executionStatusCmd = &cobra.Command{
	Use:   "status <execution-id>",
	Short: "查看执行状态与任务结果",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().GetExecution(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		summary := dto.NewExecutionSummary(result)
		output.Field("Execution", result.ExecutionID)
		output.Field("Workflow", result.WorkflowID)
		output.Field("状态", output.Status(string(result.Status)))
		output.Field("进度", fmt.Sprintf("%.0f%%", summary.Progress))
		if summary.Duration != "" {
			output.Field("耗时", summary.Duration)
		}
		if result.CancelReason != "" {
			output.Field("取消原因", result.CancelReason)
		}

		ids := make([]string, 0, len(result.TaskResults))
		for id := range result.TaskResults {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if len(ids) > 0 {
			fmt.Fprintln(output.Writer)
			table := output.NewTable([]string{"TASK", "STATUS", "RETRIES", "DURATION", "ERROR"})
			for _, id := range ids {
				r := result.TaskResults[id]
				errMsg := "-"
				if r.Error != nil {
					errMsg = r.Error.Message
				}
				table.AddRow([]string{
					id,
					output.Status(string(r.Status)),
					fmt.Sprintf("%d", r.RetryCount),
					fmt.Sprintf("%dms", r.DurationMs),
					errMsg,
				})
			}
			table.Render()
		}

		for _, e := range result.Errors {
			output.Warning("[%s] %s: %s", e.Code, e.TaskID, e.Message)
		}
		return nil
	},
}

// executionCancelCmd 取消执行
var executionCancelCmd = &cobra.Command{
	Use:   "cancel <execution-id>",
	Short: "取消执行",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().CancelExecution(args[0], cancelReason); err != nil {
			output.Error("取消失败: %v", err)
			return err
		}
		output.Success("执行已取消: %s", args[0])
		return nil
	},
}

func init() {
	executionListCmd.Flags().StringVarP(&executionWorkflow, "workflow", "w", "", "按Workflow过滤")
	executionListCmd.Flags().StringVar(&executionStatus, "status", "", "按状态过滤（CREATED/RUNNING/COMPLETED/FAILED）")
	executionListCmd.Flags().IntVarP(&executionLimit, "limit", "n", 20, "返回条数")

	executionCancelCmd.Flags().StringVarP(&cancelReason, "reason", "r", "", "取消原因")

	executionCmd.AddCommand(executionListCmd)
	executionCmd.AddCommand(executionStatusCmd)
	executionCmd.AddCommand(executionCancelCmd)
}
