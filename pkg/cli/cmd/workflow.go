package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/LENAX/workflow-orchestrator/pkg/api/dto"
	"github.com/LENAX/workflow-orchestrator/pkg/cli/output"
)

var (
	workflowFile     string
	workflowCategory string
	workflowStatus   string
	executeInput     map[string]string
	executePriority  int
	executeTimeout   time.Duration
)

// workflowCmd workflow子命令
var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Workflow管理命令",
	Long:  `管理Workflow定义，包括创建、更新、列出、查看、启停、删除和执行。`,
}

// loadWorkflowFile 读取YAML（或JSON）格式的定义文件
func loadWorkflowFile(path string) (dto.WorkflowRequest, error) {
	var req dto.WorkflowRequest
	content, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("读取文件失败: %w", err)
	}
	if err := yaml.Unmarshal(content, &req); err != nil {
		return req, fmt.Errorf("解析定义文件失败: %w", err)
	}
	req.ExecutionMode = strings.ToUpper(req.ExecutionMode)
	return req, nil
}

// workflowListCmd 列出Workflow
var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出Workflow",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().ListWorkflows(workflowCategory, workflowStatus)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Items) == 0 {
			output.Info("暂无Workflow")
			return nil
		}

		table := output.NewTable([]string{"ID", "NAME", "MODE", "TASKS", "SCHEDULE", "STATUS", "CREATED"})
		for _, wf := range result.Items {
			schedule := "-"
			if wf.Schedule != "" {
				schedule = wf.Schedule
			}
			table.AddRow([]string{
				wf.ID,
				wf.Name,
				wf.ExecutionMode,
				fmt.Sprintf("%d", wf.TaskCount),
				schedule,
				output.Status(wf.Status),
				wf.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		return nil
	},
}

// workflowGetCmd 查看Workflow详情
var workflowGetCmd = &cobra.Command{
	Use:     "get <id>",
	Aliases: []string{"show"},
	Short:   "查看Workflow详情",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().GetWorkflow(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		output.Field("Workflow", result.Name)
		output.Field("ID", result.ID)
		output.Field("描述", result.Description)
		output.Field("模式", result.ExecutionMode)
		output.Field("状态", output.Status(result.Status))
		if result.Schedule != "" {
			output.Field("定时", result.Schedule)
		}
		output.Field("执行次数", result.Statistics.ExecutionCount)
		output.Field("成功率", fmt.Sprintf("%.1f%%", result.Statistics.SuccessRate()))

		table := output.NewTable([]string{"TASK", "TYPE", "DEPENDS ON", "ON ERROR"})
		for _, t := range result.Tasks {
			deps := "-"
			if len(t.Dependencies) > 0 {
				deps = strings.Join(t.Dependencies, ",")
			}
			table.AddRow([]string{t.ID, string(t.Type), deps, string(t.ErrorStrategy())})
		}
		fmt.Fprintln(output.Writer)
		table.Render()
		return nil
	},
}

// workflowCreateCmd 创建Workflow
var workflowCreateCmd = &cobra.Command{
	Use:   "create -f <file>",
	Short: "从定义文件创建Workflow",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := loadWorkflowFile(workflowFile)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		result, err := newClient().CreateWorkflow(req)
		if err != nil {
			output.Error("创建失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}
		output.Success("Workflow创建成功: %s (%s)", result.Name, result.ID)
		return nil
	},
}

// workflowUpdateCmd 更新Workflow
var workflowUpdateCmd = &cobra.Command{
	Use:   "update <id> -f <file>",
	Short: "用定义文件覆盖Workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := loadWorkflowFile(workflowFile)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		result, err := newClient().UpdateWorkflow(args[0], req)
		if err != nil {
			output.Error("更新失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}
		output.Success("Workflow已更新: %s (%d 个任务)", result.ID, result.TaskCount)
		return nil
	},
}

func newActivateCmd(use, short, done string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().SetWorkflowActive(args[0], active); err != nil {
				output.Error("操作失败: %v", err)
				return err
			}
			output.Success("%s: %s", done, args[0])
			return nil
		},
	}
}

// workflowDeleteCmd 删除Workflow
var workflowDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "删除Workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteWorkflow(args[0]); err != nil {
			output.Error("删除失败: %v", err)
			return err
		}

		output.Success("Workflow已删除: %s", args[0])
		return nil
	},
}

// workflowExecuteCmd 执行Workflow
var workflowExecuteCmd = &cobra.Command{
	Use:   "execute <id>",
	Short: "执行Workflow",
	Example: `  orchestrator workflow execute <id> --input date=2026-10-18 --priority 10
  orchestrator workflow execute <id> --timeout 10m`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := make(map[string]interface{}, len(executeInput))
		for k, v := range executeInput {
			input[k] = v
		}

		result, err := newClient().ExecuteWorkflow(args[0], dto.ExecuteWorkflowRequest{
			Input:     input,
			Priority:  executePriority,
			TimeoutMs: executeTimeout.Milliseconds(),
		})
		if err != nil {
			output.Error("执行失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		output.Success("Workflow已提交执行")
		output.Field("Execution", result.ExecutionID)
		return nil
	},
}

// workflowMetricsCmd 单个Workflow的指标
var workflowMetricsCmd = &cobra.Command{
	Use:   "metrics <id>",
	Short: "查看Workflow性能指标",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().GetWorkflowMetrics(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(result)
		}
		output.Field("执行次数", result.TotalExecutions)
		output.Field("成功次数", result.SuccessfulExecutions)
		output.Field("成功率", fmt.Sprintf("%.1f%%", result.SuccessRate))
		output.Field("平均耗时", fmt.Sprintf("%.0fms", result.AverageExecutionTime))
		output.Field("活跃执行", result.ActiveExecutions)
		return nil
	},
}

// workflowPredictCmd 性能预估
var workflowPredictCmd = &cobra.Command{
	Use:   "predict <id>",
	Short: "预估Workflow执行耗时与成功率",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().PredictWorkflow(args[0])
		if err != nil {
			output.Error("预估失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(result)
		}
		output.Field("预估耗时", fmt.Sprintf("%.0fms", result.EstimatedExecutionTime))
		output.Field("预估成功率", fmt.Sprintf("%.1f%%", result.EstimatedSuccessRate))
		output.Field("样本数", result.BasedOnExecutions)
		output.Field("来源", result.Source)
		return nil
	},
}

func init() {
	workflowListCmd.Flags().StringVar(&workflowCategory, "category", "", "按分类过滤")
	workflowListCmd.Flags().StringVar(&workflowStatus, "status", "", "按状态过滤（ACTIVE/INACTIVE）")

	workflowCreateCmd.Flags().StringVarP(&workflowFile, "file", "f", "", "定义文件路径（YAML或JSON）")
	_ = workflowCreateCmd.MarkFlagRequired("file")
	workflowUpdateCmd.Flags().StringVarP(&workflowFile, "file", "f", "", "定义文件路径（YAML或JSON）")
	_ = workflowUpdateCmd.MarkFlagRequired("file")

	workflowExecuteCmd.Flags().StringToStringVarP(&executeInput, "input", "i", nil, "输入参数 key=value，可重复")
	workflowExecuteCmd.Flags().IntVar(&executePriority, "priority", 0, "优先级（0~20，0表示默认）")
	workflowExecuteCmd.Flags().DurationVar(&executeTimeout, "timeout", 0, "覆盖工作流超时")

	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowGetCmd)
	workflowCmd.AddCommand(workflowCreateCmd)
	workflowCmd.AddCommand(workflowUpdateCmd)
	workflowCmd.AddCommand(newActivateCmd("activate", "启用Workflow", "Workflow已启用", true))
	workflowCmd.AddCommand(newActivateCmd("deactivate", "停用Workflow", "Workflow已停用", false))
	workflowCmd.AddCommand(workflowDeleteCmd)
	workflowCmd.AddCommand(workflowExecuteCmd)
	workflowCmd.AddCommand(workflowMetricsCmd)
	workflowCmd.AddCommand(workflowPredictCmd)
}
