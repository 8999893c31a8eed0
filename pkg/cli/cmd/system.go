package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/LENAX/workflow-orchestrator/pkg/cli/output"
	"github.com/LENAX/workflow-orchestrator/pkg/core/resource"
)

// metricsCmd 全局性能指标
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "查看全局性能指标",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().Metrics()
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(result)
		}

		output.Field("定义数", result.Definitions)
		output.Field("执行次数", result.TotalExecutions)
		output.Field("成功率", fmt.Sprintf("%.1f%%", result.SuccessRate))
		output.Field("平均耗时", fmt.Sprintf("%.0fms", result.AverageExecutionTime))
		output.Field("活跃执行", result.ActiveExecutions)
		output.Field("排队任务", result.QueuedTasks)
		output.Field("运行任务", result.RunningTasks)
		output.Field("Worker", fmt.Sprintf("%d (利用率 %.1f%%)", result.Workers.TotalWorkers, result.Workers.Utilization()*100))

		kinds := make([]string, 0, len(result.Resources))
		for k := range result.Resources {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		if len(kinds) > 0 {
			fmt.Fprintln(output.Writer)
			table := output.NewTable([]string{"RESOURCE", "TOTAL", "ALLOCATED", "AVAILABLE"})
			for _, k := range kinds {
				c := result.Resources[resource.Kind(k)]
				table.AddRow([]string{k, fmt.Sprintf("%.1f", c.Total), fmt.Sprintf("%.1f", c.Allocated), fmt.Sprintf("%.1f", c.Available)})
			}
			table.Render()
		}
		return nil
	},
}

// workersCmd Worker列表
var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "列出Worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().Workers()
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(result)
		}
		if len(result) == 0 {
			output.Info("暂无Worker")
			return nil
		}

		table := output.NewTable([]string{"ID", "TYPE", "LOAD", "SCORE", "RUNS", "FAILURES"})
		for _, w := range result {
			table.AddRow([]string{
				w.ID,
				string(w.TaskType),
				fmt.Sprintf("%d/%d", w.Load, w.Capacity),
				fmt.Sprintf("%.2f", w.PerformanceScore),
				fmt.Sprintf("%d", w.Runs),
				fmt.Sprintf("%d", w.Failures),
			})
		}
		table.Render()
		return nil
	},
}

// healthCmd 健康检查
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "查看服务健康状态",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().Health()
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(result)
		}
		output.Field("状态", output.Status(result.Status))
		output.Field("版本", result.Version)
		output.Field("运行时长", result.Uptime)
		output.Field("活跃执行", result.ActiveExecutions)
		for _, p := range result.Problems {
			output.Warning("%s", p)
		}
		return nil
	},
}
