package output

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Table 简单表格输出
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable 创建表格
func NewTable(headers []string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return &Table{
		headers: headers,
		rows:    make([][]string, 0),
		widths:  widths,
	}
}

// AddRow 添加行，列宽按可见字符计算
func (t *Table) AddRow(row []string) {
	for i, cell := range row {
		if w := visibleLen(cell); i < len(t.widths) && w > t.widths[i] {
			t.widths[i] = w
		}
	}
	t.rows = append(t.rows, row)
}

// Render 渲染表格
func (t *Table) Render() {
	headerColor := color.New(color.FgCyan, color.Bold)
	for i, h := range t.headers {
		headerColor.Fprint(Writer, pad(h, t.widths[i]))
	}
	fmt.Fprintln(Writer)

	for i := range t.headers {
		fmt.Fprint(Writer, strings.Repeat("-", t.widths[i])+"  ")
	}
	fmt.Fprintln(Writer)

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(t.widths) {
				fmt.Fprint(Writer, pad(cell, t.widths[i]))
			}
		}
		fmt.Fprintln(Writer)
	}
}

func pad(cell string, width int) string {
	return cell + strings.Repeat(" ", width-visibleLen(cell)+2)
}

// visibleLen 去掉ANSI颜色码后的长度
func visibleLen(s string) int {
	n, inEscape := 0, false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			n++
		}
	}
	return n
}
