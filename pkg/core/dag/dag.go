package dag

import (
	"fmt"
	"sort"

	godag "github.com/begmaroman/go-dag"
)

// taskNode go-dag 节点
// go-dag 按顶点哈希去重，哈希取自任务ID
type taskNode struct {
	TaskID string `json:"task_id"`
	Order  int    `json:"order"`
}

// Hash 实现 go-dag 的 Hashable 接口
func (n *taskNode) Hash() (godag.VHash, error) {
	return godag.ToHash(n.TaskID)
}

// TaskGraph 任务依赖图（对外导出）
// 边方向为 依赖任务 -> 下游任务，节点保留定义中的原始顺序
type TaskGraph struct {
	d     *godag.DAG[*taskNode]
	order []string
	index map[string]int
}

// CycleError 存在循环依赖
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("检测到循环依赖: %v", e.Path)
}

// Build 根据任务ID列表和依赖关系构建依赖图（对外导出）
// taskIDs: 定义中的任务顺序
// dependencies: 下游任务ID -> 依赖任务ID列表
func Build(taskIDs []string, dependencies map[string][]string) (*TaskGraph, error) {
	g := &TaskGraph{
		d:     godag.NewDAG[*taskNode](),
		order: make([]string, 0, len(taskIDs)),
		index: make(map[string]int, len(taskIDs)),
	}
	for i, id := range taskIDs {
		if _, exists := g.index[id]; exists {
			return nil, fmt.Errorf("重复的任务ID: %s", id)
		}
		g.index[id] = i
		g.order = append(g.order, id)
	}

	// 先在邻接表上一次性检测循环，再写入 go-dag，避免 AddEdge 时的递归检查失败难以定位
	adjacency := make(map[string][]string, len(taskIDs))
	for _, id := range taskIDs {
		for _, depID := range dependencies[id] {
			if _, ok := g.index[depID]; !ok {
				return nil, fmt.Errorf("任务 %s 依赖的任务 %s 不存在", id, depID)
			}
			adjacency[depID] = append(adjacency[depID], id)
		}
	}
	if path := detectCycleDFS(g.order, adjacency); path != nil {
		return nil, &CycleError{Path: path}
	}

	for i, id := range taskIDs {
		if err := g.d.AddVertexByID(id, &taskNode{TaskID: id, Order: i}); err != nil {
			return nil, fmt.Errorf("添加节点失败: Task ID=%s, Error=%w", id, err)
		}
	}
	for _, id := range taskIDs {
		for _, depID := range dependencies[id] {
			if isEdge, _ := g.d.IsEdge(depID, id); isEdge {
				continue
			}
			if err := g.d.AddEdge(depID, id); err != nil {
				return nil, fmt.Errorf("添加边失败: %s -> %s, Error=%w", depID, id, err)
			}
		}
	}
	return g, nil
}

// detectCycleDFS 三色标记法检测循环，返回循环路径，无环返回nil
func detectCycleDFS(nodes []string, graph map[string][]string) []string {
	// 0=未访问，1=访问中，2=已完成
	color := make(map[string]int, len(nodes))
	parent := make(map[string]string, len(nodes))
	var cyclePath []string

	var dfs func(nodeID string) bool
	dfs = func(nodeID string) bool {
		color[nodeID] = 1
		for _, childID := range graph[nodeID] {
			switch color[childID] {
			case 0:
				parent[childID] = nodeID
				if dfs(childID) {
					return true
				}
			case 1:
				cyclePath = append(cyclePath, childID)
				for cur := nodeID; cur != childID && cur != ""; cur = parent[cur] {
					cyclePath = append(cyclePath, cur)
				}
				cyclePath = append(cyclePath, childID)
				return true
			}
		}
		color[nodeID] = 2
		return false
	}

	for _, nodeID := range nodes {
		if color[nodeID] == 0 && dfs(nodeID) {
			return cyclePath
		}
	}
	return nil
}

// Len 节点数量
func (g *TaskGraph) Len() int {
	return len(g.order)
}

// Order 定义顺序的任务ID列表
func (g *TaskGraph) Order() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Parents 获取依赖任务ID（按定义顺序）
func (g *TaskGraph) Parents(taskID string) ([]string, error) {
	parents, err := g.d.GetParents(taskID)
	if err != nil {
		return nil, err
	}
	return g.sorted(parents), nil
}

// Children 获取下游任务ID（按定义顺序）
func (g *TaskGraph) Children(taskID string) ([]string, error) {
	children, err := g.d.GetChildren(taskID)
	if err != nil {
		return nil, err
	}
	return g.sorted(children), nil
}

// Roots 无依赖的任务ID（按定义顺序）
func (g *TaskGraph) Roots() []string {
	return g.sorted(g.d.GetRoots())
}

// Ready 返回全部依赖都已结束、且自身尚未处理的任务（按定义顺序）
// done: 已结束（终态）的任务集合
// dispatched: 已派发的任务集合
func (g *TaskGraph) Ready(done, dispatched map[string]bool) []string {
	ready := make([]string, 0)
	for _, id := range g.order {
		if done[id] || dispatched[id] {
			continue
		}
		parents, err := g.d.GetParents(id)
		if err != nil {
			continue
		}
		satisfied := true
		for parentID := range parents {
			if !done[parentID] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}
	return ready
}

// Levels Kahn 算法分层，同层任务之间没有依赖关系，可以并行执行
func (g *TaskGraph) Levels() [][]string {
	inDegree := make(map[string]int, len(g.order))
	for _, id := range g.order {
		parents, _ := g.d.GetParents(id)
		inDegree[id] = len(parents)
	}

	levels := make([][]string, 0)
	queue := g.Roots()
	for len(queue) > 0 {
		levels = append(levels, queue)
		next := make(map[string]godag.VHash)
		for _, id := range queue {
			children, _ := g.d.GetChildren(id)
			for childID, hash := range children {
				inDegree[childID]--
				if inDegree[childID] == 0 {
					next[childID] = hash
				}
			}
		}
		queue = g.sorted(next)
	}
	return levels
}

func (g *TaskGraph) sorted(nodes map[string]godag.VHash) []string {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return g.index[ids[i]] < g.index[ids[j]]
	})
	return ids
}
