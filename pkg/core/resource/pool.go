package resource

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
)

// Kind 资源种类
type Kind string

const (
	CPU     Kind = "cpu"
	Memory  Kind = "memory"
	Storage Kind = "storage"
	Network Kind = "network"
)

// Kinds 全部资源种类（固定顺序）
func Kinds() []Kind {
	return []Kind{CPU, Memory, Storage, Network}
}

// Requirements 一次预留需要的资源量（对外导出）
type Requirements struct {
	CPU     float64 `json:"cpu,omitempty" yaml:"cpu" validate:"gte=0"`
	Memory  float64 `json:"memory,omitempty" yaml:"memory" validate:"gte=0"`
	Storage float64 `json:"storage,omitempty" yaml:"storage" validate:"gte=0"`
	Network float64 `json:"network,omitempty" yaml:"network" validate:"gte=0"`
}

// IsZero 是否不需要任何资源
func (r Requirements) IsZero() bool {
	return r.CPU == 0 && r.Memory == 0 && r.Storage == 0 && r.Network == 0
}

func (r Requirements) amount(k Kind) float64 {
	switch k {
	case CPU:
		return r.CPU
	case Memory:
		return r.Memory
	case Storage:
		return r.Storage
	case Network:
		return r.Network
	}
	return 0
}

// Capacity 单类资源的账目
// 任何时刻 Available + Allocated == Total
type Capacity struct {
	Total     float64 `json:"total"`
	Available float64 `json:"available"`
	Allocated float64 `json:"allocated"`
}

// Reservation 一次资源预留
type Reservation struct {
	ID          string       `json:"id"`
	Owner       string       `json:"owner"`
	Requirement Requirements `json:"requirement"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Pool 资源池（对外导出）
// 所有计数器的变更都在同一把锁下完成，分配是全有或全无的
type Pool struct {
	mu           sync.Mutex
	capacities   map[Kind]*Capacity
	reservations map[string]*Reservation
	byOwner      map[string]map[string]struct{}
}

// NewPool 创建资源池
func NewPool(totals Requirements) *Pool {
	p := &Pool{
		capacities:   make(map[Kind]*Capacity, 4),
		reservations: make(map[string]*Reservation),
		byOwner:      make(map[string]map[string]struct{}),
	}
	for _, k := range Kinds() {
		total := totals.amount(k)
		p.capacities[k] = &Capacity{Total: total, Available: total}
	}
	return p
}

// Allocate 为 owner 预留资源，返回预留ID
// 任一资源不足时不做任何修改，返回 ErrResourceExhausted
func (p *Pool) Allocate(owner string, req Requirements) (string, error) {
	for _, k := range Kinds() {
		v := req.amount(k)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", types.NewValidationError(fmt.Sprintf("%s requirement must be a finite number", k))
		}
		if v < 0 {
			return "", types.NewValidationError(fmt.Sprintf("%s requirement must not be negative", k))
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, k := range Kinds() {
		need := req.amount(k)
		if need > p.capacities[k].Available {
			return "", fmt.Errorf("%w: %s need %.2f, available %.2f",
				types.ErrResourceExhausted, k, need, p.capacities[k].Available)
		}
	}
	for _, k := range Kinds() {
		need := req.amount(k)
		c := p.capacities[k]
		c.Available -= need
		c.Allocated += need
	}

	r := &Reservation{
		ID:          uuid.NewString(),
		Owner:       owner,
		Requirement: req,
		CreatedAt:   time.Now(),
	}
	p.reservations[r.ID] = r
	if p.byOwner[owner] == nil {
		p.byOwner[owner] = make(map[string]struct{})
	}
	p.byOwner[owner][r.ID] = struct{}{}
	return r.ID, nil
}

// Release 释放一次预留，重复释放返回false
func (p *Pool) Release(reservationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releaseLocked(reservationID)
}

// ReleaseOwner 释放 owner 名下全部预留，返回释放数量
func (p *Pool) ReleaseOwner(owner string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	released := 0
	for id := range p.byOwner[owner] {
		if p.releaseLocked(id) {
			released++
		}
	}
	return released
}

func (p *Pool) releaseLocked(reservationID string) bool {
	r, ok := p.reservations[reservationID]
	if !ok {
		return false
	}
	for _, k := range Kinds() {
		amount := r.Requirement.amount(k)
		c := p.capacities[k]
		c.Allocated -= amount
		c.Available += amount
		// 浮点累计误差收敛到边界
		if c.Allocated < 0 {
			c.Allocated = 0
		}
		if c.Available > c.Total {
			c.Available = c.Total
		}
	}
	delete(p.reservations, reservationID)
	if ids := p.byOwner[r.Owner]; ids != nil {
		delete(ids, reservationID)
		if len(ids) == 0 {
			delete(p.byOwner, r.Owner)
		}
	}
	return true
}

// Owners 当前持有预留的 owner 列表
func (p *Pool) Owners() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	owners := make([]string, 0, len(p.byOwner))
	for owner := range p.byOwner {
		owners = append(owners, owner)
	}
	return owners
}

// ReservationCount 当前预留数量
func (p *Pool) ReservationCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reservations)
}

// Snapshot 资源池快照
func (p *Pool) Snapshot() map[Kind]Capacity {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[Kind]Capacity, len(p.capacities))
	for k, c := range p.capacities {
		out[k] = *c
	}
	return out
}

// Utilization 各类资源的使用率（0~1）
func (p *Pool) Utilization() map[Kind]float64 {
	out := make(map[Kind]float64, 4)
	for k, c := range p.Snapshot() {
		if c.Total > 0 {
			out[k] = c.Allocated / c.Total
		}
	}
	return out
}

// CheckInvariant 校验 Available + Allocated == Total，并与预留明细核对
func (p *Pool) CheckInvariant() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	const epsilon = 1e-6
	var sums Requirements
	for _, r := range p.reservations {
		sums.CPU += r.Requirement.CPU
		sums.Memory += r.Requirement.Memory
		sums.Storage += r.Requirement.Storage
		sums.Network += r.Requirement.Network
	}
	for _, k := range Kinds() {
		c := p.capacities[k]
		if diff := c.Available + c.Allocated - c.Total; diff > epsilon || diff < -epsilon {
			return fmt.Errorf("资源池不变量被破坏: %s available=%.4f allocated=%.4f total=%.4f",
				k, c.Available, c.Allocated, c.Total)
		}
		if c.Allocated > c.Total+epsilon {
			return fmt.Errorf("资源池超额分配: %s allocated=%.4f total=%.4f", k, c.Allocated, c.Total)
		}
		if diff := c.Allocated - sums.amount(k); diff > epsilon || diff < -epsilon {
			return fmt.Errorf("资源池账目与预留明细不一致: %s allocated=%.4f reserved=%.4f",
				k, c.Allocated, sums.amount(k))
		}
	}
	return nil
}
