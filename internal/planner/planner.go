// Package planner allocates the WAN and LAN address blocks of a hub-and-spoke
// network. Every block is a pure function of the branch index.
package planner

import (
	"fmt"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"

	"hubspoke-planner/internal/model"
	"hubspoke-planner/internal/utils"
)

const (
	DefaultWANBase     = "192.168.100.0/24"
	DefaultLANBase     = "10.0.0.0/16"
	DefaultMaxBranches = 6

	WANPrefixLen = 29
	LANPrefixLen = 24

	// host offsets inside a WAN block
	branchSideSeqID = 1
	hubSideSeqID    = 6
)

type Config struct {
	WANBase     string
	LANBase     string
	MaxBranches int
}

func DefaultConfig() Config {
	return Config{
		WANBase:     DefaultWANBase,
		LANBase:     DefaultLANBase,
		MaxBranches: DefaultMaxBranches,
	}
}

type Planner struct {
	wanBase     *net.IPNet
	lanBase     *net.IPNet
	maxBranches int
}

// New validates cfg and returns a planner. The branch cap is a reservation
// policy and may be raised up to what the base networks can hold.
func New(cfg Config) (*Planner, error) {
	wanBase, err := parseBase("WAN", cfg.WANBase, WANPrefixLen)
	if err != nil {
		return nil, err
	}
	lanBase, err := parseBase("LAN", cfg.LANBase, LANPrefixLen)
	if err != nil {
		return nil, err
	}
	if utils.Overlaps(wanBase, lanBase) {
		return nil, fmt.Errorf("WAN base %s overlaps LAN base %s", wanBase, lanBase)
	}

	if cfg.MaxBranches < 1 {
		return nil, fmt.Errorf("max branches must be at least 1, got %d", cfg.MaxBranches)
	}
	wanCap := 1 << uint(WANPrefixLen-utils.PrefixLen(wanBase))
	if cfg.MaxBranches > wanCap {
		return nil, fmt.Errorf("max branches %d exceeds the %d /%d blocks of %s",
			cfg.MaxBranches, wanCap, WANPrefixLen, wanBase)
	}
	// LAN block 0 of the base is never handed out
	lanCap := 1<<uint(LANPrefixLen-utils.PrefixLen(lanBase)) - 1
	if cfg.MaxBranches > lanCap {
		return nil, fmt.Errorf("max branches %d exceeds the %d /%d blocks of %s",
			cfg.MaxBranches, lanCap, LANPrefixLen, lanBase)
	}

	return &Planner{
		wanBase:     wanBase,
		lanBase:     lanBase,
		maxBranches: cfg.MaxBranches,
	}, nil
}

func parseBase(kind, s string, blockLen int) (*net.IPNet, error) {
	ip, ipNet, err := net.ParseCIDR(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s base %q: %w", kind, s, err)
	}
	if ip.To4() == nil {
		return nil, fmt.Errorf("%s base %s is not IPv4", kind, s)
	}
	if !ip.Equal(ipNet.IP) {
		return nil, fmt.Errorf("%s base %s has host bits set", kind, s)
	}
	if utils.PrefixLen(ipNet) > blockLen {
		return nil, fmt.Errorf("%s base %s is smaller than a /%d block", kind, s, blockLen)
	}
	return ipNet, nil
}

func (p *Planner) MaxBranches() int {
	return p.maxBranches
}

// Plan allocates the blocks of n branches.
func (p *Planner) Plan(n int) (*model.Plan, error) {
	if n < 1 || n > p.maxBranches {
		return nil, &model.CapacityError{Requested: n, Max: p.maxBranches}
	}

	plan := &model.Plan{
		Hub:      model.HubID,
		WANBase:  copyNet(p.wanBase),
		LANBase:  copyNet(p.lanBase),
		Branches: make([]model.Branch, n),
	}
	for i := 0; i < n; i++ {
		branch, err := p.Branch(i)
		if err != nil {
			return nil, err
		}
		plan.Branches[i] = branch
	}

	wan := make([]*net.IPNet, n)
	lan := make([]*net.IPNet, n)
	for i, b := range plan.Branches {
		wan[i] = b.WAN.Network
		lan[i] = b.LAN.Network
	}
	if err := cidr.VerifyNoOverlap(wan, p.wanBase); err != nil {
		return nil, model.Inconsistent("WAN blocks: %v", err)
	}
	if err := cidr.VerifyNoOverlap(lan, p.lanBase); err != nil {
		return nil, model.Inconsistent("LAN blocks: %v", err)
	}
	return plan, nil
}

// Branch computes the blocks of branch i independently of every other branch.
func (p *Planner) Branch(i int) (model.Branch, error) {
	if i < 0 || i >= p.maxBranches {
		return model.Branch{}, &model.CapacityError{Requested: i + 1, Max: p.maxBranches}
	}
	wan, err := p.wanBlock(i)
	if err != nil {
		return model.Branch{}, fmt.Errorf("branch %d: %w", i, err)
	}
	lan, err := p.lanBlock(i)
	if err != nil {
		return model.Branch{}, fmt.Errorf("branch %d: %w", i, err)
	}
	return model.Branch{Index: i, WAN: wan, LAN: lan}, nil
}

func (p *Planner) wanBlock(i int) (model.WanBlock, error) {
	newBits := WANPrefixLen - utils.PrefixLen(p.wanBase)
	network, err := cidr.Subnet(p.wanBase, newBits, i)
	if err != nil {
		return model.WanBlock{}, fmt.Errorf("WAN subnet: %w", err)
	}
	branchSide, err := cidr.Host(network, branchSideSeqID)
	if err != nil {
		return model.WanBlock{}, fmt.Errorf("WAN branch side: %w", err)
	}
	hubSide, err := cidr.Host(network, hubSideSeqID)
	if err != nil {
		return model.WanBlock{}, fmt.Errorf("WAN hub side: %w", err)
	}
	return model.WanBlock{Network: network, HubSide: hubSide, BranchSide: branchSide}, nil
}

func (p *Planner) lanBlock(i int) (model.LanBlock, error) {
	newBits := LANPrefixLen - utils.PrefixLen(p.lanBase)
	network, err := cidr.Subnet(p.lanBase, newBits, i+1)
	if err != nil {
		return model.LanBlock{}, fmt.Errorf("LAN subnet: %w", err)
	}
	host, err := cidr.Host(network, 1)
	if err != nil {
		return model.LanBlock{}, fmt.Errorf("LAN host: %w", err)
	}
	_, broadcast := cidr.AddressRange(network)
	return model.LanBlock{Network: network, HostAddress: host, RouterAddress: cidr.Dec(broadcast)}, nil
}

func copyNet(n *net.IPNet) *net.IPNet {
	mask := make(net.IPMask, len(n.Mask))
	copy(mask, n.Mask)
	return &net.IPNet{IP: utils.Clone(n.IP), Mask: mask}
}
