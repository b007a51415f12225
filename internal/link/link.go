// Package link resolves library addresses and factory dependency hashes
// after every unit has been assembled.
package link

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"zkvmc/internal/diag"
	"zkvmc/internal/lower"
	"zkvmc/internal/project"
	"zkvmc/internal/project/dag"
	"zkvmc/internal/source"
	"zkvmc/internal/trace"
)

// Unit is an assembled, unlinked unit.
type Unit struct {
	Name     string
	Artifact []byte
	CodeHash [32]byte
	// Libraries and Dependencies are full unit names.
	Libraries    []string
	Dependencies []string
	Span         source.Span
	Reporter     diag.Reporter
}

// Request is the input of Link.
type Request struct {
	Units             []*Unit
	Libraries         project.Libraries
	AllowPlaceholders bool
}

// Result is one linked unit.
type Result struct {
	Name     string
	Bytecode []byte
	// CodeHash belongs to the unlinked artifact and stays the same however
	// the markers in Bytecode are resolved.
	CodeHash [32]byte
	// FactoryDependencies maps 0x-hex code hash to the dependency path.
	FactoryDependencies map[string]string
	Unresolved          []Placeholder
	Failed              bool
}

// PredictableAddress is where the deployer puts a library with codeHash:
// CREATE2 from the deployer with a zero salt.
func PredictableAddress(codeHash [32]byte) common.Address {
	deployer := common.BigToAddress(big.NewInt(lower.AddrDeployer))
	return crypto.CreateAddress2(deployer, [32]byte{}, codeHash[:])
}

// Link resolves every unit. It runs single threaded after the parallel
// phase; results are in sorted-name order.
func Link(ctx context.Context, req Request) []*Result {
	_, span := trace.StartSpan(ctx, trace.ScopePass, "link")
	defer span.End("")

	units := append([]*Unit(nil), req.Units...)
	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	byName := make(map[string]*Unit, len(units))
	for _, u := range units {
		byName[u.Name] = u
	}

	addrs, cyclic := libraryAddresses(units, byName, req.Libraries)

	out := make([]*Result, 0, len(units))
	for _, u := range units {
		out = append(out, linkUnit(u, byName, addrs, cyclic[u.Name], req.AllowPlaceholders))
	}
	return out
}

// libraryAddresses walks the library DAG in Kahn batches and assigns each
// library either its explicit address or its predictable one. Units on a
// cycle are reported and returned in cyclic.
func libraryAddresses(units []*Unit, byName map[string]*Unit, explicit project.Libraries) (map[string]common.Address, map[string]bool) {
	nodes := make([]dag.Node, 0, len(units))
	for _, u := range units {
		n := dag.Node{Name: u.Name, Span: u.Span, Reporter: u.Reporter}
		for _, lib := range u.Libraries {
			if _, inProject := byName[lib]; inProject {
				n.Deps = append(n.Deps, dag.Dep{Name: lib, Span: u.Span})
			}
		}
		nodes = append(nodes, n)
	}
	idx := dag.BuildIndex(nodes)
	g, slots := dag.BuildGraph(idx, nodes)
	cycles := dag.Cycles(g)
	dag.ReportCycles(idx, slots, cycles)

	cyclic := make(map[string]bool)
	for _, c := range cycles {
		for _, id := range c {
			cyclic[idx.IDToName[int(id)]] = true
		}
	}

	addrs := make(map[string]common.Address, len(explicit))
	for name, a := range explicit {
		addrs[name] = a
	}
	topo := dag.ToposortKahn(g)
	for _, batch := range topo.Batches {
		for _, id := range batch {
			name := idx.IDToName[int(id)]
			if _, ok := addrs[name]; ok {
				continue
			}
			u := byName[name]
			if u == nil || !isLibrary(name, units) {
				continue
			}
			addrs[name] = PredictableAddress(u.CodeHash)
		}
	}
	return addrs, cyclic
}

func isLibrary(name string, units []*Unit) bool {
	for _, u := range units {
		for _, lib := range u.Libraries {
			if lib == name {
				return true
			}
		}
	}
	return false
}

func linkUnit(u *Unit, byName map[string]*Unit, addrs map[string]common.Address, cyclic, allowPlaceholders bool) *Result {
	res := &Result{Name: u.Name, CodeHash: u.CodeHash, FactoryDependencies: make(map[string]string)}
	if cyclic {
		// already reported by libraryAddresses
		res.Failed = true
		return res
	}

	deps := make(map[string][32]byte, len(u.Dependencies))
	for _, d := range u.Dependencies {
		dep, ok := byName[d]
		if !ok {
			diag.ReportError(u.Reporter, diag.LNKMissingDependency, u.Span,
				fmt.Sprintf("factory dependency %s was not compiled", d)).Emit()
			res.Failed = true
			continue
		}
		deps[d] = dep.CodeHash
		res.FactoryDependencies["0x"+hex.EncodeToString(dep.CodeHash[:])] = d
	}

	libs := make(map[string]common.Address, len(u.Libraries))
	for _, l := range u.Libraries {
		if a, ok := addrs[l]; ok {
			libs[l] = a
		}
	}
	code, pending, err := Patch(u.Artifact, libs, deps)
	if err != nil {
		diag.ReportError(u.Reporter, diag.ASMMalformedModule, u.Span, err.Error()).Emit()
		res.Failed = true
		return res
	}
	names := make(map[string]string, len(u.Libraries))
	for _, l := range u.Libraries {
		names["0x"+markerID(l)] = l
	}
	for i := range pending {
		if n, ok := names[pending[i].Library]; ok {
			pending[i].Library = n
		}
		p := pending[i]
		msg := fmt.Sprintf("library %s has no address; %d placeholder(s) left in the bytecode", p.Library, len(p.Offsets))
		if allowPlaceholders {
			diag.ReportWarning(u.Reporter, diag.ADVUnresolvedPlaceholder, u.Span, msg).
				WithNote(u.Span, "link later with `zkvmc link --library "+p.Library+"=<address>`").Emit()
		} else {
			diag.ReportError(u.Reporter, diag.LNKMissingLibrary, u.Span, msg).
				WithNote(u.Span, "pass --library or allow placeholders").Emit()
			res.Failed = true
		}
	}
	res.Unresolved = pending
	res.Bytecode = code
	return res
}

// SummarizeFactory renders FactoryDependencies sorted by path.
func SummarizeFactory(deps map[string]string) string {
	lines := make([]string, 0, len(deps))
	for h, p := range deps {
		lines = append(lines, p+" "+h)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
