package gentext

import (
	"crypto/md5"
	"encoding/binary"
	"reflect"
	"strconv"

	"github.com/weaveworld/goweave/pkg/worlddb"
)

// Context supplies the evaluation state a template renders against.
// It is implemented by the evaluation context; rendering appends to
// its accumulator and may look up further properties.
type Context interface {
	// Tick charges one instruction tick; it fails when the budget is
	// exhausted.
	Tick() error
	// EvalSymbol looks up and evaluates a property by name.
	EvalSymbol(name string) (any, error)
	// Append adds a literal string or a *Marker to the accumulator.
	Append(val any)
	// GenSeed is the seed for this generation pass.
	GenSeed() []byte
	// NextGenCount returns the pass-wide node counter, then increments
	// it. Each seeded selection consumes one count.
	NextGenCount() int
	// GenParams is the pass-wide parameter map, shared by SetKey,
	// IfKey, SwitchKey, and Shuffle bookkeeping.
	GenParams() map[string]any
}

// computeSeed produces a uniform uint32 from the pass seed, the node
// counter, the property being rendered, and the node's structural
// prefix. Deterministic: the same pass state always selects the same
// branch.
func computeSeed(ctx Context, propname, prefix string) uint32 {
	h := md5.New()
	h.Write(ctx.GenSeed())
	h.Write([]byte(strconv.Itoa(ctx.NextGenCount())))
	h.Write([]byte(propname))
	h.Write([]byte(prefix))
	sum := h.Sum(nil)
	return binary.BigEndian.Uint32(sum[len(sum)-4:])
}

// Perform renders the template into the context's accumulator.
// propname is the name of the property being rendered; it feeds the
// selection hash so that distinct properties diverge under one seed.
func (t *Template) Perform(ctx Context, propname string) error {
	return performNode(ctx, propname, t.Root)
}

func performNode(ctx Context, propname string, nod Node) error {
	if err := ctx.Tick(); err != nil {
		return err
	}
	if nod == nil {
		return nil
	}

	switch v := nod.(type) {
	case *Literal:
		if v.Val == nil {
			return nil
		}
		if s := worlddb.Stringify(v.Val); s != "" {
			ctx.Append(s)
		}
		return nil

	case *Marker:
		ctx.Append(v)
		return nil

	case *Symbol:
		res, err := ctx.EvalSymbol(v.Name)
		if err != nil {
			return err
		}
		if res == nil || res == "" {
			return nil
		}
		ctx.Append(worlddb.Stringify(res))
		return nil

	case *Seq:
		for _, sub := range v.Nodes {
			if err := performNode(ctx, propname, sub); err != nil {
				return err
			}
		}
		return nil

	case *Alt:
		count := len(v.Nodes)
		if count == 0 {
			return nil
		}
		if count == 1 {
			return performNode(ctx, propname, v.Nodes[0])
		}
		seed := computeSeed(ctx, propname, v.Prefix)
		return performNode(ctx, propname, v.Nodes[int(seed%uint32(count))])

	case *Shuffle:
		return performShuffle(ctx, propname, v)

	case *Weight:
		if len(v.Entries) == 0 {
			return nil
		}
		seed := computeSeed(ctx, propname, v.Prefix)
		val := (float64(seed%65535) / 65535.0) * v.Total
		total := 0.0
		sel := v.Entries[len(v.Entries)-1].Node
		for _, ent := range v.Entries {
			if val < total+ent.Weight {
				sel = ent.Node
				break
			}
			total += ent.Weight
		}
		return performNode(ctx, propname, sel)

	case *Opt:
		seed := computeSeed(ctx, propname, v.Prefix)
		if float64(seed%65535)/65535.0 < v.Chance {
			return performNode(ctx, propname, v.Node)
		}
		return nil

	case *SetKey:
		val := caseValue(v.Value)
		if sym, ok := v.Value.(*Symbol); ok {
			res, err := ctx.EvalSymbol(sym.Name)
			if err != nil {
				return err
			}
			val = res
		}
		ctx.GenParams()[v.Key] = val
		if v.Node != nil {
			return performNode(ctx, propname, v.Node)
		}
		return nil

	case *IfKey:
		if paramsEqual(ctx.GenParams()[v.Key], v.Value) {
			return performNode(ctx, propname, v.True)
		}
		return performNode(ctx, propname, v.False)

	case *SwitchKey:
		val := ctx.GenParams()[v.Key]
		for _, arm := range v.Cases {
			if paramsEqual(val, arm.Value) {
				return performNode(ctx, propname, arm.Node)
			}
		}
		return performNode(ctx, propname, v.Else)
	}

	ctx.Append("[Unimplemented template node]")
	return nil
}

// performShuffle picks one child, cycling through all of them before
// any repeat. The remaining-index list is kept in the generation
// parameters under the node's position key.
func performShuffle(ctx Context, propname string, nod *Shuffle) error {
	count := len(nod.Nodes)
	if count == 0 {
		return nil
	}
	if count == 1 {
		return performNode(ctx, propname, nod.Nodes[0])
	}

	shufflekey := propname + nod.Prefix
	ls, _ := ctx.GenParams()[shufflekey].([]int)
	if ls == nil {
		ls = seqRange(count)
	}
	var index int
	if len(ls) == 1 {
		index = ls[0]
		ls = seqRange(count)
		for i, v := range ls {
			if v == index {
				ls = append(ls[:i], ls[i+1:]...)
				break
			}
		}
	} else {
		seed := computeSeed(ctx, propname, nod.Prefix)
		pick := int(seed % uint32(len(ls)))
		index = ls[pick]
		ls = append(ls[:pick], ls[pick+1:]...)
	}
	ctx.GenParams()[shufflekey] = ls
	return performNode(ctx, propname, nod.Nodes[index])
}

func seqRange(n int) []int {
	ls := make([]int, n)
	for i := range ls {
		ls[i] = i
	}
	return ls
}

// paramsEqual compares a generation parameter against a case value.
// Scalars compare by value; int and float compare numerically.
func paramsEqual(a, b any) bool {
	if ai, ok := a.(int64); ok {
		if bf, ok := b.(float64); ok {
			return float64(ai) == bf
		}
	}
	if af, ok := a.(float64); ok {
		if bi, ok := b.(int64); ok {
			return af == float64(bi)
		}
	}
	if a == nil || b == nil {
		return a == b
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(b).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
