package dieselrhi

import (
	"cmp"
	"encoding/binary"
	"slices"

	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"
)

// maxSets bounds the descriptor set index a shader may use.
const maxSets = 8

// ReflectedBinding is one descriptor binding used by a shader.
type ReflectedBinding struct {
	Set     uint32
	Binding uint32
	Kind    driver.DescriptorKind
	Count   uint32
	Stages  driver.ShaderStage
}

// Reflection is the resource interface of a shader or of a whole pipeline:
// its descriptor bindings and push-constant ranges.
type Reflection struct {
	Bindings      []ReflectedBinding
	PushConstants []driver.PushConstantRange
}

// LayoutKey is the BLAKE2b-256 digest of a canonical Reflection.
type LayoutKey [blake2b.Size256]byte

// MergeReflection combines the reflections of a pipeline's stages into its
// canonical form: bindings sorted by set and binding, push-constant ranges
// sorted by offset, stage masks of shared entries OR-ed together. A binding
// declared with different kinds or counts is an error, as is a stage
// appearing in two push-constant ranges.
func MergeReflection(stages ...Reflection) (Reflection, error) {
	var out Reflection
	type slot struct{ set, binding uint32 }
	seen := make(map[slot]int)
	for _, r := range stages {
		for _, b := range r.Bindings {
			if b.Set >= maxSets {
				return Reflection{}, errors.Wrapf(driver.ErrInvalid,
					"reflection: set %d exceeds the limit of %d", b.Set, maxSets)
			}
			if b.Count == 0 {
				b.Count = 1
			}
			k := slot{b.Set, b.Binding}
			i, ok := seen[k]
			if !ok {
				seen[k] = len(out.Bindings)
				out.Bindings = append(out.Bindings, b)
				continue
			}
			prev := &out.Bindings[i]
			if prev.Kind != b.Kind || prev.Count != b.Count {
				return Reflection{}, errors.Wrapf(driver.ErrInvalid,
					"reflection: set %d binding %d declared as %s[%d] and %s[%d]",
					b.Set, b.Binding, prev.Kind, prev.Count, b.Kind, b.Count)
			}
			prev.Stages |= b.Stages
		}
		for _, p := range r.PushConstants {
			merged := false
			for i := range out.PushConstants {
				q := &out.PushConstants[i]
				if q.Offset == p.Offset && q.Size == p.Size {
					q.Stages |= p.Stages
					merged = true
					break
				}
			}
			if !merged {
				out.PushConstants = append(out.PushConstants, p)
			}
		}
	}

	var stagesSeen driver.ShaderStage
	for _, p := range out.PushConstants {
		if stagesSeen&p.Stages != 0 {
			return Reflection{}, errors.Wrapf(driver.ErrInvalid,
				"reflection: stage %s appears in more than one push-constant range", p.Stages&stagesSeen)
		}
		stagesSeen |= p.Stages
	}

	slices.SortFunc(out.Bindings, func(a, b ReflectedBinding) int {
		if c := cmp.Compare(a.Set, b.Set); c != 0 {
			return c
		}
		return cmp.Compare(a.Binding, b.Binding)
	})
	slices.SortFunc(out.PushConstants, func(a, b driver.PushConstantRange) int {
		if c := cmp.Compare(a.Offset, b.Offset); c != 0 {
			return c
		}
		return cmp.Compare(a.Size, b.Size)
	})
	return out, nil
}

// withStage returns a copy of r where entries without a stage mask are
// visible to stage.
func (r Reflection) withStage(stage driver.ShaderStage) Reflection {
	out := Reflection{
		Bindings:      slices.Clone(r.Bindings),
		PushConstants: slices.Clone(r.PushConstants),
	}
	for i := range out.Bindings {
		if out.Bindings[i].Stages == 0 {
			out.Bindings[i].Stages = stage
		}
	}
	for i := range out.PushConstants {
		if out.PushConstants[i].Stages == 0 {
			out.PushConstants[i].Stages = stage
		}
	}
	return out
}

func (r Reflection) equal(o Reflection) bool {
	return slices.Equal(r.Bindings, o.Bindings) && slices.Equal(r.PushConstants, o.PushConstants)
}

// setCount is one past the highest set index used.
func (r Reflection) setCount() int {
	n := 0
	for _, b := range r.Bindings {
		n = max(n, int(b.Set)+1)
	}
	return n
}

func (r Reflection) setBindings(set uint32) []driver.LayoutBinding {
	var out []driver.LayoutBinding
	for _, b := range r.Bindings {
		if b.Set == set {
			out = append(out, driver.LayoutBinding{
				Binding: b.Binding,
				Kind:    b.Kind,
				Count:   b.Count,
				Stages:  b.Stages,
			})
		}
	}
	return out
}

// Key hashes a canonical reflection. Every field is written as a fixed
// width integer behind a count, so distinct tuples never encode alike.
func (r Reflection) Key() LayoutKey {
	b := make([]byte, 0, 16+20*len(r.Bindings)+12*len(r.PushConstants))
	b = append(b, "rhi.layout.v1"...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(r.Bindings)))
	for _, x := range r.Bindings {
		b = binary.LittleEndian.AppendUint32(b, x.Set)
		b = binary.LittleEndian.AppendUint32(b, x.Binding)
		b = binary.LittleEndian.AppendUint32(b, uint32(x.Kind))
		b = binary.LittleEndian.AppendUint32(b, x.Count)
		b = binary.LittleEndian.AppendUint32(b, uint32(x.Stages))
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(len(r.PushConstants)))
	for _, p := range r.PushConstants {
		b = binary.LittleEndian.AppendUint32(b, uint32(p.Stages))
		b = binary.LittleEndian.AppendUint32(b, p.Offset)
		b = binary.LittleEndian.AppendUint32(b, p.Size)
	}
	return blake2b.Sum256(b)
}

func setKey(bindings []driver.LayoutBinding) LayoutKey {
	b := make([]byte, 0, 16+16*len(bindings))
	b = append(b, "rhi.set.v1"...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(bindings)))
	for _, x := range bindings {
		b = binary.LittleEndian.AppendUint32(b, x.Binding)
		b = binary.LittleEndian.AppendUint32(b, uint32(x.Kind))
		b = binary.LittleEndian.AppendUint32(b, x.Count)
		b = binary.LittleEndian.AppendUint32(b, uint32(x.Stages))
	}
	return blake2b.Sum256(b)
}
