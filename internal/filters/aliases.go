package filters

import (
	"iter"
	"slices"
)

// Aliases maps every accepted filter name, canonical or alias, to its canonical name.
type Aliases map[string]string

// AliasMap builds the lookup table from a descriptor sequence. Canonical names
// always bind to themselves; an alias keeps the first canonical name that
// claimed it.
func AliasMap(seq iter.Seq2[Descriptor, error]) (Aliases, error) {
	names := make(Aliases)
	canonical := make(map[string]struct{})
	for desc, err := range seq {
		if err != nil {
			return nil, err
		}
		names[desc.Name] = desc.Name
		canonical[desc.Name] = struct{}{}
		for _, alias := range desc.Aliases {
			if _, isCanonical := canonical[alias]; isCanonical {
				continue
			}
			if _, taken := names[alias]; taken {
				continue
			}
			names[alias] = desc.Name
		}
	}
	return names, nil
}

// Resolve returns the canonical name for name.
func (a Aliases) Resolve(name string) (string, bool) {
	canonical, ok := a[name]
	return canonical, ok
}

// Names lists every accepted name in sorted order.
func (a Aliases) Names() []string {
	out := make([]string, 0, len(a))
	for name := range a {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
