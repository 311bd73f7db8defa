package keel

import (
	"fmt"
	"strings"
)

// WhichImplementation returns a human-readable provenance trace for
// feature F as seen from this node: each scope in the chain, whether it
// registers the feature, the loader kind, the registration call site,
// and live cache entries. Debug aid for diagnosing FeatureUndefined;
// the output format is not stable.
func WhichImplementation[F any](c *Container) string {
	feature := FeatureOf[F]()

	c.tree.lock.Lock()
	defer c.tree.lock.Unlock()

	var sb strings.Builder
	sb.WriteString(feature.String())

	found := false
	for n := c; n != nil; n = n.parent {
		regs := n.registry.registrationsFor(feature)
		if len(regs) == 0 {
			fmt.Fprintf(&sb, "\n  scope %q: not registered", n.scope)
		} else {
			found = true
			for _, l := range regs {
				fmt.Fprintf(&sb, "\n  scope %q: %s, registered at %s", n.scope, l.kind(), l.source)
			}
		}

		if live := n.liveEntriesFor(feature); live > 0 {
			fmt.Fprintf(&sb, " [%d live cache entr%s]", live, plural(live, "y", "ies"))
		}
	}

	if !found {
		sb.WriteString("\n  not registered anywhere in this chain")
	}

	return sb.String()
}

// liveEntriesFor counts this node's cache entries for a feature across
// all context identities. Caller holds the tree lock.
func (c *Container) liveEntriesFor(feature FeatureID) int {
	count := 0

	for key := range c.cache.entries {
		if key.feature == feature {
			count++
		}
	}

	return count
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}

	return many
}
