package keel

import (
	"fmt"
	"reflect"
)

// FeatureID identifies a feature by its declared Go type.
// IDs are stable for the process lifetime and are used as map keys
// throughout the container. Two distinct feature types never collide.
type FeatureID struct {
	rtype reflect.Type
}

// FeatureOf returns the identity token for feature type F.
//
// Example:
//
//	id := keel.FeatureOf[*Database]()
func FeatureOf[F any]() FeatureID {
	return FeatureID{rtype: reflect.TypeOf((*F)(nil)).Elem()}
}

// String returns a human-readable name for the feature type.
func (id FeatureID) String() string {
	if id.rtype == nil {
		return "<invalid feature>"
	}

	return id.rtype.String()
}

// valid reports whether the ID was produced by FeatureOf.
func (id FeatureID) valid() bool {
	return id.rtype != nil
}

// ScopeID names a declared scope in the container tree.
type ScopeID string

// RootScope is the identity of the root node. It is implicit: the root
// is never declared through DeclareScope and never satisfies ContextFor.
const RootScope ScopeID = "root"

// String returns the scope name.
func (s ScopeID) String() string {
	return string(s)
}

// Context carries resolution-time data for a feature load. Any value
// (including nil) is a valid context; it parameterizes loading and, when
// the value is Identifiable, distinguishes cache entries of the same
// feature type.
type Context interface{}

// Identifiable is implemented by contexts whose value should multiply
// cache slots. Identifier must return a comparable value; equal
// identifiers address the same cache slot, and a registration made with
// a context specifier matches resolutions whose identifier equals it.
type Identifiable interface {
	Identifier() any
}

// cacheKey addresses one cache slot: feature identity plus the context
// identity, if any. Non-identifiable contexts collapse onto the same
// slot per feature.
type cacheKey struct {
	feature FeatureID
	context any
}

func newCacheKey(feature FeatureID, ctx Context) cacheKey {
	if identifiable, ok := ctx.(Identifiable); ok {
		return cacheKey{feature: feature, context: identifiable.Identifier()}
	}

	return cacheKey{feature: feature}
}

// String is used in diagnostics and introspection output.
func (k cacheKey) String() string {
	if k.context == nil {
		return k.feature.String()
	}

	return fmt.Sprintf("%s[%v]", k.feature, k.context)
}
