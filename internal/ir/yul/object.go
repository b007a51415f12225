package yul

import (
	"strings"

	"zkvmc/internal/source"
)

// DeployedSuffix is appended to an object name to form its runtime object.
const DeployedSuffix = "_deployed"

// Object is a Yul object: deploy code plus nested objects. The runtime
// object of a contract is nested inside it; other nested objects are
// factory dependencies referenced by name.
type Object struct {
	Src     source.Span
	Name    string
	Code    *Block
	Objects []*Object
	Data    map[string][]byte
}

// Runtime returns the runtime sub-object or nil.
func (o *Object) Runtime() *Object {
	if o == nil {
		return nil
	}
	for _, sub := range o.Objects {
		if sub.Name == o.Name+DeployedSuffix {
			return sub
		}
	}
	var only *Object
	for _, sub := range o.Objects {
		if strings.HasSuffix(sub.Name, DeployedSuffix) {
			if only != nil {
				return nil
			}
			only = sub
		}
	}
	return only
}

// Find returns a direct sub-object by name.
func (o *Object) Find(name string) *Object {
	if o == nil {
		return nil
	}
	for _, sub := range o.Objects {
		if sub.Name == name {
			return sub
		}
	}
	return nil
}

// Dependencies returns the names of nested objects referenced as factory
// dependencies: sub-objects of o other than its runtime, then sub-objects of
// the runtime, in declaration order without repeats.
func (o *Object) Dependencies() []string {
	rt := o.Runtime()
	seen := make(map[string]struct{})
	var out []string
	add := func(parent *Object) {
		if parent == nil {
			return
		}
		for _, sub := range parent.Objects {
			if sub == rt {
				continue
			}
			if _, dup := seen[sub.Name]; dup {
				continue
			}
			seen[sub.Name] = struct{}{}
			out = append(out, sub.Name)
		}
	}
	add(o)
	add(rt)
	return out
}
