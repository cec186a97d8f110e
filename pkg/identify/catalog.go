/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: catalog.go
Description: Catalogue of identification trees, one per protocol, built once from the
model store and then only handed out as copies.
*/

package identify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kleascm/akaylee-tlsfsm/pkg/store"
)

// ErrUnknownProtocol is returned for a protocol without models
var ErrUnknownProtocol = errors.New("no identification tree for protocol")

// ModelSource lists the deduplicated models of each protocol
type ModelSource interface {
	Protocols(ctx context.Context) ([]string, error)
	Models(ctx context.Context, protocol string) ([]store.Model, error)
}

// Catalog loads every tree on first use
type Catalog struct {
	source   ModelSource
	maxDepth int

	once  sync.Once
	trees map[string]*Tree
	err   error
}

// NewCatalog creates a catalogue over source. A non-positive maxDepth uses DefaultMaxDepth.
func NewCatalog(source ModelSource, maxDepth int) *Catalog {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Catalog{source: source, maxDepth: maxDepth}
}

func (c *Catalog) load(ctx context.Context) error {
	c.once.Do(func() {
		protocols, err := c.source.Protocols(ctx)
		if err != nil {
			c.err = fmt.Errorf("failed to list protocols: %w", err)
			return
		}
		trees := make(map[string]*Tree, len(protocols))
		for _, protocol := range protocols {
			models, err := c.source.Models(ctx, protocol)
			if err != nil {
				c.err = fmt.Errorf("failed to load models of %s: %w", protocol, err)
				return
			}
			trees[protocol] = Build(models, c.maxDepth)
		}
		c.trees = trees
	})
	return c.err
}

// Tree returns a copy of the tree of protocol, free to be pruned by the caller
func (c *Catalog) Tree(ctx context.Context, protocol string) (*Tree, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	t, ok := c.trees[protocol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProtocol, protocol)
	}
	return t.Clone(), nil
}
