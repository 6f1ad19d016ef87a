// Package ids generates account ids, verification tokens and message ids.
package ids

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Generator hands out time-ordered numeric account ids from one snowflake node.
// Each running instance needs its own node id (0-1023).
type Generator struct {
	node *snowflake.Node
}

func NewGenerator(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// NextID returns a new positive account id.
func (g *Generator) NextID() int64 {
	return g.node.Generate().Int64()
}

// NewToken returns a random UUIDv4 string (122 bits of entropy) used for
// verification tokens and session ids.
func NewToken() string {
	return uuid.NewString()
}

// NewKSUID returns a sortable unique id for broker message ids.
func NewKSUID() string {
	return ksuid.New().String()
}
