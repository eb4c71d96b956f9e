// Package code generates invite codes.
package code

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/invites/internal/invite/domain"
)

type Format string

const (
	FormatULID      Format = "ulid"
	FormatNanoID    Format = "nanoid"
	FormatUUID      Format = "uuid"
	FormatSnowflake Format = "snowflake"

	defaultNanoIDSize = 21
)

// Generator produces codes in a configured default format. Requests that
// carry a size or alphabet always use nanoid.
type Generator struct {
	format Format
	node   *snowflake.Node
}

func NewGenerator(format string, nodeID int64) (*Generator, error) {
	f := Format(strings.ToLower(strings.TrimSpace(format)))
	g := &Generator{format: f}
	switch f {
	case "":
		g.format = FormatULID
	case FormatULID, FormatNanoID, FormatUUID:
	case FormatSnowflake:
		node, err := snowflake.NewNode(nodeID)
		if err != nil {
			return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
		}
		g.node = node
	default:
		return nil, fmt.Errorf("unknown code format %q", format)
	}
	return g, nil
}

func (g *Generator) Format() Format {
	return g.format
}

// Generate returns a fresh code. An alphabet (with an optional size,
// default 21) or a bare size select nanoid; otherwise the default format
// applies.
func (g *Generator) Generate(opts domain.CodeOptions) (string, error) {
	if err := domain.Validate(opts); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidCodeOptions, err)
	}

	switch {
	case opts.Alphabet != "":
		size := opts.Size
		if size == 0 {
			size = defaultNanoIDSize
		}
		code, err := gonanoid.Generate(opts.Alphabet, size)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidCodeOptions, err)
		}
		return code, nil
	case opts.Size > 0:
		return gonanoid.New(opts.Size)
	}

	switch g.format {
	case FormatNanoID:
		return gonanoid.New()
	case FormatUUID:
		return uuid.NewString(), nil
	case FormatSnowflake:
		return g.node.Generate().String(), nil
	default:
		return ulid.Make().String(), nil
	}
}
